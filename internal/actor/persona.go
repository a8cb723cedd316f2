package actor

// Kind identifies a persona archetype. Each kind carries a fixed capability
// set resolved at build time; actors never gain or lose capabilities at
// runtime.
type Kind string

const (
	KindLibrarian    Kind = "librarian"
	KindStudent      Kind = "student"
	KindReader       Kind = "reader"
	KindResearcher   Kind = "researcher"
	KindBrowser      Kind = "browser"
	KindLateReturner Kind = "late_returner"
)

// Capability names one library operation an actor may invoke.
type Capability string

const (
	CapSearchBooks    Capability = "search_books"
	CapBorrowBook     Capability = "borrow_book"
	CapReturnBook     Capability = "return_book"
	CapAddBook        Capability = "add_book"
	CapRegisterMember Capability = "register_member"
	CapStats          Capability = "library_stats"
	CapHistory        Capability = "member_history"
)

// Persona describes one simulated library user: identity, behavioral prompt
// and the operations it is allowed to perform.
type Persona struct {
	Kind         Kind
	Name         string
	Email        string
	Phone        string
	Prompt       string
	Capabilities []Capability
}

// Allows reports whether the persona may invoke the given capability.
func (p Persona) Allows(c Capability) bool {
	for _, allowed := range p.Capabilities {
		if allowed == c {
			return true
		}
	}
	return false
}

// Roster returns the standard set of personas for a simulation run.
// Emails use the _sim@library.ai suffix so simulation members can be told
// apart from real ones.
func Roster() []Persona {
	return []Persona{
		{
			Kind:  KindLibrarian,
			Name:  "Ms. Johnson",
			Email: "johnson_sim@library.ai",
			Phone: "555-0100",
			Prompt: "You are Ms. Johnson, the head librarian. Professional but friendly, " +
				"organized, patient with confused patrons, and proud of the library's catalog.",
			Capabilities: []Capability{
				CapSearchBooks, CapAddBook, CapRegisterMember, CapReturnBook, CapStats, CapHistory,
			},
		},
		{
			Kind:  KindStudent,
			Name:  "Alex",
			Email: "alex_sim@library.ai",
			Phone: "555-0101",
			Prompt: "You are Alex, a computer science student. You need textbooks on Python, " +
				"algorithms and data structures, and you sometimes forget to return books.",
			Capabilities: []Capability{
				CapSearchBooks, CapBorrowBook, CapReturnBook, CapHistory,
			},
		},
		{
			Kind:  KindReader,
			Name:  "Emma",
			Email: "emma_sim@library.ai",
			Phone: "555-0102",
			Prompt: "You are Emma, an avid reader of fiction who finishes several books a week, " +
				"always returns on time, and loves recommending novels.",
			Capabilities: []Capability{
				CapSearchBooks, CapBorrowBook, CapReturnBook,
			},
		},
		{
			Kind:  KindResearcher,
			Name:  "Dr. Chen",
			Email: "chen_sim@library.ai",
			Phone: "555-0103",
			Prompt: "You are Dr. Chen, a research professor in data science. You ask for specific " +
				"academic titles and keep books for long research projects.",
			Capabilities: []Capability{
				CapSearchBooks, CapBorrowBook, CapHistory,
			},
		},
		{
			Kind:  KindBrowser,
			Name:  "Sam",
			Email: "sam_sim@library.ai",
			Phone: "555-0104",
			Prompt: "You are Sam, a casual visitor. You browse more than you borrow, ask what's " +
				"popular, and often leave without taking anything.",
			Capabilities: []Capability{
				CapSearchBooks, CapBorrowBook,
			},
		},
		{
			Kind:  KindLateReturner,
			Name:  "Jamie",
			Email: "jamie_sim@library.ai",
			Phone: "555-0105",
			Prompt: "You are Jamie, a busy professional who borrows with good intentions, forgets " +
				"for weeks, and apologizes profusely when returning.",
			Capabilities: []Capability{
				CapReturnBook, CapHistory, CapBorrowBook,
			},
		},
	}
}
