package orchestrator

import (
	"sort"
	"time"

	"github.com/dyluth/stacks/pkg/event"
)

// Scenario names accepted by Start.
const (
	ScenarioBusyDay    = "busy_day"
	ScenarioExamWeek   = "exam_week"
	ScenarioBookClub   = "book_club"
	ScenarioContinuous = "continuous"
)

// Step is one beat of a scripted scenario. Action steps run the agent's
// decision loop with Content as the prompt; every other type emits Content
// as-is. Pause is the delay after the step, before scaling.
type Step struct {
	Type    event.Type
	Agent   string
	Content string
	Pause   time.Duration
}

// Scenario is a named, fixed sequence of steps.
type Scenario struct {
	Name        string
	Description string
	Steps       []Step
}

func lookupScenario(name string) *Scenario {
	for i := range scenarios {
		if scenarios[i].Name == name {
			return &scenarios[i]
		}
	}
	return nil
}

// Scenarios lists every runnable scenario, continuous included, sorted by
// name.
func Scenarios() []Scenario {
	out := make([]Scenario, len(scenarios))
	copy(out, scenarios)
	out = append(out, Scenario{
		Name:        ScenarioContinuous,
		Description: "Open-ended library day: random vignettes until the clock runs out.",
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

var scenarios = []Scenario{
	{
		Name:        ScenarioBusyDay,
		Description: "A typical busy day: new arrivals, borrows, returns and a browsing visitor.",
		Steps: []Step{
			{Type: event.TypeSystemMessage, Agent: "System",
				Content: "The library opens for a busy day.", Pause: 2 * time.Second},
			{Type: event.TypeSpeaking, Agent: "Ms. Johnson",
				Content: "Good morning everyone! The new arrivals are on the front shelf.", Pause: 2 * time.Second},
			{Type: event.TypeAction, Agent: "Ms. Johnson",
				Content: `Add the book "The Pragmatic Programmer" by David Thomas to the catalog.`, Pause: 3 * time.Second},
			{Type: event.TypeAction, Agent: "Alex",
				Content: "Search for books about algorithms.", Pause: 3 * time.Second},
			{Type: event.TypeAction, Agent: "Alex",
				Content: "Borrow a book about algorithms.", Pause: 3 * time.Second},
			{Type: event.TypeAction, Agent: "Emma",
				Content: "Search for a good novel to read this week.", Pause: 3 * time.Second},
			{Type: event.TypeAction, Agent: "Emma",
				Content: "Borrow a novel.", Pause: 3 * time.Second},
			{Type: event.TypeAction, Agent: "Sam",
				Content: "What's popular in the library right now?", Pause: 3 * time.Second},
			{Type: event.TypeAction, Agent: "Jamie",
				Content: "Return the book I've had for weeks, sorry!", Pause: 3 * time.Second},
			{Type: event.TypeAction, Agent: "Ms. Johnson",
				Content: "What are the library stats for today?", Pause: 2 * time.Second},
			{Type: event.TypeSystemMessage, Agent: "System",
				Content: "The library closes after a productive day.", Pause: 0},
		},
	},
	{
		Name:        ScenarioExamWeek,
		Description: "Exam week rush: students and researchers compete for technical books.",
		Steps: []Step{
			{Type: event.TypeSystemMessage, Agent: "System",
				Content: "Exam week begins. The study tables fill up fast.", Pause: 2 * time.Second},
			{Type: event.TypeAction, Agent: "Alex",
				Content: "Search for books about data structures.", Pause: 3 * time.Second},
			{Type: event.TypeAction, Agent: "Dr. Chen",
				Content: "Search for academic books on data science.", Pause: 3 * time.Second},
			{Type: event.TypeAction, Agent: "Alex",
				Content: "Borrow a book about algorithms before they're all gone.", Pause: 3 * time.Second},
			{Type: event.TypeAction, Agent: "Dr. Chen",
				Content: "Borrow a book on machine learning for my research.", Pause: 3 * time.Second},
			{Type: event.TypeSpeaking, Agent: "Alex",
				Content: "Three exams in two days. I live here now.", Pause: 2 * time.Second},
			{Type: event.TypeAction, Agent: "Alex",
				Content: "Which books do I have checked out?", Pause: 3 * time.Second},
			{Type: event.TypeAction, Agent: "Dr. Chen",
				Content: "What's my borrowing history?", Pause: 3 * time.Second},
			{Type: event.TypeAction, Agent: "Ms. Johnson",
				Content: "How many books are still available? Give me the stats.", Pause: 2 * time.Second},
			{Type: event.TypeSystemMessage, Agent: "System",
				Content: "Exam week grinds on. The coffee machine is the real hero.", Pause: 0},
		},
	},
	{
		Name:        ScenarioBookClub,
		Description: "Book club evening: Emma leads a discussion and members pick next month's read.",
		Steps: []Step{
			{Type: event.TypeSystemMessage, Agent: "System",
				Content: "Book club night. Chairs form a circle near the fiction shelves.", Pause: 2 * time.Second},
			{Type: event.TypeSpeaking, Agent: "Emma",
				Content: "Welcome back, everyone! Tonight we pick next month's book.", Pause: 2 * time.Second},
			{Type: event.TypeAction, Agent: "Emma",
				Content: "Search for classic fiction we could read next.", Pause: 3 * time.Second},
			{Type: event.TypeAction, Agent: "Sam",
				Content: "Search for something short, I'm a slow reader.", Pause: 3 * time.Second},
			{Type: event.TypeSpeaking, Agent: "Sam",
				Content: "If it's under 300 pages, I'm in.", Pause: 2 * time.Second},
			{Type: event.TypeAction, Agent: "Emma",
				Content: "Borrow the club's pick so I can prepare discussion questions.", Pause: 3 * time.Second},
			{Type: event.TypeAction, Agent: "Jamie",
				Content: "Return last month's book club pick, late as always.", Pause: 3 * time.Second},
			{Type: event.TypeAction, Agent: "Ms. Johnson",
				Content: `Add the book "Book Club Favorites" by Various Authors for the club shelf.`, Pause: 3 * time.Second},
			{Type: event.TypeSpeaking, Agent: "Emma",
				Content: "Same time next month. Bring snacks!", Pause: 0},
		},
	},
}
