package actor

import (
	"context"
	"fmt"
	"strings"

	"github.com/dyluth/stacks/internal/catalog"
	"github.com/dyluth/stacks/internal/ledger"
)

// Gateway is the library surface actors operate against. In serve mode it is
// backed directly by the catalog and ledger; the simulate command backs it
// with an HTTP client against a remote server.
type Gateway interface {
	ListBooks(ctx context.Context) ([]catalog.Book, error)
	AddBook(ctx context.Context, title, author, isbn string) (catalog.Book, error)
	RegisterMember(ctx context.Context, name, email, phone string) (catalog.Member, error)
	ListLoans(ctx context.Context, activeOnly bool) ([]ledger.LoanDetail, error)
	Borrow(ctx context.Context, bookID, memberID int64) (ledger.Loan, error)
	Return(ctx context.Context, loanID int64) (ledger.Loan, error)
	Stats(ctx context.Context) (ledger.Stats, error)
}

// Toolset executes capability invocations for one persona. Borrow and
// return always act on the persona's own member identity.
type Toolset struct {
	gw       Gateway
	persona  Persona
	memberID int64
}

// NewToolset binds a gateway to a persona and its registered member ID.
func NewToolset(gw Gateway, persona Persona, memberID int64) *Toolset {
	return &Toolset{gw: gw, persona: persona, memberID: memberID}
}

// Run executes one tool call and returns a human-readable outcome.
// Business-rule rejections from the gateway come back as errors; the actor
// folds them into observations.
func (t *Toolset) Run(ctx context.Context, call ToolCall) (string, error) {
	switch call.Capability {
	case CapSearchBooks:
		return t.searchBooks(ctx, call.Args["query"])
	case CapBorrowBook:
		return t.borrowBook(ctx, call.Args["title"])
	case CapReturnBook:
		return t.returnBook(ctx, call.Args["title"])
	case CapAddBook:
		return t.addBook(ctx, call.Args["title"], call.Args["author"], call.Args["isbn"])
	case CapRegisterMember:
		return t.registerMember(ctx, call.Args["name"], call.Args["email"], call.Args["phone"])
	case CapStats:
		return t.stats(ctx)
	case CapHistory:
		return t.history(ctx, call.Args["member"])
	default:
		return "", fmt.Errorf("unknown capability %q", call.Capability)
	}
}

// searchBooks lists the catalog and matches the query against titles and
// authors, suggesting available books when nothing matches.
func (t *Toolset) searchBooks(ctx context.Context, query string) (string, error) {
	books, err := t.gw.ListBooks(ctx)
	if err != nil {
		return "", err
	}
	if len(books) == 0 {
		return "The library catalog is empty. No books available yet.", nil
	}

	matching := matchBooks(books, query)
	if len(matching) > 0 {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Found %d books matching %q:", len(matching), query)
		for _, b := range top(matching, 3) {
			sb.WriteString(fmt.Sprintf("\n- %q by %s (%s)", b.Title, b.Author, availability(b)))
		}
		return sb.String(), nil
	}

	var available []catalog.Book
	for _, b := range books {
		if b.Available {
			available = append(available, b)
		}
	}
	if len(available) > 0 {
		var sb strings.Builder
		fmt.Fprintf(&sb, "No exact match for %q, but here are some available books:", query)
		for _, b := range top(available, 3) {
			sb.WriteString(fmt.Sprintf("\n- %q by %s", b.Title, b.Author))
		}
		return sb.String(), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "No exact match for %q. Here are some books in our library:", query)
	for _, b := range top(books, 3) {
		sb.WriteString(fmt.Sprintf("\n- %q by %s (%s)", b.Title, b.Author, availability(b)))
	}
	return sb.String(), nil
}

// borrowBook borrows the first available book matching title for the
// persona's own member record.
func (t *Toolset) borrowBook(ctx context.Context, title string) (string, error) {
	books, err := t.gw.ListBooks(ctx)
	if err != nil {
		return "", err
	}

	var target *catalog.Book
	matched := matchBooks(books, title)
	for i := range matched {
		if matched[i].Available {
			target = &matched[i]
			break
		}
	}
	if target == nil {
		// Fall back to any available book when the hint matched nothing;
		// personas ask for things like "the first available algorithms book"
		// and still want to leave with something.
		for i := range books {
			if books[i].Available {
				target = &books[i]
				break
			}
		}
	}
	if target == nil {
		return fmt.Sprintf("No available book matching %q right now.", title), nil
	}

	if _, err := t.gw.Borrow(ctx, target.ID, t.memberID); err != nil {
		return "", err
	}
	return fmt.Sprintf("✓ Borrowed %q for %s.", target.Title, t.persona.Name), nil
}

// returnBook closes the persona's first open loan, preferring one whose
// book title matches the hint.
func (t *Toolset) returnBook(ctx context.Context, title string) (string, error) {
	loans, err := t.gw.ListLoans(ctx, true)
	if err != nil {
		return "", err
	}

	var target *ledger.LoanDetail
	for i, ln := range loans {
		if ln.MemberID != t.memberID {
			continue
		}
		if target == nil {
			target = &loans[i]
		}
		if title != "" && strings.Contains(strings.ToLower(ln.BookTitle), strings.ToLower(title)) {
			target = &loans[i]
			break
		}
	}
	if target == nil {
		return fmt.Sprintf("%s has no borrowed books to return.", t.persona.Name), nil
	}

	if _, err := t.gw.Return(ctx, target.ID); err != nil {
		return "", err
	}
	return fmt.Sprintf("✓ Returned %q.", target.BookTitle), nil
}

func (t *Toolset) addBook(ctx context.Context, title, author, isbn string) (string, error) {
	b, err := t.gw.AddBook(ctx, title, author, isbn)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✓ Added %q by %s to the catalog.", b.Title, b.Author), nil
}

func (t *Toolset) registerMember(ctx context.Context, name, email, phone string) (string, error) {
	m, err := t.gw.RegisterMember(ctx, name, email, phone)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✓ Registered %s as a new member.", m.Name), nil
}

func (t *Toolset) stats(ctx context.Context) (string, error) {
	st, err := t.gw.Stats(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Library stats: %d books total (%d available, %d borrowed), %d members, %d active loans.",
		st.TotalBooks, st.AvailableBooks, st.BorrowedBooks, st.TotalMembers, st.ActiveLoans), nil
}

// history summarizes a member's borrowing record. With no member hint it
// reports on the persona itself.
func (t *Toolset) history(ctx context.Context, member string) (string, error) {
	loans, err := t.gw.ListLoans(ctx, false)
	if err != nil {
		return "", err
	}

	name := member
	if name == "" {
		name = t.persona.Name
	}

	var active, returned int
	var current []string
	for _, ln := range loans {
		mine := ln.MemberID == t.memberID
		if member != "" {
			mine = strings.Contains(strings.ToLower(ln.MemberName), strings.ToLower(member))
		}
		if !mine {
			continue
		}
		if ln.IsReturned {
			returned++
		} else {
			active++
			if len(current) < 3 {
				current = append(current, ln.BookTitle)
			}
		}
	}

	out := fmt.Sprintf("%s has %d active loan(s) and %d returned book(s).", name, active, returned)
	if len(current) > 0 {
		out += " Currently borrowed: " + strings.Join(current, ", ") + "."
	}
	return out, nil
}

// matchBooks returns books whose title or author contains the query,
// case-insensitively. An empty query matches nothing.
func matchBooks(books []catalog.Book, query string) []catalog.Book {
	if query == "" {
		return nil
	}
	q := strings.ToLower(query)

	var out []catalog.Book
	for _, b := range books {
		if strings.Contains(strings.ToLower(b.Title), q) || strings.Contains(strings.ToLower(b.Author), q) {
			out = append(out, b)
		}
	}
	return out
}

func top(books []catalog.Book, n int) []catalog.Book {
	if len(books) <= n {
		return books
	}
	return books[:n]
}

func availability(b catalog.Book) string {
	if b.Available {
		return "available"
	}
	return "borrowed"
}
