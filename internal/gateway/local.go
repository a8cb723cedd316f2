// Package gateway adapts the library surface for simulation actors. Local
// wraps the catalog and ledger in-process; Client speaks to a remote stacks
// server over HTTP, so a simulation can drive a separately running instance.
package gateway

import (
	"context"

	"github.com/dyluth/stacks/internal/catalog"
	"github.com/dyluth/stacks/internal/ledger"
)

// Local is an in-process gateway over the catalog store and borrowing ledger.
type Local struct {
	store  *catalog.Store
	ledger *ledger.Ledger
}

// NewLocal returns a gateway bound to in-process storage.
func NewLocal(store *catalog.Store, ldg *ledger.Ledger) *Local {
	return &Local{store: store, ledger: ldg}
}

func (l *Local) ListBooks(ctx context.Context) ([]catalog.Book, error) {
	return l.store.ListBooks(ctx, catalog.BookFilter{})
}

func (l *Local) AddBook(ctx context.Context, title, author, isbn string) (catalog.Book, error) {
	return l.store.CreateBook(ctx, title, author, isbn)
}

func (l *Local) RegisterMember(ctx context.Context, name, email, phone string) (catalog.Member, error) {
	return l.store.CreateMember(ctx, name, email, phone)
}

func (l *Local) FindMemberByEmail(ctx context.Context, email string) (catalog.Member, error) {
	return l.store.FindMemberByEmail(ctx, email)
}

func (l *Local) ListLoans(ctx context.Context, activeOnly bool) ([]ledger.LoanDetail, error) {
	return l.ledger.ListLoans(ctx, activeOnly)
}

func (l *Local) Borrow(ctx context.Context, bookID, memberID int64) (ledger.Loan, error) {
	return l.ledger.CreateLoan(ctx, bookID, memberID)
}

func (l *Local) Return(ctx context.Context, loanID int64) (ledger.Loan, error) {
	return l.ledger.CloseLoan(ctx, loanID)
}

func (l *Local) Stats(ctx context.Context) (ledger.Stats, error) {
	return l.ledger.Stats(ctx)
}
