package ledger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/stacks/internal/catalog"
	"github.com/dyluth/stacks/internal/liberr"
	"github.com/dyluth/stacks/internal/storage"
)

type fixture struct {
	ledger *Ledger
	store  *catalog.Store
	book   catalog.Book
	member catalog.Member
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := storage.Open(filepath.Join(t.TempDir(), "stacks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := catalog.NewStore(db)
	book, err := store.CreateBook(ctx, "Introduction to Algorithms", "Thomas H. Cormen", "978-1")
	require.NoError(t, err)
	member, err := store.CreateMember(ctx, "Alex", "alex@example.com", "")
	require.NoError(t, err)

	return &fixture{ledger: New(db), store: store, book: book, member: member}
}

func TestCreateLoan(t *testing.T) {
	ctx := context.Background()

	t.Run("borrowing flips availability", func(t *testing.T) {
		f := setup(t)

		loan, err := f.ledger.CreateLoan(ctx, f.book.ID, f.member.ID)
		require.NoError(t, err)
		assert.False(t, loan.IsReturned)
		assert.Nil(t, loan.ReturnedAtMs)
		assert.Greater(t, loan.BorrowedAtMs, int64(0))

		b, err := f.store.GetBook(ctx, f.book.ID)
		require.NoError(t, err)
		assert.False(t, b.Available)
	})

	t.Run("borrowing an unavailable book is a conflict", func(t *testing.T) {
		f := setup(t)
		_, err := f.ledger.CreateLoan(ctx, f.book.ID, f.member.ID)
		require.NoError(t, err)

		_, err = f.ledger.CreateLoan(ctx, f.book.ID, f.member.ID)
		assert.True(t, liberr.IsConflict(err))
	})

	t.Run("unknown book is not found", func(t *testing.T) {
		f := setup(t)
		_, err := f.ledger.CreateLoan(ctx, 9999, f.member.ID)
		assert.True(t, liberr.IsNotFound(err))
	})

	t.Run("unknown member is not found", func(t *testing.T) {
		f := setup(t)
		_, err := f.ledger.CreateLoan(ctx, f.book.ID, 9999)
		assert.True(t, liberr.IsNotFound(err))

		// The failed borrow must not have flipped the book.
		b, err := f.store.GetBook(ctx, f.book.ID)
		require.NoError(t, err)
		assert.True(t, b.Available)
	})
}

// Two goroutines race to borrow the same book; exactly one wins and exactly
// one open loan exists afterwards.
func TestConcurrentBorrowSingleWinner(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.ledger.CreateLoan(ctx, f.book.ID, f.member.ID)
		}(i)
	}
	wg.Wait()

	var winners int
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.True(t, liberr.IsConflict(err), "losers must see a conflict, got %v", err)
		}
	}
	assert.Equal(t, 1, winners)

	open, err := f.ledger.ListLoans(ctx, true)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	b, err := f.store.GetBook(ctx, f.book.ID)
	require.NoError(t, err)
	assert.False(t, b.Available)
}

func TestCloseLoan(t *testing.T) {
	ctx := context.Background()

	t.Run("returning restores availability", func(t *testing.T) {
		f := setup(t)
		loan, err := f.ledger.CreateLoan(ctx, f.book.ID, f.member.ID)
		require.NoError(t, err)

		closed, err := f.ledger.CloseLoan(ctx, loan.ID)
		require.NoError(t, err)
		assert.True(t, closed.IsReturned)
		require.NotNil(t, closed.ReturnedAtMs)

		b, err := f.store.GetBook(ctx, f.book.ID)
		require.NoError(t, err)
		assert.True(t, b.Available)
	})

	t.Run("double return is a conflict carrying the original timestamp", func(t *testing.T) {
		f := setup(t)
		loan, err := f.ledger.CreateLoan(ctx, f.book.ID, f.member.ID)
		require.NoError(t, err)
		closed, err := f.ledger.CloseLoan(ctx, loan.ID)
		require.NoError(t, err)

		_, err = f.ledger.CloseLoan(ctx, loan.ID)
		require.True(t, liberr.IsConflict(err))

		var le *liberr.Error
		require.ErrorAs(t, err, &le)
		require.NotNil(t, le.ReturnedAtMs)
		assert.Equal(t, *closed.ReturnedAtMs, *le.ReturnedAtMs)
	})

	t.Run("unknown loan is not found", func(t *testing.T) {
		f := setup(t)
		_, err := f.ledger.CloseLoan(ctx, 9999)
		assert.True(t, liberr.IsNotFound(err))
	})

	t.Run("book can be borrowed again after return", func(t *testing.T) {
		f := setup(t)
		loan, err := f.ledger.CreateLoan(ctx, f.book.ID, f.member.ID)
		require.NoError(t, err)
		_, err = f.ledger.CloseLoan(ctx, loan.ID)
		require.NoError(t, err)

		again, err := f.ledger.CreateLoan(ctx, f.book.ID, f.member.ID)
		require.NoError(t, err)
		assert.NotEqual(t, loan.ID, again.ID)
	})
}

func TestListLoans(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	second, err := f.store.CreateBook(ctx, "Fluent Python", "Luciano Ramalho", "978-2")
	require.NoError(t, err)

	first, err := f.ledger.CreateLoan(ctx, f.book.ID, f.member.ID)
	require.NoError(t, err)
	_, err = f.ledger.CreateLoan(ctx, second.ID, f.member.ID)
	require.NoError(t, err)
	_, err = f.ledger.CloseLoan(ctx, first.ID)
	require.NoError(t, err)

	t.Run("joins titles and names", func(t *testing.T) {
		all, err := f.ledger.ListLoans(ctx, false)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "Introduction to Algorithms", all[0].BookTitle)
		assert.Equal(t, "Alex", all[0].MemberName)
	})

	t.Run("active filter excludes returned loans", func(t *testing.T) {
		open, err := f.ledger.ListLoans(ctx, true)
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, second.ID, open[0].BookID)
	})

	t.Run("member loans include history", func(t *testing.T) {
		loans, err := f.ledger.MemberLoans(ctx, f.member.ID)
		require.NoError(t, err)
		assert.Len(t, loans, 2)
	})
}

func TestDeleteGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("active loan blocks deletion", func(t *testing.T) {
		f := setup(t)
		_, err := f.ledger.CreateLoan(ctx, f.book.ID, f.member.ID)
		require.NoError(t, err)

		err = f.ledger.DeleteBook(ctx, f.book.ID)
		require.True(t, liberr.IsBlocked(err))
		assert.Contains(t, err.Error(), "active loan")

		err = f.ledger.DeleteMember(ctx, f.member.ID)
		require.True(t, liberr.IsBlocked(err))
		assert.Contains(t, err.Error(), "active loan")
	})

	t.Run("loan history blocks deletion with a distinct message", func(t *testing.T) {
		f := setup(t)
		loan, err := f.ledger.CreateLoan(ctx, f.book.ID, f.member.ID)
		require.NoError(t, err)
		_, err = f.ledger.CloseLoan(ctx, loan.ID)
		require.NoError(t, err)

		err = f.ledger.DeleteBook(ctx, f.book.ID)
		require.True(t, liberr.IsBlocked(err))
		assert.Contains(t, err.Error(), "historical loan record")

		err = f.ledger.DeleteMember(ctx, f.member.ID)
		require.True(t, liberr.IsBlocked(err))
		assert.Contains(t, err.Error(), "historical loan record")
	})

	t.Run("entities without loans can be deleted", func(t *testing.T) {
		f := setup(t)
		require.NoError(t, f.ledger.DeleteBook(ctx, f.book.ID))
		require.NoError(t, f.ledger.DeleteMember(ctx, f.member.ID))

		_, err := f.store.GetBook(ctx, f.book.ID)
		assert.True(t, liberr.IsNotFound(err))
	})

	t.Run("unknown entities are not found", func(t *testing.T) {
		f := setup(t)
		assert.True(t, liberr.IsNotFound(f.ledger.DeleteBook(ctx, 9999)))
		assert.True(t, liberr.IsNotFound(f.ledger.DeleteMember(ctx, 9999)))
	})
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	second, err := f.store.CreateBook(ctx, "Fluent Python", "Luciano Ramalho", "978-2")
	require.NoError(t, err)

	loan, err := f.ledger.CreateLoan(ctx, f.book.ID, f.member.ID)
	require.NoError(t, err)
	_, err = f.ledger.CloseLoan(ctx, loan.ID)
	require.NoError(t, err)
	_, err = f.ledger.CreateLoan(ctx, second.ID, f.member.ID)
	require.NoError(t, err)

	st, err := f.ledger.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.TotalBooks)
	assert.Equal(t, int64(1), st.AvailableBooks)
	assert.Equal(t, int64(1), st.BorrowedBooks)
	assert.Equal(t, int64(1), st.TotalMembers)
	assert.Equal(t, int64(1), st.ActiveLoans)
	assert.Equal(t, int64(2), st.TotalLoans)

	// Availability invariant: borrowed books equals open loans.
	assert.Equal(t, st.BorrowedBooks, st.ActiveLoans)
}
