// Package ledger implements the borrow/return state machine. It is the one
// place that mutates loan rows and the denormalized books.available flag,
// and it always does both inside a single immediate transaction so that two
// concurrent borrow attempts on the same book cannot both succeed.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/dyluth/stacks/internal/liberr"
)

// Loan is a record of one book held by one member between borrow and return.
// IsReturned is true iff ReturnedAtMs is set.
type Loan struct {
	ID           int64  `db:"id" json:"id"`
	BookID       int64  `db:"book_id" json:"book_id"`
	MemberID     int64  `db:"member_id" json:"member_id"`
	BorrowedAtMs int64  `db:"borrowed_at_ms" json:"borrowed_at_ms"`
	ReturnedAtMs *int64 `db:"returned_at_ms" json:"returned_at_ms,omitempty"`
	IsReturned   bool   `db:"is_returned" json:"is_returned"`
}

// LoanDetail is a loan joined with the book title and member name for
// display and for the simulation tools, which address entities by name.
type LoanDetail struct {
	Loan
	BookTitle  string `db:"book_title" json:"book_title"`
	MemberName string `db:"member_name" json:"member_name"`
}

// Stats summarizes the current catalog and loan state.
type Stats struct {
	TotalBooks     int64 `db:"total_books" json:"total_books"`
	AvailableBooks int64 `db:"available_books" json:"available_books"`
	BorrowedBooks  int64 `db:"borrowed_books" json:"borrowed_books"`
	TotalMembers   int64 `db:"total_members" json:"total_members"`
	ActiveLoans    int64 `db:"active_loans" json:"active_loans"`
	TotalLoans     int64 `db:"total_loans" json:"total_loans"`
}

// Ledger guards the borrow/return invariants over a shared database handle.
type Ledger struct {
	db  *sqlx.DB
	log *logrus.Entry
}

// New returns a Ledger bound to an existing database handle.
func New(db *sqlx.DB) *Ledger {
	return &Ledger{
		db:  db,
		log: logrus.WithField("component", "ledger"),
	}
}

// CreateLoan borrows a book for a member. The member must exist, the book
// must exist and be available. The loan insert and the flip of
// books.available happen in one transaction.
func (l *Ledger) CreateLoan(ctx context.Context, bookID, memberID int64) (Loan, error) {
	var loan Loan

	err := l.withTx(ctx, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM members WHERE id = ?)`, memberID); err != nil {
			return liberr.Unknown(err)
		}
		if !exists {
			return liberr.NotFound("member %d not found", memberID)
		}

		// The conditional update is the availability check and the flip in
		// one statement; zero rows means the book is missing or taken.
		res, err := tx.ExecContext(ctx, `UPDATE books SET available = 0 WHERE id = ? AND available = 1`, bookID)
		if err != nil {
			return liberr.Unknown(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return liberr.Unknown(err)
		}
		if affected == 0 {
			if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM books WHERE id = ?)`, bookID); err != nil {
				return liberr.Unknown(err)
			}
			if !exists {
				return liberr.NotFound("book %d not found", bookID)
			}
			return liberr.Conflict("book %d is not available", bookID)
		}

		now := time.Now().UnixMilli()
		ins, err := tx.ExecContext(ctx,
			`INSERT INTO loans (book_id, member_id, borrowed_at_ms, is_returned) VALUES (?, ?, ?, 0)`,
			bookID, memberID, now)
		if err != nil {
			return mapStorageError(err)
		}
		id, err := ins.LastInsertId()
		if err != nil {
			return liberr.Unknown(err)
		}

		loan = Loan{ID: id, BookID: bookID, MemberID: memberID, BorrowedAtMs: now}
		return nil
	})
	if err != nil {
		return Loan{}, err
	}

	l.log.WithFields(logrus.Fields{"loan_id": loan.ID, "book_id": bookID, "member_id": memberID}).
		Debug("loan created")
	return loan, nil
}

// CloseLoan returns a borrowed book. A loan is closed at most once; closing
// an already-returned loan yields a Conflict carrying the original return
// timestamp. The loan update and the flip of books.available happen in one
// transaction.
func (l *Ledger) CloseLoan(ctx context.Context, loanID int64) (Loan, error) {
	var loan Loan

	err := l.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &loan, `SELECT * FROM loans WHERE id = ?`, loanID)
		if errors.Is(err, sql.ErrNoRows) {
			return liberr.NotFound("loan %d not found", loanID)
		}
		if err != nil {
			return liberr.Unknown(err)
		}

		if loan.IsReturned {
			lerr := liberr.Conflict("loan %d was already returned", loanID)
			lerr.ReturnedAtMs = loan.ReturnedAtMs
			return lerr
		}

		now := time.Now().UnixMilli()
		res, err := tx.ExecContext(ctx,
			`UPDATE loans SET is_returned = 1, returned_at_ms = ? WHERE id = ? AND is_returned = 0`,
			now, loanID)
		if err != nil {
			return liberr.Unknown(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return liberr.Unknown(err)
		}
		if affected == 0 {
			return liberr.Conflict("loan %d was already returned", loanID)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE books SET available = 1 WHERE id = ?`, loan.BookID); err != nil {
			return liberr.Unknown(err)
		}

		loan.IsReturned = true
		loan.ReturnedAtMs = &now
		return nil
	})
	if err != nil {
		return Loan{}, err
	}

	l.log.WithFields(logrus.Fields{"loan_id": loan.ID, "book_id": loan.BookID}).
		Debug("loan closed")
	return loan, nil
}

// GetLoan retrieves a loan by ID.
func (l *Ledger) GetLoan(ctx context.Context, loanID int64) (Loan, error) {
	var loan Loan
	err := l.db.GetContext(ctx, &loan, `SELECT * FROM loans WHERE id = ?`, loanID)
	if errors.Is(err, sql.ErrNoRows) {
		return Loan{}, liberr.NotFound("loan %d not found", loanID)
	}
	if err != nil {
		return Loan{}, liberr.Unknown(err)
	}
	return loan, nil
}

// ListLoans returns loans joined with book titles and member names, ordered
// by ID. With activeOnly set, only open loans are returned.
func (l *Ledger) ListLoans(ctx context.Context, activeOnly bool) ([]LoanDetail, error) {
	query := `
		SELECT loans.id, loans.book_id, loans.member_id, loans.borrowed_at_ms,
		       loans.returned_at_ms, loans.is_returned,
		       books.title AS book_title, members.name AS member_name
		FROM loans
		JOIN books ON books.id = loans.book_id
		JOIN members ON members.id = loans.member_id`
	if activeOnly {
		query += ` WHERE loans.is_returned = 0`
	}
	query += ` ORDER BY loans.id`

	loans := []LoanDetail{}
	if err := l.db.SelectContext(ctx, &loans, query); err != nil {
		return nil, liberr.Unknown(err)
	}
	return loans, nil
}

// MemberLoans returns all loans (open and closed) for one member.
func (l *Ledger) MemberLoans(ctx context.Context, memberID int64) ([]LoanDetail, error) {
	loans := []LoanDetail{}
	err := l.db.SelectContext(ctx, &loans, `
		SELECT loans.id, loans.book_id, loans.member_id, loans.borrowed_at_ms,
		       loans.returned_at_ms, loans.is_returned,
		       books.title AS book_title, members.name AS member_name
		FROM loans
		JOIN books ON books.id = loans.book_id
		JOIN members ON members.id = loans.member_id
		WHERE loans.member_id = ?
		ORDER BY loans.id`, memberID)
	if err != nil {
		return nil, liberr.Unknown(err)
	}
	return loans, nil
}

// DeleteBook removes a book that has no loan history. A book with any loans
// at all is immutable with respect to deletion: active loans and historical
// records both block it, with distinct messages.
func (l *Ledger) DeleteBook(ctx context.Context, bookID int64) error {
	return l.withTx(ctx, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM books WHERE id = ?)`, bookID); err != nil {
			return liberr.Unknown(err)
		}
		if !exists {
			return liberr.NotFound("book %d not found", bookID)
		}

		var active, total int64
		if err := tx.GetContext(ctx, &active, `SELECT COUNT(*) FROM loans WHERE book_id = ? AND is_returned = 0`, bookID); err != nil {
			return liberr.Unknown(err)
		}
		if active > 0 {
			return liberr.Blocked("cannot delete book %d: it has %d active loan(s)", bookID, active)
		}
		if err := tx.GetContext(ctx, &total, `SELECT COUNT(*) FROM loans WHERE book_id = ?`, bookID); err != nil {
			return liberr.Unknown(err)
		}
		if total > 0 {
			return liberr.Blocked("cannot delete book %d: it has %d historical loan record(s)", bookID, total)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, bookID); err != nil {
			return liberr.Unknown(err)
		}
		return nil
	})
}

// DeleteMember removes a member that has no loan history, under the same
// rules as DeleteBook.
func (l *Ledger) DeleteMember(ctx context.Context, memberID int64) error {
	return l.withTx(ctx, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM members WHERE id = ?)`, memberID); err != nil {
			return liberr.Unknown(err)
		}
		if !exists {
			return liberr.NotFound("member %d not found", memberID)
		}

		var active, total int64
		if err := tx.GetContext(ctx, &active, `SELECT COUNT(*) FROM loans WHERE member_id = ? AND is_returned = 0`, memberID); err != nil {
			return liberr.Unknown(err)
		}
		if active > 0 {
			return liberr.Blocked("cannot delete member %d: they have %d active loan(s)", memberID, active)
		}
		if err := tx.GetContext(ctx, &total, `SELECT COUNT(*) FROM loans WHERE member_id = ?`, memberID); err != nil {
			return liberr.Unknown(err)
		}
		if total > 0 {
			return liberr.Blocked("cannot delete member %d: they have %d historical loan record(s)", memberID, total)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM members WHERE id = ?`, memberID); err != nil {
			return liberr.Unknown(err)
		}
		return nil
	})
}

// Stats returns aggregate counts over books, members and loans.
func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := l.db.GetContext(ctx, &st, `
		SELECT
			(SELECT COUNT(*) FROM books)                              AS total_books,
			(SELECT COUNT(*) FROM books WHERE available = 1)          AS available_books,
			(SELECT COUNT(*) FROM books WHERE available = 0)          AS borrowed_books,
			(SELECT COUNT(*) FROM members)                            AS total_members,
			(SELECT COUNT(*) FROM loans WHERE is_returned = 0)        AS active_loans,
			(SELECT COUNT(*) FROM loans)                              AS total_loans`)
	if err != nil {
		return Stats{}, liberr.Unknown(err)
	}
	return st, nil
}

// withTx runs fn inside an immediate transaction, rolling back on any error.
func (l *Ledger) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return liberr.Unknown(err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			l.log.WithError(rbErr).Warn("rollback failed")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapStorageError(err)
	}
	return nil
}

// mapStorageError converts low-level SQLite failures into the taxonomy.
// Constraint violations are races that slipped past the in-transaction
// checks; they surface as a generic conflict after rollback.
func mapStorageError(err error) error {
	if strings.Contains(err.Error(), "constraint") || strings.Contains(err.Error(), "UNIQUE") {
		return liberr.Conflict("conflicting concurrent update, transaction rolled back")
	}
	return liberr.Unknown(err)
}
