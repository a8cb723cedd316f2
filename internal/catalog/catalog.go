// Package catalog provides data access for books and members. It holds no
// business rules beyond uniqueness of isbn and email; the borrow/return
// state machine lives in the ledger package.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3" // dialect import
	"github.com/jmoiron/sqlx"

	"github.com/dyluth/stacks/internal/liberr"
)

const dialectSQLite = "sqlite3"

const (
	tableBooks   = "books"
	tableMembers = "members"
)

// Book is a catalog entry. Available is a denormalized flag maintained by
// the ledger in the same transaction as loan writes.
type Book struct {
	ID          int64  `db:"id" json:"id"`
	Title       string `db:"title" json:"title"`
	Author      string `db:"author" json:"author"`
	ISBN        string `db:"isbn" json:"isbn"`
	Available   bool   `db:"available" json:"available"`
	CreatedAtMs int64  `db:"created_at_ms" json:"created_at_ms"`
}

// Member is a registered library member.
type Member struct {
	ID          int64   `db:"id" json:"id"`
	Name        string  `db:"name" json:"name"`
	Email       string  `db:"email" json:"email"`
	Phone       *string `db:"phone" json:"phone,omitempty"`
	CreatedAtMs int64   `db:"created_at_ms" json:"created_at_ms"`
}

// BookFilter selects books in ListBooks. The zero value selects everything.
type BookFilter struct {
	Query         string // substring match on title or author
	AvailableOnly bool
	Limit         int // 0 = no limit
	Offset        int
}

// BookUpdate carries optional field changes for UpdateBook.
// Nil fields are left untouched.
type BookUpdate struct {
	Title  *string `json:"title,omitempty"`
	Author *string `json:"author,omitempty"`
	ISBN   *string `json:"isbn,omitempty"`
}

// Store provides SQLite-backed access to books and members.
type Store struct {
	db *sqlx.DB
}

// NewStore returns a Store bound to an existing database handle.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// CreateBook inserts a new available book. Returns a Conflict error if the
// isbn is already registered.
func (s *Store) CreateBook(ctx context.Context, title, author, isbn string) (Book, error) {
	if title == "" || author == "" || isbn == "" {
		return Book{}, liberr.Conflict("title, author and isbn are all required")
	}

	if _, err := s.GetBookByISBN(ctx, isbn); err == nil {
		return Book{}, liberr.Conflict("isbn %q already exists", isbn)
	} else if !liberr.IsNotFound(err) {
		return Book{}, err
	}

	now := time.Now().UnixMilli()
	query, args, err := goqu.Dialect(dialectSQLite).
		Insert(tableBooks).
		Rows(goqu.Record{
			"title":         title,
			"author":        author,
			"isbn":          isbn,
			"available":     true,
			"created_at_ms": now,
		}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return Book{}, fmt.Errorf("failed to build insert query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return Book{}, mapConstraint(err, "isbn %q already exists", isbn)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Book{}, liberr.Unknown(err)
	}

	return Book{ID: id, Title: title, Author: author, ISBN: isbn, Available: true, CreatedAtMs: now}, nil
}

// GetBook retrieves a book by ID.
func (s *Store) GetBook(ctx context.Context, id int64) (Book, error) {
	var b Book
	err := s.db.GetContext(ctx, &b, `SELECT * FROM books WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Book{}, liberr.NotFound("book %d not found", id)
	}
	if err != nil {
		return Book{}, liberr.Unknown(err)
	}
	return b, nil
}

// GetBookByISBN retrieves a book by its isbn.
func (s *Store) GetBookByISBN(ctx context.Context, isbn string) (Book, error) {
	var b Book
	err := s.db.GetContext(ctx, &b, `SELECT * FROM books WHERE isbn = ?`, isbn)
	if errors.Is(err, sql.ErrNoRows) {
		return Book{}, liberr.NotFound("book with isbn %q not found", isbn)
	}
	if err != nil {
		return Book{}, liberr.Unknown(err)
	}
	return b, nil
}

// ListBooks returns books matching the filter, ordered by ID.
func (s *Store) ListBooks(ctx context.Context, filter BookFilter) ([]Book, error) {
	stmt := goqu.Dialect(dialectSQLite).
		From(tableBooks).
		Order(goqu.I("id").Asc())

	if filter.Query != "" {
		pattern := "%" + strings.ToLower(filter.Query) + "%"
		stmt = stmt.Where(goqu.Or(
			goqu.L("lower(title)").Like(pattern),
			goqu.L("lower(author)").Like(pattern),
		))
	}
	if filter.AvailableOnly {
		stmt = stmt.Where(goqu.C("available").IsTrue())
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(uint(filter.Limit)).Offset(uint(filter.Offset))
	}

	query, args, err := stmt.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	books := []Book{}
	if err := s.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, liberr.Unknown(err)
	}
	return books, nil
}

// UpdateBook applies the non-nil fields of upd to a book.
// Returns NotFound if the book does not exist and Conflict if the new isbn
// collides with another book.
func (s *Store) UpdateBook(ctx context.Context, id int64, upd BookUpdate) (Book, error) {
	rec := goqu.Record{}
	if upd.Title != nil {
		rec["title"] = *upd.Title
	}
	if upd.Author != nil {
		rec["author"] = *upd.Author
	}
	if upd.ISBN != nil {
		rec["isbn"] = *upd.ISBN
	}
	if len(rec) == 0 {
		return s.GetBook(ctx, id)
	}

	query, args, err := goqu.Dialect(dialectSQLite).
		Update(tableBooks).
		Set(rec).
		Where(goqu.C("id").Eq(id)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return Book{}, fmt.Errorf("failed to build update query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return Book{}, mapConstraint(err, "isbn already exists")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return Book{}, liberr.Unknown(err)
	}
	if affected == 0 {
		return Book{}, liberr.NotFound("book %d not found", id)
	}

	return s.GetBook(ctx, id)
}

// CreateMember registers a new member. Returns a Conflict error if the email
// is already registered.
func (s *Store) CreateMember(ctx context.Context, name, email, phone string) (Member, error) {
	if name == "" || email == "" {
		return Member{}, liberr.Conflict("name and email are both required")
	}

	if _, err := s.FindMemberByEmail(ctx, email); err == nil {
		return Member{}, liberr.Conflict("email %q already registered", email)
	} else if !liberr.IsNotFound(err) {
		return Member{}, err
	}

	now := time.Now().UnixMilli()
	rec := goqu.Record{
		"name":          name,
		"email":         email,
		"created_at_ms": now,
	}
	var phonePtr *string
	if phone != "" {
		rec["phone"] = phone
		phonePtr = &phone
	} else {
		rec["phone"] = nil
	}

	query, args, err := goqu.Dialect(dialectSQLite).
		Insert(tableMembers).
		Rows(rec).
		Prepared(true).
		ToSQL()
	if err != nil {
		return Member{}, fmt.Errorf("failed to build insert query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return Member{}, mapConstraint(err, "email %q already registered", email)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Member{}, liberr.Unknown(err)
	}

	return Member{ID: id, Name: name, Email: email, Phone: phonePtr, CreatedAtMs: now}, nil
}

// GetMember retrieves a member by ID.
func (s *Store) GetMember(ctx context.Context, id int64) (Member, error) {
	var m Member
	err := s.db.GetContext(ctx, &m, `SELECT * FROM members WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Member{}, liberr.NotFound("member %d not found", id)
	}
	if err != nil {
		return Member{}, liberr.Unknown(err)
	}
	return m, nil
}

// FindMemberByEmail retrieves a member by their unique email.
func (s *Store) FindMemberByEmail(ctx context.Context, email string) (Member, error) {
	var m Member
	err := s.db.GetContext(ctx, &m, `SELECT * FROM members WHERE email = ?`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return Member{}, liberr.NotFound("member with email %q not found", email)
	}
	if err != nil {
		return Member{}, liberr.Unknown(err)
	}
	return m, nil
}

// ListMembers returns all members ordered by ID.
func (s *Store) ListMembers(ctx context.Context) ([]Member, error) {
	members := []Member{}
	if err := s.db.SelectContext(ctx, &members, `SELECT * FROM members ORDER BY id`); err != nil {
		return nil, liberr.Unknown(err)
	}
	return members, nil
}

// mapConstraint turns SQLite unique-constraint violations (a race slipping
// past the check-then-insert) into Conflict errors; anything else is an
// Unknown storage fault.
func mapConstraint(err error, format string, args ...any) error {
	if strings.Contains(err.Error(), "UNIQUE constraint") {
		return liberr.Conflict(format, args...)
	}
	return liberr.Unknown(err)
}
