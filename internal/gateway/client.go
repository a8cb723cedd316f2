package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/dyluth/stacks/internal/catalog"
	"github.com/dyluth/stacks/internal/ledger"
	"github.com/dyluth/stacks/internal/liberr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client is an HTTP gateway against a running stacks server. It decodes the
// server's error envelope back into the same error kinds the local gateway
// produces, so actors behave identically either way.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a gateway for the server at baseURL (e.g.
// "http://localhost:8080").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) ListBooks(ctx context.Context) ([]catalog.Book, error) {
	var books []catalog.Book
	err := c.do(ctx, http.MethodGet, "/api/books", nil, &books)
	return books, err
}

func (c *Client) AddBook(ctx context.Context, title, author, isbn string) (catalog.Book, error) {
	var b catalog.Book
	err := c.do(ctx, http.MethodPost, "/api/books", map[string]string{
		"title": title, "author": author, "isbn": isbn,
	}, &b)
	return b, err
}

func (c *Client) RegisterMember(ctx context.Context, name, email, phone string) (catalog.Member, error) {
	var m catalog.Member
	err := c.do(ctx, http.MethodPost, "/api/members", map[string]string{
		"name": name, "email": email, "phone": phone,
	}, &m)
	return m, err
}

func (c *Client) FindMemberByEmail(ctx context.Context, email string) (catalog.Member, error) {
	var members []catalog.Member
	path := "/api/members?email=" + url.QueryEscape(email)
	if err := c.do(ctx, http.MethodGet, path, nil, &members); err != nil {
		return catalog.Member{}, err
	}
	if len(members) == 0 {
		return catalog.Member{}, liberr.NotFound("member with email %q not found", email)
	}
	return members[0], nil
}

func (c *Client) ListLoans(ctx context.Context, activeOnly bool) ([]ledger.LoanDetail, error) {
	path := "/api/loans"
	if activeOnly {
		path += "?active=true"
	}
	var loans []ledger.LoanDetail
	err := c.do(ctx, http.MethodGet, path, nil, &loans)
	return loans, err
}

func (c *Client) Borrow(ctx context.Context, bookID, memberID int64) (ledger.Loan, error) {
	var ln ledger.Loan
	err := c.do(ctx, http.MethodPost, "/api/loans", map[string]int64{
		"book_id": bookID, "member_id": memberID,
	}, &ln)
	return ln, err
}

func (c *Client) Return(ctx context.Context, loanID int64) (ledger.Loan, error) {
	var ln ledger.Loan
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/loans/%d/return", loanID), struct{}{}, &ln)
	return ln, err
}

func (c *Client) Stats(ctx context.Context) (ledger.Stats, error) {
	var st ledger.Stats
	err := c.do(ctx, http.MethodGet, "/api/stats", nil, &st)
	return st, err
}

// errorEnvelope matches the server's error payload.
type errorEnvelope struct {
	Error struct {
		Kind         string `json:"kind"`
		Message      string `json:"message"`
		ReturnedAtMs *int64 `json:"returned_at_ms,omitempty"`
	} `json:"error"`
}

// do issues one request and decodes the response body into out (when out is
// non-nil). Non-2xx responses are mapped back to typed errors.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return liberr.Unknown(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return liberr.Unknown(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// decodeError rebuilds a typed error from the server's error envelope,
// falling back to the HTTP status when the body is not the envelope.
func decodeError(status int, data []byte) error {
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err == nil && env.Error.Message != "" {
		return &liberr.Error{
			Kind:         liberr.Kind(env.Error.Kind),
			Msg:          env.Error.Message,
			ReturnedAtMs: env.Error.ReturnedAtMs,
		}
	}
	return liberr.Unknown(fmt.Errorf("server returned status %d", status))
}
