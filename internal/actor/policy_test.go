package actor

import (
	"context"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decide(t *testing.T, p Persona, prompt string, observations ...string) Decision {
	t.Helper()
	d, err := NewScriptedPolicy().Decide(context.Background(), DecisionRequest{
		Persona:      p,
		Prompt:       prompt,
		Observations: observations,
		Capabilities: p.Capabilities,
	})
	require.NoError(t, err)
	return d
}

func librarian(t *testing.T) Persona {
	for _, p := range Roster() {
		if p.Kind == KindLibrarian {
			return p
		}
	}
	t.Fatal("no librarian in roster")
	return Persona{}
}

func TestScriptedPolicyRouting(t *testing.T) {
	student := testPersona(CapSearchBooks, CapBorrowBook, CapReturnBook, CapHistory)

	t.Run("stats prompts map to library_stats", func(t *testing.T) {
		d := decide(t, student, "How many books does the library have?")
		require.Len(t, d.Calls, 1)
		assert.Equal(t, CapStats, d.Calls[0].Capability)
	})

	t.Run("borrow prompts map to borrow_book with a topic", func(t *testing.T) {
		d := decide(t, student, "I want to borrow a book about algorithms.")
		require.Len(t, d.Calls, 1)
		assert.Equal(t, CapBorrowBook, d.Calls[0].Capability)
		assert.Contains(t, d.Calls[0].Args["title"], "algorithms")
	})

	t.Run("return prompts map to return_book", func(t *testing.T) {
		d := decide(t, student, "Please return my overdue novel.")
		require.Len(t, d.Calls, 1)
		assert.Equal(t, CapReturnBook, d.Calls[0].Capability)
	})

	t.Run("history prompts map to member_history", func(t *testing.T) {
		d := decide(t, student, "Which books do I have checked out?")
		require.Len(t, d.Calls, 1)
		assert.Equal(t, CapHistory, d.Calls[0].Capability)
	})

	t.Run("everything else searches", func(t *testing.T) {
		d := decide(t, student, "Any good reads on Python?")
		require.Len(t, d.Calls, 1)
		assert.Equal(t, CapSearchBooks, d.Calls[0].Capability)
		assert.NotEmpty(t, d.Calls[0].Args["query"])
	})
}

func TestScriptedPolicyLibrarian(t *testing.T) {
	lib := librarian(t)

	t.Run("add prompts map to add_book with title and author", func(t *testing.T) {
		d := decide(t, lib, `Add the book "The Pragmatic Programmer" by David Thomas to the catalog.`)
		require.Len(t, d.Calls, 1)
		assert.Equal(t, CapAddBook, d.Calls[0].Capability)
		assert.Equal(t, "The Pragmatic Programmer", d.Calls[0].Args["title"])
		assert.Contains(t, d.Calls[0].Args["author"], "David Thomas")
		assert.NotEmpty(t, d.Calls[0].Args["isbn"])
	})

	t.Run("non-librarians never get add_book decisions", func(t *testing.T) {
		student := testPersona(CapSearchBooks)
		d := decide(t, student, "Add a book to the catalog please.")
		require.Len(t, d.Calls, 1)
		assert.NotEqual(t, CapAddBook, d.Calls[0].Capability)
	})
}

func TestScriptedPolicyComposesReply(t *testing.T) {
	t.Run("observations end the loop", func(t *testing.T) {
		d := decide(t, testPersona(CapSearchBooks), "find a book", "Found 2 books matching \"python\"")
		assert.Empty(t, d.Calls)
		assert.Contains(t, d.Reply, "Found 2 books")
	})

	t.Run("librarian replies in character", func(t *testing.T) {
		d := decide(t, librarian(t), "stats please", "Library stats: 5 books total.")
		assert.Contains(t, d.Reply, "Of course.")
	})
}

func TestScriptedPolicyDeterminism(t *testing.T) {
	p := testPersona(CapSearchBooks, CapBorrowBook)
	a := decide(t, p, "borrow a book about data structures")
	b := decide(t, p, "borrow a book about data structures")
	assert.Equal(t, a, b)
}

func TestIsbnForIsStable(t *testing.T) {
	assert.Equal(t, isbnFor("Some Title"), isbnFor("Some Title"))
	assert.NotEqual(t, isbnFor("Some Title"), isbnFor("Another Title"))
}

func TestExtractTopic(t *testing.T) {
	assert.Equal(t, "Dune", extractTopic(`Find "Dune" for me`))
	assert.Equal(t, "algorithms", extractTopic("I need a book about algorithms."))
	assert.Equal(t, "machine learning", extractTopic("Looking for machine learning?"))
}

func TestTrimTopicKeepsRunesWhole(t *testing.T) {
	// Byte 60 of this prompt lands mid-rune; truncation must not split it.
	long := "Гордость и предубеждение и другие романы девятнадцатого века"
	got := trimTopic(long)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), 60)
	assert.NotEmpty(t, got)
}
