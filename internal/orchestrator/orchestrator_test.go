package orchestrator

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/stacks/internal/actor"
	"github.com/dyluth/stacks/internal/catalog"
	"github.com/dyluth/stacks/internal/gateway"
	"github.com/dyluth/stacks/internal/ledger"
	"github.com/dyluth/stacks/internal/liberr"
	"github.com/dyluth/stacks/internal/storage"
	"github.com/dyluth/stacks/pkg/event"
)

// fastOptions runs scenarios near-instantly while keeping real pacing logic.
func fastOptions() Options {
	return Options{PauseScale: 0.001, Seed: 1}
}

type testEnv struct {
	orch   *Orchestrator
	store  *catalog.Store
	ledger *ledger.Ledger
}

func setupEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := storage.Open(filepath.Join(t.TempDir(), "stacks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := catalog.NewStore(db)
	ldg := ledger.New(db)

	seed := []struct{ title, author, isbn string }{
		{"Introduction to Algorithms", "Thomas H. Cormen", "978-1"},
		{"Fluent Python", "Luciano Ramalho", "978-2"},
		{"Pride and Prejudice", "Jane Austen", "978-3"},
		{"Data Science from Scratch", "Joel Grus", "978-4"},
	}
	for _, b := range seed {
		_, err := store.CreateBook(ctx, b.title, b.author, b.isbn)
		require.NoError(t, err)
	}

	orch := New(gateway.NewLocal(store, ldg), actor.NewScriptedPolicy(), opts)
	require.NoError(t, orch.Initialize(ctx))

	return &testEnv{orch: orch, store: store, ledger: ldg}
}

func TestInitialize(t *testing.T) {
	env := setupEnv(t, fastOptions())
	ctx := context.Background()

	t.Run("registers the full roster as members", func(t *testing.T) {
		members, err := env.store.ListMembers(ctx)
		require.NoError(t, err)
		assert.Len(t, members, len(actor.Roster()))
	})

	t.Run("is idempotent", func(t *testing.T) {
		require.NoError(t, env.orch.Initialize(ctx))

		members, err := env.store.ListMembers(ctx)
		require.NoError(t, err)
		assert.Len(t, members, len(actor.Roster()))
	})
}

func TestBusyDayRunsToCompletion(t *testing.T) {
	env := setupEnv(t, fastOptions())
	ctx := context.Background()

	require.NoError(t, env.orch.Start(ScenarioBusyDay))
	env.orch.Wait()

	events := env.orch.Events(0)
	require.NotEmpty(t, events)

	t.Run("events bracket the run in order", func(t *testing.T) {
		assert.Equal(t, event.TypeScenarioStart, events[0].Type)
		last := events[len(events)-1]
		assert.Equal(t, event.TypeScenarioEnd, last.Type)
		assert.Equal(t, event.MarkerCompleted, last.Marker())

		for i := 1; i < len(events); i++ {
			assert.GreaterOrEqual(t, events[i].TimestampMs, events[i-1].TimestampMs)
		}
	})

	t.Run("agent actions reached the library", func(t *testing.T) {
		var actions int
		for _, ev := range events {
			if ev.Type == event.TypeAction {
				actions++
			}
		}
		assert.Greater(t, actions, 0)

		st, err := env.ledger.Stats(ctx)
		require.NoError(t, err)
		assert.Greater(t, st.ActiveLoans, int64(0), "scripted borrows should open loans")
		assert.Equal(t, st.BorrowedBooks, st.ActiveLoans)
	})

	t.Run("the student borrows the algorithms book", func(t *testing.T) {
		var borrowed bool
		for _, ev := range events {
			if ev.Type == event.TypeAction && ev.AgentName == "Alex" &&
				strings.Contains(ev.Content, `Borrowed "Introduction to Algorithms"`) &&
				ev.Details[event.DetailErrorKind] == "" {
				borrowed = true
			}
		}
		assert.True(t, borrowed, "no successful borrow action for Alex mentions the algorithms title")

		algo, err := env.store.GetBookByISBN(ctx, "978-1")
		require.NoError(t, err)
		assert.False(t, algo.Available, "the algorithms book should read unavailable after the run")
	})

	t.Run("status reports idle afterwards", func(t *testing.T) {
		st := env.orch.Status()
		assert.False(t, st.Running)
		assert.NotZero(t, st.EventCount)
	})
}

func TestUnknownScenario(t *testing.T) {
	env := setupEnv(t, fastOptions())

	err := env.orch.Start("heist_night")
	require.True(t, liberr.IsNotFound(err))

	events := env.orch.Events(0)
	require.NotEmpty(t, events)
	assert.Equal(t, event.TypeError, events[len(events)-1].Type)

	assert.False(t, env.orch.Status().Running)
}

func TestStartWhileRunningSupersedes(t *testing.T) {
	env := setupEnv(t, Options{PauseScale: 1, Seed: 1})

	require.NoError(t, env.orch.Start(ScenarioBusyDay))

	// Starting again drains the first run before the new one begins:
	// the first run's cancelled marker must precede the second run's
	// scenario_start, and runs are never layered.
	require.NoError(t, env.orch.Start(ScenarioExamWeek))
	defer env.orch.StopAndDrain()

	assert.Equal(t, ScenarioExamWeek, env.orch.Status().Scenario)

	events := env.orch.Events(0)
	var cancelledAt, secondStartAt = -1, -1
	for i, ev := range events {
		switch {
		case ev.Type == event.TypeScenarioEnd && ev.Marker() == event.MarkerCancelled:
			cancelledAt = i
		case ev.Type == event.TypeScenarioStart && secondStartAt == -1 && i > 0:
			secondStartAt = i
		}
	}
	require.GreaterOrEqual(t, cancelledAt, 0, "first run should have been cancelled")
	require.GreaterOrEqual(t, secondStartAt, 0)
	assert.Less(t, cancelledAt, secondStartAt)
}

func TestStopEmitsCancelledMarker(t *testing.T) {
	env := setupEnv(t, Options{PauseScale: 1, Seed: 1})
	ctx := context.Background()

	require.NoError(t, env.orch.Start(ScenarioBusyDay))
	env.orch.StopAndDrain()

	events := env.orch.Events(0)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, event.TypeScenarioEnd, last.Type)
	assert.Equal(t, event.MarkerCancelled, last.Marker())

	// Stopped during the opening narration: no agent action ran and the
	// library is untouched.
	for _, ev := range events {
		assert.NotEqual(t, event.TypeAction, ev.Type)
	}
	st, err := env.ledger.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.ActiveLoans)

	assert.False(t, env.orch.Status().Running)
}

func TestContinuousRunsUntilDeadline(t *testing.T) {
	opts := fastOptions()
	opts.ContinuousFor = 30 * time.Second // scaled down by PauseScale
	env := setupEnv(t, opts)

	require.NoError(t, env.orch.Start(ScenarioContinuous))

	done := make(chan struct{})
	go func() {
		env.orch.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("continuous run did not finish")
	}

	events := env.orch.Events(0)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, event.TypeScenarioEnd, last.Type)
	assert.Equal(t, event.MarkerCompleted, last.Marker())
}

func TestCallbacksSeeEveryEventInOrder(t *testing.T) {
	env := setupEnv(t, fastOptions())

	var seen []event.SimulationEvent
	env.orch.AddCallback(func(ev event.SimulationEvent) {
		seen = append(seen, ev)
	})

	require.NoError(t, env.orch.Start(ScenarioBookClub))
	env.orch.Wait()

	logged := env.orch.Events(0)
	require.Equal(t, len(logged), len(seen))
	for i := range logged {
		assert.Equal(t, logged[i].ID, seen[i].ID)
	}
}

func TestEventsLimit(t *testing.T) {
	env := setupEnv(t, fastOptions())

	require.NoError(t, env.orch.Start(ScenarioExamWeek))
	env.orch.Wait()

	all := env.orch.Events(0)
	require.Greater(t, len(all), 2)

	tail := env.orch.Events(2)
	require.Len(t, tail, 2)
	assert.Equal(t, all[len(all)-1].ID, tail[1].ID)
}

func TestScenariosListing(t *testing.T) {
	names := map[string]bool{}
	for _, sc := range Scenarios() {
		names[sc.Name] = true
		assert.NotEmpty(t, sc.Description)
	}
	for _, want := range []string{ScenarioBusyDay, ScenarioExamWeek, ScenarioBookClub, ScenarioContinuous} {
		assert.True(t, names[want], "missing scenario %s", want)
	}
}
