package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/stacks/pkg/event"
)

// Continuous-mode pacing. Pauses between vignettes are drawn uniformly from
// [continuousPauseMin, continuousPauseMax] before scaling.
const (
	continuousPauseMin     = 3 * time.Second
	continuousPauseMax     = 8 * time.Second
	continuousProgressTick = 30 * time.Second
)

// vignette is a short self-contained slice of library life played during a
// continuous run.
type vignette struct {
	name  string
	steps []Step
}

// runContinuous plays randomly chosen vignettes until the configured
// duration elapses or the context is cancelled. Cancellation is an error so
// the run wrapper emits the cancelled marker; the deadline elapsing is a
// normal completion.
func (o *Orchestrator) runContinuous(ctx context.Context) error {
	runFor := o.opts.ContinuousFor
	if runFor <= 0 {
		runFor = DefaultContinuousFor
	}
	runFor = time.Duration(float64(runFor) * o.opts.PauseScale)
	deadline := time.Now().Add(runFor)
	lastProgress := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !time.Now().Before(deadline) {
			return nil
		}

		v := vignettes[o.rng.Intn(len(vignettes))]
		o.log.WithField("vignette", v.name).Debug("playing vignette")
		for _, step := range v.steps {
			if err := ctx.Err(); err != nil {
				return err
			}
			o.playStep(ctx, step)
			if !o.suspend(ctx, step.Pause) {
				return ctx.Err()
			}
		}

		if time.Since(lastProgress) >= time.Duration(float64(continuousProgressTick)*o.opts.PauseScale) {
			remaining := time.Until(deadline).Round(time.Second)
			o.Emit(event.New(event.TypeSystemMessage, "System",
				fmt.Sprintf("The day continues at the library... (%s remaining)", remaining), nil))
			lastProgress = time.Now()
		}

		pause := continuousPauseMin +
			time.Duration(o.rng.Int63n(int64(continuousPauseMax-continuousPauseMin)))
		if remaining := time.Until(deadline); time.Duration(float64(pause)*o.opts.PauseScale) > remaining {
			pause = time.Duration(float64(remaining) / o.opts.PauseScale)
		}
		if !o.suspend(ctx, pause) {
			return ctx.Err()
		}
	}
}

var vignettes = []vignette{
	{
		name: "student_needs_help",
		steps: []Step{
			{Type: event.TypeSpeaking, Agent: "Alex",
				Content: "I can't find anything for my assignment...", Pause: 2 * time.Second},
			{Type: event.TypeAction, Agent: "Alex",
				Content: "Search for books about Python programming.", Pause: 3 * time.Second},
			{Type: event.TypeAction, Agent: "Alex",
				Content: "Borrow a Python book for my assignment.", Pause: 2 * time.Second},
		},
	},
	{
		name: "book_club_discussion",
		steps: []Step{
			{Type: event.TypeSpeaking, Agent: "Emma",
				Content: "Has anyone read something great lately?", Pause: 2 * time.Second},
			{Type: event.TypeAction, Agent: "Emma",
				Content: "Search for fiction worth recommending.", Pause: 3 * time.Second},
			{Type: event.TypeAction, Agent: "Sam",
				Content: "Search for whatever Emma just recommended.", Pause: 2 * time.Second},
		},
	},
	{
		name: "return_queue",
		steps: []Step{
			{Type: event.TypeSystemMessage, Agent: "System",
				Content: "A small queue forms at the returns desk.", Pause: 2 * time.Second},
			{Type: event.TypeAction, Agent: "Jamie",
				Content: "Return one of my overdue books.", Pause: 3 * time.Second},
			{Type: event.TypeAction, Agent: "Emma",
				Content: "Return the novel I finished last night.", Pause: 2 * time.Second},
		},
	},
	{
		name: "recommendation_chat",
		steps: []Step{
			{Type: event.TypeAction, Agent: "Sam",
				Content: "What's popular in the library these days?", Pause: 3 * time.Second},
			{Type: event.TypeSpeaking, Agent: "Ms. Johnson",
				Content: "The technical shelf has been emptying out all week.", Pause: 2 * time.Second},
		},
	},
	{
		name: "study_group",
		steps: []Step{
			{Type: event.TypeSystemMessage, Agent: "System",
				Content: "A study group claims the big table by the window.", Pause: 2 * time.Second},
			{Type: event.TypeAction, Agent: "Alex",
				Content: "Which books do I have checked out right now?", Pause: 3 * time.Second},
			{Type: event.TypeAction, Agent: "Dr. Chen",
				Content: "Borrow a statistics book for the study group.", Pause: 2 * time.Second},
		},
	},
	{
		name: "closing_rush",
		steps: []Step{
			{Type: event.TypeSystemMessage, Agent: "System",
				Content: "Ten minutes to closing. A last-minute rush begins.", Pause: 2 * time.Second},
			{Type: event.TypeAction, Agent: "Emma",
				Content: "Quick, borrow that novel before closing!", Pause: 2 * time.Second},
			{Type: event.TypeAction, Agent: "Ms. Johnson",
				Content: "Give me the end-of-day library stats.", Pause: 2 * time.Second},
		},
	},
	{
		name: "new_arrival",
		steps: []Step{
			{Type: event.TypeSpeaking, Agent: "Ms. Johnson",
				Content: "A delivery just came in. Let me catalog it.", Pause: 2 * time.Second},
			{Type: event.TypeAction, Agent: "Ms. Johnson",
				Content: `Add the book "Fresh Off the Press" by A. Newauthor to the catalog.`, Pause: 3 * time.Second},
			{Type: event.TypeAction, Agent: "Sam",
				Content: "Search for the newest arrivals.", Pause: 2 * time.Second},
		},
	},
	{
		name: "overdue_panic",
		steps: []Step{
			{Type: event.TypeSpeaking, Agent: "Jamie",
				Content: "Oh no. Oh no no no. How long have I had these?", Pause: 2 * time.Second},
			{Type: event.TypeAction, Agent: "Jamie",
				Content: "Which books do I have checked out? I'm scared to ask.", Pause: 3 * time.Second},
			{Type: event.TypeAction, Agent: "Jamie",
				Content: "Return everything overdue, starting with the oldest.", Pause: 2 * time.Second},
		},
	},
	{
		name: "research_consultation",
		steps: []Step{
			{Type: event.TypeAction, Agent: "Dr. Chen",
				Content: "Search for academic titles on neural networks.", Pause: 3 * time.Second},
			{Type: event.TypeSpeaking, Agent: "Dr. Chen",
				Content: "This will do nicely for the literature review.", Pause: 2 * time.Second},
			{Type: event.TypeAction, Agent: "Dr. Chen",
				Content: "Borrow a book on neural networks for my project.", Pause: 2 * time.Second},
		},
	},
}
