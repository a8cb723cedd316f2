package printer

import (
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/dyluth/stacks/pkg/event"
)

var (
	magenta = color.New(color.FgMagenta)
	blue    = color.New(color.FgBlue)
	faint   = color.New(color.Faint)
)

// Event prints one simulation event as a timestamped, color-coded line.
// Used by the simulate and watch commands to render the live feed.
func Event(ev event.SimulationEvent) {
	ts := time.UnixMilli(ev.TimestampMs).Format("15:04:05")

	switch ev.Type {
	case event.TypeThinking:
		faint.Printf("%s  %s is thinking: %s\n", ts, ev.AgentName, ev.Content)
	case event.TypeSpeaking:
		blue.Printf("%s  %s: %q\n", ts, ev.AgentName, ev.Content)
	case event.TypeAction:
		if ev.Details[event.DetailErrorKind] != "" {
			yellow.Printf("%s  %s (degraded): %s\n", ts, ev.AgentName, ev.Content)
		} else {
			green.Printf("%s  %s: %s\n", ts, ev.AgentName, ev.Content)
		}
	case event.TypeScenarioStart, event.TypeScenarioEnd:
		magenta.Printf("%s  ── %s ──\n", ts, ev.Content)
	case event.TypeError:
		red.Printf("%s  error: %s\n", ts, ev.Content)
	default:
		fmt.Printf("%s  %s\n", ts, ev.Content)
	}
}
