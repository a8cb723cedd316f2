package filter

import (
	"path/filepath"

	"github.com/dyluth/stacks/pkg/event"
)

// Criteria defines filtering criteria for simulation events.
// All filters are ANDed together - an event must match ALL criteria to pass.
type Criteria struct {
	SinceTimestampMs int64  // Unix timestamp in milliseconds, 0 = no filter
	UntilTimestampMs int64  // Unix timestamp in milliseconds, 0 = no filter
	TypeGlob         string // Glob pattern for event type, empty = no filter
	Agent            string // Exact match for agent name, empty = no filter
}

// Matches returns true if the event matches all filter criteria.
// Empty/zero criteria values are treated as "match all" for that criterion.
func (c *Criteria) Matches(ev *event.SimulationEvent) bool {
	if c.SinceTimestampMs > 0 && ev.TimestampMs < c.SinceTimestampMs {
		return false
	}
	if c.UntilTimestampMs > 0 && ev.TimestampMs > c.UntilTimestampMs {
		return false
	}

	if c.TypeGlob != "" {
		matched, err := filepath.Match(c.TypeGlob, string(ev.Type))
		if err != nil || !matched {
			return false
		}
	}

	if c.Agent != "" && ev.AgentName != c.Agent {
		return false
	}

	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return c.SinceTimestampMs > 0 ||
		c.UntilTimestampMs > 0 ||
		c.TypeGlob != "" ||
		c.Agent != ""
}

// Apply returns the events matching the criteria, preserving order.
func (c *Criteria) Apply(events []event.SimulationEvent) []event.SimulationEvent {
	if !c.HasFilters() {
		return events
	}

	out := make([]event.SimulationEvent, 0, len(events))
	for i := range events {
		if c.Matches(&events[i]) {
			out = append(out, events[i])
		}
	}
	return out
}
