// Package event defines the simulation event model shared by the
// orchestrator, the HTTP event stream, and the Redis event mirror. Events
// are append-only and immutable once created; their order is emission order.
package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type classifies a simulation event.
type Type string

const (
	// TypeThinking is an agent's internal monologue before acting.
	TypeThinking Type = "agent_thinking"

	// TypeSpeaking is an in-character line spoken by an agent.
	TypeSpeaking Type = "agent_speaking"

	// TypeAction is the outcome of an agent invoking library operations.
	TypeAction Type = "agent_action"

	// TypeSystemMessage is narrative or progress text not tied to one agent.
	TypeSystemMessage Type = "system_message"

	// TypeScenarioStart marks the beginning of a scenario run.
	TypeScenarioStart Type = "scenario_start"

	// TypeScenarioEnd marks the end of a scenario run.
	TypeScenarioEnd Type = "scenario_end"

	// TypeError reports a failure inside the simulation.
	TypeError Type = "error"
)

// Detail keys with well-known meanings.
const (
	// DetailMarker is set on the terminal event of a run. Its value is
	// MarkerCompleted or MarkerCancelled.
	DetailMarker = "marker"

	// DetailErrorKind carries the failure classification of a degraded
	// agent action.
	DetailErrorKind = "error_kind"
)

// Marker values for DetailMarker.
const (
	MarkerCompleted = "completed"
	MarkerCancelled = "cancelled"
)

// SimulationEvent is one entry in the orchestrator's append-only event log.
type SimulationEvent struct {
	ID          string            `json:"event_id"`
	TimestampMs int64             `json:"timestamp_ms"`
	Type        Type              `json:"event_type"`
	AgentName   string            `json:"agent_name,omitempty"`
	Content     string            `json:"content"`
	Details     map[string]string `json:"details,omitempty"`
}

// New constructs an event stamped with a fresh ID and the current time.
// agentName may be empty for system-level events.
func New(t Type, agentName, content string, details map[string]string) SimulationEvent {
	return SimulationEvent{
		ID:          uuid.New().String(),
		TimestampMs: time.Now().UnixMilli(),
		Type:        t,
		AgentName:   agentName,
		Content:     content,
		Details:     details,
	}
}

// Validate checks that the event has valid field values.
func (e *SimulationEvent) Validate() error {
	if !isValidUUID(e.ID) {
		return fmt.Errorf("invalid event ID: not a valid UUID")
	}

	if e.TimestampMs <= 0 {
		return fmt.Errorf("invalid timestamp: must be > 0, got %d", e.TimestampMs)
	}

	if err := e.Type.Validate(); err != nil {
		return fmt.Errorf("invalid event type: %w", err)
	}

	if e.Content == "" {
		return fmt.Errorf("event content cannot be empty")
	}

	return nil
}

// Validate checks if the Type is a valid enum value.
func (t Type) Validate() error {
	switch t {
	case TypeThinking, TypeSpeaking, TypeAction, TypeSystemMessage,
		TypeScenarioStart, TypeScenarioEnd, TypeError:
		return nil
	default:
		return fmt.Errorf("unknown event type: %q", t)
	}
}

// Marker returns the run marker carried by this event, or "" if it is not a
// terminal marker event.
func (e *SimulationEvent) Marker() string {
	if e.Details == nil {
		return ""
	}
	return e.Details[DetailMarker]
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
