// Package actor implements persona-driven simulation actors. An actor
// perceives a prompt, consults a decision policy, invokes library operations
// through its fixed capability set, and always produces a well-formed
// ActionResult - tool and policy failures degrade the result, they never
// propagate as errors to the orchestrator.
package actor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Error kinds recorded on degraded ActionResults.
const (
	ErrorKindTimeout = "timeout"
	ErrorKindPolicy  = "policy_error"
)

// ActionResult is the outcome of one Act call. It is always well-formed:
// on failure Response carries a degraded in-character description and
// ErrorKind classifies what went wrong.
type ActionResult struct {
	AgentName   string `json:"agent"`
	Input       string `json:"input"`
	Response    string `json:"response"`
	TimestampMs int64  `json:"timestamp_ms"`
	ErrorKind   string `json:"error_kind,omitempty"`
}

// Exchange is one prompt/response pair kept in the actor's short-term
// conversation window.
type Exchange struct {
	Prompt   string
	Response string
}

// ToolCall is a single capability invocation requested by the policy.
type ToolCall struct {
	Capability Capability
	Args       map[string]string
}

// Decision is the policy's answer for one iteration: either tool calls to
// execute, or a final reply when Calls is empty.
type Decision struct {
	Reply string
	Calls []ToolCall
}

// DecisionRequest is everything the policy sees when deciding.
type DecisionRequest struct {
	Persona      Persona
	Prompt       string
	History      []Exchange
	Observations []string
	Capabilities []Capability
}

// DecisionPolicy chooses what an actor does next. Implementations must be
// safe for concurrent use; the production policy would be LLM-backed, the
// in-tree ScriptedPolicy is deterministic.
type DecisionPolicy interface {
	Decide(ctx context.Context, req DecisionRequest) (Decision, error)
}

// Options bounds the actor's external calls.
type Options struct {
	// CallTimeout applies to every policy decision and tool invocation.
	CallTimeout time.Duration

	// MaxIterations caps the decide/execute loop so a tool-calling cycle
	// always terminates.
	MaxIterations int

	// HistoryWindow is the number of recent exchanges retained.
	HistoryWindow int
}

// DefaultOptions mirror the pacing of the original simulation agents.
func DefaultOptions() Options {
	return Options{
		CallTimeout:   30 * time.Second,
		MaxIterations: 3,
		HistoryWindow: 6,
	}
}

// Actor is one persona-driven simulated library user. Actors are not safe
// for concurrent use; the orchestrator invokes each actor sequentially.
type Actor struct {
	persona Persona
	policy  DecisionPolicy
	tools   *Toolset
	opts    Options
	history []Exchange
	log     *logrus.Entry
}

// New constructs an actor for a persona. memberID is the catalog member the
// persona was registered as; all borrow/return calls act on that identity.
func New(persona Persona, memberID int64, policy DecisionPolicy, gw Gateway, opts Options) *Actor {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultOptions().CallTimeout
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultOptions().MaxIterations
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = DefaultOptions().HistoryWindow
	}

	return &Actor{
		persona: persona,
		policy:  policy,
		tools:   NewToolset(gw, persona, memberID),
		opts:    opts,
		log:     logrus.WithField("component", "actor").WithField("agent", persona.Name),
	}
}

// Name returns the persona's display name.
func (a *Actor) Name() string {
	return a.persona.Name
}

// Persona returns the actor's persona.
func (a *Actor) Persona() Persona {
	return a.persona
}

// Act runs the bounded decision loop for one prompt. Each policy decision
// and tool call carries its own timeout; any failure is folded into a
// degraded but well-formed result.
func (a *Actor) Act(ctx context.Context, prompt string) ActionResult {
	var observations []string

	for iter := 0; iter < a.opts.MaxIterations; iter++ {
		decision, err := a.decide(ctx, prompt, observations)
		if err != nil {
			return a.degraded(prompt, err)
		}

		if len(decision.Calls) == 0 {
			return a.finish(prompt, decision.Reply)
		}

		for _, call := range decision.Calls {
			observations = append(observations, a.invoke(ctx, call))
		}
	}

	// Iteration cap reached: answer from whatever was observed so far.
	reply := strings.Join(observations, " ")
	if reply == "" {
		reply = "I couldn't complete that task."
	}
	return a.finish(prompt, reply)
}

// decide asks the policy for the next step under the call timeout.
func (a *Actor) decide(ctx context.Context, prompt string, observations []string) (Decision, error) {
	cctx, cancel := context.WithTimeout(ctx, a.opts.CallTimeout)
	defer cancel()

	return a.policy.Decide(cctx, DecisionRequest{
		Persona:      a.persona,
		Prompt:       prompt,
		History:      a.history,
		Observations: observations,
		Capabilities: a.persona.Capabilities,
	})
}

// invoke executes one tool call and renders its outcome as an observation
// string. Capability gating and tool failures both become observations so
// the decision loop can react to them.
func (a *Actor) invoke(ctx context.Context, call ToolCall) string {
	if !a.persona.Allows(call.Capability) {
		a.log.WithField("capability", call.Capability).Warn("capability not in persona set, skipping")
		return fmt.Sprintf("I'm not able to %s here.", strings.ReplaceAll(string(call.Capability), "_", " "))
	}

	cctx, cancel := context.WithTimeout(ctx, a.opts.CallTimeout)
	defer cancel()

	out, err := a.tools.Run(cctx, call)
	if err != nil {
		a.log.WithError(err).WithField("capability", call.Capability).Debug("tool call failed")
		if errors.Is(err, context.DeadlineExceeded) {
			return "The request timed out. The library system might be busy."
		}
		return fmt.Sprintf("That didn't work: %v.", err)
	}
	return out
}

// finish records the exchange in the bounded history window and returns a
// successful result.
func (a *Actor) finish(prompt, response string) ActionResult {
	a.history = append(a.history, Exchange{Prompt: prompt, Response: response})
	if len(a.history) > a.opts.HistoryWindow {
		a.history = a.history[len(a.history)-a.opts.HistoryWindow:]
	}

	return ActionResult{
		AgentName:   a.persona.Name,
		Input:       prompt,
		Response:    response,
		TimestampMs: time.Now().UnixMilli(),
	}
}

// degraded converts a policy failure into a well-formed result.
func (a *Actor) degraded(prompt string, err error) ActionResult {
	kind := ErrorKindPolicy
	response := fmt.Sprintf("I'm having trouble: %v", err)
	if errors.Is(err, context.DeadlineExceeded) {
		kind = ErrorKindTimeout
		response = "The request timed out. Let me try something else."
	}

	a.log.WithError(err).Debug("act degraded")
	return ActionResult{
		AgentName:   a.persona.Name,
		Input:       prompt,
		Response:    response,
		TimestampMs: time.Now().UnixMilli(),
		ErrorKind:   kind,
	}
}
