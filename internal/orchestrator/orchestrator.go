// Package orchestrator runs library simulations: it registers the persona
// roster as members, executes scripted scenarios or the continuous vignette
// loop through actors, and fans every emitted event out to subscribers.
// One simulation runs at a time.
package orchestrator

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dyluth/stacks/internal/actor"
	"github.com/dyluth/stacks/internal/catalog"
	"github.com/dyluth/stacks/internal/liberr"
	"github.com/dyluth/stacks/pkg/event"
)

// Gateway is the library surface the orchestrator and its actors need. Both
// the in-process gateway and the HTTP client satisfy it.
type Gateway interface {
	actor.Gateway
	FindMemberByEmail(ctx context.Context, email string) (catalog.Member, error)
}

// Callback receives every emitted event. Callbacks run sequentially on the
// emitting goroutine and must not block.
type Callback func(event.SimulationEvent)

// Options tunes simulation pacing. The zero value gives production pacing.
type Options struct {
	// Actor bounds every actor's policy and tool calls.
	Actor actor.Options

	// PauseScale multiplies every scripted and continuous pause. Zero means
	// 1.0; tests use a tiny scale to run scenarios near-instantly.
	PauseScale float64

	// ContinuousFor bounds a continuous run. Zero means DefaultContinuousFor.
	ContinuousFor time.Duration

	// Seed fixes the continuous loop's vignette and pause selection.
	// Zero seeds from the clock.
	Seed int64
}

// DefaultContinuousFor is how long a continuous simulation runs when no
// duration is configured.
const DefaultContinuousFor = 5 * time.Minute

// Status is a point-in-time snapshot of the orchestrator.
type Status struct {
	Running     bool   `json:"running"`
	Scenario    string `json:"scenario,omitempty"`
	EventCount  int    `json:"event_count"`
	StartedAtMs int64  `json:"started_at_ms,omitempty"`
}

// Orchestrator coordinates actors through scenarios. All exported methods
// are safe for concurrent use.
type Orchestrator struct {
	gw     Gateway
	policy actor.DecisionPolicy
	opts   Options
	log    *logrus.Entry
	rng    *rand.Rand

	mu          sync.Mutex
	actors      map[string]*actor.Actor
	events      []event.SimulationEvent
	callbacks   []Callback
	running     bool
	scenario    string
	startedAtMs int64
	cancel      context.CancelFunc
	done        chan struct{}
}

// New constructs an orchestrator. Actors are created by Initialize.
func New(gw Gateway, policy actor.DecisionPolicy, opts Options) *Orchestrator {
	if opts.PauseScale <= 0 {
		opts.PauseScale = 1
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Orchestrator{
		gw:     gw,
		policy: policy,
		opts:   opts,
		log:    logrus.WithField("component", "orchestrator"),
		rng:    rand.New(rand.NewSource(seed)),
		actors: make(map[string]*actor.Actor),
	}
}

// Initialize registers every roster persona as a library member and builds
// its actor. Registration is idempotent: personas already registered under
// their simulation email are reused, so repeated simulations never duplicate
// members.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, p := range actor.Roster() {
		if _, ok := o.actors[p.Name]; ok {
			continue
		}

		m, err := o.gw.FindMemberByEmail(ctx, p.Email)
		if liberr.IsNotFound(err) {
			m, err = o.gw.RegisterMember(ctx, p.Name, p.Email, p.Phone)
		}
		if err != nil {
			return err
		}

		o.actors[p.Name] = actor.New(p, m.ID, o.policy, o.gw, o.opts.Actor)
		o.log.WithFields(logrus.Fields{"agent": p.Name, "member_id": m.ID}).Debug("actor initialized")
	}
	return nil
}

// Start launches the named scenario in the background. Exactly one
// simulation runs at a time: starting while one is active first cancels
// the previous run and waits for its terminal marker, so runs are never
// layered. An unknown scenario name is reported both as an error event
// and as a NotFound error.
func (o *Orchestrator) Start(scenario string) error {
	o.StopAndDrain()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		// Lost a race with a concurrent Start that already launched.
		return liberr.Conflict("simulation %q is already running", o.scenario)
	}
	if len(o.actors) == 0 {
		return liberr.New(liberr.KindUnknown, "orchestrator not initialized")
	}
	if scenario != ScenarioContinuous && lookupScenario(scenario) == nil {
		o.emitLocked(event.New(event.TypeError, "System",
			"Unknown scenario: "+scenario, map[string]string{
				event.DetailErrorKind: string(liberr.KindNotFound),
			}))
		return liberr.NotFound("scenario %q not found", scenario)
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.running = true
	o.scenario = scenario
	o.startedAtMs = time.Now().UnixMilli()
	o.cancel = cancel
	o.done = make(chan struct{})

	go o.run(ctx, scenario, o.done)
	return nil
}

// run executes one scenario to completion and always leaves a terminal
// marker event, completed or cancelled, as the final frame of the run.
func (o *Orchestrator) run(ctx context.Context, scenario string, done chan struct{}) {
	defer close(done)
	defer func() {
		o.mu.Lock()
		o.running = false
		o.cancel = nil
		o.mu.Unlock()
	}()

	o.log.WithField("scenario", scenario).Info("simulation started")
	o.Emit(event.New(event.TypeScenarioStart, "System", "Scenario started: "+scenario, nil))

	var err error
	if scenario == ScenarioContinuous {
		err = o.runContinuous(ctx)
	} else {
		err = o.runSteps(ctx, lookupScenario(scenario).Steps)
	}

	marker := event.MarkerCompleted
	content := "Scenario completed: " + scenario
	if err != nil {
		marker = event.MarkerCancelled
		content = "Scenario cancelled: " + scenario
	}
	o.Emit(event.New(event.TypeScenarioEnd, "System", content, map[string]string{
		event.DetailMarker: marker,
	}))
	o.log.WithFields(logrus.Fields{"scenario": scenario, "marker": marker}).Info("simulation finished")
}

// runSteps plays a scripted scenario. The context is checked before every
// step, so a stop request takes effect at the next step boundary and no
// further actions execute.
func (o *Orchestrator) runSteps(ctx context.Context, steps []Step) error {
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.playStep(ctx, step)
		if !o.suspend(ctx, step.Pause) {
			return ctx.Err()
		}
	}
	return nil
}

// playStep emits one step's event. Action steps run the named actor's full
// decision loop; the other types are narrative and emit directly.
func (o *Orchestrator) playStep(ctx context.Context, step Step) {
	if step.Type != event.TypeAction {
		o.Emit(event.New(step.Type, step.Agent, step.Content, nil))
		return
	}

	o.mu.Lock()
	a := o.actors[step.Agent]
	o.mu.Unlock()
	if a == nil {
		o.Emit(event.New(event.TypeError, "System", "Unknown agent: "+step.Agent, nil))
		return
	}

	o.Emit(event.New(event.TypeThinking, step.Agent, step.Content, nil))
	res := a.Act(ctx, step.Content)

	var details map[string]string
	if res.ErrorKind != "" {
		details = map[string]string{event.DetailErrorKind: res.ErrorKind}
	}
	o.Emit(event.New(event.TypeAction, step.Agent, res.Response, details))
}

// suspend sleeps for d scaled by PauseScale, returning false if the context
// was cancelled first.
func (o *Orchestrator) suspend(ctx context.Context, d time.Duration) bool {
	d = time.Duration(float64(d) * o.opts.PauseScale)
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Emit appends the event to the log and invokes every callback
// sequentially, in registration order. The log is append-only; it is
// never truncated while the process lives.
func (o *Orchestrator) Emit(ev event.SimulationEvent) {
	o.mu.Lock()
	o.emitLocked(ev)
	o.mu.Unlock()
}

func (o *Orchestrator) emitLocked(ev event.SimulationEvent) {
	o.events = append(o.events, ev)
	for _, cb := range o.callbacks {
		cb(ev)
	}
}

// AddCallback registers an event subscriber. Registration order is delivery
// order.
func (o *Orchestrator) AddCallback(cb Callback) {
	o.mu.Lock()
	o.callbacks = append(o.callbacks, cb)
	o.mu.Unlock()
}

// Events returns the most recent events, oldest first. limit <= 0 returns
// the full log.
func (o *Orchestrator) Events(limit int) []event.SimulationEvent {
	o.mu.Lock()
	defer o.mu.Unlock()

	evs := o.events
	if limit > 0 && len(evs) > limit {
		evs = evs[len(evs)-limit:]
	}
	out := make([]event.SimulationEvent, len(evs))
	copy(out, evs)
	return out
}

// Status reports the current simulation state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{Running: o.running, EventCount: len(o.events)}
	if o.running {
		st.Scenario = o.scenario
		st.StartedAtMs = o.startedAtMs
	}
	return st
}

// Stop requests cancellation of the running simulation and returns
// immediately. The run goroutine emits the cancelled marker on its way out.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.mu.Unlock()
}

// Wait blocks until the current simulation, if any, finishes.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()

	if done != nil {
		<-done
	}
}

// StopAndDrain cancels the running simulation and waits for its goroutine,
// including the terminal marker event, to finish.
func (o *Orchestrator) StopAndDrain() {
	o.mu.Lock()
	cancel := o.cancel
	done := o.done
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
