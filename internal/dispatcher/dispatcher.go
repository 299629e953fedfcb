// Package dispatcher turns triggers into executions. It watches the clock
// for scheduled rules, the event bus for automatic and event rules, and an
// operator call for manual runs, then feeds candidates to a bounded worker
// pool in priority order while guaranteeing at most one in-flight
// execution per rule.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/stocksentry/stocksentry/internal/cron"
	"github.com/stocksentry/stocksentry/internal/eventbus"
	"github.com/stocksentry/stocksentry/internal/lifecycle"
	"github.com/stocksentry/stocksentry/internal/metrics"
	"github.com/stocksentry/stocksentry/internal/rulestore"
	"github.com/stocksentry/stocksentry/pkg/types"
)

// ErrNotActive is returned by RunNow for rules that are not active.
var ErrNotActive = errors.New("dispatcher: rule is not active")

// Clock abstracts time for the scheduler loop so cron firing is testable.
type Clock interface {
	Now() time.Time
	Ticker(d time.Duration) (<-chan time.Time, func())
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Ticker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// RuleRunner is the orchestrator surface the dispatcher needs.
type RuleRunner interface {
	Run(ctx context.Context, rule types.Rule, batch []types.Record) (types.Execution, error)
	ExecuteRule(ctx context.Context, rule types.Rule) (types.Execution, error)
}

type candidate struct {
	rule     types.Rule
	batch    []types.Record
	hasBatch bool
}

// Dispatcher owns trigger evaluation and the candidate queue.
type Dispatcher struct {
	store   rulestore.Store
	runner  RuleRunner
	bus     eventbus.Bus
	clock   Clock
	logger  *slog.Logger
	tick    time.Duration
	workers int
	queue   chan candidate

	mu      sync.Mutex
	states  map[string]lifecycle.DispatchState
	pending map[string]candidate
	nextRun map[string]time.Time
	subs    map[string]func()

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a dispatcher. Zero config values fall back to a 1s tick,
// queue size 64 and 2 workers.
func New(cfg types.SchedulerConfig, store rulestore.Store, runner RuleRunner, bus eventbus.Bus, clock Clock, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = realClock{}
	}
	tick := cfg.TickInterval.Std()
	if tick <= 0 {
		tick = time.Second
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	return &Dispatcher{
		store:   store,
		runner:  runner,
		bus:     bus,
		clock:   clock,
		logger:  logger,
		tick:    tick,
		workers: workers,
		queue:   make(chan candidate, queueSize),
		states:  make(map[string]lifecycle.DispatchState),
		pending: make(map[string]candidate),
		nextRun: make(map[string]time.Time),
		subs:    make(map[string]func()),
	}
}

// Start launches the workers and trigger loops. Stop shuts them down.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}

	if d.bus != nil {
		d.subscribe(ctx, types.InventoryChanged, d.onInventoryChanged)
	}

	// First cycle runs synchronously so cron cursors are primed before
	// Start returns.
	d.cycle(ctx)

	d.wg.Add(1)
	go d.schedulerLoop(ctx)
}

// Stop cancels the loops and waits for in-flight executions to finish.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()

	d.mu.Lock()
	for name, unsub := range d.subs {
		unsub()
		delete(d.subs, name)
	}
	d.mu.Unlock()
}

// RunNow makes an active rule an immediate candidate against the full
// inventory. The execution itself is asynchronous; callers watch the
// ledger for the outcome.
func (d *Dispatcher) RunNow(ctx context.Context, ruleID string) error {
	return d.RunNowScoped(ctx, ruleID, nil)
}

// RunNowScoped is RunNow restricted to a specific record batch. An empty
// batch means the full inventory.
func (d *Dispatcher) RunNowScoped(ctx context.Context, ruleID string, batch []types.Record) error {
	rule, err := d.store.Get(ctx, ruleID)
	if err != nil {
		return err
	}
	if rule.Status != types.RuleActive {
		return fmt.Errorf("%w: %s is %s", ErrNotActive, ruleID, rule.Status)
	}
	c := candidate{rule: rule}
	if len(batch) > 0 {
		c.batch = batch
		c.hasBatch = true
	}
	metrics.TriggersFired.Add(1)
	d.enqueue(c)
	return nil
}

func (d *Dispatcher) schedulerLoop(ctx context.Context) {
	defer d.wg.Done()

	ticks, stop := d.clock.Ticker(d.tick)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			d.cycle(ctx)
		}
	}
}

// cycle reloads the active rule set, fires due cron schedules and keeps
// event subscriptions in sync with the rules that want them.
func (d *Dispatcher) cycle(ctx context.Context) {
	rules, err := d.store.List(ctx)
	if err != nil {
		d.logger.Error("listing rules", "error", err)
		return
	}

	now := d.clock.Now()
	var due []candidate
	scheduled := make(map[string]struct{})
	wantedEvents := make(map[string]struct{})

	for _, rule := range rules {
		if rule.Status != types.RuleActive {
			continue
		}
		switch rule.Trigger.Type {
		case types.TriggerScheduled:
			scheduled[rule.ID] = struct{}{}
			if d.scheduleDue(rule, now) {
				due = append(due, candidate{rule: rule})
			}
		case types.TriggerEvent:
			wantedEvents[rule.Trigger.Event] = struct{}{}
		}
	}

	d.pruneSchedules(scheduled)
	d.syncEventSubs(ctx, wantedEvents)

	// Rules due in the same cycle dispatch by ascending priority, ties by id.
	sort.Slice(due, func(a, b int) bool {
		if due[a].rule.Priority != due[b].rule.Priority {
			return due[a].rule.Priority < due[b].rule.Priority
		}
		return due[a].rule.ID < due[b].rule.ID
	})
	for _, c := range due {
		metrics.TriggersFired.Add(1)
		d.enqueue(c)
	}
}

// scheduleDue advances a rule's cron cursor and reports whether it fired.
func (d *Dispatcher) scheduleDue(rule types.Rule, now time.Time) bool {
	sched, err := cron.Parse(rule.Trigger.Cron)
	if err != nil {
		d.logger.Error("invalid cron on active rule", "rule", rule.ID, "cron", rule.Trigger.Cron, "error", err)
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	next, tracked := d.nextRun[rule.ID]
	if !tracked {
		d.nextRun[rule.ID] = sched.Next(now)
		return false
	}
	if next.IsZero() || now.Before(next) {
		return false
	}
	d.nextRun[rule.ID] = sched.Next(now)
	return true
}

func (d *Dispatcher) pruneSchedules(active map[string]struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id := range d.nextRun {
		if _, keep := active[id]; !keep {
			delete(d.nextRun, id)
		}
	}
}

// syncEventSubs adds subscriptions for newly wanted event names and drops
// ones no active rule listens to anymore.
func (d *Dispatcher) syncEventSubs(ctx context.Context, wanted map[string]struct{}) {
	if d.bus == nil {
		return
	}
	d.mu.Lock()
	var stale []func()
	for name, unsub := range d.subs {
		if _, keep := wanted[name]; !keep && name != types.InventoryChanged {
			stale = append(stale, unsub)
			delete(d.subs, name)
		}
	}
	var missing []string
	for name := range wanted {
		if _, have := d.subs[name]; !have {
			missing = append(missing, name)
		}
	}
	d.mu.Unlock()

	for _, unsub := range stale {
		unsub()
	}
	for _, name := range missing {
		d.subscribe(ctx, name, func(ctx context.Context, ev types.BusEvent) {
			d.onNamedEvent(ctx, ev)
		})
	}
}

func (d *Dispatcher) subscribe(ctx context.Context, name string, handle func(context.Context, types.BusEvent)) {
	events, unsub := d.bus.Subscribe(name)

	d.mu.Lock()
	d.subs[name] = unsub
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, open := <-events:
				if !open {
					return
				}
				handle(ctx, ev)
			}
		}
	}()
}

// onInventoryChanged makes every active automatic rule a candidate,
// scoped to the changed records when the event names them.
func (d *Dispatcher) onInventoryChanged(ctx context.Context, ev types.BusEvent) {
	d.fanOut(ctx, func(rule types.Rule) bool {
		return rule.Trigger.Type == types.TriggerAutomatic
	}, ev)
}

// onNamedEvent makes event-triggered rules listening to this name
// candidates.
func (d *Dispatcher) onNamedEvent(ctx context.Context, ev types.BusEvent) {
	d.fanOut(ctx, func(rule types.Rule) bool {
		return rule.Trigger.Type == types.TriggerEvent && rule.Trigger.Event == ev.Name
	}, ev)
}

func (d *Dispatcher) fanOut(ctx context.Context, match func(types.Rule) bool, ev types.BusEvent) {
	rules, err := d.store.List(ctx)
	if err != nil {
		d.logger.Error("listing rules", "error", err)
		return
	}

	var hits []candidate
	for _, rule := range rules {
		if rule.Status != types.RuleActive || !match(rule) {
			continue
		}
		c := candidate{rule: rule}
		if len(ev.Records) > 0 {
			c.batch = ev.Records
			c.hasBatch = true
		}
		hits = append(hits, c)
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].rule.Priority != hits[b].rule.Priority {
			return hits[a].rule.Priority < hits[b].rule.Priority
		}
		return hits[a].rule.ID < hits[b].rule.ID
	})
	for _, c := range hits {
		metrics.TriggersFired.Add(1)
		d.enqueue(c)
	}
}

// enqueue moves a rule to candidate state and pushes it on the queue. A
// rule already executing gets the request parked for one re-dispatch; a
// rule already queued coalesces.
func (d *Dispatcher) enqueue(c candidate) {
	id := c.rule.ID

	d.mu.Lock()
	switch d.state(id) {
	case lifecycle.DispatchExecuting:
		d.pending[id] = c
		d.mu.Unlock()
		return
	case lifecycle.DispatchCandidate:
		d.mu.Unlock()
		return
	}
	d.setState(id, lifecycle.DispatchCandidate)
	d.mu.Unlock()

	select {
	case d.queue <- c:
		metrics.CandidatesQueued.Add(1)
	default:
		d.logger.Warn("candidate queue full, dropping trigger", "rule", id)
		d.mu.Lock()
		d.setState(id, lifecycle.DispatchIdle)
		d.mu.Unlock()
	}
}

func (d *Dispatcher) state(id string) lifecycle.DispatchState {
	if s, found := d.states[id]; found {
		return s
	}
	return lifecycle.DispatchIdle
}

// setState applies a dispatch transition, refusing moves the state machine
// does not allow. Callers hold d.mu.
func (d *Dispatcher) setState(id string, to lifecycle.DispatchState) {
	if err := lifecycle.Dispatch(d.state(id), to); err != nil {
		d.logger.Error("dispatch state", "rule", id, "error", err)
		return
	}
	if to == lifecycle.DispatchIdle {
		delete(d.states, id)
		return
	}
	d.states[id] = to
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-d.queue:
			d.execute(ctx, c)
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, c candidate) {
	id := c.rule.ID

	d.mu.Lock()
	d.setState(id, lifecycle.DispatchExecuting)
	d.mu.Unlock()

	// Re-read the rule so a deactivation between trigger and dispatch wins.
	rule, err := d.store.Get(ctx, id)
	if err != nil || rule.Status != types.RuleActive {
		if err != nil && !errors.Is(err, rulestore.ErrNotFound) {
			d.logger.Error("reloading rule before execution", "rule", id, "error", err)
		}
		d.settle(id)
		return
	}

	if c.hasBatch {
		_, err = d.runner.Run(ctx, rule, c.batch)
	} else {
		_, err = d.runner.ExecuteRule(ctx, rule)
	}
	if err != nil && ctx.Err() == nil {
		d.logger.Error("executing rule", "rule", id, "error", err)
	}

	d.settle(id)
}

// settle returns a rule to idle, or straight back to the queue if a
// trigger arrived while it was executing.
func (d *Dispatcher) settle(id string) {
	d.mu.Lock()
	next, queued := d.pending[id]
	if queued {
		delete(d.pending, id)
		d.setState(id, lifecycle.DispatchCandidate)
	} else {
		d.setState(id, lifecycle.DispatchIdle)
	}
	d.mu.Unlock()

	if !queued {
		return
	}
	select {
	case d.queue <- next:
		metrics.CandidatesQueued.Add(1)
	default:
		d.logger.Warn("candidate queue full, dropping re-dispatch", "rule", id)
		d.mu.Lock()
		d.setState(id, lifecycle.DispatchIdle)
		d.mu.Unlock()
	}
}
