// Package compile drives the debounced compile pipeline of one session.
//
// The Orchestrator is a small state machine run by a single loop goroutine:
//
//	Idle     --touch-->  Pending   (debounce timer armed)
//	Pending  --touch-->  Pending   (timer re-armed)
//	Pending  --timer-->  Running
//	any      --run---->  Running   (timer cancelled, debounce bypassed)
//	Running  --done--->  Idle, or Pending if a touch re-armed the timer
//
// A timer firing or a manual run while a compile is in flight does not start
// a second one: the run is deferred and starts as soon as the in-flight call
// returns. Backend calls are never cancelled; their result is delivered even
// when newer edits exist, unless Options.DiscardStale is set.
//
//	o := compile.New(snapshot, invoke, compile.Options{Debounce: 500 * time.Millisecond})
//	go o.Run(ctx)
//	o.Touch() // after every tracked mutation
package compile

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/weslplay/backend"
	"github.com/hazyhaar/weslplay/schema"
)

// State is the orchestrator state.
type State int32

const (
	Idle State = iota
	Pending
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Running:
		return "running"
	}
	return "unknown"
}

// Input is the state a compile ran on. Seq is the mutation counter at the
// moment the snapshot was taken.
type Input struct {
	Seq      uint64
	Snapshot schema.Snapshot
}

// Outcome is delivered once per completed compile.
type Outcome struct {
	Input    Input
	Result   backend.Result
	Duration time.Duration
	Manual   bool
}

// SnapshotFunc reads the current project state.
type SnapshotFunc func() schema.Snapshot

// CompileFunc performs one compile. It must not panic and should return a
// failed Result rather than block forever.
type CompileFunc func(ctx context.Context, in Input) backend.Result

// Options tunes the orchestrator.
type Options struct {
	// Debounce is the quiet period after the last touch. Default: 500ms.
	Debounce time.Duration
	// DiscardStale drops a result when the state changed during the run and
	// another run is already due.
	DiscardStale bool
	// Autorun is the initial autorun flag.
	Autorun bool
	// OnResult receives every delivered outcome, on the loop goroutine.
	OnResult func(Outcome)
	// OnDiscard receives outcomes dropped by DiscardStale.
	OnDiscard func(Outcome)
	// OnState is called on every state transition, on the loop goroutine.
	OnState func(State)
	Logger  *slog.Logger
}

func (o *Options) defaults() {
	if o.Debounce <= 0 {
		o.Debounce = 500 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Stats are point-in-time counters.
type Stats struct {
	Touches    int64         `json:"touches"`
	Runs       int64         `json:"runs"`
	Failures   int64         `json:"failures"`
	Deferred   int64         `json:"deferred"`
	Discarded  int64         `json:"discarded"`
	AvgRunTime time.Duration `json:"avg_run_time"`
}

type done struct {
	in     Input
	res    backend.Result
	dur    time.Duration
	manual bool
}

// Orchestrator schedules compiles for one session.
type Orchestrator struct {
	snapshot SnapshotFunc
	compile  CompileFunc
	opts     Options

	touchCh   chan struct{}
	runCh     chan struct{}
	autorunCh chan bool
	doneCh    chan done

	seq     atomic.Uint64
	state   atomic.Int32
	autorun atomic.Bool

	touches   atomic.Int64
	runs      atomic.Int64
	failures  atomic.Int64
	deferred  atomic.Int64
	discarded atomic.Int64
	runNs     atomic.Int64
}

// New creates an Orchestrator. Call Run to start it.
func New(snapshot SnapshotFunc, compile CompileFunc, opts Options) *Orchestrator {
	opts.defaults()
	o := &Orchestrator{
		snapshot:  snapshot,
		compile:   compile,
		opts:      opts,
		touchCh:   make(chan struct{}, 1),
		runCh:     make(chan struct{}, 1),
		autorunCh: make(chan bool, 1),
		doneCh:    make(chan done),
	}
	o.autorun.Store(opts.Autorun)
	return o
}

// Touch records a tracked mutation. It never blocks.
func (o *Orchestrator) Touch() {
	o.seq.Add(1)
	o.touches.Add(1)
	select {
	case o.touchCh <- struct{}{}:
	default:
	}
}

// RunNow requests an immediate compile, bypassing the debounce window.
func (o *Orchestrator) RunNow() {
	select {
	case o.runCh <- struct{}{}:
	default:
	}
}

// SetAutorun toggles autorun. Enabling it compiles immediately; disabling it
// cancels a pending timer. Setting the current value does nothing.
func (o *Orchestrator) SetAutorun(on bool) {
	if o.autorun.Swap(on) == on {
		return
	}
	for {
		select {
		case o.autorunCh <- on:
			return
		default:
		}
		// Replace an unread toggle with the latest one.
		select {
		case <-o.autorunCh:
		default:
		}
	}
}

// Autorun reports the autorun flag.
func (o *Orchestrator) Autorun() bool { return o.autorun.Load() }

// State returns the current state.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

// Seq returns the mutation counter.
func (o *Orchestrator) Seq() uint64 { return o.seq.Load() }

// Stats returns the current counters.
func (o *Orchestrator) Stats() Stats {
	s := Stats{
		Touches:   o.touches.Load(),
		Runs:      o.runs.Load(),
		Failures:  o.failures.Load(),
		Deferred:  o.deferred.Load(),
		Discarded: o.discarded.Load(),
	}
	if s.Runs > 0 {
		s.AvgRunTime = time.Duration(o.runNs.Load() / s.Runs)
	}
	return s
}

// Run blocks until ctx is cancelled. An in-flight compile is left to finish
// on its own; its result is dropped.
func (o *Orchestrator) Run(ctx context.Context) {
	log := o.opts.Logger

	var (
		timer    *time.Timer
		timerCh  <-chan time.Time
		running  bool
		queued   bool // a run is due once the in-flight one returns
		queuedBy bool // the queued run was manual
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timerCh = nil
	}
	setState := func(s State) {
		if State(o.state.Swap(int32(s))) != s && o.opts.OnState != nil {
			o.opts.OnState(s)
		}
	}
	start := func(manual bool) {
		if running {
			o.deferred.Add(1)
			queued, queuedBy = true, queuedBy || manual
			log.Debug("compile: run deferred until in-flight compile returns")
			return
		}
		running = true
		setState(Running)
		in := Input{Seq: o.seq.Load(), Snapshot: o.snapshot()}
		go o.exec(ctx, in, manual)
	}
	settle := func() {
		switch {
		case running:
			setState(Running)
		case timerCh != nil:
			setState(Pending)
		default:
			setState(Idle)
		}
	}

	log.Info("compile: started", "debounce", o.opts.Debounce, "autorun", o.autorun.Load())

	for {
		select {
		case <-ctx.Done():
			stopTimer()
			log.Info("compile: stopped")
			return

		case <-o.touchCh:
			if !o.autorun.Load() {
				continue
			}
			stopTimer()
			timer = time.NewTimer(o.opts.Debounce)
			timerCh = timer.C
			settle()

		case <-timerCh:
			timerCh = nil
			start(false)

		case <-o.runCh:
			stopTimer()
			start(true)

		case on := <-o.autorunCh:
			stopTimer()
			if on {
				start(false)
			} else {
				queued = queued && queuedBy
			}
			settle()

		case d := <-o.doneCh:
			running = false
			o.deliver(d, timerCh != nil || queued)
			if queued {
				manual := queuedBy
				queued, queuedBy = false, false
				start(manual)
			}
			settle()
		}
	}
}

func (o *Orchestrator) exec(ctx context.Context, in Input, manual bool) {
	t0 := time.Now()
	res := o.compile(ctx, in)
	d := done{in: in, res: res, dur: time.Since(t0), manual: manual}
	select {
	case o.doneCh <- d:
	case <-ctx.Done():
	}
}

func (o *Orchestrator) deliver(d done, due bool) {
	log := o.opts.Logger
	o.runs.Add(1)
	o.runNs.Add(d.dur.Nanoseconds())
	if !d.res.OK {
		o.failures.Add(1)
	}

	stale := o.seq.Load() != d.in.Seq
	if stale && due && o.opts.DiscardStale {
		o.discarded.Add(1)
		log.Debug("compile: stale result discarded", "seq", d.in.Seq, "current", o.seq.Load())
		if o.opts.OnDiscard != nil {
			o.opts.OnDiscard(Outcome{Input: d.in, Result: d.res, Duration: d.dur, Manual: d.manual})
		}
		return
	}
	log.Debug("compile: run complete", "ok", d.res.OK, "duration", d.dur, "stale", stale, "manual", d.manual)
	if o.opts.OnResult != nil {
		o.opts.OnResult(Outcome{Input: d.in, Result: d.res, Duration: d.dur, Manual: d.manual})
	}
}
