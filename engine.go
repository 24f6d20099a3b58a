package notifykit

import (
	"os"
	"sync"
	"time"

	"github.com/roma-glushko/notifykit/filter"
)

// State is the Engine's lifecycle state machine (spec §3 "EngineState").
type State uint8

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	default:
		return "Stopped"
	}
}

// WatchHandle records how one registered path is being observed.
type WatchHandle struct {
	Recursive              bool
	IgnorePermissionErrors bool
}

type config struct {
	debounce     time.Duration
	tick         time.Duration
	bufferSize   int
	debug        bool
	filter       *filter.Filter
	forcePolling bool
	pollDelay    time.Duration
}

// Option configures an Engine at construction time, mirroring spec
// §6's construct row.
type Option func(*config)

// WithDebounce sets the debounce window (default 200ms).
func WithDebounce(d time.Duration) Option { return func(c *config) { c.debounce = d } }

// WithTick sets the producer's wake interval (default 50ms). Must be
// <= the debounce window.
func WithTick(d time.Duration) Option { return func(c *config) { c.tick = d } }

// WithBufferSize sets the BatchQueue capacity (default 1024).
func WithBufferSize(n int) Option { return func(c *config) { c.bufferSize = n } }

// WithDebug enables the structured debug channel.
func WithDebug(enabled bool) Option { return func(c *config) { c.debug = enabled } }

// WithFilter installs a Filter Engine between the debouncer and the
// consumer handoff.
func WithFilter(f *filter.Filter) Option { return func(c *config) { c.filter = f } }

// WithForcePolling forces the polling fallback backend regardless of
// platform.
func WithForcePolling(enabled bool) Option { return func(c *config) { c.forcePolling = enabled } }

// WithPollDelay sets the polling fallback's scan interval (default 50ms).
func WithPollDelay(d time.Duration) Option { return func(c *config) { c.pollDelay = d } }

func defaultConfig() config {
	return config{
		debounce:   200 * time.Millisecond,
		tick:       50 * time.Millisecond,
		bufferSize: 1024,
		pollDelay:  50 * time.Millisecond,
	}
}

type watchCmd struct {
	add    bool // true: watch, false: unwatch
	paths  []string
	opts   WatchOptions
	reply  chan error
}

// Engine is the Watch Engine of spec §4.E: it owns the WatchRegistry,
// the producer goroutine, the Debouncer, and the BatchQueue, and
// serves the Consumer Port.
type Engine struct {
	mu       sync.Mutex
	state    State
	cfg      config
	registry map[string]WatchHandle

	backend   Backend
	debouncer *Debouncer
	queue     *batchQueue
	dbg       *debugChannel

	rawCh <-chan RawEvent
	errCh <-chan error

	commands chan *watchCmd

	stopOnce sync.Once
	stopCh   chan struct{}
	stopped  chan struct{}
}

// New builds an Engine in the Idle state.
func New(opts ...Option) *Engine {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{
		state:    StateIdle,
		cfg:      cfg,
		registry: make(map[string]WatchHandle),
		dbg:      newDebugChannel(cfg.debug),
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Configure applies additional options. Allowed only in Idle, per §4.E.
func (e *Engine) Configure(opts ...Option) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle {
		return &ErrUnsupported{Reason: "configure is only allowed before the first watch"}
	}
	for _, opt := range opts {
		opt(&e.cfg)
	}
	e.dbg = newDebugChannel(e.cfg.debug)
	return nil
}

// State reports the engine's current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Watch registers paths for observation. The first successful call
// spawns the producer goroutine and transitions Idle -> Running;
// subsequent calls extend the registry. Registering an
// already-watched path is a no-op unless flags changed, in which case
// the WatchHandle is updated.
func (e *Engine) Watch(paths []string, recursive bool, ignorePermissionErrors bool) error {
	abs := make([]string, len(paths))
	for i, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				return wrapPathNotFound(p)
			}
			return wrapBackendError("stat", err)
		}
		_ = info
		abs[i] = p
	}
	opts := WatchOptions{Recursive: recursive, IgnorePermissionErrors: ignorePermissionErrors}

	e.mu.Lock()
	switch e.state {
	case StateStopping, StateStopped:
		e.mu.Unlock()
		return &ErrUnsupported{Reason: "engine is shutting down"}
	case StateIdle:
		e.mu.Unlock()
		return e.bootstrap(abs, opts)
	default: // Running
		e.mu.Unlock()
		return e.submit(&watchCmd{add: true, paths: abs, opts: opts, reply: make(chan error, 1)})
	}
}

// Unwatch removes registrations. Unknown paths are ignored.
func (e *Engine) Unwatch(paths []string) error {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()
	return e.submit(&watchCmd{add: false, paths: paths, reply: make(chan error, 1)})
}

func (e *Engine) submit(cmd *watchCmd) error {
	select {
	case e.commands <- cmd:
	case <-e.stopCh:
		return &ErrUnsupported{Reason: "engine is shutting down"}
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-e.stopCh:
		return nil
	}
}

// bootstrap performs the Idle -> Running transition: it builds the
// backend, starts it, and spawns the producer goroutine.
func (e *Engine) bootstrap(paths []string, opts WatchOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle {
		return e.watchRunning(paths, opts)
	}

	e.backend = newBackend(e.cfg.forcePolling, e.cfg.pollDelay, e.dbg)
	e.debouncer = NewDebouncer(e.cfg.debounce)
	e.queue = newBatchQueue(e.cfg.bufferSize, e.dbg)
	e.commands = make(chan *watchCmd, 16)

	pathMap := make(map[string]WatchOptions, len(paths))
	for _, p := range paths {
		pathMap[p] = opts
	}

	rawCh, errCh, err := e.backend.Start(pathMap, e.cfg.debounce)
	if err != nil {
		return err
	}
	e.rawCh, e.errCh = rawCh, errCh

	for _, p := range paths {
		e.registry[p] = WatchHandle{Recursive: opts.Recursive, IgnorePermissionErrors: opts.IgnorePermissionErrors}
		e.dbg.watch(p, opts.Recursive)
	}

	e.state = StateRunning
	go e.run()
	return nil
}

func (e *Engine) watchRunning(paths []string, opts WatchOptions) error {
	return e.submit(&watchCmd{add: true, paths: paths, opts: opts, reply: make(chan error, 1)})
}

// run is the producer goroutine: the single owner of the backend, the
// debouncer, and the WatchRegistry (spec §5 "Shared resources").
func (e *Engine) run() {
	ticker := time.NewTicker(e.cfg.tick)
	defer ticker.Stop()

	backendFaultSince := time.Time{}

	for {
		select {
		case <-e.stopCh:
			e.drainAndExit()
			return

		case cmd, ok := <-e.commands:
			if !ok {
				continue
			}
			e.applyCommand(cmd)

		case re, ok := <-e.rawCh:
			if !ok {
				e.rawCh = nil
				continue
			}
			e.dbg.rawEvent(re)
			e.debouncer.Push(re)

		case err, ok := <-e.errCh:
			if !ok {
				e.errCh = nil
				continue
			}
			if backendFaultSince.IsZero() {
				backendFaultSince = time.Now()
			}
			e.dbg.backendError("producer", err)
			if time.Since(backendFaultSince) >= 10*time.Second {
				e.queue.Push(Batch{NewModifyUnknown("")})
				e.drainAndExit()
				return
			}

		case <-ticker.C:
			e.flush()
		}
	}
}

func (e *Engine) flush() {
	batch := e.debouncer.Flush(time.Now())
	if len(batch) == 0 {
		return
	}
	e.dbg.batchFlushed(batch)

	e.mu.Lock()
	f := e.cfg.filter
	e.mu.Unlock()
	if f != nil {
		filtered := make(Batch, 0, len(batch))
		for _, ev := range batch {
			if !f.ShouldSuppress(ev.Paths()...) {
				filtered = append(filtered, ev)
			}
		}
		if len(filtered) == 0 {
			return
		}
		batch = filtered
	}
	e.queue.Push(batch)
}

func (e *Engine) applyCommand(cmd *watchCmd) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cmd.add {
		for _, p := range cmd.paths {
			existing, known := e.registry[p]
			if known && existing.Recursive == cmd.opts.Recursive && existing.IgnorePermissionErrors == cmd.opts.IgnorePermissionErrors {
				continue
			}
			if err := e.backend.Add(p, cmd.opts); err != nil {
				cmd.reply <- err
				return
			}
			e.registry[p] = WatchHandle{Recursive: cmd.opts.Recursive, IgnorePermissionErrors: cmd.opts.IgnorePermissionErrors}
			e.dbg.watch(p, cmd.opts.Recursive)
		}
		cmd.reply <- nil
		return
	}

	for _, p := range cmd.paths {
		if _, known := e.registry[p]; !known {
			continue
		}
		_ = e.backend.Remove(p)
		delete(e.registry, p)
		e.dbg.unwatch(p)
	}
	cmd.reply <- nil
}

// drainAndExit flushes every remaining pending entry, shuts the
// backend down, closes the queue, and marks the engine Stopped.
func (e *Engine) drainAndExit() {
	if e.backend != nil {
		_ = e.backend.Shutdown()
	}
	// A backend still delivering buffered raw events after Shutdown has
	// a brief grace period before we give up on draining it.
	deadline := time.Now().Add(2 * time.Second)
	for e.rawCh != nil && time.Now().Before(deadline) {
		select {
		case re, ok := <-e.rawCh:
			if !ok {
				e.rawCh = nil
				continue
			}
			e.debouncer.Push(re)
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Flush returns a pending overflow sentinel on its own, so keep
	// flushing until every remaining entry has been emitted.
	flushAt := time.Now().Add(e.cfg.debounce)
	for final := e.debouncer.Flush(flushAt); len(final) > 0; final = e.debouncer.Flush(flushAt) {
		e.queue.Push(final)
	}
	e.queue.Close()

	e.mu.Lock()
	e.state = StateStopped
	e.mu.Unlock()
	close(e.stopped)
}

// Stop transitions the engine toward Stopped, joining the producer
// goroutine. Idempotent: calling it N times behaves like calling it
// once.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return nil
	}
	if e.state == StateIdle {
		e.state = StateStopped
		e.mu.Unlock()
		e.stopOnce.Do(func() { close(e.stopped) })
		return nil
	}
	e.state = StateStopping
	e.mu.Unlock()

	e.stopOnce.Do(func() { close(e.stopCh) })
	<-e.stopped
	return nil
}

// NextBatch blocks up to timeout for the next Batch. It returns
// ok=false and eos=true once Stop has completed and the queue has
// been fully drained.
func (e *Engine) NextBatch(timeout time.Duration) (batch Batch, ok bool, eos bool) {
	e.mu.Lock()
	q := e.queue
	idle := e.state == StateIdle
	e.mu.Unlock()
	if q == nil {
		if idle {
			return nil, false, false
		}
		return nil, false, true
	}
	return q.Pop(timeout)
}

// Dropped returns the BatchQueue's drop-oldest counter.
func (e *Engine) Dropped() int64 {
	e.mu.Lock()
	q := e.queue
	e.mu.Unlock()
	if q == nil {
		return 0
	}
	return q.Dropped()
}
