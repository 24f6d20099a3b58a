package notifykit

import "time"

// CancelToken lets a caller interrupt a blocked Pull from another
// goroutine, independent of the Port's own lifetime (spec §4.F).
type CancelToken struct {
	ch chan struct{}
}

// NewCancelToken builds a CancelToken in the not-yet-cancelled state.
func NewCancelToken() *CancelToken {
	return &CancelToken{ch: make(chan struct{})}
}

// Cancel signals the token. Idempotent.
func (c *CancelToken) Cancel() {
	select {
	case <-c.ch:
	default:
		close(c.ch)
	}
}

// Cancelled reports whether Cancel has been called.
func (c *CancelToken) Cancelled() bool {
	select {
	case <-c.ch:
		return true
	default:
		return false
	}
}

// PullOutcome classifies why Pull returned.
type PullOutcome uint8

const (
	// PullBatch reports that Batch carries a delivered batch.
	PullBatch PullOutcome = iota
	// PullTimeout reports that the tick elapsed with nothing to deliver.
	PullTimeout
	// PullCancelled reports that the caller's CancelToken fired.
	PullCancelled
	// PullEndOfStream reports that the engine stopped and the queue
	// drained; no further batches will ever arrive.
	PullEndOfStream
)

// PullResult is what Pull returns: exactly one of a Batch, a timeout, a
// cancellation, or end-of-stream, per spec §4.F.
type PullResult struct {
	Outcome PullOutcome
	Batch   Batch
}

// Port is the Consumer Port of spec §4.F: a pull-based handoff in
// front of the Engine's BatchQueue, decoupled from the producer
// goroutine so a slow or absent consumer never blocks it.
type Port struct {
	engine *Engine
}

// NewPort wraps an Engine as a Consumer Port.
func NewPort(e *Engine) *Port {
	return &Port{engine: e}
}

// Pull waits up to tick for the next batch, or until cancel fires.
// cancel may be nil, in which case only tick and end-of-stream apply.
func (p *Port) Pull(tick time.Duration, cancel *CancelToken) PullResult {
	if cancel != nil && cancel.Cancelled() {
		return PullResult{Outcome: PullCancelled}
	}

	if cancel == nil {
		batch, ok, eos := p.engine.NextBatch(tick)
		return resultFrom(batch, ok, eos)
	}

	type popResult struct {
		batch Batch
		ok    bool
		eos   bool
	}
	done := make(chan popResult, 1)
	stopPoll := make(chan struct{})
	go func() {
		// Poll in small slices so a cancellation during a long tick is
		// still honored promptly, without requiring the queue itself to
		// know about cancellation tokens.
		const slice = 20 * time.Millisecond
		deadline := time.Now().Add(tick)
		for {
			step := slice
			if remaining := time.Until(deadline); remaining < step {
				step = remaining
			}
			if step <= 0 {
				done <- popResult{}
				return
			}
			select {
			case <-stopPoll:
				return
			default:
			}
			batch, ok, eos := p.engine.NextBatch(step)
			if ok || eos {
				done <- popResult{batch, ok, eos}
				return
			}
			if time.Now().After(deadline) {
				done <- popResult{}
				return
			}
		}
	}()

	select {
	case r := <-done:
		return resultFrom(r.batch, r.ok, r.eos)
	case <-cancel.ch:
		close(stopPoll)
		return PullResult{Outcome: PullCancelled}
	}
}

func resultFrom(batch Batch, ok, eos bool) PullResult {
	switch {
	case ok:
		return PullResult{Outcome: PullBatch, Batch: batch}
	case eos:
		return PullResult{Outcome: PullEndOfStream}
	default:
		return PullResult{Outcome: PullTimeout}
	}
}

// Stop stops the underlying engine. Safe to call from any goroutine,
// any number of times.
func (p *Port) Stop() error {
	return p.engine.Stop()
}
