// Package event carries control signals into a running engine and progress
// snapshots out of it. Neither direction ever blocks the engine: control is
// polled, and progress is a latest-wins mailbox.
package event

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ProgressInterval is the minimum spacing between progress snapshots.
const ProgressInterval = 50 * time.Millisecond

// SignalKind identifies a control signal.
type SignalKind int

const (
	Suspend SignalKind = iota + 1
	Skip
	Abort
	// Detach drops the job store for the rest of the run without stopping
	// the job.
	Detach
)

var signalNames = [...]string{
	Suspend: "Suspend",
	Skip:    "Skip",
	Abort:   "Abort",
	Detach:  "Detach",
}

func (k SignalKind) String() string {
	if int(k) < len(signalNames) && signalNames[k] != "" {
		return signalNames[k]
	}
	return "Unknown"
}

// Signal is one control message. A Suspend signal carries the channel that
// is closed when the engine may continue.
type Signal struct {
	resume <-chan struct{}
	Kind   SignalKind
}

// NewSuspend returns a Suspend signal and the function that ends it.
// Calling resume more than once is harmless.
func NewSuspend() (Signal, func()) {
	ch := make(chan struct{})
	var once sync.Once
	return Signal{Kind: Suspend, resume: ch}, func() { once.Do(func() { close(ch) }) }
}

// Wait blocks until a Suspend signal is resumed or ctx is done. It returns
// immediately for every other kind.
func (s Signal) Wait(ctx context.Context) error {
	if s.Kind != Suspend || s.resume == nil {
		return nil
	}
	select {
	case <-s.resume:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll returns the next pending signal without blocking. A nil channel
// never has a signal.
func Poll(ch <-chan Signal) (Signal, bool) {
	if ch == nil {
		return Signal{}, false
	}
	select {
	case sig, ok := <-ch:
		return sig, ok
	default:
		return Signal{}, false
	}
}

// Queue is an unbounded control queue. Send never blocks; undelivered
// Skip and Detach requests collapse into one, and an Abort drops any
// Skips still waiting. A nil *Queue is always empty.
type Queue struct {
	pending []Signal
	mu      sync.Mutex
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Send appends sig.
func (q *Queue) Send(sig Signal) {
	q.mu.Lock()
	defer q.mu.Unlock()
	switch sig.Kind {
	case Skip, Detach:
		if slices.ContainsFunc(q.pending, func(p Signal) bool { return p.Kind == sig.Kind }) {
			return
		}
	case Abort:
		q.pending = slices.DeleteFunc(q.pending, func(p Signal) bool { return p.Kind == Skip })
	}
	q.pending = append(q.pending, sig)
}

// Poll removes and returns the oldest signal without blocking.
func (q *Queue) Poll() (Signal, bool) {
	if q == nil {
		return Signal{}, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return Signal{}, false
	}
	sig := q.pending[0]
	q.pending = q.pending[1:]
	return sig, true
}

// Len reports how many signals are waiting.
func (q *Queue) Len() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Latest is a single-slot mailbox: Publish overwrites, readers only ever see
// the newest value. A nil *Latest discards everything published to it.
type Latest[T any] struct {
	updated chan struct{}
	v       T
	mu      sync.Mutex
	set     bool
}

// NewLatest returns an empty mailbox.
func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{updated: make(chan struct{}, 1)}
}

// Publish stores v and wakes a waiting reader.
func (l *Latest[T]) Publish(v T) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.v = v
	l.set = true
	l.mu.Unlock()

	select {
	case l.updated <- struct{}{}:
	default:
	}
}

// Updated receives after every Publish that happened since the last
// receive. Bursts collapse into one wakeup.
func (l *Latest[T]) Updated() <-chan struct{} {
	return l.updated
}

// Load returns the newest value and whether anything was published yet.
func (l *Latest[T]) Load() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.v, l.set
}

// Throttle runs a function at most once per interval. The first call
// always runs.
type Throttle struct {
	s rate.Sometimes
}

// NewThrottle returns a throttle with the given interval.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{s: rate.Sometimes{Interval: interval}}
}

// Do runs f unless it ran less than one interval ago.
func (t *Throttle) Do(f func()) {
	t.s.Do(f)
}
