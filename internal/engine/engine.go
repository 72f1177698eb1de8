// Package engine scans, transfers and removes file trees. Every run polls
// a control stream between steps, publishes throttled progress, and, with
// a job store attached, records each status change before moving on so an
// interrupted job resumes where it stopped.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/bamsammich/ferry/internal/event"
)

// Op is a runnable job: either *Transfer or *Removal.
type Op interface {
	op()
}

func (*Transfer) op() {}
func (*Removal) op()  {}

// Run executes op on the calling goroutine, blocking until complete.
func Run(ctx context.Context, op Op) Result {
	switch o := op.(type) {
	case *Transfer:
		return o.run(ctx)
	case *Removal:
		return o.run(ctx)
	default:
		panic(fmt.Sprintf("engine: unknown op %T", op))
	}
}

// Worker runs one Op on its own goroutine. All interaction goes through
// its methods; the op must not be touched while the worker runs. Control
// methods never block: signals queue until the run polls for them.
type Worker struct {
	queue  *event.Queue
	done   chan struct{}
	cancel context.CancelFunc
	resume func()
	result Result
	mu     sync.Mutex
}

// Start launches op. The worker replaces op's Control field with its own
// queue.
func Start(ctx context.Context, op Op) *Worker {
	ctx, cancel := context.WithCancel(ctx)
	w := &Worker{
		queue:  event.NewQueue(),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	switch o := op.(type) {
	case *Transfer:
		o.Control, o.queue = nil, w.queue
	case *Removal:
		o.Control, o.queue = nil, w.queue
	}

	go func() {
		defer close(w.done)
		defer cancel()
		w.result = Run(ctx, op)
	}()
	return w
}

// Suspend pauses the worker at its next check. It is a no-op while
// already suspended.
func (w *Worker) Suspend() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.resume != nil {
		return
	}
	sig, resume := event.NewSuspend()
	w.resume = resume
	w.send(sig)
}

// Resume ends a suspension.
func (w *Worker) Resume() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.resume != nil {
		w.resume()
		w.resume = nil
	}
}

// Suspended reports whether the worker was asked to suspend and not yet
// resumed.
func (w *Worker) Suspended() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.resume != nil
}

// Skip skips the entry in progress.
func (w *Worker) Skip() { w.send(event.Signal{Kind: event.Skip}) }

// Abort stops the job, leaving untouched entries to do.
func (w *Worker) Abort() {
	w.Resume()
	w.send(event.Signal{Kind: event.Abort})
}

// Detach drops the job store for the rest of the run.
func (w *Worker) Detach() { w.send(event.Signal{Kind: event.Detach}) }

// Interrupt cancels the run without recording anything, so the job stays
// resumable.
func (w *Worker) Interrupt() { w.cancel() }

// Done is closed when the run has finished.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Wait blocks until the run finishes and returns its result.
func (w *Worker) Wait() Result {
	<-w.done
	return w.result
}

func (w *Worker) send(sig event.Signal) {
	select {
	case <-w.done:
	default:
		w.queue.Send(sig)
	}
}
