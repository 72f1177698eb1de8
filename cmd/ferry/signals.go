package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/bamsammich/ferry/internal/event"
)

// controller receives the actions OS signals are mapped onto.
// *engine.Worker implements it.
type controller interface {
	Suspend()
	Resume()
	Suspended() bool
	Skip()
	Abort()
	Interrupt()
}

// routeSignals maps signals onto c until stop is called:
//
//	SIGINT   abort; a second SIGINT interrupts
//	SIGTERM  interrupt, leaving the job resumable
//	SIGUSR1  skip the entry in progress
//	SIGUSR2  toggle suspend
func routeSignals(c controller) (stop func()) {
	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	done := make(chan struct{})

	go func() {
		aborting := false
		for {
			select {
			case <-done:
				return
			case sig := <-sigs:
				aborting = handleSignal(c, sig, aborting)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigs)
			close(done)
		})
	}
}

// handleSignal applies one signal and reports whether an abort is pending.
func handleSignal(c controller, sig os.Signal, aborting bool) bool {
	switch sig {
	case syscall.SIGINT:
		if aborting {
			slog.Warn("interrupted")
			c.Interrupt()
			return true
		}
		slog.Warn("aborting; press ctrl+c again to stop immediately")
		c.Abort()
		return true
	case syscall.SIGTERM:
		slog.Warn("interrupted")
		c.Interrupt()
	case syscall.SIGUSR1:
		slog.Info("skipping current entry")
		c.Skip()
	case syscall.SIGUSR2:
		if c.Suspended() {
			slog.Info("resuming")
			c.Resume()
		} else {
			slog.Info("suspending")
			c.Suspend()
		}
	}
	return aborting
}

// scanControl is the controller of a running scan. Signals that arrive
// while the scanner is busy queue up; once the queue is full, further
// ones are dropped.
type scanControl struct {
	signals chan event.Signal
	cancel  context.CancelFunc

	mu     sync.Mutex
	resume func()
}

func newScanControl(cancel context.CancelFunc) *scanControl {
	return &scanControl{signals: make(chan event.Signal, 8), cancel: cancel}
}

func (s *scanControl) Suspend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resume != nil {
		return
	}
	sig, resume := event.NewSuspend()
	s.resume = resume
	s.send(sig)
}

func (s *scanControl) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resume != nil {
		s.resume()
		s.resume = nil
	}
}

func (s *scanControl) Suspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resume != nil
}

func (s *scanControl) Skip() { s.send(event.Signal{Kind: event.Skip}) }

func (s *scanControl) Abort() {
	s.Resume()
	s.send(event.Signal{Kind: event.Abort})
}

func (s *scanControl) Interrupt() { s.cancel() }

func (s *scanControl) send(sig event.Signal) {
	select {
	case s.signals <- sig:
	default:
		slog.Debug("scan control queue full, dropping signal", "signal", sig.Kind)
	}
}
