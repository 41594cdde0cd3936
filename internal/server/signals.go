// Package server installs the daemon's graceful shutdown sequence. Grounded
// on the teacher's internal/server/signals.go (SIGINT/SIGTERM handling with
// a bounded shutdown context), adapted from "stop accepting HTTP connections"
// to "stop polling, let the in-flight pollOnce finish, close the ledger."
package server

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Shutdowner is one component of the daemon that needs an orderly stop.
// The poll loop, the export loop, the voice watcher, and the backup
// scheduler each implement it: stop producing new work, wait for anything in flight
// (the poller already serializes pollOnce calls behind its own mutex),
// then release the resource.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// ShutdownFunc adapts a plain function to Shutdowner.
type ShutdownFunc func(ctx context.Context) error

func (f ShutdownFunc) Shutdown(ctx context.Context) error { return f(ctx) }

// SignalHandler waits for SIGINT/SIGTERM and then shuts down every
// registered target in order, each bounded by the same overall timeout.
// Targets are shut down in the order given; cmd/capture-bridged passes the
// poll loop first (so it stops touching the store), then the export loop,
// the voice watcher, the backup scheduler, and the metrics server.
type SignalHandler struct {
	targets         []Shutdowner
	shutdownTimeout time.Duration
}

// NewSignalHandler creates a signal handler that shuts the given targets
// down, in order, once SIGINT or SIGTERM arrives.
func NewSignalHandler(shutdownTimeout time.Duration, targets ...Shutdowner) *SignalHandler {
	return &SignalHandler{
		targets:         targets,
		shutdownTimeout: shutdownTimeout,
	}
}

// WaitForShutdown blocks until a termination signal arrives, then runs the
// shutdown sequence and returns. It returns the first error encountered,
// having still attempted every remaining target.
func (sh *SignalHandler) WaitForShutdown() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("received signal: %v", sig)
	log.Println("shutting down: no new polls will be started")

	ctx, cancel := context.WithTimeout(context.Background(), sh.shutdownTimeout)
	defer cancel()

	return sh.shutdown(ctx)
}

func (sh *SignalHandler) shutdown(ctx context.Context) error {
	var first error
	for _, target := range sh.targets {
		if err := target.Shutdown(ctx); err != nil {
			log.Printf("shutdown error: %v", err)
			if first == nil {
				first = err
			}
			continue
		}
	}
	if first == nil {
		log.Println("shutdown complete")
	}
	return first
}

// Run is a convenience wrapper: it blocks on WaitForShutdown and is meant
// to be called from main after the daemon's background goroutines (poll
// loop, backup scheduler) have already been started.
func Run(shutdownTimeout time.Duration, targets ...Shutdowner) error {
	handler := NewSignalHandler(shutdownTimeout, targets...)
	return handler.WaitForShutdown()
}
