// Package dispatch decouples session runs from the request path. The engine
// hands Run to a worker pool; the pool promises nothing beyond eventually
// invoking it.
package dispatch

import (
	"context"
	"log"
)

// Runner is the unit of work the pool executes, satisfied by the session
// engine.
type Runner interface {
	Run(ctx context.Context, sessionID uint) error
}

// Dispatcher schedules a session run, fire-and-forget.
type Dispatcher interface {
	Enqueue(sessionID uint)
}

// Pool runs sessions on a fixed set of worker goroutines. Per-subject
// serialization is the engine's lock, not the pool's concern, so workers
// for different subjects proceed in parallel.
type Pool struct {
	runner  Runner
	jobs    chan uint
	workers int
}

func NewPool(runner Runner, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		runner:  runner,
		jobs:    make(chan uint, 64),
		workers: workers,
	}
}

// Start launches the workers; they drain until ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-p.jobs:
					if err := p.runner.Run(ctx, id); err != nil {
						log.Printf("session %d run failed: %v", id, err)
					}
				}
			}
		}()
	}
}

// Enqueue schedules a run without blocking the caller; if the queue is full
// the run executes on a fresh goroutine instead of being dropped.
func (p *Pool) Enqueue(sessionID uint) {
	select {
	case p.jobs <- sessionID:
	default:
		go func() {
			if err := p.runner.Run(context.Background(), sessionID); err != nil {
				log.Printf("session %d run failed: %v", sessionID, err)
			}
		}()
	}
}
