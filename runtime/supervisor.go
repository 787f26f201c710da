// Package runtime supervises the engine's background workers (store
// maintenance, long-lived pumps). It contains no synchronization or
// domain logic of its own.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"wordins/contract"
	"wordins/errors"
)

const restartDelay = 200 * time.Millisecond

// Supervisor runs each worker in its own goroutine, recovers panics,
// restarts crashed workers, and shuts everything down when the parent
// context is cancelled or Stop is called. A failure in one worker never
// takes down the supervisor.
type Supervisor struct {
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	log     *slog.Logger
	workers []contract.Worker
}

func NewSupervisor(log *slog.Logger) *Supervisor {
	return &Supervisor{log: log}
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Run blocks until every supervised worker has finished. Cancelling ctx,
// or calling Stop, asks them all to wind down.
func (s *Supervisor) Run(ctx context.Context) {
	supervised, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	for _, worker := range s.workers {
		s.Start(supervised, worker)
	}
	s.wg.Wait()
}

// Start launches one worker under supervision. A panic inside Run is
// recovered and the worker restarted after a short delay; a nil return
// means the worker finished on purpose and stays down.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	name := contract.GetWorkerName(worker)

	go func() {
		defer s.wg.Done()
		for {
			if ctx.Err() != nil {
				s.log.Info("Stopping worker", "name", name)
				return
			}

			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = errors.ErrWorkerPanic
					}
				}()
				return worker.Run(ctx)
			}()

			if err == nil {
				s.log.Info("Worker finished", "name", name)
				return
			}
			if ctx.Err() != nil {
				s.log.Info("Worker stopped (context canceled)", "name", name)
				return
			}

			s.log.Warn("Worker crashed, restarting", "name", name, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(restartDelay):
			}
		}
	}()
}

// Stop cancels the supervision context; Run returns once every worker
// goroutine has exited.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}
