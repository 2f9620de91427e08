// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var errTaskReturned = errors.New("task returned before shutdown")

const (
	DefaultMinBackoff = time.Second
	DefaultMaxBackoff = 5 * time.Minute
)

// Supervisor keeps a long-running task alive. The task is restarted with
// exponential backoff when it panics or returns before ctx is done.
// Nothing the task does can stop the process.
type Supervisor struct {
	name       string
	task       func(context.Context) error
	minBackoff time.Duration
	maxBackoff time.Duration
	observer   func(running bool)

	started  atomic.Bool
	running  atomic.Bool
	restarts atomic.Int64
	done     chan struct{}
}

type SupervisorOption func(*Supervisor)

// WithBackoff sets the first restart delay and its cap.
func WithBackoff(minBackoff, maxBackoff time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		if minBackoff > 0 {
			s.minBackoff = minBackoff
		}
		if maxBackoff >= s.minBackoff {
			s.maxBackoff = maxBackoff
		}
	}
}

// WithRunningObserver is called each time the task starts or stops running.
func WithRunningObserver(f func(running bool)) SupervisorOption {
	return func(s *Supervisor) {
		s.observer = f
	}
}

func NewSupervisor(name string, task func(context.Context) error, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		name:       name,
		task:       task,
		minBackoff: DefaultMinBackoff,
		maxBackoff: DefaultMaxBackoff,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the task in its own goroutine and returns immediately.
// Only the first call starts anything; later calls return false.
func (s *Supervisor) Start(ctx context.Context) bool {
	if !s.started.CompareAndSwap(false, true) {
		slog.Warn("Background task already started", slog.String("task", s.name))
		return false
	}
	go s.supervise(ctx)
	return true
}

// Running reports whether the task body is executing right now.
func (s *Supervisor) Running() bool {
	return s.running.Load()
}

// Restarts is the number of times the task was restarted.
func (s *Supervisor) Restarts() int64 {
	return s.restarts.Load()
}

// Done is closed once the supervisor has stopped for good, after ctx ends.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

func (s *Supervisor) supervise(ctx context.Context) {
	defer close(s.done)

	delays := s.newBackOff()
	for {
		began := time.Now()
		err := s.runGuarded(ctx)
		if ctx.Err() != nil {
			slog.Info("Background task stopped", slog.String("task", s.name))
			return
		}

		// A run that stayed up longer than the cap earns a fresh backoff.
		if time.Since(began) > s.maxBackoff {
			delays.Reset()
		}
		delay := delays.NextBackOff()

		n := s.restarts.Add(1)
		refreshRestarts.Add(ctx, 1)
		slog.Error("Background task exited, restarting",
			slog.String("task", s.name),
			slog.Int64("restarts", n),
			slog.Duration("backoff", delay),
			slog.Any("error", err))

		if sleepCtx(ctx, delay) {
			slog.Info("Background task stopped", slog.String("task", s.name))
			return
		}
	}
}

// newBackOff returns the restart delay schedule: minBackoff doubling up to
// maxBackoff, without jitter.
func (s *Supervisor) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.minBackoff
	b.MaxInterval = s.maxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

func (s *Supervisor) runGuarded(ctx context.Context) (err error) {
	s.setRunning(true)
	defer s.setRunning(false)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			slog.Error("Background task panicked",
				slog.String("task", s.name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	if err := s.task(ctx); err != nil {
		return err
	}
	return errTaskReturned
}

func (s *Supervisor) setRunning(running bool) {
	s.running.Store(running)
	if s.observer != nil {
		s.observer(running)
	}
}
