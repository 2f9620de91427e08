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

// Package bootstrap brings the service up in a fixed order: validate the
// environment, open the pool, start background work, then serve.
// A failure at any step stops startup before the next one begins.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/sportsrunner/config"
	"github.com/cardinalhq/sportsrunner/internal/dbopen"
	"github.com/cardinalhq/sportsrunner/internal/healthcheck"
)

type Phase int

const (
	PhaseUnconfigured Phase = iota
	PhaseValidated
	PhasePoolReady
	PhaseBackgroundStarted
	PhaseServing
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseUnconfigured:
		return "unconfigured"
	case PhaseValidated:
		return "validated"
	case PhasePoolReady:
		return "pool_ready"
	case PhaseBackgroundStarted:
		return "background_started"
	case PhaseServing:
		return "serving"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StartupError reports the phase that could not be reached.
type StartupError struct {
	Phase Phase
	Err   error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("startup failed before reaching %s: %v", e.Phase, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// Resources are what the later phases are built from.
type Resources struct {
	Env  config.Environment
	Pool *dbopen.Pool
}

// Server is the foreground request loop. Listen binds; Serve blocks until ctx is done.
type Server interface {
	Listen() (net.Listener, error)
	Serve(ctx context.Context, ln net.Listener) error
}

type Options struct {
	// LoadEnvironment resolves the required process environment.
	LoadEnvironment func() (config.Environment, error)

	// OpenPool creates the shared connection pool. Run closes it on return.
	OpenPool func(ctx context.Context, env config.Environment) (*dbopen.Pool, error)

	// StartBackground launches long-running work and must not block.
	StartBackground func(ctx context.Context, res *Resources) error

	// NewServer builds the request router over the shared resources.
	NewServer func(res *Resources) (Server, error)

	// Health, when set, is marked healthy and ready once serving begins.
	Health *healthcheck.Server

	// Observer is told about every phase change, in order.
	Observer func(Phase)
}

func (o Options) validate() error {
	var missing []string
	if o.LoadEnvironment == nil {
		missing = append(missing, "LoadEnvironment")
	}
	if o.OpenPool == nil {
		missing = append(missing, "OpenPool")
	}
	if o.StartBackground == nil {
		missing = append(missing, "StartBackground")
	}
	if o.NewServer == nil {
		missing = append(missing, "NewServer")
	}
	if len(missing) > 0 {
		return fmt.Errorf("bootstrap options missing %v", missing)
	}
	return nil
}

type runner struct {
	opts  Options
	phase Phase
}

func (r *runner) enter(p Phase) {
	slog.Debug("Bootstrap phase", slog.String("from", r.phase.String()), slog.String("to", p.String()))
	r.phase = p
	if r.opts.Observer != nil {
		r.opts.Observer(p)
	}
}

func (r *runner) fail(target Phase, err error) error {
	r.enter(PhaseFailed)
	if r.opts.Health != nil {
		r.opts.Health.SetStatus(healthcheck.StatusUnhealthy)
	}
	return &StartupError{Phase: target, Err: err}
}

// Run performs startup and then serves until ctx is done. Errors before
// serving begins are *StartupError; nothing after the failing step runs.
func Run(ctx context.Context, opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}
	r := &runner{opts: opts, phase: PhaseUnconfigured}

	env, err := opts.LoadEnvironment()
	if err != nil {
		return r.fail(PhaseValidated, err)
	}
	r.enter(PhaseValidated)

	pool, err := opts.OpenPool(ctx, env)
	if err != nil {
		return r.fail(PhasePoolReady, err)
	}
	if pool == nil {
		return r.fail(PhasePoolReady, errors.New("pool factory returned no pool"))
	}
	defer pool.Close()
	r.enter(PhasePoolReady)

	res := &Resources{Env: env, Pool: pool}
	if err := opts.StartBackground(ctx, res); err != nil {
		return r.fail(PhaseBackgroundStarted, err)
	}
	r.enter(PhaseBackgroundStarted)

	srv, err := opts.NewServer(res)
	if err != nil {
		return r.fail(PhaseServing, err)
	}
	ln, err := srv.Listen()
	if err != nil {
		return r.fail(PhaseServing, err)
	}
	r.enter(PhaseServing)

	if opts.Health != nil {
		opts.Health.SetStatus(healthcheck.StatusHealthy)
		opts.Health.SetReady(true)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx, ln)
	})
	if opts.Health != nil {
		g.Go(func() error {
			// Health server failures are logged, never fatal.
			if err := opts.Health.Start(gctx); err != nil {
				slog.Error("Health check server failed", slog.Any("error", err))
			}
			return nil
		})
	}
	return g.Wait()
}
