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

package healthcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
)

// ConditionRefreshRunning gates readiness on the background refresh task.
const ConditionRefreshRunning = "refresh_running"

const checkTimeout = 2 * time.Second

type Status int32

const (
	StatusStarting Status = iota
	StatusHealthy
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

type Response struct {
	Healthy    bool              `json:"healthy"`
	Status     string            `json:"status"`
	Conditions map[string]bool   `json:"conditions,omitempty"`
	Checks     map[string]string `json:"checks,omitempty"`
}

// CheckFunc probes a dependency. A nil error means healthy.
type CheckFunc func(ctx context.Context) error

type Server struct {
	port       int
	status     atomic.Int32
	ready      atomic.Bool
	conditions sync.Map // map[string]bool

	checksMu sync.RWMutex
	checks   map[string]CheckFunc

	server *http.Server
}

type Config struct {
	Port int
}

func GetConfigFromEnv() Config {
	port := 8090
	if portStr := os.Getenv("HEALTH_CHECK_PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil && p > 0 && p < 65536 {
			port = p
		}
	}

	return Config{
		Port: port,
	}
}

func NewServer(config Config) *Server {
	if config.Port == 0 {
		config.Port = 8090
	}

	return &Server{
		port:   config.Port,
		checks: map[string]CheckFunc{},
	}
}

func (s *Server) SetStatus(status Status) {
	s.status.Store(int32(status))
	slog.Debug("Health check status updated", slog.String("status", status.String()))
}

func (s *Server) GetStatus() Status {
	return Status(s.status.Load())
}

func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
	slog.Debug("Ready status updated", slog.Bool("ready", ready))
}

// SetReadyCondition sets a named readiness condition. All conditions must be
// true, along with the base ready flag, for IsReady to return true.
func (s *Server) SetReadyCondition(name string, ready bool) {
	s.conditions.Store(name, ready)
	slog.Debug("Ready condition updated", slog.String("condition", name), slog.Bool("ready", ready))
}

// AddCheck registers a probe that /healthz runs on every request.
func (s *Server) AddCheck(name string, check CheckFunc) {
	s.checksMu.Lock()
	defer s.checksMu.Unlock()
	s.checks[name] = check
}

func (s *Server) IsReady() bool {
	if !s.ready.Load() {
		return false
	}
	ready := true
	s.conditions.Range(func(_, value any) bool {
		if !value.(bool) {
			ready = false
			return false
		}
		return true
	})
	return ready
}

func (s *Server) conditionSnapshot() map[string]bool {
	out := map[string]bool{}
	s.conditions.Range(func(key, value any) bool {
		out[key.(string)] = value.(bool)
		return true
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

// runChecks returns a result per check and whether all of them passed.
func (s *Server) runChecks(ctx context.Context) (map[string]string, bool) {
	s.checksMu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	checks := make([]CheckFunc, len(names))
	for i, name := range names {
		checks[i] = s.checks[name]
	}
	s.checksMu.RUnlock()

	if len(names) == 0 {
		return nil, true
	}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	results := make(map[string]string, len(names))
	ok := true
	for i, name := range names {
		if err := checks[i](ctx); err != nil {
			results[name] = err.Error()
			ok = false
			continue
		}
		results[name] = "ok"
	}
	return results, ok
}

func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Get("/healthz", s.healthzHandler)
	router.Get("/readyz", s.readyzHandler)
	router.Get("/livez", s.livezHandler)
	return router
}

// Start serves the health endpoints until ctx is done. A bind failure is
// returned right away.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("health check listen on port %d: %w", s.port, err)
	}

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("Starting health check server", slog.Int("port", s.port))

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Health check server error", slog.Any("error", err))
		}
	}()

	<-ctx.Done()
	return s.Stop()
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	slog.Info("Stopping health check server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	status := s.GetStatus()
	checks, checksOK := s.runChecks(r.Context())
	writeResponse(w, Response{
		Healthy: status == StatusHealthy && checksOK,
		Status:  status.String(),
		Checks:  checks,
	})
}

func (s *Server) readyzHandler(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, Response{
		Healthy:    s.IsReady(),
		Status:     s.GetStatus().String(),
		Conditions: s.conditionSnapshot(),
	})
}

func (s *Server) livezHandler(w http.ResponseWriter, r *http.Request) {
	status := s.GetStatus()
	writeResponse(w, Response{
		Healthy: status != StatusUnhealthy,
		Status:  status.String(),
	})
}

func writeResponse(w http.ResponseWriter, response Response) {
	w.Header().Set("Content-Type", "application/json")

	if response.Healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode health check response", slog.Any("error", err))
	}
}
