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

package sportsapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/cardinalhq/sportsrunner/config"
	"github.com/cardinalhq/sportsrunner/gamesdb"
	"github.com/cardinalhq/sportsrunner/predict"
)

const (
	DefaultListenAddr      = "0.0.0.0:8080"
	DefaultShutdownTimeout = 10 * time.Second
)

// GamesSource is the read side of the games store.
type GamesSource interface {
	ListGamesWithOdds(ctx context.Context, params gamesdb.ListGamesParams) ([]gamesdb.GameWithOdds, error)
	ListUpcomingGames(ctx context.Context, limit int32) ([]gamesdb.Game, error)
}

type Predictor interface {
	PredictAll(ctx context.Context, games []gamesdb.Game) ([]predict.Prediction, error)
}

type Options struct {
	ListenAddr      string
	CORS            config.CORSConfig
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// Server serves the /sports API. Its routing table is fixed once built.
type Server struct {
	games     GamesSource
	predictor Predictor
	opts      Options
	handler   http.Handler
	now       func() time.Time
}

func NewServer(games GamesSource, predictor Predictor, opts Options) *Server {
	if opts.ListenAddr == "" {
		opts.ListenAddr = DefaultListenAddr
	}
	if len(opts.CORS.AllowedOrigins) == 0 {
		opts.CORS.AllowedOrigins = []string{"*"}
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{games: games, predictor: predictor, opts: opts, now: time.Now}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(requestLogger(s.opts.Logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(corsHandler(s.opts.CORS))

	router.Route("/sports", func(r chi.Router) {
		r.Get("/predict/all", s.handlePredictAll)
		r.Get("/games", s.handleGames)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return router
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Listen binds the listen address. Bind errors surface here, before serving.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.opts.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", s.opts.ListenAddr, err)
	}
	return ln, nil
}

// Serve handles requests on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("Serving sports API", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			return fmt.Errorf("sports API server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down sports API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("sports API shutdown: %w", err)
	}
	return nil
}
