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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/cardinalhq/sportsrunner/gamesdb"
	"github.com/cardinalhq/sportsrunner/internal/dbopen"
	"github.com/cardinalhq/sportsrunner/predict"
)

const (
	defaultGamesLimit = 200
	maxGamesLimit     = 1000
)

type gamesResponse struct {
	Games []gamesdb.GameWithOdds `json:"games"`
}

type predictionsResponse struct {
	Predictions []predict.Prediction `json:"predictions"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	params, err := parseGamesQuery(r, s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	games, err := s.games.ListGamesWithOdds(r.Context(), params)
	if err != nil {
		s.writeFailure(w, r, "list games", err)
		return
	}
	if games == nil {
		games = []gamesdb.GameWithOdds{}
	}
	writeJSON(w, http.StatusOK, gamesResponse{Games: games})
}

func (s *Server) handlePredictAll(w http.ResponseWriter, r *http.Request) {
	games, err := s.games.ListUpcomingGames(r.Context(), maxGamesLimit)
	if err != nil {
		s.writeFailure(w, r, "list upcoming games", err)
		return
	}
	if len(games) >= maxGamesLimit {
		s.opts.Logger.Warn("Upcoming games truncated for prediction",
			slog.String("requestID", middleware.GetReqID(r.Context())),
			slog.Int("limit", maxGamesLimit))
	}

	predictions, err := s.predictor.PredictAll(r.Context(), games)
	if err != nil {
		s.writeFailure(w, r, "predict games", err)
		return
	}
	if predictions == nil {
		predictions = []predict.Prediction{}
	}
	writeJSON(w, http.StatusOK, predictionsResponse{Predictions: predictions})
}

// parseGamesQuery reads since and limit. Without since, listing starts at the
// beginning of the current UTC day.
func parseGamesQuery(r *http.Request, now time.Time) (gamesdb.ListGamesParams, error) {
	params := gamesdb.ListGamesParams{
		Since: startOfDay(now),
		Limit: defaultGamesLimit,
	}
	q := r.URL.Query()

	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return params, fmt.Errorf("invalid since %q: expected RFC3339", v)
		}
		params.Since = since.UTC()
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return params, fmt.Errorf("invalid limit %q: expected a positive integer", v)
		}
		params.Limit = int32(min(limit, maxGamesLimit))
	}
	return params, nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// writeFailure maps collaborator errors to a status code. Only the status
// reaches the client; the detail goes to the log.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, dbopen.ErrPoolExhausted):
		status, msg = http.StatusServiceUnavailable, "database busy, try again"
	case errors.Is(err, predict.ErrNoModel):
		status, msg = http.StatusServiceUnavailable, "prediction model unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, msg = http.StatusServiceUnavailable, "request cancelled"
	}

	s.opts.Logger.Error("Request failed",
		slog.String("op", op),
		slog.String("requestID", middleware.GetReqID(r.Context())),
		slog.Int("status", status),
		slog.Any("error", err))

	writeJSON(w, status, errorResponse{Error: msg, RequestID: middleware.GetReqID(r.Context())})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", slog.Any("error", err))
	}
}
