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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/sportsrunner/config"
	"github.com/cardinalhq/sportsrunner/gamesdb"
	"github.com/cardinalhq/sportsrunner/internal/dbopen"
	"github.com/cardinalhq/sportsrunner/predict"
)

type fakeGames struct {
	mu         sync.Mutex
	lastParams gamesdb.ListGamesParams
	lastLimit  int32
	games      []gamesdb.GameWithOdds
	upcoming   []gamesdb.Game
	err        error
	panicMsg   string
}

func (f *fakeGames) ListGamesWithOdds(_ context.Context, params gamesdb.ListGamesParams) ([]gamesdb.GameWithOdds, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicMsg != "" {
		msg := f.panicMsg
		f.panicMsg = ""
		panic(msg)
	}
	f.lastParams = params
	return f.games, f.err
}

func (f *fakeGames) ListUpcomingGames(_ context.Context, limit int32) ([]gamesdb.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit = limit
	return f.upcoming, f.err
}

type fakePredictor struct {
	err error
}

func (f *fakePredictor) PredictAll(_ context.Context, games []gamesdb.Game) ([]predict.Prediction, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]predict.Prediction, 0, len(games))
	for _, g := range games {
		out = append(out, predict.Prediction{GameID: g.ID, HomeTeamName: g.HomeTeamName, AwayTeamName: g.AwayTeamName, PredictedWinner: g.HomeTeamName, HomeWinProbability: 0.6})
	}
	return out, nil
}

func newTestServer(games *fakeGames, pred *fakePredictor, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	}
	return NewServer(games, pred, opts)
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGamesDefaults(t *testing.T) {
	games := &fakeGames{games: []gamesdb.GameWithOdds{
		{Game: gamesdb.Game{ID: gamesdb.GameID("a"), HomeTeamName: "Celtics", AwayTeamName: "Lakers", StartTime: "Final"}, Odds: []gamesdb.GameOdd{}},
	}}
	s := newTestServer(games, &fakePredictor{}, Options{})
	s.now = func() time.Time { return time.Date(2025, 11, 3, 1, 30, 0, 0, time.FixedZone("EST", -5*3600)) }

	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/sports/games", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Games []map[string]any `json:"games"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Games, 1)
	assert.Equal(t, "Celtics", body.Games[0]["home_team_name"])
	assert.Equal(t, []any{}, body.Games[0]["odds"])

	assert.Equal(t, int32(defaultGamesLimit), games.lastParams.Limit)
	assert.Equal(t, time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC), games.lastParams.Since)
}

func TestGamesDefaultSinceIsTodayUTC(t *testing.T) {
	games := &fakeGames{}
	s := newTestServer(games, &fakePredictor{}, Options{})

	before := time.Now().UTC()
	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/sports/games", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	since := games.lastParams.Since
	assert.False(t, since.IsZero())
	assert.Equal(t, time.UTC, since.Location())
	assert.True(t, since.Equal(startOfDay(before)) || since.Equal(startOfDay(time.Now())))
}

func TestGamesEmptyIsArray(t *testing.T) {
	s := newTestServer(&fakeGames{}, &fakePredictor{}, Options{})
	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/sports/games", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"games":[]}`, rec.Body.String())
}

func TestGamesQueryParams(t *testing.T) {
	games := &fakeGames{}
	s := newTestServer(games, &fakePredictor{}, Options{})

	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/sports/games?since=2025-11-01T12:00:00-05:00&limit=5000", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(maxGamesLimit), games.lastParams.Limit)
	assert.Equal(t, time.Date(2025, 11, 1, 17, 0, 0, 0, time.UTC), games.lastParams.Since)
}

func TestGamesBadParams(t *testing.T) {
	s := newTestServer(&fakeGames{}, &fakePredictor{}, Options{})

	for _, q := range []string{"since=yesterday", "limit=abc", "limit=0", "limit=-3"} {
		t.Run(q, func(t *testing.T) {
			rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/sports/games?"+q, nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Contains(t, body.Error, "invalid")
		})
	}
}

func TestPredictAll(t *testing.T) {
	games := &fakeGames{upcoming: []gamesdb.Game{
		{ID: gamesdb.GameID("x"), HomeTeamName: "Knicks", AwayTeamName: "Heat"},
	}}
	s := newTestServer(games, &fakePredictor{}, Options{})

	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/sports/predict/all", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(maxGamesLimit), games.lastLimit)

	var body predictionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Predictions, 1)
	assert.Equal(t, "Knicks", body.Predictions[0].PredictedWinner)
	assert.Contains(t, rec.Body.String(), `"predicted_winner"`)
}

func TestPredictAllLogsTruncation(t *testing.T) {
	upcoming := make([]gamesdb.Game, maxGamesLimit)
	for i := range upcoming {
		upcoming[i] = gamesdb.Game{ID: gamesdb.GameID(fmt.Sprintf("g%d", i)), HomeTeamName: "Home", AwayTeamName: "Away"}
	}
	var buf bytes.Buffer
	s := newTestServer(&fakeGames{upcoming: upcoming}, &fakePredictor{}, Options{Logger: slog.New(slog.NewJSONHandler(&buf, nil))})

	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/sports/predict/all", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, buf.String(), "Upcoming games truncated for prediction")

	buf.Reset()
	s = newTestServer(&fakeGames{upcoming: upcoming[:3]}, &fakePredictor{}, Options{Logger: slog.New(slog.NewJSONHandler(&buf, nil))})
	do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/sports/predict/all", nil))
	assert.NotContains(t, buf.String(), "truncated")
}

func TestPredictAllErrors(t *testing.T) {
	tests := []struct {
		name      string
		gamesErr  error
		predErr   error
		status    int
		wantError string
	}{
		{"no model", nil, fmt.Errorf("load: %w", predict.ErrNoModel), http.StatusServiceUnavailable, "prediction model unavailable"},
		{"pool exhausted", dbopen.ErrPoolExhausted, nil, http.StatusServiceUnavailable, "database busy, try again"},
		{"other", errors.New("secret connection string in here"), nil, http.StatusInternalServerError, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeGames{err: tt.gamesErr}, &fakePredictor{err: tt.predErr}, Options{})
			rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/sports/predict/all", nil))
			assert.Equal(t, tt.status, rec.Code)

			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantError, body.Error)
			assert.NotEmpty(t, body.RequestID)
			assert.NotContains(t, rec.Body.String(), "secret")
		})
	}
}

func TestCORSPreflightFromAnyOrigin(t *testing.T) {
	s := newTestServer(&fakeGames{}, &fakePredictor{}, Options{})

	for _, path := range []string{"/sports/games", "/sports/predict/all"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, path, nil)
			req.Header.Set("Origin", "https://somewhere-else.example")
			req.Header.Set("Access-Control-Request-Method", http.MethodGet)
			req.Header.Set("Access-Control-Request-Headers", "X-Custom-Header")

			rec := do(t, s.Handler(), req)
			assert.True(t, rec.Code >= 200 && rec.Code < 300, "preflight status %d", rec.Code)
			assert.Equal(t, "https://somewhere-else.example", rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
			assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodGet)
			assert.Contains(t, strings.ToLower(rec.Header().Get("Access-Control-Allow-Headers")), "x-custom-header")
		})
	}
}

func TestCORSOnSimpleRequest(t *testing.T) {
	s := newTestServer(&fakeGames{}, &fakePredictor{}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/sports/games", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := do(t, s.Handler(), req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "X-Request-Id")
}

func TestCORSPreflightAllowsAnyMethod(t *testing.T) {
	s := newTestServer(&fakeGames{}, &fakePredictor{}, Options{})

	for _, method := range []string{http.MethodTrace, "PURGE", "propfind"} {
		t.Run(method, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/sports/games", nil)
			req.Header.Set("Origin", "https://app.example")
			req.Header.Set("Access-Control-Request-Method", method)

			rec := do(t, s.Handler(), req)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, strings.ToUpper(method), rec.Header().Get("Access-Control-Allow-Methods"))
		})
	}
}

func TestCORSRestrictedOrigins(t *testing.T) {
	s := newTestServer(&fakeGames{}, &fakePredictor{}, Options{CORS: config.CORSConfig{AllowedOrigins: []string{"https://sports.example"}}})

	req := httptest.NewRequest(http.MethodGet, "/sports/games", nil)
	req.Header.Set("Origin", "https://sports.example")
	rec := do(t, s.Handler(), req)
	assert.Equal(t, "https://sports.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/sports/games", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = do(t, s.Handler(), req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPanicIsContainedToRequest(t *testing.T) {
	games := &fakeGames{panicMsg: "handler exploded"}
	s := newTestServer(games, &fakePredictor{}, Options{})

	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/sports/games", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/sports/games", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	s := newTestServer(&fakeGames{}, &fakePredictor{}, Options{Logger: logger})

	do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/sports/games?limit=nope", nil))
	do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/sports/predict/all", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "HTTP request", first["msg"])
	assert.Equal(t, "/sports/games", first["path"])
	assert.Equal(t, float64(http.StatusBadRequest), first["status"])
	assert.NotEmpty(t, first["requestID"])
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(&fakeGames{}, &fakePredictor{}, Options{})

	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/sports/teams", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s.Handler(), httptest.NewRequest(http.MethodPost, "/sports/games", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServeUntilCancelled(t *testing.T) {
	s := newTestServer(&fakeGames{}, &fakePredictor{}, Options{ListenAddr: "127.0.0.1:0", ShutdownTimeout: time.Second})

	ln, err := s.Listen()
	require.NoError(t, err)
	addr := ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + addr + "/sports/games")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestListenFailsWhenAddressInUse(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = taken.Close() }()

	s := newTestServer(&fakeGames{}, &fakePredictor{}, Options{ListenAddr: taken.Addr().String()})
	_, err = s.Listen()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to bind")
}
