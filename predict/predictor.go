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

package predict

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/cardinalhq/sportsrunner/gamesdb"
)

const (
	modelCacheKey = "model"

	// Load failures are cached briefly so a burst of requests does not
	// hammer the filesystem.
	failedLoadTTL = 5 * time.Second
)

type Prediction struct {
	GameID             uuid.UUID `json:"game_id"`
	HomeTeamName       string    `json:"home_team_name"`
	AwayTeamName       string    `json:"away_team_name"`
	PredictedWinner    string    `json:"predicted_winner"`
	HomeWinProbability float64   `json:"home_win_probability"`
	ModelVersion       string    `json:"model_version"`
}

type modelCacheValue struct {
	model *Model
	err   error
}

// Predictor scores games against the model found in a model directory.
type Predictor struct {
	modelDir string
	cache    *ttlcache.Cache[string, modelCacheValue]
}

func NewPredictor(modelDir string, ttl time.Duration) *Predictor {
	return &Predictor{
		modelDir: modelDir,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, modelCacheValue](ttl),
			ttlcache.WithDisableTouchOnHit[string, modelCacheValue](),
		),
	}
}

// Model returns the current model, loading it from disk when the cache is cold.
func (p *Predictor) Model() (*Model, error) {
	loader := ttlcache.LoaderFunc[string, modelCacheValue](
		func(cache *ttlcache.Cache[string, modelCacheValue], key string) *ttlcache.Item[string, modelCacheValue] {
			m, err := LoadModel(p.modelDir)
			if err != nil {
				slog.Warn("Failed to load prediction model", slog.String("modelDir", p.modelDir), slog.Any("error", err))
				return cache.Set(key, modelCacheValue{err: err}, failedLoadTTL)
			}
			slog.Info("Loaded prediction model",
				slog.String("version", m.Version),
				slog.Int("teams", len(m.Teams)))
			return cache.Set(key, modelCacheValue{model: m}, ttlcache.DefaultTTL)
		},
	)
	v := p.cache.Get(modelCacheKey, ttlcache.WithLoader(loader))
	if v != nil {
		return v.Value().model, v.Value().err
	}
	return nil, errors.New("failed to get prediction model from cache")
}

// Invalidate drops the cached model so the next call reloads it.
func (p *Predictor) Invalidate() {
	p.cache.Delete(modelCacheKey)
}

// PredictAll predicts the winner of every game, in the order given.
func (p *Predictor) PredictAll(ctx context.Context, games []gamesdb.Game) ([]Prediction, error) {
	m, err := p.Model()
	if err != nil {
		return nil, err
	}

	out := make([]Prediction, 0, len(games))
	for _, g := range games {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		prob := m.HomeWinProbability(g.HomeTeamName, g.AwayTeamName)
		winner := g.HomeTeamName
		if prob < 0.5 {
			winner = g.AwayTeamName
		}
		out = append(out, Prediction{
			GameID:             g.ID,
			HomeTeamName:       g.HomeTeamName,
			AwayTeamName:       g.AwayTeamName,
			PredictedWinner:    winner,
			HomeWinProbability: prob,
			ModelVersion:       m.Version,
		})
	}
	return out, nil
}

// Watch invalidates the cached model whenever the model file changes.
// It blocks until ctx is done.
func (p *Predictor) Watch(ctx context.Context) error {
	return p.watch(ctx, nil)
}

func (p *Predictor) watch(ctx context.Context, ready chan<- struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory so atomic renames over the file are seen.
	if err := watcher.Add(p.modelDir); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != ModelFileName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			slog.Info("Prediction model changed", slog.String("op", event.Op.String()))
			p.Invalidate()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("Model watcher error", slog.Any("error", err))
		}
	}
}
