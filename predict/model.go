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
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// ModelFileName is the ratings artifact looked up inside MODEL_DIR.
	ModelFileName = "ratings.yaml"

	DefaultRating = 1500.0
	DefaultScale  = 400.0
)

// ErrNoModel is returned when MODEL_DIR holds no ratings artifact.
var ErrNoModel = errors.New("no prediction model available")

// Model is a team-rating model. Ratings are on an Elo-like scale.
type Model struct {
	Version       string             `yaml:"version"`
	HomeAdvantage float64            `yaml:"home_advantage"`
	Scale         float64            `yaml:"scale"`
	Teams         map[string]float64 `yaml:"teams"`
}

// LoadModel reads and validates dir/ratings.yaml.
func LoadModel(dir string) (*Model, error) {
	path := filepath.Join(dir, ModelFileName)
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s not found", ErrNoModel, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", path, err)
	}
	return ParseModel(b)
}

// ParseModel decodes a ratings document.
func ParseModel(b []byte) (*Model, error) {
	var m Model
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	if m.Scale == 0 {
		m.Scale = DefaultScale
	}
	if m.Scale < 0 || math.IsNaN(m.Scale) || math.IsInf(m.Scale, 0) {
		return nil, fmt.Errorf("invalid model scale %v", m.Scale)
	}
	if m.Teams == nil {
		m.Teams = map[string]float64{}
	}
	return &m, nil
}

// Rating returns the rating for team, or DefaultRating when the team is unknown.
func (m *Model) Rating(team string) float64 {
	if r, ok := m.Teams[team]; ok {
		return r
	}
	return DefaultRating
}

// HomeWinProbability is the logistic win expectancy of the home side.
func (m *Model) HomeWinProbability(home, away string) float64 {
	diff := m.Rating(home) + m.HomeAdvantage - m.Rating(away)
	return 1 / (1 + math.Pow(10, -diff/m.Scale))
}
