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

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

const (
	EnvModelDir    = "MODEL_DIR"
	EnvDataDir     = "DATA_DIR"
	EnvDatabaseURL = "DATABASE_URL"
)

// Environment holds the required process configuration, resolved once at startup.
type Environment struct {
	ModelDir    string
	DataDir     string
	DatabaseURL string
}

// MissingVariableError reports a required environment variable that is unset or empty.
type MissingVariableError struct {
	Name string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("%s environment variable not set", e.Name)
}

// ModelDirNotFoundError reports a MODEL_DIR that does not exist on disk.
type ModelDirNotFoundError struct {
	Path string
	Err  error
}

func (e *ModelDirNotFoundError) Error() string {
	return fmt.Sprintf("%s set but %s does not exist", EnvModelDir, e.Path)
}

func (e *ModelDirNotFoundError) Unwrap() error {
	return e.Err
}

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(string) (string, bool)

// LoadEnvironment validates the required environment variables using lookup.
// Variables are checked in order MODEL_DIR, DATA_DIR, DATABASE_URL and the
// first problem found is returned. Only the model directory is checked on disk.
func LoadEnvironment(lookup LookupFunc) (Environment, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	get := func(name string) (string, error) {
		v, ok := lookup(name)
		if !ok || v == "" {
			return "", &MissingVariableError{Name: name}
		}
		return v, nil
	}

	modelDir, err := get(EnvModelDir)
	if err != nil {
		return Environment{}, err
	}
	if _, err := os.Stat(modelDir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Environment{}, &ModelDirNotFoundError{Path: modelDir, Err: err}
		}
		return Environment{}, fmt.Errorf("failed to stat %s %q: %w", EnvModelDir, modelDir, err)
	}

	dataDir, err := get(EnvDataDir)
	if err != nil {
		return Environment{}, err
	}

	databaseURL, err := get(EnvDatabaseURL)
	if err != nil {
		return Environment{}, err
	}

	return Environment{
		ModelDir:    modelDir,
		DataDir:     dataDir,
		DatabaseURL: databaseURL,
	}, nil
}
