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
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates the tunable configuration for the service.
// The required process environment lives in Environment instead.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	CORS    CORSConfig    `mapstructure:"cors"`
	Pool    PoolConfig    `mapstructure:"pool"`
	Refresh RefreshConfig `mapstructure:"refresh"`
	Predict PredictConfig `mapstructure:"predict"`
}

type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type PoolConfig struct {
	CheckoutTimeout time.Duration `mapstructure:"checkout_timeout"`
}

type RefreshConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	HistorySubdir string        `mapstructure:"history_subdir"`
}

type PredictConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      "0.0.0.0:8080",
			ShutdownTimeout: 10 * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Pool: PoolConfig{
			CheckoutTimeout: 5 * time.Second,
		},
		Refresh: RefreshConfig{
			Interval:      15 * time.Minute,
			HistorySubdir: "history",
		},
		Predict: PredictConfig{
			CacheTTL: 10 * time.Minute,
		},
	}
}

// Load reads configuration from an optional config file and environment variables.
// Environment variables use the prefix "SPORTSRUNNER" and the dot character
// in keys is replaced by an underscore. For example, "pool.checkout_timeout"
// becomes "SPORTSRUNNER_POOL_CHECKOUT_TIMEOUT".
func Load() (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("SPORTSRUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if o := v.GetString("cors.allowed_origins"); o != "" && !strings.HasPrefix(o, "[") {
		cfg.CORS.AllowedOrigins = splitList(o)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr must not be empty")
	}
	if c.Pool.CheckoutTimeout <= 0 {
		return fmt.Errorf("pool.checkout_timeout must be positive, got %s", c.Pool.CheckoutTimeout)
	}
	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("refresh.interval must be positive, got %s", c.Refresh.Interval)
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		return fmt.Errorf("cors.allowed_origins must list at least one origin")
	}
	return nil
}

// PermissiveCORS reports whether every origin is allowed.
func (c CORSConfig) PermissiveCORS() bool {
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
