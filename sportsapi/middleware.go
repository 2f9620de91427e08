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
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cardinalhq/sportsrunner/config"
)

// requestLogger logs one line per request once the handler has finished.
func requestLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info("HTTP request",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", ww.Status()),
					slog.Int("bytes", ww.BytesWritten()),
					slog.Duration("duration", time.Since(start)),
					slog.String("requestID", middleware.GetReqID(r.Context())),
					slog.String("remoteAddr", r.RemoteAddr),
					slog.String("userAgent", r.UserAgent()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// corsMethods are allowed without building a dedicated handler.
var corsMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete, http.MethodOptions,
	http.MethodConnect, http.MethodTrace,
}

// corsHandler applies the configured CORS policy. A permissive policy echoes
// the caller's origin, allows credentials and accepts any method or header.
// Otherwise only the listed origins are allowed.
func corsHandler(c config.CORSConfig) func(next http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins: c.AllowedOrigins,
		AllowedMethods: corsMethods,
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         3600,
	}
	if !c.PermissiveCORS() {
		return cors.Handler(opts)
	}

	opts.AllowedOrigins = nil
	opts.AllowOriginFunc = func(*http.Request, string) bool { return true }
	opts.AllowCredentials = true
	return anyMethodCORS(opts)
}

// anyMethodCORS serves known methods from one shared handler and builds a
// handler that also allows the requested method for anything else.
func anyMethodCORS(opts cors.Options) func(next http.Handler) http.Handler {
	known := cors.New(opts)
	return func(next http.Handler) http.Handler {
		shared := known.Handler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			method := corsRequestMethod(r)
			if method == "" || slices.Contains(corsMethods, method) {
				shared.ServeHTTP(w, r)
				return
			}
			o := opts
			o.AllowedMethods = append(slices.Clone(corsMethods), method)
			cors.New(o).Handler(next).ServeHTTP(w, r)
		})
	}
}

// corsRequestMethod is the method a preflight asks about, or the method of
// an actual request.
func corsRequestMethod(r *http.Request) string {
	if r.Method == http.MethodOptions {
		if m := r.Header.Get("Access-Control-Request-Method"); m != "" {
			return strings.ToUpper(m)
		}
	}
	return strings.ToUpper(r.Method)
}
