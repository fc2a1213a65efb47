// Copyright 2025 The Rivaas Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package httpform

import (
	"log/slog"
	"net/http"

	"rivaas.dev/upload"
)

// ErrorHandler writes the response for a failed parse.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Option configures [Middleware].
type Option func(*config)

type config struct {
	baseURL      string
	errorHandler ErrorHandler
	cleanup      bool
	logger       *slog.Logger
}

func defaultConfig() *config {
	return &config{
		cleanup: true,
		logger:  slog.New(slog.DiscardHandler),
	}
}

// WithProblemBaseURL sets the prefix of problem type URIs.
//
// Example:
//
//	httpform.Middleware(p, httpform.WithProblemBaseURL("https://api.example.com/problems"))
func WithProblemBaseURL(url string) Option {
	return func(cfg *config) {
		cfg.baseURL = url
	}
}

// WithErrorHandler replaces the default problem-details response.
func WithErrorHandler(h ErrorHandler) Option {
	return func(cfg *config) {
		cfg.errorHandler = h
	}
}

// WithAutoCleanup controls whether temporary files still present after the
// handler returns are removed. Files moved away with [upload.File.MoveTo]
// are not affected. Default: true.
func WithAutoCleanup(enabled bool) Option {
	return func(cfg *config) {
		cfg.cleanup = enabled
	}
}

// WithLogger sets the logger used to report cleanup failures.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// Middleware parses every request with p before calling next. The payload
// is available to next through [PayloadFrom]. Failed parses never reach
// next.
//
// Example:
//
//	handler := httpform.Middleware(parser,
//	    httpform.WithProblemBaseURL("https://api.example.com/problems"),
//	)(uploadHandler)
func Middleware(p *upload.Parser, opts ...Option) func(http.Handler) http.Handler {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.errorHandler == nil {
		cfg.errorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			WriteProblem(w, r, err, cfg.baseURL)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			payload, err := Parse(r, p)
			if err != nil {
				cfg.errorHandler(w, r, err)
				return
			}
			if cfg.cleanup {
				defer func() {
					if cerr := payload.Cleanup(); cerr != nil {
						cfg.logger.WarnContext(r.Context(), "upload cleanup failed", "error", cerr)
					}
				}()
			}

			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), payload)))
		})
	}
}
