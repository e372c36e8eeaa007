// Copyright 2025 The Perch Authors
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

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/perchsocial/perch/pkg/auth"
	"github.com/perchsocial/perch/pkg/config"
	"github.com/perchsocial/perch/pkg/media"
	"github.com/perchsocial/perch/pkg/observability"
	"github.com/perchsocial/perch/pkg/ratelimit"
	"github.com/perchsocial/perch/pkg/social"
)

// shutdownTimeout bounds graceful shutdown of the listeners.
const shutdownTimeout = 5 * time.Second

// Options carries the server's dependencies. Config, Store, Media, and
// Validator are required. Issuer is nil in jwks mode, which disables the
// register/login/password-reset endpoints (an external IdP owns
// credentials). Limiters and Admin are nil when rate limiting is disabled.
type Options struct {
	Config *config.Config

	Store social.Store
	Media *media.DiskStore

	Issuer    *auth.Issuer
	Validator auth.TokenValidator

	Limiters       map[string]*ratelimit.Limiter
	RateLimitAdmin *ratelimit.Admin

	Observability *observability.Manager
}

// Server serves the Perch HTTP API.
type Server struct {
	cfg   *config.Config
	store social.Store
	media *media.DiskStore

	issuer    *auth.Issuer
	validator auth.TokenValidator

	limiters map[string]*ratelimit.Limiter
	rlAdmin  *ratelimit.Admin

	obs *observability.Manager

	httpServer    *http.Server
	metricsServer *http.Server
}

// New validates the options and builds a server. No listeners are opened
// until Start.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Media == nil {
		return nil, fmt.Errorf("media store is required")
	}
	if opts.Validator == nil {
		return nil, fmt.Errorf("token validator is required")
	}

	return &Server{
		cfg:       opts.Config,
		store:     opts.Store,
		media:     opts.Media,
		issuer:    opts.Issuer,
		validator: opts.Validator,
		limiters:  opts.Limiters,
		rlAdmin:   opts.RateLimitAdmin,
		obs:       opts.Observability,
	}, nil
}

// Start serves the API until ctx is canceled or the listener fails. When
// metrics are enabled a second listener serves the Prometheus endpoint on
// its own port.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.Address(),
		Handler:      s.router(),
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeout),
		IdleTimeout:  2 * time.Duration(s.cfg.Server.ReadTimeout),
	}

	errCh := make(chan error, 2)

	go func() {
		slog.Info("HTTP server starting", "address", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if addr, handler := s.metricsEndpoint(); handler != nil {
		mux := http.NewServeMux()
		mux.Handle(s.obs.Config().Metrics.Path, handler)
		s.metricsServer = &http.Server{Addr: addr, Handler: mux}

		go func() {
			slog.Info("Metrics server starting", "address", addr, "path", s.obs.Config().Metrics.Path)
			if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	select {
	case err := <-errCh:
		_ = s.Shutdown(context.Background())
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown drains in-flight requests on both listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var firstErr error

	if s.httpServer != nil {
		slog.Info("HTTP server shutting down")
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			firstErr = fmt.Errorf("HTTP shutdown error: %w", err)
		}
	}

	if s.metricsServer != nil {
		slog.Info("Metrics server shutting down")
		if err := s.metricsServer.Shutdown(shutdownCtx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("metrics shutdown error: %w", err)
		}
	}

	return firstErr
}

// Address returns the API listener address.
func (s *Server) Address() string {
	return s.cfg.Server.Address()
}

// metricsEndpoint resolves the metrics listener address and handler, or
// ("", nil) when metrics are disabled.
func (s *Server) metricsEndpoint() (string, http.Handler) {
	if s.obs == nil {
		return "", nil
	}
	mc := s.obs.Config().Metrics
	if !mc.Enabled {
		return "", nil
	}
	metrics := s.obs.GetMetrics()
	if metrics == nil {
		return "", nil
	}
	return fmt.Sprintf("%s:%d", s.cfg.Server.Host, mc.Port), metrics.Handler()
}
