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
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/perchsocial/perch/pkg/auth"
	"github.com/perchsocial/perch/pkg/observability"
	"github.com/perchsocial/perch/pkg/ratelimit"
)

// router builds the /v1 route table.
//
// Middleware order inside a route is auth first, then rate limiting, so
// identity-keyed policies see the authenticated subject. Routes carrying
// two policies list the narrow one first; a rejection there leaves the
// broad api budget uncharged.
func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	if s.obs != nil {
		r.Use(observability.HTTPMiddleware(s.obs.GetTracer("perch/server"), s.obs.GetMetrics()))
	}
	r.Use(s.requestLogger)
	if s.cfg.Server.CORS.IsEnabled() {
		r.Use(s.corsMiddleware)
	}

	r.Get("/health", s.handleHealth)

	requireAuth := auth.RequireAuth(s.validator)
	optionalAuth := auth.OptionalAuth(s.validator)
	requireAdmin := auth.RequireRole(auth.RoleAdmin)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			// Credential endpoints exist only when this instance issues
			// tokens. In jwks mode the IdP owns them.
			if s.issuer != nil {
				r.With(s.limit("auth")).Post("/register", s.handleRegister)
				r.With(s.limit("auth")).Post("/login", s.handleLogin)
				r.With(s.limit("password_reset")).Post("/password-reset", s.handlePasswordResetRequest)
				r.With(s.limit("auth")).Post("/password-reset/confirm", s.handlePasswordResetConfirm)
			}
			r.With(requireAuth, s.limit("api")).Get("/me", s.handleMe)
		})

		// Public read surface. Anonymous callers fall back to per-address
		// limiting through the caller derivation.
		r.Group(func(r chi.Router) {
			r.Use(optionalAuth, s.limit("api"))

			r.Get("/users/{username}", s.handleGetUser)
			r.Get("/users/{username}/posts", s.handleListUserPosts)
			r.Get("/users/{username}/followers", s.handleListFollowers)
			r.Get("/users/{username}/following", s.handleListFollowing)
			r.Get("/posts/{id}", s.handleGetPost)
			r.Get("/media/{id}", s.handleDownloadMedia)
		})

		// Authenticated surface.
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.With(s.limit("post_create"), s.limit("api")).Post("/posts", s.handleCreatePost)
			r.With(s.limit("api")).Delete("/posts/{id}", s.handleDeletePost)
			r.With(s.limit("api")).Get("/feed", s.handleFeed)

			r.With(s.limit("follow"), s.limit("api")).Post("/users/{username}/follow", s.handleFollow)
			r.With(s.limit("follow"), s.limit("api")).Delete("/users/{username}/follow", s.handleUnfollow)
			r.With(s.limit("follow"), s.limit("api")).Post("/users/{username}/block", s.handleBlock)
			r.With(s.limit("follow"), s.limit("api")).Delete("/users/{username}/block", s.handleUnblock)

			r.With(s.limit("media_upload"), s.limit("api")).Post("/media", s.handleUploadMedia)
			r.With(s.limit("api")).Delete("/media/{id}", s.handleDeleteMedia)

			r.With(s.limit("api")).Post("/reports", s.handleCreateReport)
		})

		// Admin surface. The rate limit endpoints are deliberately
		// unlimited so an operator can always reach them.
		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAuth, requireAdmin)

			r.With(s.limit("api")).Get("/reports", s.handleListOpenReports)
			r.With(s.limit("api")).Post("/reports/{id}/resolve", s.handleResolveReport)

			r.Get("/ratelimit/{key}", s.handleRateLimitStatus)
			r.Delete("/ratelimit/{key}", s.handleRateLimitReset)
			r.Delete("/ratelimit", s.handleRateLimitResetAll)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// limit gates a route through the named policy. Unknown or disabled
// policies yield a pass-through, so the route table reads the same whether
// limiting is on or off.
func (s *Server) limit(policy string) func(http.Handler) http.Handler {
	return ratelimit.Middleware(ratelimit.MiddlewareConfig{
		Limiter:    s.limiters[policy],
		CallerFunc: callerFromRequest,
		OnDecision: func(r *http.Request, d ratelimit.Decision) {
			observability.GetGlobalMetrics().RecordRateLimitDecision(r.Context(), policy, d.Admitted)
		},
	})
}

// callerFromRequest derives the rate-limit caller, attaching the subject
// when auth middleware ran earlier in the chain.
func callerFromRequest(r *http.Request) ratelimit.Caller {
	caller := ratelimit.Caller{RemoteAddr: ratelimit.ClientIP(r)}
	if claims := auth.ClaimsFromContext(r.Context()); claims != nil {
		caller.Identity = claims.Subject
	}
	return caller
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	cors := s.cfg.Server.CORS
	methods := strings.Join(cors.AllowedMethods, ", ")
	headers := strings.Join(cors.AllowedHeaders, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			for _, allowed := range cors.AllowedOrigins {
				if allowed == "*" || allowed == origin {
					w.Header().Set("Access-Control-Allow-Origin", allowed)
					break
				}
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.Header().Set("Access-Control-Allow-Headers", headers)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
