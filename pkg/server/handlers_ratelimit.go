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
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/perchsocial/perch/pkg/auth"
)

// requireRateLimitAdmin writes the error response when rate limiting is
// disabled and there is no admin surface to operate on.
func (s *Server) requireRateLimitAdmin(w http.ResponseWriter) bool {
	if s.rlAdmin == nil {
		respondError(w, http.StatusNotFound, codeNotFound, "Rate limiting is disabled")
		return false
	}
	return true
}

func (s *Server) handleRateLimitStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requireRateLimitAdmin(w) {
		return
	}

	key := chi.URLParam(r, "key")
	entry, ok := s.rlAdmin.StatusOf(key, time.Now())
	if !ok {
		respondError(w, http.StatusNotFound, codeNotFound, "No active window for key")
		return
	}

	respond(w, http.StatusOK, map[string]any{
		"key":      key,
		"count":    entry.Count,
		"reset_at": entry.ResetAt,
	})
}

func (s *Server) handleRateLimitReset(w http.ResponseWriter, r *http.Request) {
	if !s.requireRateLimitAdmin(w) {
		return
	}

	key := chi.URLParam(r, "key")
	s.rlAdmin.ResetOne(key)

	claims := auth.ClaimsFromContext(r.Context())
	slog.Info("Rate limit window reset", "key", key, "by", claims.Subject)
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRateLimitResetAll(w http.ResponseWriter, r *http.Request) {
	if !s.requireRateLimitAdmin(w) {
		return
	}

	s.rlAdmin.ResetAll()

	claims := auth.ClaimsFromContext(r.Context())
	slog.Info("All rate limit windows reset", "by", claims.Subject)
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}
