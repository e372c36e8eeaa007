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
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/perchsocial/perch/pkg/auth"
	"github.com/perchsocial/perch/pkg/social"
)

type createPostRequest struct {
	Body    string `json:"body"`
	MediaID string `json:"media_id,omitempty"`
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())

	var req createPostRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	body := strings.TrimSpace(req.Body)
	if body == "" {
		respondError(w, http.StatusBadRequest, codeValidation, "Post body is required")
		return
	}
	if len(body) > social.MaxPostBodyLen {
		respondError(w, http.StatusBadRequest, codeValidation,
			fmt.Sprintf("Post body must be at most %d characters", social.MaxPostBodyLen))
		return
	}

	// An attached media object must exist and belong to the author.
	if req.MediaID != "" {
		m, err := s.store.GetMedia(r.Context(), req.MediaID)
		if err != nil {
			respondStoreError(w, r, err, "Media not found")
			return
		}
		if m.OwnerID != claims.Subject {
			respondError(w, http.StatusForbidden, codeForbidden, "Media belongs to another user")
			return
		}
	}

	post := &social.Post{
		ID:        uuid.NewString(),
		AuthorID:  claims.Subject,
		Body:      body,
		MediaID:   req.MediaID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreatePost(r.Context(), post); err != nil {
		respondStoreError(w, r, err, "Post not found")
		return
	}

	respond(w, http.StatusCreated, post)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.store.GetPost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, r, err, "Post not found")
		return
	}
	respond(w, http.StatusOK, post)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())

	post, err := s.store.GetPost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, r, err, "Post not found")
		return
	}

	if post.AuthorID != claims.Subject && !claims.HasRole(auth.RoleAdmin) {
		respondError(w, http.StatusForbidden, codeForbidden, "Only the author may delete this post")
		return
	}

	if err := s.store.DeletePost(r.Context(), post.ID); err != nil {
		respondStoreError(w, r, err, "Post not found")
		return
	}

	slog.Info("Post deleted", "post_id", post.ID, "by", claims.Subject)
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())

	limit, offset := parseLimitOffset(r)
	posts, err := s.store.ListFeed(r.Context(), claims.Subject, limit, offset)
	if err != nil {
		respondStoreError(w, r, err, "User not found")
		return
	}
	respond(w, http.StatusOK, posts)
}
