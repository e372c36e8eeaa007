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
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/perchsocial/perch/pkg/auth"
	"github.com/perchsocial/perch/pkg/media"
	"github.com/perchsocial/perch/pkg/social"
)

func (s *Server) handleUploadMedia(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())

	// Transport-level cap; the media store enforces the exact limit. The
	// slack covers multipart framing overhead.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Media.MaxUploadBytes+64<<10)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, http.StatusRequestEntityTooLarge, codeTooLarge, "Upload too large")
			return
		}
		respondError(w, http.StatusBadRequest, codeValidation, `Multipart field "file" is required`)
		return
	}
	defer file.Close()

	saved, err := s.media.Save(file, header.Filename)
	if err != nil {
		switch {
		case errors.Is(err, media.ErrTooLarge):
			respondError(w, http.StatusRequestEntityTooLarge, codeTooLarge, "Upload too large")
		case errors.Is(err, media.ErrUnsupportedType):
			respondError(w, http.StatusBadRequest, codeValidation, "Unsupported media type")
		default:
			slog.Error("Media save failed", "error", err)
			respondError(w, http.StatusInternalServerError, codeInternal, "Internal server error")
		}
		return
	}

	m := &social.MediaObject{
		ID:          uuid.NewString(),
		OwnerID:     claims.Subject,
		FileName:    saved.FileName,
		ContentType: saved.ContentType,
		SizeBytes:   saved.SizeBytes,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateMedia(r.Context(), m); err != nil {
		// Metadata is the source of truth; drop the orphaned file.
		_ = s.media.Remove(saved.FileName)
		respondStoreError(w, r, err, "Media not found")
		return
	}

	respond(w, http.StatusCreated, m)
}

func (s *Server) handleDownloadMedia(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.GetMedia(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, r, err, "Media not found")
		return
	}

	path, err := s.media.Path(m.FileName)
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			slog.Warn("Media file missing from disk", "media_id", m.ID, "file", m.FileName)
			respondError(w, http.StatusNotFound, codeNotFound, "Media not found")
			return
		}
		slog.Error("Media path resolution failed", "media_id", m.ID, "error", err)
		respondError(w, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	// Setting the type first keeps ServeFile from re-sniffing it.
	w.Header().Set("Content-Type", m.ContentType)
	http.ServeFile(w, r, path)
}

func (s *Server) handleDeleteMedia(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())

	m, err := s.store.GetMedia(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, r, err, "Media not found")
		return
	}

	if m.OwnerID != claims.Subject && !claims.HasRole(auth.RoleAdmin) {
		respondError(w, http.StatusForbidden, codeForbidden, "Only the owner may delete this media")
		return
	}

	if err := s.store.DeleteMedia(r.Context(), m.ID); err != nil {
		respondStoreError(w, r, err, "Media not found")
		return
	}
	if err := s.media.Remove(m.FileName); err != nil && !errors.Is(err, media.ErrNotFound) {
		slog.Warn("Failed to remove media file", "media_id", m.ID, "file", m.FileName, "error", err)
	}

	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}
