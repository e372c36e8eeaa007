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

type createReportRequest struct {
	SubjectType string `json:"subject_type"`
	SubjectID   string `json:"subject_id"`
	Reason      string `json:"reason"`
}

type resolveReportRequest struct {
	Resolution string `json:"resolution"`
}

func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())

	var req createReportRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		respondError(w, http.StatusBadRequest, codeValidation, "Reason is required")
		return
	}
	if len(req.Reason) > social.MaxReportReasonLen {
		respondError(w, http.StatusBadRequest, codeValidation,
			fmt.Sprintf("Reason must be at most %d characters", social.MaxReportReasonLen))
		return
	}

	// The reported subject must exist at report time.
	switch req.SubjectType {
	case social.SubjectTypeUser:
		if _, err := s.store.GetUserByID(r.Context(), req.SubjectID); err != nil {
			respondStoreError(w, r, err, "Report subject not found")
			return
		}
	case social.SubjectTypePost:
		if _, err := s.store.GetPost(r.Context(), req.SubjectID); err != nil {
			respondStoreError(w, r, err, "Report subject not found")
			return
		}
	default:
		respondError(w, http.StatusBadRequest, codeValidation,
			`Subject type must be "user" or "post"`)
		return
	}

	report := &social.Report{
		ID:          uuid.NewString(),
		ReporterID:  claims.Subject,
		SubjectType: req.SubjectType,
		SubjectID:   req.SubjectID,
		Reason:      req.Reason,
		Status:      social.ReportStatusOpen,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateReport(r.Context(), report); err != nil {
		respondStoreError(w, r, err, "Report not found")
		return
	}

	slog.Info("Report filed",
		"report_id", report.ID, "subject_type", report.SubjectType, "subject_id", report.SubjectID)
	respond(w, http.StatusCreated, report)
}

func (s *Server) handleListOpenReports(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r)
	reports, err := s.store.ListOpenReports(r.Context(), limit, offset)
	if err != nil {
		respondStoreError(w, r, err, "Report not found")
		return
	}
	respond(w, http.StatusOK, reports)
}

func (s *Server) handleResolveReport(w http.ResponseWriter, r *http.Request) {
	var req resolveReportRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Resolution = strings.TrimSpace(req.Resolution)
	if req.Resolution == "" {
		respondError(w, http.StatusBadRequest, codeValidation, "Resolution is required")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.store.ResolveReport(r.Context(), id, req.Resolution, time.Now().UTC()); err != nil {
		if errors.Is(err, social.ErrDuplicate) {
			respondError(w, http.StatusConflict, codeConflict, "Report already resolved")
			return
		}
		respondStoreError(w, r, err, "Report not found")
		return
	}

	report, err := s.store.GetReport(r.Context(), id)
	if err != nil {
		respondStoreError(w, r, err, "Report not found")
		return
	}

	slog.Info("Report resolved", "report_id", id)
	respond(w, http.StatusOK, report)
}
