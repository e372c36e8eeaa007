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
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/perchsocial/perch/pkg/social"
)

// Envelope error codes.
const (
	codeValidation   = "VALIDATION_ERROR"
	codeUnauthorized = "UNAUTHORIZED"
	codeForbidden    = "FORBIDDEN"
	codeNotFound     = "NOT_FOUND"
	codeConflict     = "CONFLICT"
	codeTooLarge     = "PAYLOAD_TOO_LARGE"
	codeInternal     = "INTERNAL"
)

// maxBodyBytes caps JSON request bodies. Media uploads have their own
// limit from the media config.
const maxBodyBytes = 1 << 20

// respond writes the success envelope.
func respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    data,
	})
}

// respondError writes the failure envelope.
func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

// respondStoreError maps storage sentinels to envelope codes. notFound is
// the user-facing message for ErrNotFound; the remaining sentinels carry
// fixed messages. Unrecognized errors log and return INTERNAL.
func respondStoreError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	switch {
	case errors.Is(err, social.ErrNotFound):
		respondError(w, http.StatusNotFound, codeNotFound, notFound)
	case errors.Is(err, social.ErrDuplicate):
		respondError(w, http.StatusConflict, codeConflict, "Already exists")
	case errors.Is(err, social.ErrBlocked):
		respondError(w, http.StatusForbidden, codeForbidden, "Blocked")
	case errors.Is(err, social.ErrSelfAction):
		respondError(w, http.StatusBadRequest, codeValidation, "Cannot target yourself")
	default:
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, codeInternal, "Internal server error")
	}
}

// List pagination bounds.
const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// parseLimitOffset reads the limit and offset query parameters. Invalid
// values fall back to the defaults; limit is clamped to maxPageSize.
func parseLimitOffset(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			offset = n
		}
	}
	return limit, offset
}

// decodeJSON decodes the request body into dst, rejecting bodies over
// maxBodyBytes and trailing garbage. Writes the error response itself and
// returns false when decoding fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, http.StatusRequestEntityTooLarge, codeTooLarge, "Request body too large")
			return false
		}
		respondError(w, http.StatusBadRequest, codeValidation, "Invalid JSON body")
		return false
	}
	if dec.More() {
		respondError(w, http.StatusBadRequest, codeValidation, "Invalid JSON body")
		return false
	}

	return true
}
