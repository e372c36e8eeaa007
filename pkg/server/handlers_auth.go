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
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/perchsocial/perch/pkg/auth"
	"github.com/perchsocial/perch/pkg/social"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)

const minPasswordLen = 8

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

type passwordResetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if !usernamePattern.MatchString(req.Username) {
		respondError(w, http.StatusBadRequest, codeValidation,
			"Username must be 3-30 characters of letters, digits, or underscores")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		respondError(w, http.StatusBadRequest, codeValidation, "Invalid email address")
		return
	}
	if len(req.Password) < minPasswordLen {
		respondError(w, http.StatusBadRequest, codeValidation,
			"Password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password, s.cfg.Auth.BcryptCost)
	if err != nil {
		slog.Error("Password hashing failed", "error", err)
		respondError(w, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	now := time.Now().UTC()
	user := &social.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         auth.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, social.ErrDuplicate) {
			respondError(w, http.StatusConflict, codeConflict, "Username or email already taken")
			return
		}
		respondStoreError(w, r, err, "User not found")
		return
	}

	token, err := s.issuer.IssueToken(user.ID, user.Email, user.Role)
	if err != nil {
		slog.Error("Token issuance failed", "user_id", user.ID, "error", err)
		respondError(w, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	slog.Info("User registered", "user_id", user.ID, "username", user.Username)
	respond(w, http.StatusCreated, map[string]any{"user": user, "token": token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := s.lookupAccount(r, strings.TrimSpace(req.Username))
	if err != nil {
		// One message for unknown accounts and bad passwords.
		respondError(w, http.StatusUnauthorized, codeUnauthorized, "Invalid username or password")
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		respondError(w, http.StatusUnauthorized, codeUnauthorized, "Invalid username or password")
		return
	}

	token, err := s.issuer.IssueToken(user.ID, user.Email, user.Role)
	if err != nil {
		slog.Error("Token issuance failed", "user_id", user.ID, "error", err)
		respondError(w, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	respond(w, http.StatusOK, map[string]any{"user": user, "token": token})
}

// lookupAccount resolves a login identifier: username first, then email
// when the identifier contains an @.
func (s *Server) lookupAccount(r *http.Request, identifier string) (*social.User, error) {
	user, err := s.store.GetUserByUsername(r.Context(), identifier)
	if err == nil {
		return user, nil
	}
	if strings.Contains(identifier, "@") {
		return s.store.GetUserByEmail(r.Context(), strings.ToLower(identifier))
	}
	return nil, err
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())

	user, err := s.store.GetUserByID(r.Context(), claims.Subject)
	if err != nil {
		respondStoreError(w, r, err, "User not found")
		return
	}

	respond(w, http.StatusOK, user)
}

func (s *Server) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		respondError(w, http.StatusBadRequest, codeValidation, "Invalid email address")
		return
	}

	// The response never reveals whether the address has an account.
	if user, err := s.store.GetUserByEmail(r.Context(), email); err == nil {
		reset := &social.PasswordReset{
			Token:     uuid.NewString(),
			UserID:    user.ID,
			ExpiresAt: time.Now().UTC().Add(social.DefaultPasswordResetTTL),
		}
		if err := s.store.CreatePasswordReset(r.Context(), reset); err != nil {
			slog.Error("Failed to create password reset", "user_id", user.ID, "error", err)
		} else {
			// No mail transport is wired up; the token is logged so an
			// operator can relay it.
			slog.Info("Password reset token issued",
				"user_id", user.ID, "token", reset.Token, "expires_at", reset.ExpiresAt)
		}
	}

	respond(w, http.StatusAccepted, map[string]string{"status": "pending"})
}

func (s *Server) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req passwordResetConfirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if len(req.NewPassword) < minPasswordLen {
		respondError(w, http.StatusBadRequest, codeValidation,
			"Password must be at least 8 characters")
		return
	}

	now := time.Now().UTC()

	reset, err := s.store.GetPasswordReset(r.Context(), req.Token)
	if err != nil || !reset.Usable(now) {
		respondError(w, http.StatusBadRequest, codeValidation, "Invalid or expired reset token")
		return
	}

	// Burn the token before touching the password so a raced confirmation
	// cannot apply twice.
	if err := s.store.MarkPasswordResetUsed(r.Context(), req.Token, now); err != nil {
		respondError(w, http.StatusBadRequest, codeValidation, "Invalid or expired reset token")
		return
	}

	user, err := s.store.GetUserByID(r.Context(), reset.UserID)
	if err != nil {
		respondStoreError(w, r, err, "User not found")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword, s.cfg.Auth.BcryptCost)
	if err != nil {
		slog.Error("Password hashing failed", "error", err)
		respondError(w, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	user.PasswordHash = hash
	user.UpdatedAt = now
	if err := s.store.UpdateUser(r.Context(), user); err != nil {
		respondStoreError(w, r, err, "User not found")
		return
	}

	slog.Info("Password reset completed", "user_id", user.ID)
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}
