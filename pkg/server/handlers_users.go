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
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/perchsocial/perch/pkg/auth"
	"github.com/perchsocial/perch/pkg/social"
)

// resolveUser fetches the user named in the route's {username} parameter,
// writing the 404 itself when there is none.
func (s *Server) resolveUser(w http.ResponseWriter, r *http.Request) (*social.User, bool) {
	user, err := s.store.GetUserByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		respondStoreError(w, r, err, "User not found")
		return nil, false
	}
	return user, true
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, ok := s.resolveUser(w, r)
	if !ok {
		return
	}
	respond(w, http.StatusOK, user.Public())
}

func (s *Server) handleListUserPosts(w http.ResponseWriter, r *http.Request) {
	user, ok := s.resolveUser(w, r)
	if !ok {
		return
	}

	limit, offset := parseLimitOffset(r)
	posts, err := s.store.ListPostsByAuthor(r.Context(), user.ID, limit, offset)
	if err != nil {
		respondStoreError(w, r, err, "User not found")
		return
	}
	respond(w, http.StatusOK, posts)
}

func (s *Server) handleListFollowers(w http.ResponseWriter, r *http.Request) {
	user, ok := s.resolveUser(w, r)
	if !ok {
		return
	}

	limit, offset := parseLimitOffset(r)
	users, err := s.store.ListFollowers(r.Context(), user.ID, limit, offset)
	if err != nil {
		respondStoreError(w, r, err, "User not found")
		return
	}
	respond(w, http.StatusOK, publicUsers(users))
}

func (s *Server) handleListFollowing(w http.ResponseWriter, r *http.Request) {
	user, ok := s.resolveUser(w, r)
	if !ok {
		return
	}

	limit, offset := parseLimitOffset(r)
	users, err := s.store.ListFollowing(r.Context(), user.ID, limit, offset)
	if err != nil {
		respondStoreError(w, r, err, "User not found")
		return
	}
	respond(w, http.StatusOK, publicUsers(users))
}

func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	target, ok := s.resolveUser(w, r)
	if !ok {
		return
	}

	follow := &social.Follow{
		FollowerID: claims.Subject,
		FolloweeID: target.ID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.CreateFollow(r.Context(), follow); err != nil {
		respondStoreError(w, r, err, "User not found")
		return
	}

	respond(w, http.StatusCreated, follow)
}

func (s *Server) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	target, ok := s.resolveUser(w, r)
	if !ok {
		return
	}

	if err := s.store.DeleteFollow(r.Context(), claims.Subject, target.ID); err != nil {
		respondStoreError(w, r, err, "Not following this user")
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	target, ok := s.resolveUser(w, r)
	if !ok {
		return
	}

	block := &social.Block{
		BlockerID: claims.Subject,
		BlockedID: target.ID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateBlock(r.Context(), block); err != nil {
		respondStoreError(w, r, err, "User not found")
		return
	}

	respond(w, http.StatusCreated, block)
}

func (s *Server) handleUnblock(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	target, ok := s.resolveUser(w, r)
	if !ok {
		return
	}

	if err := s.store.DeleteBlock(r.Context(), claims.Subject, target.ID); err != nil {
		respondStoreError(w, r, err, "Not blocking this user")
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func publicUsers(users []*social.User) []*social.User {
	out := make([]*social.User, len(users))
	for i, u := range users {
		out[i] = u.Public()
	}
	return out
}
