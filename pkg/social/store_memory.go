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

package social

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store with in-process maps. It mirrors SQLStore
// semantics exactly and exists for tests and throwaway setups.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]*User   // by id
	usernames map[string]string  // username -> id
	emails    map[string]string  // email -> id
	posts     map[string]*Post   // by id
	follows   map[string]map[string]time.Time // follower -> followee -> created
	blocks    map[string]map[string]time.Time // blocker -> blocked -> created
	media     map[string]*MediaObject
	reports   map[string]*Report
	resets    map[string]*PasswordReset
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]*User),
		usernames: make(map[string]string),
		emails:    make(map[string]string),
		posts:     make(map[string]*Post),
		follows:   make(map[string]map[string]time.Time),
		blocks:    make(map[string]map[string]time.Time),
		media:     make(map[string]*MediaObject),
		reports:   make(map[string]*Report),
		resets:    make(map[string]*PasswordReset),
	}
}

// ============================================================================
// Users
// ============================================================================

func (s *MemoryStore) CreateUser(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return ErrDuplicate
	}
	if _, ok := s.usernames[user.Username]; ok {
		return ErrDuplicate
	}
	if _, ok := s.emails[user.Email]; ok {
		return ErrDuplicate
	}

	c := *user
	s.users[user.ID] = &c
	s.usernames[user.Username] = user.ID
	s.emails[user.Email] = user.ID
	return nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userLocked(id)
}

func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usernames[username]
	if !ok {
		return nil, ErrNotFound
	}
	return s.userLocked(id)
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[email]
	if !ok {
		return nil, ErrNotFound
	}
	return s.userLocked(id)
}

func (s *MemoryStore) userLocked(id string) (*User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *MemoryStore) UpdateUser(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok {
		return ErrNotFound
	}

	if user.Email != existing.Email {
		if _, taken := s.emails[user.Email]; taken {
			return ErrDuplicate
		}
		delete(s.emails, existing.Email)
		s.emails[user.Email] = user.ID
	}

	c := *user
	c.Username = existing.Username // usernames are immutable
	s.users[user.ID] = &c
	return nil
}

// ============================================================================
// Posts
// ============================================================================

func (s *MemoryStore) CreatePost(_ context.Context, post *Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[post.ID]; ok {
		return ErrDuplicate
	}
	c := *post
	s.posts[post.ID] = &c
	return nil
}

func (s *MemoryStore) GetPost(_ context.Context, id string) (*Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *p
	return &c, nil
}

func (s *MemoryStore) DeletePost(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[id]; !ok {
		return ErrNotFound
	}
	delete(s.posts, id)
	return nil
}

func (s *MemoryStore) ListPostsByAuthor(_ context.Context, authorID string, limit, offset int) ([]*Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collectPostsLocked(func(p *Post) bool { return p.AuthorID == authorID }, limit, offset), nil
}

func (s *MemoryStore) ListFeed(_ context.Context, userID string, limit, offset int) ([]*Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	following := s.follows[userID]
	include := func(p *Post) bool {
		if p.AuthorID == userID {
			return true
		}
		_, ok := following[p.AuthorID]
		return ok
	}
	return s.collectPostsLocked(include, limit, offset), nil
}

func (s *MemoryStore) collectPostsLocked(include func(*Post) bool, limit, offset int) []*Post {
	var posts []*Post
	for _, p := range s.posts {
		if include(p) {
			c := *p
			posts = append(posts, &c)
		}
	}
	sort.Slice(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return posts[i].ID < posts[j].ID
	})
	start, end := pageBounds(len(posts), limit, offset)
	return posts[start:end]
}

// ============================================================================
// Follows
// ============================================================================

func (s *MemoryStore) CreateFollow(_ context.Context, follow *Follow) error {
	if follow.FollowerID == follow.FolloweeID {
		return ErrSelfAction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blockedLocked(follow.FollowerID, follow.FolloweeID) {
		return ErrBlocked
	}
	if _, ok := s.follows[follow.FollowerID][follow.FolloweeID]; ok {
		return ErrDuplicate
	}

	if s.follows[follow.FollowerID] == nil {
		s.follows[follow.FollowerID] = make(map[string]time.Time)
	}
	s.follows[follow.FollowerID][follow.FolloweeID] = follow.CreatedAt
	return nil
}

func (s *MemoryStore) DeleteFollow(_ context.Context, followerID, followeeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.follows[followerID][followeeID]; !ok {
		return ErrNotFound
	}
	delete(s.follows[followerID], followeeID)
	return nil
}

// userEdge pairs a user id with the follow edge's creation time so edge
// lists sort the same way the SQL store orders them.
type userEdge struct {
	id      string
	created time.Time
}

func (s *MemoryStore) ListFollowers(_ context.Context, userID string, limit, offset int) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var edges []userEdge
	for follower, followees := range s.follows {
		if created, ok := followees[userID]; ok {
			edges = append(edges, userEdge{follower, created})
		}
	}
	return s.edgeUsersLocked(edges, limit, offset), nil
}

func (s *MemoryStore) ListFollowing(_ context.Context, userID string, limit, offset int) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var edges []userEdge
	for followee, created := range s.follows[userID] {
		edges = append(edges, userEdge{followee, created})
	}
	return s.edgeUsersLocked(edges, limit, offset), nil
}

func (s *MemoryStore) edgeUsersLocked(edges []userEdge, limit, offset int) []*User {
	sort.Slice(edges, func(i, j int) bool {
		if !edges[i].created.Equal(edges[j].created) {
			return edges[i].created.After(edges[j].created)
		}
		return edges[i].id < edges[j].id
	})

	start, end := pageBounds(len(edges), limit, offset)
	var users []*User
	for _, e := range edges[start:end] {
		if u, ok := s.users[e.id]; ok {
			c := *u
			users = append(users, &c)
		}
	}
	return users
}

// ============================================================================
// Blocks
// ============================================================================

func (s *MemoryStore) CreateBlock(_ context.Context, block *Block) error {
	if block.BlockerID == block.BlockedID {
		return ErrSelfAction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blocks[block.BlockerID][block.BlockedID]; ok {
		return ErrDuplicate
	}

	if s.blocks[block.BlockerID] == nil {
		s.blocks[block.BlockerID] = make(map[string]time.Time)
	}
	s.blocks[block.BlockerID][block.BlockedID] = block.CreatedAt

	// Blocking severs the relationship in both directions.
	delete(s.follows[block.BlockerID], block.BlockedID)
	delete(s.follows[block.BlockedID], block.BlockerID)
	return nil
}

func (s *MemoryStore) DeleteBlock(_ context.Context, blockerID, blockedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blocks[blockerID][blockedID]; !ok {
		return ErrNotFound
	}
	delete(s.blocks[blockerID], blockedID)
	return nil
}

func (s *MemoryStore) IsBlocked(_ context.Context, userA, userB string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blockedLocked(userA, userB), nil
}

func (s *MemoryStore) blockedLocked(userA, userB string) bool {
	if _, ok := s.blocks[userA][userB]; ok {
		return true
	}
	_, ok := s.blocks[userB][userA]
	return ok
}

// ============================================================================
// Media
// ============================================================================

func (s *MemoryStore) CreateMedia(_ context.Context, media *MediaObject) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.media[media.ID]; ok {
		return ErrDuplicate
	}
	c := *media
	s.media[media.ID] = &c
	return nil
}

func (s *MemoryStore) GetMedia(_ context.Context, id string) (*MediaObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.media[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *m
	return &c, nil
}

func (s *MemoryStore) DeleteMedia(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.media[id]; !ok {
		return ErrNotFound
	}
	delete(s.media, id)
	return nil
}

// ============================================================================
// Reports
// ============================================================================

func (s *MemoryStore) CreateReport(_ context.Context, report *Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reports[report.ID]; ok {
		return ErrDuplicate
	}
	s.reports[report.ID] = cloneReport(report)
	return nil
}

func (s *MemoryStore) GetReport(_ context.Context, id string) (*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneReport(r), nil
}

func (s *MemoryStore) ListOpenReports(_ context.Context, limit, offset int) ([]*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var reports []*Report
	for _, r := range s.reports {
		if r.Status == ReportStatusOpen {
			reports = append(reports, cloneReport(r))
		}
	}
	// Moderation queue: oldest first.
	sort.Slice(reports, func(i, j int) bool {
		if !reports[i].CreatedAt.Equal(reports[j].CreatedAt) {
			return reports[i].CreatedAt.Before(reports[j].CreatedAt)
		}
		return reports[i].ID < reports[j].ID
	})
	start, end := pageBounds(len(reports), limit, offset)
	return reports[start:end], nil
}

func (s *MemoryStore) ResolveReport(_ context.Context, id, resolution string, resolvedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reports[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != ReportStatusOpen {
		return ErrDuplicate
	}

	r.Status = ReportStatusResolved
	r.Resolution = resolution
	t := resolvedAt
	r.ResolvedAt = &t
	return nil
}

func cloneReport(r *Report) *Report {
	c := *r
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

// ============================================================================
// Password resets
// ============================================================================

func (s *MemoryStore) CreatePasswordReset(_ context.Context, reset *PasswordReset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.resets[reset.Token]; ok {
		return ErrDuplicate
	}
	s.resets[reset.Token] = cloneReset(reset)
	return nil
}

func (s *MemoryStore) GetPasswordReset(_ context.Context, token string) (*PasswordReset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.resets[token]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneReset(p), nil
}

func (s *MemoryStore) MarkPasswordResetUsed(_ context.Context, token string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.resets[token]
	if !ok || p.UsedAt != nil {
		return ErrNotFound
	}
	t := usedAt
	p.UsedAt = &t
	return nil
}

func cloneReset(p *PasswordReset) *PasswordReset {
	c := *p
	if p.UsedAt != nil {
		t := *p.UsedAt
		c.UsedAt = &t
	}
	return &c
}

// ============================================================================
// Shared helpers
// ============================================================================

// pageBounds clamps limit/offset to [start, end) over total items.
func pageBounds(total, limit, offset int) (int, int) {
	if offset < 0 || offset >= total {
		return 0, 0
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return offset, end
}
