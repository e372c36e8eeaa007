// Package social persists the Perch domain model: users, posts, follow
// and block edges, media metadata, moderation reports, and password
// reset tokens.
//
// Two implementations are provided. SQLStore is the production store and
// speaks sqlite, postgres, and mysql through database/sql. MemoryStore
// keeps everything in process and backs tests.
//
// Stores persist what they are given: callers assign IDs and timestamps.
// Uniqueness, block enforcement, and single-use token semantics live in
// the store so they hold under concurrent requests.
package social

import (
	"context"
	"time"
)

// Store is the persistence interface for all Perch entities.
type Store interface {
	// Users. Usernames and emails are unique; CreateUser and UpdateUser
	// return ErrDuplicate on collision.
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, user *User) error

	// Posts. ListFeed returns posts authored by the user and by everyone
	// they follow, newest first.
	CreatePost(ctx context.Context, post *Post) error
	GetPost(ctx context.Context, id string) (*Post, error)
	DeletePost(ctx context.Context, id string) error
	ListPostsByAuthor(ctx context.Context, authorID string, limit, offset int) ([]*Post, error)
	ListFeed(ctx context.Context, userID string, limit, offset int) ([]*Post, error)

	// Follows. CreateFollow returns ErrSelfAction for self-follows,
	// ErrBlocked when a block exists in either direction, and
	// ErrDuplicate when the edge already exists.
	CreateFollow(ctx context.Context, follow *Follow) error
	DeleteFollow(ctx context.Context, followerID, followeeID string) error
	ListFollowers(ctx context.Context, userID string, limit, offset int) ([]*User, error)
	ListFollowing(ctx context.Context, userID string, limit, offset int) ([]*User, error)

	// Blocks. CreateBlock removes follow edges between the two users in
	// both directions.
	CreateBlock(ctx context.Context, block *Block) error
	DeleteBlock(ctx context.Context, blockerID, blockedID string) error
	IsBlocked(ctx context.Context, userA, userB string) (bool, error)

	// Media metadata. File bytes are handled by pkg/media.
	CreateMedia(ctx context.Context, media *MediaObject) error
	GetMedia(ctx context.Context, id string) (*MediaObject, error)
	DeleteMedia(ctx context.Context, id string) error

	// Moderation reports. A report resolves exactly once; ResolveReport
	// returns ErrDuplicate if it is already resolved.
	CreateReport(ctx context.Context, report *Report) error
	GetReport(ctx context.Context, id string) (*Report, error)
	ListOpenReports(ctx context.Context, limit, offset int) ([]*Report, error)
	ResolveReport(ctx context.Context, id, resolution string, resolvedAt time.Time) error

	// Password resets. MarkPasswordResetUsed succeeds at most once per
	// token; later calls return ErrNotFound.
	CreatePasswordReset(ctx context.Context, reset *PasswordReset) error
	GetPasswordReset(ctx context.Context, token string) (*PasswordReset, error)
	MarkPasswordResetUsed(ctx context.Context, token string, usedAt time.Time) error
}
