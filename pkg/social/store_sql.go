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
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/perchsocial/perch/pkg/config"
)

// SQLStore implements Store on top of database/sql.
// Supports PostgreSQL, MySQL, and SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect string // "postgres", "mysql", or "sqlite"
}

var _ Store = (*SQLStore)(nil)

// schemaStatements is the DDL for sqlite and postgres. Statements run one
// at a time so the store works with drivers that reject multi-statement
// Exec calls.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
    id VARCHAR(36) PRIMARY KEY,
    username VARCHAR(30) NOT NULL UNIQUE,
    email VARCHAR(255) NOT NULL UNIQUE,
    password_hash VARCHAR(255) NOT NULL,
    role VARCHAR(20) NOT NULL,
    bio TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS posts (
    id VARCHAR(36) PRIMARY KEY,
    author_id VARCHAR(36) NOT NULL,
    body TEXT NOT NULL,
    media_id VARCHAR(36) NOT NULL,
    created_at TIMESTAMP NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_posts_author ON posts(author_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS follows (
    follower_id VARCHAR(36) NOT NULL,
    followee_id VARCHAR(36) NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (follower_id, followee_id)
)`,
	`CREATE INDEX IF NOT EXISTS idx_follows_followee ON follows(followee_id)`,
	`CREATE TABLE IF NOT EXISTS blocks (
    blocker_id VARCHAR(36) NOT NULL,
    blocked_id VARCHAR(36) NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (blocker_id, blocked_id)
)`,
	`CREATE TABLE IF NOT EXISTS media (
    id VARCHAR(36) PRIMARY KEY,
    owner_id VARCHAR(36) NOT NULL,
    file_name VARCHAR(255) NOT NULL,
    content_type VARCHAR(100) NOT NULL,
    size_bytes BIGINT NOT NULL,
    created_at TIMESTAMP NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_media_owner ON media(owner_id)`,
	`CREATE TABLE IF NOT EXISTS reports (
    id VARCHAR(36) PRIMARY KEY,
    reporter_id VARCHAR(36) NOT NULL,
    subject_type VARCHAR(10) NOT NULL,
    subject_id VARCHAR(36) NOT NULL,
    reason TEXT NOT NULL,
    status VARCHAR(20) NOT NULL,
    resolution TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    resolved_at TIMESTAMP
)`,
	`CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status, created_at)`,
	`CREATE TABLE IF NOT EXISTS password_resets (
    token VARCHAR(36) PRIMARY KEY,
    user_id VARCHAR(36) NOT NULL,
    expires_at TIMESTAMP NOT NULL,
    used_at TIMESTAMP
)`,
}

// mysqlSchemaStatements differs where MySQL has no CREATE INDEX IF NOT
// EXISTS (indexes are declared inline) and where TIMESTAMP tops out at
// 2038 (DATETIME instead).
var mysqlSchemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
    id VARCHAR(36) PRIMARY KEY,
    username VARCHAR(30) NOT NULL UNIQUE,
    email VARCHAR(255) NOT NULL UNIQUE,
    password_hash VARCHAR(255) NOT NULL,
    role VARCHAR(20) NOT NULL,
    bio TEXT NOT NULL,
    created_at DATETIME(6) NOT NULL,
    updated_at DATETIME(6) NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS posts (
    id VARCHAR(36) PRIMARY KEY,
    author_id VARCHAR(36) NOT NULL,
    body TEXT NOT NULL,
    media_id VARCHAR(36) NOT NULL,
    created_at DATETIME(6) NOT NULL,
    INDEX idx_posts_author (author_id, created_at)
)`,
	`CREATE TABLE IF NOT EXISTS follows (
    follower_id VARCHAR(36) NOT NULL,
    followee_id VARCHAR(36) NOT NULL,
    created_at DATETIME(6) NOT NULL,
    PRIMARY KEY (follower_id, followee_id),
    INDEX idx_follows_followee (followee_id)
)`,
	`CREATE TABLE IF NOT EXISTS blocks (
    blocker_id VARCHAR(36) NOT NULL,
    blocked_id VARCHAR(36) NOT NULL,
    created_at DATETIME(6) NOT NULL,
    PRIMARY KEY (blocker_id, blocked_id)
)`,
	`CREATE TABLE IF NOT EXISTS media (
    id VARCHAR(36) PRIMARY KEY,
    owner_id VARCHAR(36) NOT NULL,
    file_name VARCHAR(255) NOT NULL,
    content_type VARCHAR(100) NOT NULL,
    size_bytes BIGINT NOT NULL,
    created_at DATETIME(6) NOT NULL,
    INDEX idx_media_owner (owner_id)
)`,
	`CREATE TABLE IF NOT EXISTS reports (
    id VARCHAR(36) PRIMARY KEY,
    reporter_id VARCHAR(36) NOT NULL,
    subject_type VARCHAR(10) NOT NULL,
    subject_id VARCHAR(36) NOT NULL,
    reason TEXT NOT NULL,
    status VARCHAR(20) NOT NULL,
    resolution TEXT NOT NULL,
    created_at DATETIME(6) NOT NULL,
    resolved_at DATETIME(6),
    INDEX idx_reports_status (status, created_at)
)`,
	`CREATE TABLE IF NOT EXISTS password_resets (
    token VARCHAR(36) PRIMARY KEY,
    user_id VARCHAR(36) NOT NULL,
    expires_at DATETIME(6) NOT NULL,
    used_at DATETIME(6)
)`,
}

// NewSQLStore creates a SQL-backed store and initializes the schema.
// The caller owns the db handle; closing it is not the store's job.
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	switch dialect {
	case "postgres", "mysql", "sqlite":
		// Valid
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &SQLStore{db: db, dialect: dialect}

	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// NewSQLStoreFromConfig opens (or reuses) a pooled connection for the
// configured database and builds a store on it.
func NewSQLStoreFromConfig(cfg *config.DatabaseConfig, pool *config.DBPool) (*SQLStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration is required")
	}
	if pool == nil {
		return nil, fmt.Errorf("database pool is required")
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := pool.Get(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return NewSQLStore(db, cfg.Dialect())
}

func (s *SQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stmts := schemaStatements
	if s.dialect == "mysql" {
		stmts = mysqlSchemaStatements
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	return nil
}

// rebind renumbers ? placeholders to $N for postgres. SQLite and MySQL
// take ? as-is.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}

	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// isDuplicate reports whether err is a uniqueness violation in any of the
// three supported drivers.
func (s *SQLStore) isDuplicate(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" // unique_violation
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062 // ER_DUP_ENTRY
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	return false
}

// ============================================================================
// Users
// ============================================================================

const userColumns = "id, username, email, password_hash, role, bio, created_at, updated_at"

func (s *SQLStore) CreateUser(ctx context.Context, user *User) error {
	query := `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		user.ID, user.Username, user.Email, user.PasswordHash,
		user.Role, user.Bio, user.CreatedAt, user.UpdatedAt,
	)
	if s.isDuplicate(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *SQLStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	return s.getUser(ctx, "id", id)
}

func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUser(ctx, "username", username)
}

func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUser(ctx, "email", email)
}

// getUser is only ever called with a fixed column name.
func (s *SQLStore) getUser(ctx context.Context, column, value string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = ?`

	var u User
	err := s.db.QueryRowContext(ctx, s.rebind(query), value).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash,
		&u.Role, &u.Bio, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}

func (s *SQLStore) UpdateUser(ctx context.Context, user *User) error {
	query := `UPDATE users SET email = ?, password_hash = ?, role = ?, bio = ?, updated_at = ? WHERE id = ?`

	res, err := s.db.ExecContext(ctx, s.rebind(query),
		user.Email, user.PasswordHash, user.Role, user.Bio, user.UpdatedAt, user.ID,
	)
	if s.isDuplicate(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return requireRowsAffected(res)
}

// ============================================================================
// Posts
// ============================================================================

const postColumns = "id, author_id, body, media_id, created_at"

func (s *SQLStore) CreatePost(ctx context.Context, post *Post) error {
	query := `INSERT INTO posts (` + postColumns + `) VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		post.ID, post.AuthorID, post.Body, post.MediaID, post.CreatedAt,
	)
	if s.isDuplicate(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

func (s *SQLStore) GetPost(ctx context.Context, id string) (*Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = ?`

	var p Post
	err := s.db.QueryRowContext(ctx, s.rebind(query), id).Scan(
		&p.ID, &p.AuthorID, &p.Body, &p.MediaID, &p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query post: %w", err)
	}
	return &p, nil
}

func (s *SQLStore) DeletePost(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM posts WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return requireRowsAffected(res)
}

func (s *SQLStore) ListPostsByAuthor(ctx context.Context, authorID string, limit, offset int) ([]*Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE author_id = ?
ORDER BY created_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), authorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	return scanPosts(rows)
}

func (s *SQLStore) ListFeed(ctx context.Context, userID string, limit, offset int) ([]*Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts
WHERE author_id = ? OR author_id IN (SELECT followee_id FROM follows WHERE follower_id = ?)
ORDER BY created_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), userID, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query feed: %w", err)
	}
	defer rows.Close()

	return scanPosts(rows)
}

func scanPosts(rows *sql.Rows) ([]*Post, error) {
	var posts []*Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.Body, &p.MediaID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}
	return posts, nil
}

// ============================================================================
// Follows
// ============================================================================

const blockExistsQuery = `SELECT COUNT(*) FROM blocks
WHERE (blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)`

func (s *SQLStore) CreateFollow(ctx context.Context, follow *Follow) error {
	if follow.FollowerID == follow.FolloweeID {
		return ErrSelfAction
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var blocked int
	err = tx.QueryRowContext(ctx, s.rebind(blockExistsQuery),
		follow.FollowerID, follow.FolloweeID, follow.FolloweeID, follow.FollowerID,
	).Scan(&blocked)
	if err != nil {
		return fmt.Errorf("failed to check blocks: %w", err)
	}
	if blocked > 0 {
		return ErrBlocked
	}

	query := `INSERT INTO follows (follower_id, followee_id, created_at) VALUES (?, ?, ?)`
	_, err = tx.ExecContext(ctx, s.rebind(query), follow.FollowerID, follow.FolloweeID, follow.CreatedAt)
	if s.isDuplicate(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert follow: %w", err)
	}

	return tx.Commit()
}

func (s *SQLStore) DeleteFollow(ctx context.Context, followerID, followeeID string) error {
	query := `DELETE FROM follows WHERE follower_id = ? AND followee_id = ?`

	res, err := s.db.ExecContext(ctx, s.rebind(query), followerID, followeeID)
	if err != nil {
		return fmt.Errorf("failed to delete follow: %w", err)
	}
	return requireRowsAffected(res)
}

func (s *SQLStore) ListFollowers(ctx context.Context, userID string, limit, offset int) ([]*User, error) {
	query := `SELECT u.id, u.username, u.email, u.password_hash, u.role, u.bio, u.created_at, u.updated_at
FROM users u JOIN follows f ON f.follower_id = u.id
WHERE f.followee_id = ?
ORDER BY f.created_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query followers: %w", err)
	}
	defer rows.Close()

	return scanUsers(rows)
}

func (s *SQLStore) ListFollowing(ctx context.Context, userID string, limit, offset int) ([]*User, error) {
	query := `SELECT u.id, u.username, u.email, u.password_hash, u.role, u.bio, u.created_at, u.updated_at
FROM users u JOIN follows f ON f.followee_id = u.id
WHERE f.follower_id = ?
ORDER BY f.created_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query following: %w", err)
	}
	defer rows.Close()

	return scanUsers(rows)
}

func scanUsers(rows *sql.Rows) ([]*User, error) {
	var users []*User
	for rows.Next() {
		var u User
		err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash,
			&u.Role, &u.Bio, &u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// ============================================================================
// Blocks
// ============================================================================

func (s *SQLStore) CreateBlock(ctx context.Context, block *Block) error {
	if block.BlockerID == block.BlockedID {
		return ErrSelfAction
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO blocks (blocker_id, blocked_id, created_at) VALUES (?, ?, ?)`
	_, err = tx.ExecContext(ctx, s.rebind(query), block.BlockerID, block.BlockedID, block.CreatedAt)
	if s.isDuplicate(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert block: %w", err)
	}

	// Blocking severs the relationship in both directions.
	severQuery := `DELETE FROM follows
WHERE (follower_id = ? AND followee_id = ?) OR (follower_id = ? AND followee_id = ?)`
	_, err = tx.ExecContext(ctx, s.rebind(severQuery),
		block.BlockerID, block.BlockedID, block.BlockedID, block.BlockerID)
	if err != nil {
		return fmt.Errorf("failed to remove follows: %w", err)
	}

	return tx.Commit()
}

func (s *SQLStore) DeleteBlock(ctx context.Context, blockerID, blockedID string) error {
	query := `DELETE FROM blocks WHERE blocker_id = ? AND blocked_id = ?`

	res, err := s.db.ExecContext(ctx, s.rebind(query), blockerID, blockedID)
	if err != nil {
		return fmt.Errorf("failed to delete block: %w", err)
	}
	return requireRowsAffected(res)
}

func (s *SQLStore) IsBlocked(ctx context.Context, userA, userB string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.rebind(blockExistsQuery), userA, userB, userB, userA).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check blocks: %w", err)
	}
	return count > 0, nil
}

// ============================================================================
// Media
// ============================================================================

const mediaColumns = "id, owner_id, file_name, content_type, size_bytes, created_at"

func (s *SQLStore) CreateMedia(ctx context.Context, media *MediaObject) error {
	query := `INSERT INTO media (` + mediaColumns + `) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		media.ID, media.OwnerID, media.FileName, media.ContentType, media.SizeBytes, media.CreatedAt,
	)
	if s.isDuplicate(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert media: %w", err)
	}
	return nil
}

func (s *SQLStore) GetMedia(ctx context.Context, id string) (*MediaObject, error) {
	query := `SELECT ` + mediaColumns + ` FROM media WHERE id = ?`

	var m MediaObject
	err := s.db.QueryRowContext(ctx, s.rebind(query), id).Scan(
		&m.ID, &m.OwnerID, &m.FileName, &m.ContentType, &m.SizeBytes, &m.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query media: %w", err)
	}
	return &m, nil
}

func (s *SQLStore) DeleteMedia(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM media WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete media: %w", err)
	}
	return requireRowsAffected(res)
}

// ============================================================================
// Reports
// ============================================================================

const reportColumns = "id, reporter_id, subject_type, subject_id, reason, status, resolution, created_at, resolved_at"

func (s *SQLStore) CreateReport(ctx context.Context, report *Report) error {
	query := `INSERT INTO reports (` + reportColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		report.ID, report.ReporterID, report.SubjectType, report.SubjectID,
		report.Reason, report.Status, report.Resolution, report.CreatedAt,
		nullTime(report.ResolvedAt),
	)
	if s.isDuplicate(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

func (s *SQLStore) GetReport(ctx context.Context, id string) (*Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = ?`

	r, err := scanReport(s.db.QueryRowContext(ctx, s.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query report: %w", err)
	}
	return r, nil
}

// ListOpenReports returns the moderation queue, oldest first.
func (s *SQLStore) ListOpenReports(ctx context.Context, limit, offset int) ([]*Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE status = ?
ORDER BY created_at ASC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), ReportStatusOpen, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []*Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reports: %w", err)
	}
	return reports, nil
}

func (s *SQLStore) ResolveReport(ctx context.Context, id, resolution string, resolvedAt time.Time) error {
	query := `UPDATE reports SET status = ?, resolution = ?, resolved_at = ?
WHERE id = ? AND status = ?`

	res, err := s.db.ExecContext(ctx, s.rebind(query),
		ReportStatusResolved, resolution, resolvedAt, id, ReportStatusOpen,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve report: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		// Distinguish a missing report from one already resolved.
		if _, err := s.GetReport(ctx, id); err != nil {
			return err
		}
		return ErrDuplicate
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*Report, error) {
	var r Report
	var resolvedAt sql.NullTime
	err := row.Scan(&r.ID, &r.ReporterID, &r.SubjectType, &r.SubjectID,
		&r.Reason, &r.Status, &r.Resolution, &r.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		r.ResolvedAt = &t
	}
	return &r, nil
}

// ============================================================================
// Password resets
// ============================================================================

func (s *SQLStore) CreatePasswordReset(ctx context.Context, reset *PasswordReset) error {
	query := `INSERT INTO password_resets (token, user_id, expires_at, used_at) VALUES (?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		reset.Token, reset.UserID, reset.ExpiresAt, nullTime(reset.UsedAt),
	)
	if s.isDuplicate(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert password reset: %w", err)
	}
	return nil
}

func (s *SQLStore) GetPasswordReset(ctx context.Context, token string) (*PasswordReset, error) {
	query := `SELECT token, user_id, expires_at, used_at FROM password_resets WHERE token = ?`

	var p PasswordReset
	var usedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, s.rebind(query), token).Scan(
		&p.Token, &p.UserID, &p.ExpiresAt, &usedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query password reset: %w", err)
	}
	if usedAt.Valid {
		t := usedAt.Time
		p.UsedAt = &t
	}
	return &p, nil
}

// MarkPasswordResetUsed consumes the token. The used_at guard makes the
// token single-use even under concurrent confirmations.
func (s *SQLStore) MarkPasswordResetUsed(ctx context.Context, token string, usedAt time.Time) error {
	query := `UPDATE password_resets SET used_at = ? WHERE token = ? AND used_at IS NULL`

	res, err := s.db.ExecContext(ctx, s.rebind(query), usedAt, token)
	if err != nil {
		return fmt.Errorf("failed to mark password reset used: %w", err)
	}
	return requireRowsAffected(res)
}

// ============================================================================
// Shared helpers
// ============================================================================

func requireRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
