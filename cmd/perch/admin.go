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

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/perchsocial/perch/pkg/auth"
	"github.com/perchsocial/perch/pkg/config"
	"github.com/perchsocial/perch/pkg/social"
)

// AdminCmd groups operator utilities that touch the database directly,
// bypassing the HTTP API and its rate limits.
type AdminCmd struct {
	CreateUser AdminCreateUserCmd `cmd:"" name:"create-user" help:"Create a user account directly in the database."`
}

// AdminCreateUserCmd creates an account without going through the public
// registration endpoint. The registration endpoint only mints regular
// users, so this is how the first admin account gets created.
type AdminCreateUserCmd struct {
	Username string `arg:"" help:"Username for the new account."`
	Email    string `required:"" help:"Email address for the new account."`
	Role     string `help:"Account role." default:"user" enum:"user,admin"`
	Bio      string `help:"Profile bio."`
	Password string `env:"PERCH_PASSWORD" help:"Password. Prompted for when omitted."`
}

func (c *AdminCreateUserCmd) Run(cli *CLI) error {
	ctx := context.Background()

	cfg, err := loadConfigOnce(ctx, cli.Config)
	if err != nil {
		return err
	}

	password := c.Password
	if password == "" {
		password, err = promptPassword()
		if err != nil {
			return err
		}
	}
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	dbPool := config.NewDBPool()
	defer dbPool.Close()

	store, err := social.NewSQLStoreFromConfig(cfg.MainDatabase(), dbPool)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	hash, err := auth.HashPassword(password, cfg.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &social.User{
		ID:           uuid.NewString(),
		Username:     c.Username,
		Email:        c.Email,
		PasswordHash: hash,
		Role:         c.Role,
		Bio:          c.Bio,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, social.ErrDuplicate) {
			return fmt.Errorf("username or email already taken")
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Printf("Created %s account %q (%s)\n", user.Role, user.Username, user.ID)
	return nil
}

// loadConfigOnce loads config from a file path, or the zero-config default
// when no path is given. No watching, nothing to keep open.
func loadConfigOnce(ctx context.Context, path string) (*config.Config, error) {
	if path == "" {
		return defaultConfig()
	}
	return config.LoadFromPath(ctx, path)
}

// promptPassword reads a password without echo, with a confirmation pass.
// Piped stdin falls back to a plain line read so scripts can feed the
// password without a TTY.
func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	fmt.Fprint(os.Stderr, "Confirm password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(first), nil
}
