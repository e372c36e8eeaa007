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

// Command perch is the CLI for the Perch social backend.
//
// Usage:
//
//	perch serve --config perch.yaml
//	perch serve --config perch.yaml --watch
//	perch validate perch.yaml --print-config
//	perch admin create-user alice --email alice@example.com --role admin
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"
	"golang.org/x/sync/errgroup"

	"github.com/perchsocial/perch"
	"github.com/perchsocial/perch/pkg/auth"
	"github.com/perchsocial/perch/pkg/config"
	"github.com/perchsocial/perch/pkg/config/provider"
	"github.com/perchsocial/perch/pkg/media"
	"github.com/perchsocial/perch/pkg/observability"
	"github.com/perchsocial/perch/pkg/ratelimit"
	"github.com/perchsocial/perch/pkg/server"
	"github.com/perchsocial/perch/pkg/social"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the API server."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`
	Schema   SchemaCmd   `cmd:"" help:"Generate JSON Schema for the configuration."`
	Admin    AdminCmd    `cmd:"" help:"Operator utilities (direct database access)."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error). Defaults to info."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose). Defaults to simple."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	info := perch.GetVersion()
	if bi, ok := debug.ReadBuildInfo(); ok {
		if bi.Main.Version != "(devel)" && bi.Main.Version != "" {
			info.Version = bi.Main.Version
		}
	}
	fmt.Println(info.String())
	return nil
}

// ServeCmd starts the API server.
type ServeCmd struct {
	Port  int  `help:"Port to listen on (overrides config)."`
	Watch bool `help:"Watch the config source for changes."`

	ConfigProvider  string   `name:"config-provider" help:"Config source type (file, consul, etcd, zookeeper)." default:"file"`
	ConfigEndpoints []string `name:"config-endpoints" help:"Remote config source endpoints (consul, etcd, zookeeper)." placeholder:"HOST:PORT"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	cfg, loader, err := c.loadConfig(ctx, cli)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}

	applyLoggerLevel(cli, &cfg.Logger)

	// Override port if explicitly specified
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	// One pool so sqlite stays on a single connection no matter how many
	// components ask for the database.
	dbPool := config.NewDBPool()
	defer dbPool.Close()

	store, err := social.NewSQLStoreFromConfig(cfg.MainDatabase(), dbPool)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	mediaStore, err := media.NewDiskStore(&cfg.Media)
	if err != nil {
		return fmt.Errorf("failed to create media store: %w", err)
	}

	issuer, err := auth.NewIssuerFromConfig(&cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}
	validator, err := auth.NewValidatorFromConfig(&cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to create token validator: %w", err)
	}

	rlStore := ratelimit.StoreFromConfig(&cfg.RateLimit)
	limiters, err := ratelimit.LimitersFromConfig(&cfg.RateLimit, rlStore)
	if err != nil {
		return fmt.Errorf("failed to create rate limiters: %w", err)
	}
	var rlAdmin *ratelimit.Admin
	if limiters != nil {
		rlAdmin = ratelimit.NewAdmin(rlStore)
	}

	var obs *observability.Manager
	if cfg.Observability != nil {
		if cfg.Observability.Tracing.ServiceVersion == "" {
			cfg.Observability.Tracing.ServiceVersion = perch.Version
		}
		obs = observability.NewManager(*cfg.Observability)
		if err := obs.Initialize(ctx); err != nil {
			return fmt.Errorf("failed to initialize observability: %w", err)
		}
		defer func() {
			if err := obs.Shutdown(context.Background()); err != nil {
				slog.Warn("Observability shutdown error", "error", err)
			}
		}()
	}

	srv, err := server.New(server.Options{
		Config:         cfg,
		Store:          store,
		Media:          mediaStore,
		Issuer:         issuer,
		Validator:      validator,
		Limiters:       limiters,
		RateLimitAdmin: rlAdmin,
		Observability:  obs,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	printStartupInfo(cfg, srv, len(limiters))

	// The server and the config watcher run until the context is canceled;
	// a failure in either tears down the other.
	g, ctx := errgroup.WithContext(ctx)
	if c.Watch && loader != nil {
		g.Go(func() error {
			if err := loader.Watch(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("config watch error: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		return srv.Start(ctx)
	})
	return g.Wait()
}

// loadConfig loads configuration from the configured source, or builds the
// zero-config default when no path is given.
func (c *ServeCmd) loadConfig(ctx context.Context, cli *CLI) (*config.Config, *config.Loader, error) {
	if cli.Config == "" {
		cfg, err := defaultConfig()
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Using zero-config mode", "database", cfg.MainDatabase().Database)
		return cfg, nil, nil
	}

	ptype, err := provider.ParseType(c.ConfigProvider)
	if err != nil {
		return nil, nil, err
	}

	p, err := provider.New(provider.ProviderConfig{
		Type:      ptype,
		Path:      cli.Config,
		Endpoints: c.ConfigEndpoints,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create config provider: %w", err)
	}

	loader := config.NewLoader(p, config.WithOnChange(func(updated *config.Config) {
		applyLoggerLevel(cli, &updated.Logger)
	}))

	cfg, err := loader.Load(ctx)
	if err != nil {
		loader.Close()
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("Loaded configuration", "provider", p.Type(), "path", cli.Config)
	return cfg, loader, nil
}

// defaultConfig builds the zero-config setup: sqlite in the working
// directory and defaults everywhere else. The signing secret comes from
// PERCH_AUTH_SECRET, or is generated fresh, in which case issued tokens do
// not survive a restart.
func defaultConfig() (*config.Config, error) {
	cfg := &config.Config{}

	cfg.Auth.Secret = os.Getenv("PERCH_AUTH_SECRET")
	if cfg.Auth.Secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate ephemeral auth secret: %w", err)
		}
		cfg.Auth.Secret = hex.EncodeToString(buf)
		slog.Warn("PERCH_AUTH_SECRET not set, using an ephemeral signing secret; tokens will not survive restarts")
	}

	return config.ProcessConfigPipeline(cfg)
}

// printStartupInfo prints the operator-facing summary after the wiring
// succeeds and before the listeners open.
func printStartupInfo(cfg *config.Config, srv *server.Server, policyCount int) {
	tealColor := "\033[38;2;20;184;166m"
	resetColor := "\033[0m"
	fmt.Printf("\n%sPerch server ready%s\n", tealColor, resetColor)
	fmt.Printf("   API:         http://%s/v1\n", srv.Address())
	fmt.Printf("   Health:      http://%s/health\n", srv.Address())

	db := cfg.MainDatabase()
	fmt.Printf("   Storage:     %s (%s)\n", db.Driver, db.Database)
	fmt.Printf("   Media:       %s (max %d bytes per upload)\n", cfg.Media.Dir, cfg.Media.MaxUploadBytes)

	switch cfg.Auth.Mode {
	case "jwks":
		fmt.Printf("   Auth:        jwks (%s), registration disabled\n", cfg.Auth.JWKSURL)
	default:
		fmt.Printf("   Auth:        local HS256, tokens valid %s\n", cfg.Auth.TokenTTL.Duration())
	}

	if policyCount > 0 {
		fmt.Printf("   Rate limits: enabled (%d policies)\n", policyCount)
	} else {
		fmt.Printf("   Rate limits: disabled\n")
	}

	if cfg.Observability != nil {
		if cfg.Observability.Tracing.Enabled {
			fmt.Printf("   Tracing:     %s (%s)\n", cfg.Observability.Tracing.Exporter, cfg.Observability.Tracing.Endpoint)
		}
		if cfg.Observability.Metrics.Enabled {
			fmt.Printf("   Metrics:     http://%s:%d%s\n", cfg.Server.Host, cfg.Observability.Metrics.Port, cfg.Observability.Metrics.Path)
		}
	}

	fmt.Println("\nPress Ctrl+C to stop")
}

// printBanner prints a colored ASCII banner when stdout is a terminal.
func printBanner() {
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			return
		}
	} else {
		return
	}

	tealColor := "\033[38;2;20;184;166m"
	resetColor := "\033[0m"

	banner := `
██████╗ ███████╗██████╗  ██████╗██╗  ██╗
██╔══██╗██╔════╝██╔══██╗██╔════╝██║  ██║
██████╔╝█████╗  ██████╔╝██║     ███████║
██╔═══╝ ██╔══╝  ██╔══██╗██║     ██╔══██║
██║     ███████╗██║  ██║╚██████╗██║  ██║
╚═╝     ╚══════╝╚═╝  ╚═╝ ╚═════╝╚═╝  ╚═╝
`
	fmt.Printf("%s%s%s\n", tealColor, banner, resetColor)
}

// shouldSkipBanner reports whether the invoked command is informational and
// should not print the banner.
func shouldSkipBanner(args []string) bool {
	if len(args) < 2 {
		return false
	}

	for _, arg := range args {
		if arg == "validate" || arg == "schema" || arg == "admin" {
			return true
		}
	}
	return false
}

func main() {
	if !shouldSkipBanner(os.Args) {
		printBanner()
	}

	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("perch"),
		kong.Description("Perch - a small social networking backend"),
		kong.UsageOnError(),
	)

	// Initialize logger with CLI flags/env vars (before config loading).
	// The config file's logger level is applied later unless overridden.
	_, _, _, cleanup, err := initLoggerFromCLI(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
