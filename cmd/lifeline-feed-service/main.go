// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/lifeline-foundation/lifeline/lib/config"
	"github.com/lifeline-foundation/lifeline/lib/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// flags are the command line options. Each one overrides the config
// file value of the same name.
type flags struct {
	configPath  string
	listen      string
	database    string
	seed        string
	adminEmails []string
	verbose     bool
	showVersion bool
}

func parseFlags(args []string, stderr io.Writer) (flags, error) {
	var parsed flags
	flagSet := pflag.NewFlagSet("lifeline-feed-service", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&parsed.configPath, "config", "", "config file (default $LIFELINE_CONFIG, else built-in defaults)")
	flagSet.StringVar(&parsed.listen, "listen", "", "HTTP listen address, overriding server.listen_address")
	flagSet.StringVar(&parsed.database, "database", "", "SQLite database file, overriding server.database")
	flagSet.StringVar(&parsed.seed, "seed", "", "JSONC export imported when the database is empty, overriding server.seed_file")
	flagSet.StringSliceVar(&parsed.adminEmails, "admin", nil, "email that signs in as admin; repeatable, replaces account.admin_emails")
	flagSet.BoolVarP(&parsed.verbose, "verbose", "v", false, "log debug detail")
	flagSet.BoolVar(&parsed.showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		return flags{}, err
	}
	if flagSet.NArg() > 0 {
		return flags{}, fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}
	return parsed, nil
}

// loadConfig resolves the config file and applies the flag overrides.
func loadConfig(parsed flags) (*config.Config, error) {
	cfg, err := config.Resolve(parsed.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if parsed.listen != "" {
		cfg.Server.ListenAddress = parsed.listen
	}
	if parsed.database != "" {
		cfg.Server.Database = parsed.database
	}
	if parsed.seed != "" {
		cfg.Server.SeedFile = parsed.seed
	}
	if len(parsed.adminEmails) > 0 {
		cfg.Account.AdminEmails = parsed.adminEmails
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	parsed, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if parsed.showVersion {
		fmt.Fprintf(stdout, "lifeline-feed-service %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(parsed)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	level := slog.LevelInfo
	if parsed.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level}))
	logger.Info("starting lifeline-feed-service",
		"version", version.Info(),
		"environment", cfg.Environment,
		"listen_address", cfg.Server.ListenAddress,
		"database", cfg.Server.Database,
		"admins", len(cfg.Account.AdminEmails),
	)

	feedService, err := newFeedService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer feedService.Close()
	return feedService.http.Serve(ctx)
}
