// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/lifeline-foundation/lifeline/lib/account"
	"github.com/lifeline-foundation/lifeline/lib/config"
	"github.com/lifeline-foundation/lifeline/lib/feed/wsfeed"
	"github.com/lifeline-foundation/lifeline/lib/feedstore"
	"github.com/lifeline-foundation/lifeline/lib/record"
	"github.com/lifeline-foundation/lifeline/lib/schema"
	"github.com/lifeline-foundation/lifeline/lib/testutil"
	"github.com/lifeline-foundation/lifeline/lib/version"
)

const seedDocument = `{
	// exported from the old realtime database
	"emergency_alerts": {
		"a1": {"type": "flood", "location": {"latitude": 12.5, "longitude": -3}},
	},
	"missing-persons": {
		"p1": {"name": "Ana", "location": "Pier 4", "description": "green coat"},
		"p2": {"name": "Ben", "location": "Market", "description": "with a dog"}
	}
}`

func clearEnvironment(t *testing.T) {
	t.Helper()
	for _, name := range config.EnvironmentVariables {
		t.Setenv(name, "")
	}
	t.Setenv("LIFELINE_CONFIG", "")
}

func TestParseFlags(t *testing.T) {
	parsed, err := parseFlags([]string{
		"--listen", "127.0.0.1:0",
		"--database", "/tmp/feed.db",
		"--admin", "a@example.org,b@example.org",
		"--admin", "c@example.org",
		"-v",
	}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if parsed.listen != "127.0.0.1:0" || parsed.database != "/tmp/feed.db" || !parsed.verbose {
		t.Fatalf("parsed = %+v", parsed)
	}
	if len(parsed.adminEmails) != 3 {
		t.Fatalf("admin emails = %v", parsed.adminEmails)
	}

	if _, err := parseFlags([]string{"serve"}, io.Discard); err == nil {
		t.Fatal("positional argument accepted")
	}
	if _, err := parseFlags([]string{"--help"}, io.Discard); !errors.Is(err, pflag.ErrHelp) {
		t.Fatalf("--help = %v, want pflag.ErrHelp", err)
	}
}

func TestLoadConfigAppliesFlags(t *testing.T) {
	clearEnvironment(t)
	directory := t.TempDir()
	path := filepath.Join(directory, "lifeline.yaml")
	content := "server:\n  listen_address: 0.0.0.0:9000\n  write_limit: 5\n  write_burst: 5\naccount:\n  admin_emails: [file@example.org]\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(flags{configPath: path, database: filepath.Join(directory, "feed.db")})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Server.ListenAddress != "0.0.0.0:9000" || cfg.Server.WriteLimit != 5 {
		t.Errorf("file values lost: %+v", cfg.Server)
	}
	if cfg.Server.Database != filepath.Join(directory, "feed.db") {
		t.Errorf("database = %q, want the flag value", cfg.Server.Database)
	}
	if len(cfg.Account.AdminEmails) != 1 || cfg.Account.AdminEmails[0] != "file@example.org" {
		t.Errorf("admin emails = %v", cfg.Account.AdminEmails)
	}

	cfg, err = loadConfig(flags{configPath: path, adminEmails: []string{"flag@example.org"}})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if len(cfg.Account.AdminEmails) != 1 || cfg.Account.AdminEmails[0] != "flag@example.org" {
		t.Errorf("--admin did not replace the list: %v", cfg.Account.AdminEmails)
	}

	if _, err := loadConfig(flags{configPath: path, adminEmails: []string{"not-an-email"}}); err == nil {
		t.Error("invalid admin email accepted")
	}
}

func TestRunPrintsVersion(t *testing.T) {
	var stdout bytes.Buffer
	if err := run(t.Context(), []string{"--version"}, &stdout, io.Discard); err != nil {
		t.Fatalf("run --version: %v", err)
	}
	if !strings.Contains(stdout.String(), version.Version) {
		t.Fatalf("output %q", stdout.String())
	}
}

func TestParseSeed(t *testing.T) {
	collections, err := parseSeed([]byte(seedDocument))
	if err != nil {
		t.Fatalf("parseSeed: %v", err)
	}
	alerts := collections[schema.Alerts.Path]
	if len(alerts) != 1 || alerts[0].ID != "a1" {
		t.Fatalf("alerts = %+v", alerts)
	}
	if value, _ := alerts[0].Fields.Lookup("location.latitude"); value != 12.5 {
		t.Fatalf("latitude = %#v", value)
	}
	people := collections[schema.MissingPersons.Path]
	if len(people) != 2 || people[0].ID != "p1" || people[1].ID != "p2" {
		t.Fatalf("missing persons = %+v, want p1 and p2 in order", people)
	}
}

func TestParseSeedReportsEveryProblem(t *testing.T) {
	document := `{
		"weather": {"w1": {"kind": "rain"}},
		"alerts": {"a1": {"type": "fire", "location": {"latitude": 1, "longitude": 2}}},
		"emergency_alerts": {
			"bad.id": {"type": "fire", "location": {"latitude": 1, "longitude": 2}},
			"a2": {"type": "fire"}
		}
	}`
	_, err := parseSeed([]byte(document))
	if err == nil {
		t.Fatal("invalid seed accepted")
	}
	for _, want := range []string{"weather: not a collection path", "alerts: not a collection path", "bad.id: invalid record id", "emergency_alerts/a2"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}

	if _, err := parseSeed([]byte(`{"emergency_alerts": [`)); err == nil {
		t.Error("malformed seed accepted")
	}
}

func TestSeedOnlyIntoEmptyDatabase(t *testing.T) {
	ctx := t.Context()
	directory := t.TempDir()
	seedPath := filepath.Join(directory, "seed.jsonc")
	if err := os.WriteFile(seedPath, []byte(seedDocument), 0o600); err != nil {
		t.Fatal(err)
	}
	store, err := feedstore.Open(feedstore.Config{Path: filepath.Join(directory, "feed.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	logger := testutil.Logger(t)

	if err := seedIfEmpty(ctx, store, seedPath, logger); err != nil {
		t.Fatalf("seedIfEmpty: %v", err)
	}
	if count, _ := store.Count(ctx); count != 3 {
		t.Fatalf("count after seeding = %d, want 3", count)
	}

	if _, err := store.Delete(ctx, schema.MissingPersons.Path, "p1"); err != nil {
		t.Fatal(err)
	}
	if err := seedIfEmpty(ctx, store, seedPath, logger); err != nil {
		t.Fatalf("second seedIfEmpty: %v", err)
	}
	if count, _ := store.Count(ctx); count != 2 {
		t.Fatalf("count after reseeding = %d, want the seed skipped", count)
	}
}

func TestServiceEndToEnd(t *testing.T) {
	clearEnvironment(t)
	directory := t.TempDir()
	seedPath := filepath.Join(directory, "seed.jsonc")
	if err := os.WriteFile(seedPath, []byte(seedDocument), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Server.ListenAddress = "127.0.0.1:0"
	cfg.Server.Database = filepath.Join(directory, "feed.db")
	cfg.Server.SeedFile = seedPath
	cfg.Account.AdminEmails = []string{"chief@example.org"}
	logger := testutil.Logger(t)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	feedService, err := newFeedService(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("newFeedService: %v", err)
	}
	defer feedService.Close()

	served := make(chan error, 1)
	go func() { served <- feedService.http.Serve(ctx) }()
	testutil.RequireClosed(t, feedService.http.Ready(), 5*time.Second, "server never became ready")
	base := "http://" + feedService.http.Addr().String()

	response, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	var health struct {
		Status string `json:"status"`
	}
	json.NewDecoder(response.Body).Decode(&health)
	response.Body.Close()
	if response.StatusCode != http.StatusOK || health.Status != "ok" {
		t.Fatalf("healthz = %d %q", response.StatusCode, health.Status)
	}

	client, err := wsfeed.Dial(ctx, wsfeed.Config{
		URL:    "ws://" + feedService.http.Addr().String() + "/v1/feed",
		Email:  "chief@example.org",
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()
	if client.User().Role != account.RoleAdmin {
		t.Fatalf("role = %s, want admin", client.User().Role)
	}
	fields := record.Fields{"username": "ben", "email": "ben@example.org"}
	if err := client.Write(ctx, schema.Users.Path, "u1", fields); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if count, _ := feedService.store.Count(ctx); count != 4 {
		t.Fatalf("count = %d, want the 3 seeded records plus 1", count)
	}

	response, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(response.Body)
	response.Body.Close()
	for _, want := range []string{`lifeline_feed_frames_total{type="write"} 1`, "lifeline_feed_connections 1", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q", want)
		}
	}

	cancel()
	if err := testutil.RequireReceive(t, served, 10*time.Second, "Serve did not return"); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	testutil.Eventually(t, 5*time.Second, func() bool { return !client.Connected() }, "client still connected after shutdown")
}
