// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/lifeline-foundation/lifeline/lib/account"
	"github.com/lifeline-foundation/lifeline/lib/config"
	"github.com/lifeline-foundation/lifeline/lib/feedserver"
	"github.com/lifeline-foundation/lifeline/lib/feedstore"
	"github.com/lifeline-foundation/lifeline/lib/service"
)

const healthTimeout = 2 * time.Second

// feedService wires the store, the feed server and the HTTP endpoints.
type feedService struct {
	store    *feedstore.Store
	server   *feedserver.Server
	registry *prometheus.Registry
	http     *service.HTTPServer
}

func newFeedService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*feedService, error) {
	store, err := feedstore.Open(feedstore.Config{
		Path:   cfg.Server.Database,
		Logger: logger.With("component", "feedstore"),
	})
	if err != nil {
		return nil, err
	}
	if cfg.Server.SeedFile != "" {
		if err := seedIfEmpty(ctx, store, cfg.Server.SeedFile, logger); err != nil {
			store.Close()
			return nil, err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	server, err := feedserver.New(feedserver.Config{
		Backend:    store,
		Directory:  account.NewDirectory(cfg.Account.AdminEmails),
		WriteLimit: rate.Limit(cfg.Server.WriteLimit),
		WriteBurst: cfg.Server.WriteBurst,
		Metrics:    feedserver.NewMetrics(registry),
		Logger:     logger.With("component", "feedserver"),
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("GET /v1/feed", server)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	mux.Handle("/healthz", service.HealthHandler(map[string]service.HealthCheck{
		"database": func(ctx context.Context) error {
			_, err := store.Count(ctx)
			return err
		},
	}, healthTimeout, logger))

	return &feedService{
		store:    store,
		server:   server,
		registry: registry,
		http: service.NewHTTPServer(service.HTTPServerConfig{
			Address:         cfg.Server.ListenAddress,
			Handler:         mux,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			OnShutdown:      []func(){server.Close},
			Logger:          logger.With("component", "http"),
		}),
	}, nil
}

// Close disconnects every client and closes the database.
func (s *feedService) Close() error {
	s.server.Close()
	return s.store.Close()
}
