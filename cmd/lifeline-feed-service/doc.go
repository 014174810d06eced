// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

// Lifeline-feed-service serves the synced collections to lifeline
// clients.
//
// It stores records in SQLite and speaks the feed protocol on a
// WebSocket endpoint:
//
//   - GET /v1/feed: the WebSocket feed. Clients sign in with an email;
//     the role comes from account.admin_emails.
//   - GET /metrics: Prometheus metrics.
//   - GET /healthz: JSON health report covering the database.
//
// When the database is empty at startup and server.seed_file (or
// --seed) names a file, its records are imported first. The file is a
// JSON object, comments allowed, shaped like a realtime-database
// export: collection path, then record ID, then the record's fields.
//
// On SIGINT or SIGTERM the service closes every WebSocket, drains
// in-flight HTTP requests and closes the database.
package main
