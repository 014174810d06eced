// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the lifeline
// CLI and lifeline-feed-service.
//
// Configuration comes from a single file named by the LIFELINE_CONFIG
// environment variable (via [Load]) or a --config flag (via
// [LoadFile]). [Resolve] picks between them and falls back to
// [Default] when neither is given, so the CLI works with no file at
// all against a local feed service.
//
// The file may carry environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches. Production is stricter: the feed URL
// must use wss://.
//
// After loading, ${HOME}, ${LIFELINE_ROOT} and ${VAR:-default}
// patterns are expanded in path fields, and a small set of LIFELINE_*
// variables override individual settings (see [EnvironmentVariables]).
//
// This package depends on no other Lifeline packages.
package config
