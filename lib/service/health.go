// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// HealthHandler answers GET requests with the result of every check:
// 200 and {"status":"ok"} when all pass, 503 with the failing check
// names otherwise. Each check gets the request context bounded by
// timeout.
func HealthHandler(checks map[string]HealthCheck, timeout time.Duration, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodGet && request.Method != http.MethodHead {
			writer.Header().Set("Allow", "GET, HEAD")
			http.Error(writer, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		ctx, cancel := context.WithTimeout(request.Context(), timeout)
		defer cancel()

		failures := make(map[string]string)
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failures[name] = err.Error()
				logger.Warn("health check failed", "check", name, "error", err)
			}
		}

		response := struct {
			Status   string            `json:"status"`
			Failures map[string]string `json:"failures,omitempty"`
		}{Status: "ok", Failures: failures}
		status := http.StatusOK
		if len(failures) > 0 {
			response.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}

		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(status)
		json.NewEncoder(writer).Encode(response)
	})
}
