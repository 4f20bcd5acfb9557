package api

import "github.com/mattjoyce/runwatch/internal/monitor"

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// ReadyzResponse is returned by GET /readyz. Checks maps each dependency to
// "ok" or the error it reported.
type ReadyzResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ActivityResponse is returned by GET /activity.
type ActivityResponse struct {
	Activities []monitor.Activity `json:"activities"`
	LastID     int64              `json:"last_id"`
}
