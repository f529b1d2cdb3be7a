// Package component defines the shared surface every long-running
// neurostream component exposes: identity metadata, lifecycle state, health
// and data-flow reporting. The acquisition pipeline is wired statically in
// cmd/, so there is no dynamic discovery here, just the common vocabulary
// the service binary and the health monitor speak.
package component

import "time"

// Metadata describes a component instance
type Metadata struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "input", "output", "stream", "epochs", "player"
	Description string `json:"description"`
	Version     string `json:"version"`
}

// HealthStatus reports the current health of a component
type HealthStatus struct {
	Healthy    bool          `json:"healthy"`
	LastCheck  time.Time     `json:"last_check"`
	ErrorCount int           `json:"error_count"`
	LastError  string        `json:"last_error,omitempty"`
	Uptime     time.Duration `json:"uptime"`
}

// FlowMetrics reports data throughput for a component
type FlowMetrics struct {
	MessagesReceived  int64     `json:"messages_received"`
	MessagesSent      int64     `json:"messages_sent"`
	BytesReceived     int64     `json:"bytes_received"`
	BytesSent         int64     `json:"bytes_sent"`
	MessagesPerSecond float64   `json:"messages_per_second"`
	ErrorRate         float64   `json:"error_rate"`
	LastActivity      time.Time `json:"last_activity"`
}

// Component is implemented by every long-running piece of the pipeline
type Component interface {
	Meta() Metadata
	Health() HealthStatus
}
