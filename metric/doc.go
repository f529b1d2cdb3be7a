// Package metric provides the shared Prometheus metrics infrastructure for
// neurostream components.
//
// A single MetricsRegistry is created per process and handed to every
// component that wants to expose metrics. Components register additional
// collectors under a "component.metric" key; duplicate registrations are
// rejected. Passing a nil registry disables metrics entirely; components
// follow a nil-registry = no-metrics pattern so metrics are never mandatory.
//
// Core pipeline metrics (samples received, events detected, epochs
// extracted/rejected, acquisition errors and step durations, NATS status)
// are pre-registered on construction alongside the Go runtime collectors.
// The Server type exposes the registry over HTTP for scraping.
package metric
