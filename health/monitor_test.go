package health

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurostream/neurostream/component"
)

func TestMonitorUpdateAndGet(t *testing.T) {
	m := NewMonitor()

	m.UpdateHealthy("nats-input", "receiving chunks")
	m.UpdateDegraded("epochs", "no events for 60s")

	status, ok := m.Get("nats-input")
	require.True(t, ok)
	assert.True(t, status.IsHealthy())
	assert.Equal(t, "nats-input", status.Component)

	status, ok = m.Get("epochs")
	require.True(t, ok)
	assert.True(t, status.IsDegraded())

	_, ok = m.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, 2, m.Count())
}

func TestMonitorRemove(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("player", "playing")
	m.Remove("player")

	_, ok := m.Get("player")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Count())
}

func TestAggregateRules(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		expected string
	}{
		{"empty", nil, "healthy"},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, "healthy"},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, "degraded"},
		{"one unhealthy", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := Aggregate("system", tt.statuses)
			assert.Equal(t, tt.expected, agg.Status)
			assert.Len(t, agg.SubStatuses, len(tt.statuses))
		})
	}
}

func TestMonitorHandler(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("stream", "ok")

	rr := httptest.NewRecorder()
	m.Handler("neurostream")(rr, httptest.NewRequest("GET", "/healthz", nil))

	require.Equal(t, 200, rr.Code)
	var status Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.True(t, status.Healthy)

	m.UpdateUnhealthy("stream", "source lost")
	rr = httptest.NewRecorder()
	m.Handler("neurostream")(rr, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, 503, rr.Code)
}

func TestFromComponentHealthSanitizes(t *testing.T) {
	ch := component.HealthStatus{
		Healthy:    false,
		LastCheck:  time.Now(),
		ErrorCount: 3,
		LastError:  "dial nats://10.0.0.5:4222 failed: password=hunter2",
		Uptime:     time.Minute,
	}

	status := FromComponentHealth("nats-input", ch)
	assert.False(t, status.Healthy)
	assert.NotContains(t, status.Message, "10.0.0.5")
	assert.NotContains(t, status.Message, "hunter2")
	require.NotNil(t, status.Metrics)
	assert.Equal(t, 3, status.Metrics.ErrorCount)
}
