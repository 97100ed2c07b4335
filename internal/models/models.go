package models

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// FailureReason classifies why a probe attempt did not succeed.
type FailureReason string

const (
	FailureNone      FailureReason = "none"
	FailureTimeout   FailureReason = "timeout"
	FailureConn      FailureReason = "connection-error"
	FailureTransport FailureReason = "transport-error"
	FailureHTTP      FailureReason = "http-error"
)

type AlertType string

const (
	AlertAvailability AlertType = "availability"
	AlertPerformance  AlertType = "performance"
)

// MonitorConfig describes one probed endpoint and its schedule. The running
// engine treats configs as read-only; edits become visible only after a reload.
type MonitorConfig struct {
	ID              int64             `json:"id"`
	Name            string            `json:"name"`
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	Payload         string            `json:"payload,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	IntervalSeconds int               `json:"call_interval"`
	CallsPerBatch   int               `json:"calls_per_batch"`
	TimeoutSeconds  int               `json:"timeout"`
	AlertThreshold  float64           `json:"alert_threshold"`
	MonitoringHours string            `json:"monitoring_hours"`
	IsActive        bool              `json:"is_active"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (c MonitorConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c MonitorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ApplyDefaults fills zero-valued optional fields before validation.
func (c *MonitorConfig) ApplyDefaults() {
	if c.Method == "" {
		c.Method = http.MethodGet
	}
	if c.IntervalSeconds == 0 {
		c.IntervalSeconds = 300
	}
	if c.CallsPerBatch == 0 {
		c.CallsPerBatch = 5
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 10
	}
	if c.AlertThreshold == 0 {
		c.AlertThreshold = 2.0
	}
}

// Validate rejects definitions that must never reach the scheduler.
func (c MonitorConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("name is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("url %q must be absolute http(s)", c.URL)
	}
	if c.Method != http.MethodGet && c.Method != http.MethodPost {
		return fmt.Errorf("method %q not supported, want GET or POST", c.Method)
	}
	if c.IntervalSeconds <= 0 {
		return fmt.Errorf("call_interval must be positive, got %d", c.IntervalSeconds)
	}
	if c.CallsPerBatch < 1 {
		return fmt.Errorf("calls_per_batch must be at least 1, got %d", c.CallsPerBatch)
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", c.TimeoutSeconds)
	}
	if c.AlertThreshold <= 0 || c.AlertThreshold > 60 {
		return fmt.Errorf("alert_threshold must be in (0, 60] seconds, got %g", c.AlertThreshold)
	}
	if _, err := ParseWindows(c.MonitoringHours); err != nil {
		return fmt.Errorf("monitoring_hours: %w", err)
	}
	return nil
}

// ProbeResult is one probe attempt outcome. Rows are append-only and
// immutable once written. StatusCode is nil when no response arrived.
type ProbeResult struct {
	ID           int64         `json:"id"`
	ConfigID     int64         `json:"config_id"`
	TS           time.Time     `json:"ts"`
	Success      bool          `json:"success"`
	StatusCode   *int          `json:"status_code,omitempty"`
	ResponseTime float64       `json:"response_time"`
	Reason       FailureReason `json:"failure_reason"`
}

// Alert is one breach episode. At most one unresolved alert exists per
// (config id, type); transitions go OPEN -> RESOLVED and never back.
type Alert struct {
	ID         int64      `json:"id"`
	ConfigID   int64      `json:"config_id"`
	Type       AlertType  `json:"type"`
	OpenedAt   time.Time  `json:"opened_at"`
	Message    string     `json:"message"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// DailyStat aggregates probe results for one config over one UTC calendar
// day. Response-time fields cover successful calls only; failures contribute
// to TotalCalls alone.
type DailyStat struct {
	ConfigID     int64   `json:"config_id"`
	Day          string  `json:"day"`
	TotalCalls   int     `json:"total_calls"`
	SuccessCount int     `json:"success_count"`
	SumResponse  float64 `json:"sum_response"`
	MinResponse  float64 `json:"min_response"`
	MaxResponse  float64 `json:"max_response"`
}

// SuccessRate is SuccessCount/TotalCalls, 0 when no calls were made. A zero
// rate with TotalCalls == 0 means "no data", not "0% available".
func (s DailyStat) SuccessRate() float64 {
	if s.TotalCalls == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.TotalCalls)
}

func (s DailyStat) AvgResponse() float64 {
	if s.SuccessCount == 0 {
		return 0
	}
	return s.SumResponse / float64(s.SuccessCount)
}

// DayOf returns the UTC day bucket key for a timestamp.
func DayOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// EngineStatus is the controller state snapshot surfaced by status() calls,
// the control API and the daemon status file.
type EngineStatus struct {
	Running          bool      `json:"running"`
	PID              int       `json:"pid"`
	RunID            string    `json:"run_id,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	LastTick         time.Time `json:"last_tick"`
	ActiveConfigs    []int64   `json:"active_configs"`
	InflightProbes   int       `json:"inflight_probes"`
	Degraded         bool      `json:"degraded"`
	UnresolvedAlerts int       `json:"unresolved_alerts"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ReloadSummary reports what a configuration reload changed.
type ReloadSummary struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Removed int `json:"removed"`
	Invalid int `json:"invalid"`
}
