package domain

import "time"

type MonitorID int64

// Monitor is a configured target URL. It is read-only to the engine.
type Monitor struct {
	ID                   MonitorID `json:"id" yaml:"id"`
	URL                  string    `json:"url" yaml:"url"`
	CheckIntervalSeconds int       `json:"check_interval_seconds" yaml:"check_interval_seconds"`
	AlertEmail           string    `json:"alert_email,omitempty" yaml:"alert_email"`
	IsActive             bool      `json:"is_active" yaml:"is_active"`
}

// Interval returns the check interval as a duration. Non-positive values
// yield zero; callers decide how to treat that.
func (m Monitor) Interval() time.Duration {
	if m.CheckIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(m.CheckIntervalSeconds) * time.Second
}

type Status string

const (
	StatusUnknown Status = ""
	StatusUp      Status = "UP"
	StatusDown    Status = "DOWN"
)

func (s Status) Known() bool { return s == StatusUp || s == StatusDown }

// CheckResult is the one row persisted per completed cycle.
// Exactly one of LatencyMS / ErrorMessage is set.
type CheckResult struct {
	ID           int64     `json:"id,omitempty"`
	MonitorID    MonitorID `json:"monitor_id"`
	Status       Status    `json:"status"`
	LatencyMS    *int64    `json:"latency_ms,omitempty"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	CheckedAt    time.Time `json:"checked_at"`
}

type Incident struct {
	ID              int64      `json:"id"`
	MonitorID       MonitorID  `json:"monitor_id"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
}

func (i Incident) Open() bool { return i.EndedAt == nil }

// Duration returns the closed span, or zero while the incident is open.
func (i Incident) Duration() time.Duration {
	if i.DurationSeconds == nil {
		return 0
	}
	return time.Duration(*i.DurationSeconds * float64(time.Second))
}
