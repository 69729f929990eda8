package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

type monitorsFile struct {
	Monitors []monitorEntry `yaml:"monitors"`
}

// is_active defaults to true when omitted.
type monitorEntry struct {
	ID                   int64  `yaml:"id"`
	URL                  string `yaml:"url"`
	CheckIntervalSeconds int    `yaml:"check_interval_seconds"`
	AlertEmail           string `yaml:"alert_email"`
	IsActive             *bool  `yaml:"is_active"`
}

// LoadMonitors reads a YAML seed file of monitors.
func LoadMonitors(path string) ([]domain.Monitor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read monitors: %w", err)
	}
	return ParseMonitors(data)
}

func ParseMonitors(data []byte) ([]domain.Monitor, error) {
	var f monitorsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse monitors: %w", err)
	}
	if len(f.Monitors) == 0 {
		return nil, errors.New("monitors: none defined")
	}

	seen := make(map[int64]bool, len(f.Monitors))
	out := make([]domain.Monitor, 0, len(f.Monitors))
	for i, e := range f.Monitors {
		if e.ID <= 0 {
			return nil, fmt.Errorf("monitor %d: id must be positive", i)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("monitor %d: duplicate id", e.ID)
		}
		seen[e.ID] = true
		if !validHTTPURL(e.URL) {
			return nil, fmt.Errorf("monitor %d: invalid url %q", e.ID, e.URL)
		}
		if e.CheckIntervalSeconds <= 0 {
			return nil, fmt.Errorf("monitor %d: check_interval_seconds must be positive", e.ID)
		}
		active := true
		if e.IsActive != nil {
			active = *e.IsActive
		}
		out = append(out, domain.Monitor{
			ID:                   domain.MonitorID(e.ID),
			URL:                  e.URL,
			CheckIntervalSeconds: e.CheckIntervalSeconds,
			AlertEmail:           e.AlertEmail,
			IsActive:             active,
		})
	}
	return out, nil
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
