package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the process-level configuration: storage locations, scheduler
// sizing and alerting defaults. Per-endpoint settings live in MonitorConfig
// rows, not here. Precedence: defaults, then the YAML file, then WEBMON_*
// environment variables.
type Settings struct {
	RootDir              string  `yaml:"root_dir"`
	DBPath               string  `yaml:"db_path"`
	LogDir               string  `yaml:"log_dir"`
	ReportDir            string  `yaml:"report_dir"`
	Addr                 string  `yaml:"addr"`
	TickSeconds          int     `yaml:"tick_seconds"`
	Workers              int     `yaml:"workers"`
	QueueSize            int     `yaml:"queue_size"`
	RetentionDays        int     `yaml:"retention_days"`
	RetentionSchedule    string  `yaml:"retention_schedule"`
	PurgeResolvedAlerts  bool    `yaml:"purge_resolved_alerts"`
	AvailabilityMin      float64 `yaml:"availability_min"`
	StatusRefreshSeconds int     `yaml:"status_refresh_seconds"`
	WebhookURL           string  `yaml:"webhook_url"`
	DailyReport          bool    `yaml:"daily_report"`
	ReportSchedule       string  `yaml:"report_schedule"`
}

func (s Settings) Tick() time.Duration {
	return time.Duration(s.TickSeconds) * time.Second
}

func (s Settings) StatusRefresh() time.Duration {
	return time.Duration(s.StatusRefreshSeconds) * time.Second
}

func (s Settings) PIDFile() string {
	return filepath.Join(s.RootDir, "monitor.pid")
}

func (s Settings) StatusFile() string {
	return filepath.Join(s.RootDir, "status.json")
}

// Default returns the built-in settings rooted at ~/.webmon.
func Default() Settings {
	root := "./.webmon"
	if home, err := os.UserHomeDir(); err == nil {
		root = filepath.Join(home, ".webmon")
	}
	return Settings{
		RootDir:              root,
		Addr:                 "127.0.0.1:8321",
		TickSeconds:          1,
		Workers:              10,
		QueueSize:            256,
		RetentionDays:        30,
		RetentionSchedule:    "0 3 * * *",
		AvailabilityMin:      0.9,
		StatusRefreshSeconds: 60,
		ReportSchedule:       "10 0 * * *",
	}
}

// Load builds Settings from the optional YAML file at path (or
// $WEBMON_CONFIG, or <root>/config.yaml) with environment overrides applied
// on top. A missing file is fine; an unreadable or unparsable one is not.
func Load(path string) (Settings, error) {
	s := Default()
	if path == "" {
		path = getenv("WEBMON_CONFIG", filepath.Join(s.RootDir, "config.yaml"))
	}
	content, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(content, &s); err != nil {
			return Settings{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	s.applyEnv()
	s.resolvePaths()
	if err := s.validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s *Settings) applyEnv() {
	s.RootDir = getenv("WEBMON_ROOT", s.RootDir)
	s.DBPath = getenv("WEBMON_DB_PATH", s.DBPath)
	s.LogDir = getenv("WEBMON_LOG_DIR", s.LogDir)
	s.ReportDir = getenv("WEBMON_REPORT_DIR", s.ReportDir)
	s.Addr = getenv("WEBMON_ADDR", s.Addr)
	s.TickSeconds = getenvInt("WEBMON_TICK_SECONDS", s.TickSeconds)
	s.Workers = getenvInt("WEBMON_WORKERS", s.Workers)
	s.QueueSize = getenvInt("WEBMON_QUEUE_SIZE", s.QueueSize)
	s.RetentionDays = getenvInt("WEBMON_RETENTION_DAYS", s.RetentionDays)
	s.RetentionSchedule = getenv("WEBMON_RETENTION_SCHEDULE", s.RetentionSchedule)
	s.PurgeResolvedAlerts = getenvBool("WEBMON_PURGE_RESOLVED_ALERTS", s.PurgeResolvedAlerts)
	s.AvailabilityMin = getenvFloat("WEBMON_AVAILABILITY_MIN", s.AvailabilityMin)
	s.StatusRefreshSeconds = getenvInt("WEBMON_STATUS_REFRESH_SECONDS", s.StatusRefreshSeconds)
	s.WebhookURL = getenv("WEBMON_WEBHOOK_URL", s.WebhookURL)
	s.DailyReport = getenvBool("WEBMON_DAILY_REPORT", s.DailyReport)
	s.ReportSchedule = getenv("WEBMON_REPORT_SCHEDULE", s.ReportSchedule)
}

func (s *Settings) resolvePaths() {
	if s.DBPath == "" {
		s.DBPath = filepath.Join(s.RootDir, "monitor.db")
	}
	if s.LogDir == "" {
		s.LogDir = filepath.Join(s.RootDir, "logs")
	}
	if s.ReportDir == "" {
		s.ReportDir = filepath.Join(s.RootDir, "reports")
	}
}

func (s Settings) validate() error {
	if s.TickSeconds <= 0 {
		return fmt.Errorf("tick_seconds must be positive, got %d", s.TickSeconds)
	}
	if s.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", s.Workers)
	}
	if s.QueueSize <= 0 {
		return fmt.Errorf("queue_size must be positive, got %d", s.QueueSize)
	}
	if s.RetentionDays <= 0 {
		return fmt.Errorf("retention_days must be positive, got %d", s.RetentionDays)
	}
	if s.AvailabilityMin <= 0 || s.AvailabilityMin > 1 {
		return fmt.Errorf("availability_min must be in (0, 1], got %g", s.AvailabilityMin)
	}
	if s.StatusRefreshSeconds <= 0 {
		return fmt.Errorf("status_refresh_seconds must be positive, got %d", s.StatusRefreshSeconds)
	}
	if s.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	return nil
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d
	}
	return n
}

func getenvFloat(k string, d float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return d
	}
	return f
}

func getenvBool(k string, d bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(k)))
	if v == "" {
		return d
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	return d
}
