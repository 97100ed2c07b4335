package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA synchronous=NORMAL; PRAGMA temp_store=MEMORY;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS monitor_configs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			url TEXT NOT NULL,
			method TEXT NOT NULL DEFAULT 'GET',
			body TEXT,
			headers_json TEXT,
			call_interval_sec INTEGER NOT NULL,
			calls_per_batch INTEGER NOT NULL,
			timeout_sec INTEGER NOT NULL,
			alert_threshold REAL NOT NULL,
			monitoring_hours TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS probe_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			config_id INTEGER NOT NULL,
			ts DATETIME NOT NULL,
			success INTEGER NOT NULL,
			status_code INTEGER,
			response_time REAL NOT NULL,
			failure_reason TEXT NOT NULL DEFAULT 'none',
			FOREIGN KEY(config_id) REFERENCES monitor_configs(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			config_id INTEGER NOT NULL,
			type TEXT NOT NULL,
			opened_at DATETIME NOT NULL,
			message TEXT NOT NULL,
			resolved INTEGER NOT NULL DEFAULT 0,
			resolved_at DATETIME,
			FOREIGN KEY(config_id) REFERENCES monitor_configs(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_probe_results_config_ts ON probe_results(config_id, ts DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_probe_results_ts ON probe_results(ts);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_config_opened ON alerts(config_id, opened_at DESC);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_unresolved ON alerts(config_id, type) WHERE resolved = 0;`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}
