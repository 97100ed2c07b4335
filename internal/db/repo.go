package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iyuangang/webservice-monitor/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = sql.ErrNoRows

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *sql.DB { return r.db }

const configCols = `id,name,url,method,body,headers_json,call_interval_sec,calls_per_batch,timeout_sec,alert_threshold,monitoring_hours,is_active,created_at,updated_at`

func (r *Repository) CreateConfig(ctx context.Context, c *models.MonitorConfig) error {
	headers, err := encodeHeaders(c.Headers)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `INSERT INTO monitor_configs
		(name,url,method,body,headers_json,call_interval_sec,calls_per_batch,timeout_sec,alert_threshold,monitoring_hours,is_active,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.Name, c.URL, c.Method, nullStr(c.Payload), headers, c.IntervalSeconds, c.CallsPerBatch, c.TimeoutSeconds,
		c.AlertThreshold, c.MonitoringHours, c.IsActive, now, now)
	if err != nil {
		return err
	}
	c.ID, err = res.LastInsertId()
	if err != nil {
		return err
	}
	c.CreatedAt, c.UpdatedAt = now, now
	return nil
}

func (r *Repository) UpdateConfig(ctx context.Context, c *models.MonitorConfig) error {
	headers, err := encodeHeaders(c.Headers)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `UPDATE monitor_configs SET
		name=?,url=?,method=?,body=?,headers_json=?,call_interval_sec=?,calls_per_batch=?,timeout_sec=?,alert_threshold=?,monitoring_hours=?,is_active=?,updated_at=?
		WHERE id=?`,
		c.Name, c.URL, c.Method, nullStr(c.Payload), headers, c.IntervalSeconds, c.CallsPerBatch, c.TimeoutSeconds,
		c.AlertThreshold, c.MonitoringHours, c.IsActive, now, c.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	c.UpdatedAt = now
	return nil
}

func (r *Repository) GetConfig(ctx context.Context, id int64) (models.MonitorConfig, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+configCols+` FROM monitor_configs WHERE id=?`, id)
	return scanConfig(row)
}

func (r *Repository) GetConfigByName(ctx context.Context, name string) (models.MonitorConfig, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+configCols+` FROM monitor_configs WHERE name=?`, name)
	return scanConfig(row)
}

func (r *Repository) ListConfigs(ctx context.Context, activeOnly bool) ([]models.MonitorConfig, error) {
	query := `SELECT ` + configCols + ` FROM monitor_configs ORDER BY id`
	if activeOnly {
		query = `SELECT ` + configCols + ` FROM monitor_configs WHERE is_active=1 ORDER BY id`
	}
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.MonitorConfig
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) SetConfigActive(ctx context.Context, id int64, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE monitor_configs SET is_active=?, updated_at=? WHERE id=?`, active, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteConfig(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM monitor_configs WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ImportConfigs upserts configs by name so an export can be re-imported
// without duplicating endpoints.
func (r *Repository) ImportConfigs(ctx context.Context, cfgs []models.MonitorConfig) (int, error) {
	if len(cfgs) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO monitor_configs
		(name,url,method,body,headers_json,call_interval_sec,calls_per_batch,timeout_sec,alert_threshold,monitoring_hours,is_active,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(name) DO UPDATE SET
			url=excluded.url,method=excluded.method,body=excluded.body,headers_json=excluded.headers_json,
			call_interval_sec=excluded.call_interval_sec,calls_per_batch=excluded.calls_per_batch,timeout_sec=excluded.timeout_sec,
			alert_threshold=excluded.alert_threshold,monitoring_hours=excluded.monitoring_hours,is_active=excluded.is_active,
			updated_at=excluded.updated_at`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	now := time.Now().UTC()
	for _, c := range cfgs {
		headers, err := encodeHeaders(c.Headers)
		if err != nil {
			return 0, fmt.Errorf("config %q: %w", c.Name, err)
		}
		if _, err := stmt.ExecContext(ctx, c.Name, c.URL, c.Method, nullStr(c.Payload), headers,
			c.IntervalSeconds, c.CallsPerBatch, c.TimeoutSeconds, c.AlertThreshold, c.MonitoringHours, c.IsActive, now, now); err != nil {
			return 0, fmt.Errorf("config %q: %w", c.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(cfgs), nil
}

func (r *Repository) InsertResult(ctx context.Context, res models.ProbeResult) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO probe_results (config_id,ts,success,status_code,response_time,failure_reason)
		VALUES (?,?,?,?,?,?)`,
		res.ConfigID, res.TS.UTC(), res.Success, res.StatusCode, res.ResponseTime, string(res.Reason))
	return err
}

func (r *Repository) RecentResults(ctx context.Context, configID int64, limit int) ([]models.ProbeResult, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id,config_id,ts,success,status_code,response_time,failure_reason
		FROM probe_results WHERE config_id=? ORDER BY ts DESC, id DESC LIMIT ?`, configID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.ProbeResult, 0, limit)
	for rows.Next() {
		var res models.ProbeResult
		var code sql.NullInt64
		var reason string
		if err := rows.Scan(&res.ID, &res.ConfigID, &res.TS, &res.Success, &code, &res.ResponseTime, &reason); err != nil {
			return nil, err
		}
		if code.Valid {
			n := int(code.Int64)
			res.StatusCode = &n
		}
		res.Reason = models.FailureReason(reason)
		out = append(out, res)
	}
	return out, rows.Err()
}

// DeleteResultsBefore removes probe results older than cutoff and reports how
// many rows went away. Configs and alerts are never touched here.
func (r *Repository) DeleteResultsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM probe_results WHERE ts < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	_, _ = r.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	_, _ = r.db.ExecContext(ctx, `PRAGMA optimize`)
	return n, nil
}

const statAgg = `COUNT(*),
	COALESCE(SUM(CASE WHEN success=1 THEN 1 ELSE 0 END),0),
	COALESCE(SUM(CASE WHEN success=1 THEN response_time ELSE 0 END),0),
	COALESCE(MIN(CASE WHEN success=1 THEN response_time END),0),
	COALESCE(MAX(CASE WHEN success=1 THEN response_time END),0)`

// DailyStats aggregates results for the UTC day containing t, one row per
// config that has at least one result. Response-time aggregates cover
// successful calls only.
func (r *Repository) DailyStats(ctx context.Context, t time.Time) ([]models.DailyStat, error) {
	from, to := dayBounds(t)
	rows, err := r.db.QueryContext(ctx, `SELECT config_id, `+statAgg+`
		FROM probe_results WHERE ts >= ? AND ts < ? GROUP BY config_id ORDER BY config_id`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.DailyStat
	for rows.Next() {
		s := models.DailyStat{Day: models.DayOf(t)}
		if err := rows.Scan(&s.ConfigID, &s.TotalCalls, &s.SuccessCount, &s.SumResponse, &s.MinResponse, &s.MaxResponse); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DailyStatFor returns the aggregate for one config on the UTC day containing
// t. A day with no results comes back zero-valued, not as an error.
func (r *Repository) DailyStatFor(ctx context.Context, configID int64, t time.Time) (models.DailyStat, error) {
	from, to := dayBounds(t)
	s := models.DailyStat{ConfigID: configID, Day: models.DayOf(t)}
	err := r.db.QueryRowContext(ctx, `SELECT `+statAgg+`
		FROM probe_results WHERE config_id=? AND ts >= ? AND ts < ?`, configID, from, to).
		Scan(&s.TotalCalls, &s.SuccessCount, &s.SumResponse, &s.MinResponse, &s.MaxResponse)
	return s, err
}

func dayBounds(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	from := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 0, 1)
}

// OpenAlert inserts an unresolved alert unless one with the same config and
// type is already open. It reports whether a new row was created; the partial
// unique index on (config_id, type) makes the insert race-safe.
func (r *Repository) OpenAlert(ctx context.Context, a *models.Alert) (bool, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO alerts (config_id,type,opened_at,message,resolved)
		VALUES (?,?,?,?,0)
		ON CONFLICT(config_id, type) WHERE resolved = 0 DO NOTHING`,
		a.ConfigID, string(a.Type), a.OpenedAt.UTC(), a.Message)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	a.ID, err = res.LastInsertId()
	return true, err
}

func (r *Repository) UnresolvedAlert(ctx context.Context, configID int64, typ models.AlertType) (models.Alert, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id,config_id,type,opened_at,message,resolved,resolved_at
		FROM alerts WHERE config_id=? AND type=? AND resolved=0`, configID, string(typ))
	return scanAlert(row)
}

func (r *Repository) GetAlert(ctx context.Context, id int64) (models.Alert, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id,config_id,type,opened_at,message,resolved,resolved_at
		FROM alerts WHERE id=?`, id)
	return scanAlert(row)
}

// ResolveAlert marks an open alert resolved at the given time. It reports
// false when the alert does not exist or is already resolved.
func (r *Repository) ResolveAlert(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE alerts SET resolved=1, resolved_at=? WHERE id=? AND resolved=0`, at.UTC(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListAlerts returns alerts newest-first. configID 0 means all configs;
// includeResolved false restricts to open alerts.
func (r *Repository) ListAlerts(ctx context.Context, configID int64, includeResolved bool, limit int) ([]models.Alert, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	clauses := "1=1"
	args := []any{}
	if configID != 0 {
		clauses += " AND config_id = ?"
		args = append(args, configID)
	}
	if !includeResolved {
		clauses += " AND resolved = 0"
	}
	args = append(args, limit)
	rows, err := r.db.QueryContext(ctx, `SELECT id,config_id,type,opened_at,message,resolved,resolved_at
		FROM alerts WHERE `+clauses+` ORDER BY opened_at DESC, id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.Alert, 0, limit)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repository) UnresolvedAlertCount(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts WHERE resolved=0`).Scan(&n)
	return n, err
}

// PurgeResolvedAlerts deletes resolved alerts whose resolution is older than
// cutoff. Open alerts always survive.
func (r *Repository) PurgeResolvedAlerts(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE resolved=1 AND resolved_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConfig(row scanner) (models.MonitorConfig, error) {
	var c models.MonitorConfig
	var body, headers sql.NullString
	if err := row.Scan(&c.ID, &c.Name, &c.URL, &c.Method, &body, &headers, &c.IntervalSeconds, &c.CallsPerBatch,
		&c.TimeoutSeconds, &c.AlertThreshold, &c.MonitoringHours, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return models.MonitorConfig{}, err
	}
	c.Payload = body.String
	if headers.Valid && headers.String != "" {
		if err := json.Unmarshal([]byte(headers.String), &c.Headers); err != nil {
			return models.MonitorConfig{}, fmt.Errorf("config %d headers: %w", c.ID, err)
		}
	}
	return c, nil
}

func scanAlert(row scanner) (models.Alert, error) {
	var a models.Alert
	var typ string
	var resolvedAt sql.NullTime
	if err := row.Scan(&a.ID, &a.ConfigID, &typ, &a.OpenedAt, &a.Message, &a.Resolved, &resolvedAt); err != nil {
		return models.Alert{}, err
	}
	a.Type = models.AlertType(typ)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	return a, nil
}

func encodeHeaders(h map[string]string) (any, error) {
	if len(h) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("encode headers: %w", err)
	}
	return string(b), nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
