package report

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/iyuangang/webservice-monitor/internal/db"
	"github.com/iyuangang/webservice-monitor/internal/models"
)

//go:embed templates/report.html
var reportFS embed.FS

var tpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"pct":  func(v float64) string { return fmt.Sprintf("%.1f%%", v*100) },
	"secs": func(v float64) string { return fmt.Sprintf("%.3fs", v) },
}).ParseFS(reportFS, "templates/report.html"))

type ConfigReport struct {
	Config models.MonitorConfig
	Stat   models.DailyStat
}

type AlertRow struct {
	ConfigName string
	Alert      models.Alert
}

type Report struct {
	Day         string
	GeneratedAt time.Time
	Configs     []ConfigReport
	Alerts      []AlertRow
	TotalCalls  int
	OpenAlerts  int
}

// Build assembles the report for one day from already-loaded data. Every
// config appears, with a zero aggregate when it has no results; alerts are
// included when they are still open or touched that day.
func Build(day string, generatedAt time.Time, cfgs []models.MonitorConfig, stats []models.DailyStat, alerts []models.Alert) Report {
	statByID := make(map[int64]models.DailyStat, len(stats))
	for _, s := range stats {
		statByID[s.ConfigID] = s
	}
	nameByID := make(map[int64]string, len(cfgs))

	rep := Report{Day: day, GeneratedAt: generatedAt}
	for _, cfg := range cfgs {
		nameByID[cfg.ID] = cfg.Name
		stat, ok := statByID[cfg.ID]
		if !ok {
			stat = models.DailyStat{ConfigID: cfg.ID, Day: day}
		}
		rep.TotalCalls += stat.TotalCalls
		rep.Configs = append(rep.Configs, ConfigReport{Config: cfg, Stat: stat})
	}
	sort.Slice(rep.Configs, func(i, j int) bool { return rep.Configs[i].Config.Name < rep.Configs[j].Config.Name })

	for _, a := range alerts {
		touched := models.DayOf(a.OpenedAt) == day ||
			(a.ResolvedAt != nil && models.DayOf(*a.ResolvedAt) == day)
		if !touched && a.Resolved {
			continue
		}
		if !a.Resolved {
			rep.OpenAlerts++
		}
		name := nameByID[a.ConfigID]
		if name == "" {
			name = fmt.Sprintf("config %d", a.ConfigID)
		}
		rep.Alerts = append(rep.Alerts, AlertRow{ConfigName: name, Alert: a})
	}
	sort.Slice(rep.Alerts, func(i, j int) bool { return rep.Alerts[i].Alert.OpenedAt.Before(rep.Alerts[j].Alert.OpenedAt) })
	return rep
}

// Render writes the HTML for a built report.
func Render(w io.Writer, rep Report) error {
	return tpl.ExecuteTemplate(w, "report.html", rep)
}

// Generator loads a day's data and writes the rendered report to disk.
type Generator struct {
	repo *db.Repository
	dir  string
	log  *slog.Logger
	now  func() time.Time
}

func NewGenerator(repo *db.Repository, dir string, logger *slog.Logger) *Generator {
	return &Generator{repo: repo, dir: dir, log: logger.With("module", "report"), now: time.Now}
}

// Generate writes the report for the UTC day containing t and returns its
// path. The file lands atomically via a temp file rename.
func (g *Generator) Generate(ctx context.Context, t time.Time) (string, error) {
	cfgs, err := g.repo.ListConfigs(ctx, false)
	if err != nil {
		return "", fmt.Errorf("load configs: %w", err)
	}
	stats, err := g.repo.DailyStats(ctx, t)
	if err != nil {
		return "", fmt.Errorf("load stats: %w", err)
	}
	alerts, err := g.repo.ListAlerts(ctx, 0, true, 500)
	if err != nil {
		return "", fmt.Errorf("load alerts: %w", err)
	}
	rep := Build(models.DayOf(t), g.now().UTC(), cfgs, stats, alerts)

	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir report dir: %w", err)
	}
	path := filepath.Join(g.dir, "report-"+rep.Day+".html")
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	if err := Render(f, rep); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("render report: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	g.log.Info("report written", "day", rep.Day, "path", path)
	return path, nil
}

// Run generates yesterday's report, for cron-style scheduling.
func (g *Generator) Run(ctx context.Context) {
	day := g.now().UTC().AddDate(0, 0, -1)
	if _, err := g.Generate(ctx, day); err != nil {
		g.log.Error("daily report failed", "err", err)
	}
}
