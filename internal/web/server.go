package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iyuangang/webservice-monitor/internal/db"
	"github.com/iyuangang/webservice-monitor/internal/hub"
	"github.com/iyuangang/webservice-monitor/internal/models"
)

// Controller is the slice of the engine the API needs. Keeping it as an
// interface here lets the engine construct the server without a cycle.
type Controller interface {
	Status(ctx context.Context) models.EngineStatus
	Reload(ctx context.Context) (models.ReloadSummary, error)
	ResolveAlert(ctx context.Context, id int64) (models.Alert, bool, error)
}

type Server struct {
	repo   *db.Repository
	ctrl   Controller
	events *hub.Hub
	log    *slog.Logger
}

func NewServer(repo *db.Repository, ctrl Controller, events *hub.Hub, logger *slog.Logger) *Server {
	return &Server{repo: repo, ctrl: ctrl, events: events, log: logger.With("module", "web")}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.log))

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/reload", s.handleReload)
		r.Get("/configs", s.handleListConfigs)
		r.Get("/configs/{id}", s.handleGetConfig)
		r.Get("/configs/{id}/results", s.handleConfigResults)
		r.Get("/configs/{id}/stats", s.handleConfigStats)
		r.Get("/stats", s.handleStats)
		r.Get("/alerts", s.handleListAlerts)
		r.Post("/alerts/{id}/resolve", s.handleResolveAlert)
	})
	r.Get("/ws", s.events.HandleConnect)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.ctrl.Status(r.Context()))
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	summary, err := s.ctrl.Reload(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, summary)
}

func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "1"
	configs, err := s.repo.ListConfigs(r.Context(), activeOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, configs)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	cfg, err := s.repo.GetConfig(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "config not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, cfg)
}

func (s *Server) handleConfigResults(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := s.repo.RecentResults(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, results)
}

func (s *Server) handleConfigStats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	day, err := queryDate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	stat, err := s.repo.DailyStatFor(r.Context(), id, day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, stat)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	day, err := queryDate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	stats, err := s.repo.DailyStats(r.Context(), day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, stats)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	var configID int64
	if v := r.URL.Query().Get("config"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "config must be an integer")
			return
		}
		configID = parsed
	}
	includeResolved := r.URL.Query().Get("all") == "1"
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	alerts, err := s.repo.ListAlerts(r.Context(), configID, includeResolved, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, alerts)
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	alert, resolved, err := s.ctrl.ResolveAlert(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !resolved {
		writeError(w, http.StatusConflict, "alert already resolved")
		return
	}
	writeJSON(w, alert)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.DB().PingContext(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "db not ready")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// queryDate parses ?date=YYYY-MM-DD, defaulting to the current UTC day.
func queryDate(r *http.Request) (time.Time, error) {
	v := r.URL.Query().Get("date")
	if v == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse("2006-01-02", v)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
