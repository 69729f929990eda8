// Package httpapi is the operational surface of the monitor process:
// health probes and control of the scheduler's jobs. It is not a query API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	apimw "github.com/hamed0406/uptimemonitor/internal/httpapi/middleware"
	"github.com/hamed0406/uptimemonitor/internal/scheduler"
)

// Jobs is the scheduler control surface. *scheduler.Scheduler implements it.
type Jobs interface {
	Jobs() []domain.MonitorID
	Trigger(id domain.MonitorID) error
	Unregister(id domain.MonitorID) bool
	Reconcile(ctx context.Context) (scheduler.ReconcileResult, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	Logger *zap.Logger
	Jobs   Jobs
	Store  Pinger
}

func NewServer(l *zap.Logger, jobs Jobs, store Pinger) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Jobs: jobs, Store: store}
}

// Router mounts the routes. An empty allowedOrigins list disables CORS.
func (s *Server) Router(keys apimw.Keys, allowedOrigins []string, adminRPM, adminBurst int) http.Handler {
	r := chi.NewRouter()
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", s.handleReady)

	r.Route("/api/jobs", func(r chi.Router) {
		r.With(apimw.RequireAny(keys)).Get("/", s.handleListJobs)

		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(adminRPM, adminBurst))
			r.Use(apimw.RequireAdmin(keys))
			r.Post("/reload", s.handleReload)
			r.Post("/{id}/trigger", s.handleTrigger)
			r.Delete("/{id}", s.handleUnregister)
		})
	})

	return r
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if s.Store != nil {
		if err := s.Store.Ping(ctx); err != nil {
			s.Logger.Warn("readyz_store_unavailable", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

type jobsResponse struct {
	Count      int                `json:"count"`
	MonitorIDs []domain.MonitorID `json:"monitor_ids"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	ids := s.Jobs.Jobs()
	writeJSON(w, http.StatusOK, jobsResponse{Count: len(ids), MonitorIDs: ids})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	res, err := s.Jobs.Reconcile(r.Context())
	if err != nil {
		s.Logger.Warn("jobs_reload_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "reload failed")
		return
	}
	s.Logger.Info("jobs_reloaded",
		zap.Int("added", res.Added),
		zap.Int("removed", res.Removed),
		zap.Int("updated", res.Updated),
	)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	id, ok := monitorID(w, r)
	if !ok {
		return
	}
	switch err := s.Jobs.Trigger(id); {
	case err == nil:
		s.Logger.Info("job_triggered", zap.Int64("monitor_id", int64(id)))
		writeJSON(w, http.StatusAccepted, map[string]any{"monitor_id": id, "status": "triggered"})
	case errors.Is(err, scheduler.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "no job for monitor")
	case errors.Is(err, scheduler.ErrCycleRunning):
		writeError(w, http.StatusConflict, "cycle already running")
	default:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	}
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	id, ok := monitorID(w, r)
	if !ok {
		return
	}
	if !s.Jobs.Unregister(id) {
		writeError(w, http.StatusNotFound, "no job for monitor")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func monitorID(w http.ResponseWriter, r *http.Request) (domain.MonitorID, bool) {
	n, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, "invalid monitor id")
		return 0, false
	}
	return domain.MonitorID(n), true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
