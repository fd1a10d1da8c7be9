package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"cronbot/internal/task/jobapi"
	"cronbot/internal/task/model"
	"cronbot/internal/task/scheduler"
	logx "cronbot/pkg/logx"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Jobs is the read side of the scheduler the handlers need.
type Jobs interface {
	ListJobs() []model.CronJob
	GetJob(id string) (model.CronJob, error)
	Snapshot() scheduler.Snapshot
}

// Metrics instruments requests and serves /metrics.
type Metrics interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
}

type Options struct {
	API     *jobapi.API
	Jobs    Jobs
	Log     logx.Logger
	Metrics Metrics // nil disables /metrics
	Pprof   bool
	// Status adds extra sections to GET /status.
	Status func() map[string]any
}

type Server struct {
	api    *jobapi.API
	jobs   Jobs
	log    logx.Logger
	status func() map[string]any
	router chi.Router
}

func New(opt Options) *Server {
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{api: opt.API, jobs: opt.Jobs, log: log, status: opt.Status}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLog(log))
	r.Use(recoverer(log))
	if opt.Metrics != nil {
		r.Use(opt.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", opt.Metrics.Handler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/status", s.getStatus)
	r.Get("/grammar", s.getGrammar)
	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.listJobs)
		r.Post("/", s.addJob)
		r.Get("/{id}", s.getJob)
		r.Patch("/{id}", s.updateJob)
		r.Delete("/{id}", s.removeJob)
		r.Post("/{id}/run", s.runJob)
	})
	if opt.Pprof {
		r.Mount("/debug", chimw.Profiler())
	}
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.log.Info("http listening", logx.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("http shutdown", logx.Err(err))
		}
		<-errCh
		return nil
	}
}

// MessageResponse carries the job API's human-readable result.
type MessageResponse struct {
	Message string `json:"message"`
}

type addRequest struct {
	Name           string `json:"name"`
	Prompt         string `json:"prompt"`
	Type           string `json:"type"`
	Value          string `json:"value"`
	DeleteAfterRun bool   `json:"delete_after_run"`
}

type updateRequest struct {
	Enabled *bool   `json:"enabled"`
	Name    *string `json:"name"`
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	if strings.EqualFold(r.URL.Query().Get("format"), "json") {
		writeJSON(w, http.StatusOK, s.jobs.ListJobs())
		return
	}
	writeMessage(w, s.api.List())
}

func (s *Server) addJob(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Type) == "" {
		writeError(w, http.StatusBadRequest, "name and type are required")
		return
	}
	writeMessage(w, s.api.Add(req.Name, req.Prompt, req.Type, req.Value, req.DeleteAfterRun))
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.GetJob(chi.URLParam(r, "id"))
	if errors.Is(err, scheduler.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) updateJob(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !decode(w, r, &req) {
		return
	}
	writeMessage(w, s.api.Update(chi.URLParam(r, "id"), req.Enabled, req.Name))
}

func (s *Server) removeJob(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, s.api.Remove(chi.URLParam(r, "id")))
}

func (s *Server) runJob(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, s.api.Run(r.Context(), chi.URLParam(r, "id")))
}

func (s *Server) getGrammar(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, s.api.Grammar())
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.jobs.Snapshot()
	out := map[string]any{
		"started":      snap.Started,
		"timezone":     snap.Timezone,
		"jobs":         snap.Jobs,
		"enabled_jobs": snap.EnabledJobs,
	}
	if !snap.NextWake.IsZero() {
		out["next_wake"] = snap.NextWake.UTC().Format(time.RFC3339)
	}
	if s.status != nil {
		for k, v := range s.status() {
			out[k] = v
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func writeMessage(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
