// Package server exposes the pipeline to an external scheduler over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"today_eat_what/pipeline"
)

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, start time.Time) (*pipeline.Result, error)
}

type Server struct {
	runner     Runner
	runTimeout time.Duration
	store      *runStore
	logger     *slog.Logger
	// running admits one run at a time.
	running sync.Mutex
	now     func() time.Time
}

// runStore keeps the most recent results, oldest evicted first.
type runStore struct {
	mu    sync.Mutex
	limit int
	order []string
	runs  map[string]*pipeline.Result
}

func newStore(limit int) *runStore {
	return &runStore{limit: limit, runs: make(map[string]*pipeline.Result)}
}

func (s *runStore) add(res *pipeline.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[res.RunID] = res
	s.order = append(s.order, res.RunID)
	for len(s.order) > s.limit {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *runStore) get(id string) (*pipeline.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.runs[id]
	return res, ok
}

func (s *runStore) last() (*pipeline.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) == 0 {
		return nil, false
	}
	return s.runs[s.order[len(s.order)-1]], true
}

func New(runner Runner, runTimeout time.Duration, logger *slog.Logger) (*Server, error) {
	if runner == nil {
		return nil, errors.New("pipeline runner required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		runner:     runner,
		runTimeout: runTimeout,
		store:      newStore(20),
		logger:     logger.With("component", "server"),
		now:        time.Now,
	}, nil
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api/runs", func(r chi.Router) {
		r.Post("/", s.handleRunCreate)
		r.Get("/last", s.handleRunLast)
		r.Get("/{id}", s.handleRunByID)
	})
	return r
}

// --- Handlers ---

type runCreateReq struct {
	// At overrides the classification time (RFC 3339).
	At string `json:"at"`
}

type runResp struct {
	*pipeline.Result
	Error string `json:"error,omitempty"`
}

func (s *Server) handleRunCreate(w http.ResponseWriter, r *http.Request) {
	var req runCreateReq
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	start := s.now()
	if req.At != "" {
		at, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			writeError(w, http.StatusBadRequest, "at: "+err.Error())
			return
		}
		start = at
	}

	if !s.running.TryLock() {
		writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	defer s.running.Unlock()

	ctx := r.Context()
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}
	res, err := s.runner.Run(ctx, start)
	if res != nil {
		s.store.add(res)
	}
	if err != nil {
		writeJSON(w, http.StatusBadGateway, runResp{Result: res, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, runResp{Result: res})
}

func (s *Server) handleRunLast(w http.ResponseWriter, _ *http.Request) {
	res, ok := s.store.last()
	if !ok {
		writeError(w, http.StatusNotFound, "no run yet")
		return
	}
	writeJSON(w, http.StatusOK, runResp{Result: res})
}

func (s *Server) handleRunByID(w http.ResponseWriter, r *http.Request) {
	res, ok := s.store.get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, runResp{Result: res})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
