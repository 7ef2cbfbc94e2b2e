// Package server is the HTTP surface: task enqueueing, polling, auto-coding,
// health and metrics. Handlers stay thin, the pipeline service does the work.
//
// Authentication terminates upstream; the ingress forwards identity as
// X-User-ID, X-Tenant-ID and X-Roles headers, which compose the tenancy
// scope on every request.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/axialab/axial/pkg/config"
	"github.com/axialab/axial/pkg/observability"
	"github.com/axialab/axial/pkg/ratelimit"
	"github.com/axialab/axial/pkg/store"
	"github.com/axialab/axial/pkg/task"

	"github.com/google/uuid"
)

// Relational is the slice of the relational store the handlers consume.
type Relational interface {
	GetProject(ctx context.Context, projectID uuid.UUID, scope store.Scope) (*store.Project, error)
	GetInterview(ctx context.Context, interviewID uuid.UUID) (*store.Interview, error)
	GetTheory(ctx context.Context, theoryID uuid.UUID) (*store.Theory, error)
	DeleteProject(ctx context.Context, projectID uuid.UUID) error
}

// GraphProjection is the graph-store slice used by project deletion.
type GraphProjection interface {
	DeleteProject(ctx context.Context, projectID uuid.UUID) error
}

// VectorProjection is the vector-store slice used by project deletion.
type VectorProjection interface {
	DeleteProject(ctx context.Context, projectID string) error
}

// Pinger checks one health dependency.
type Pinger func(ctx context.Context) error

// Server holds the handler dependencies.
type Server struct {
	cfg        *config.Config
	db         Relational
	graph      GraphProjection
	vectors    VectorProjection
	tasks      *task.Manager
	locks      *task.Locks
	dispatcher *task.Dispatcher
	limiter    *ratelimit.Limiter
	pingers    map[string]Pinger
}

// New builds the server. limiter may be nil (rate limiting disabled) and
// pingers may omit dependencies that are not configured. graph and vectors
// may be nil, project deletion then skips the projection cleanup.
func New(cfg *config.Config, db Relational, graph GraphProjection, vectors VectorProjection, tasks *task.Manager, locks *task.Locks, dispatcher *task.Dispatcher, limiter *ratelimit.Limiter, pingers map[string]Pinger) *Server {
	return &Server{
		cfg:        cfg,
		db:         db,
		graph:      graph,
		vectors:    vectors,
		tasks:      tasks,
		locks:      locks,
		dispatcher: dispatcher,
		limiter:    limiter,
		pingers:    pingers,
	}
}

// Router assembles the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", observability.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(ratelimit.Middleware(s.limiter, ratelimit.QuotaChat))
			r.Post("/projects/{projectID}/theory", s.handleGenerateTheory)
			r.Post("/interviews/{interviewID}/auto-code", s.handleAutoCode)
		})
		r.Delete("/projects/{projectID}", s.handleDeleteProject)
		r.Get("/theory-tasks/{taskID}", s.handleTaskStatus)
		r.Get("/theories/{theoryID}", s.handleGetTheory)

		r.Group(func(r chi.Router) {
			r.Use(ratelimit.Middleware(s.limiter, ratelimit.QuotaLeads))
			r.Post("/leads", s.handleLead)
		})
	})

	return r
}

// ListenAndServe runs the server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      s.Router(),
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// scopeFromRequest composes the tenancy scope from the identity headers.
func (s *Server) scopeFromRequest(r *http.Request) store.Scope {
	scope := store.Scope{
		OwnerID:  r.Header.Get("X-User-ID"),
		TenantID: r.Header.Get("X-Tenant-ID"),
	}
	roles := strings.Split(r.Header.Get("X-Roles"), ",")
	for _, role := range roles {
		role = strings.TrimSpace(role)
		for _, admin := range s.cfg.Server.TenantAdminRoles {
			if role == admin {
				scope.Admin = true
			}
		}
	}
	return scope
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
