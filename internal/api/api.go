// Package api serves the tracker over HTTP with chi.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/metrics"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/model"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/store"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/tracker"
)

var errNoStore = errors.New("no primary store configured")

type Options struct {
	CORSOrigins    []string
	Metrics        *metrics.Recorder // nil disables /metrics
	MetricsPath    string
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

type Server struct {
	svc  *tracker.Service
	opts Options
	log  *slog.Logger
}

// NewRouter builds the HTTP handler.
func NewRouter(svc *tracker.Service, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	s := &Server{svc: svc, opts: opts, log: opts.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors(opts.CORSOrigins))

	r.Get("/healthz", s.healthz)
	if opts.Metrics != nil {
		r.Handle(opts.MetricsPath, opts.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(opts.RequestTimeout))
		r.Get("/health", s.health)
		r.Get("/sources", s.sources)

		r.Route("/shutdowns", func(r chi.Router) {
			r.Get("/", s.listShutdowns)
			r.Post("/", s.createShutdown)
			r.Get("/export.xlsx", s.exportShutdowns)
			r.Get("/{id}", s.getShutdown)
			r.Put("/{id}", s.updateShutdown)
			r.Delete("/{id}", s.deleteShutdown)
		})

		r.Route("/statistics", func(r chi.Router) {
			r.Get("/", s.statistics)
			r.Get("/reasons", s.statisticsReasons)
			r.Get("/timeline", s.statisticsTimeline)
			r.Get("/operators", s.statisticsOperators)
		})

		r.Route("/regions", func(r chi.Router) {
			r.Get("/", s.regions)
			r.Get("/counts", s.regionCounts)
			r.Get("/{name}", s.regionDetails)
		})
	})
	return r
}

// cors allows the configured origins; "*" allows any.
func cors(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowed["*"] || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.Header().Add("Vary", "Origin")
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.svc.Store().(store.Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			http.Error(w, "store unreachable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	snap := s.svc.Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  "ok",
		"asOf":    snap.AsOf,
		"events":  len(snap.Events),
		"stale":   snap.Stale,
	})
}

func (s *Server) sources(w http.ResponseWriter, r *http.Request) {
	snap := s.svc.Current()
	ok(w, map[string]any{
		"cycleId": snap.CycleID,
		"asOf":    snap.AsOf,
		"stale":   snap.Stale,
		"events":  len(snap.Events),
		"sources": s.svc.SourceStatuses(),
	})
}

func (s *Server) listShutdowns(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := parsePage(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.svc.Query(r.Context(), f, parseSort(r), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success:    true,
		Data:       res.Events,
		Pagination: &pagination{Total: res.Total, Page: res.Page, Limit: res.Size, Pages: res.Pages},
	})
}

func (s *Server) getShutdown(w http.ResponseWriter, r *http.Request) {
	e, err := s.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, e)
}

func (s *Server) createShutdown(w http.ResponseWriter, r *http.Request) {
	st := s.svc.Store()
	if st == nil {
		s.fail(w, r, errNoStore)
		return
	}
	var in model.ShutdownEvent
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	e, err := st.Create(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: "Shutdown created successfully", Data: e})
}

func (s *Server) updateShutdown(w http.ResponseWriter, r *http.Request) {
	st := s.svc.Store()
	if st == nil {
		s.fail(w, r, errNoStore)
		return
	}
	var in model.ShutdownEvent
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	e, err := st.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Shutdown updated successfully", Data: e})
}

func (s *Server) deleteShutdown(w http.ResponseWriter, r *http.Request) {
	st := s.svc.Store()
	if st == nil {
		s.fail(w, r, errNoStore)
		return
	}
	if err := st.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Shutdown deleted successfully"})
}
