// Package dashboard serves one pipeline result over HTTP: the map with
// histograms and summary tables, plus the data behind them as JSON.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ctaridership/pkg/render"
	"ctaridership/pkg/stats"
	"ctaridership/pkg/types"
)

const shutdownTimeout = 5 * time.Second

// Server serves a result that never changes after construction.
type Server struct {
	result  *types.RenderResult
	page    []byte
	geojson []byte
	router  chi.Router
}

// NewServer pre-renders the page and GeoJSON for result.
func NewServer(result *types.RenderResult, renderer *render.Renderer) (*Server, error) {
	page, err := renderer.HTML(result, Panels(result, stats.DefaultBins)...)
	if err != nil {
		return nil, err
	}
	data, err := renderer.GeoJSON(result)
	if err != nil {
		return nil, err
	}

	s := &Server{
		result:  result,
		page:    page,
		geojson: data,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/", s.handleIndex)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/api/layers", s.handleLayers)
	r.Get("/api/layers/{category}", s.handleLayer)
	r.Get("/api/stats", s.handleStats)
	return r
}

// Handler returns the router wrapped with request tracing.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "dashboard")
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Dashboard listening", "addr", "http://"+addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("dashboard server failed: %w", err)
	case <-ctx.Done():
		slog.Info("Shutting down dashboard")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(s.page)
}

func (s *Server) handleLayers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/geo+json")
	w.Write(s.geojson)
}

func (s *Server) handleLayer(w http.ResponseWriter, r *http.Request) {
	category := types.Category(chi.URLParam(r, "category"))
	for i := range s.result.Layers {
		layer := &s.result.Layers[i]
		if layer.Category != category {
			continue
		}
		writeJSON(w, http.StatusOK, render.LayerFeatures(layer))
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": fmt.Sprintf("no layer %q", category),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":    s.result.RunID,
		"generated": s.result.Generated,
		"layers":    Summaries(s.result),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}
