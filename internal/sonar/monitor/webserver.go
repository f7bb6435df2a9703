// Package monitor serves the latest rendered sonar raster and LUT
// diagnostics over HTTP.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/tidewise/drivers-sonar-base/internal/monitoring"
	"github.com/tidewise/drivers-sonar-base/internal/sonar"
	"github.com/tidewise/drivers-sonar-base/internal/sonar/lut"
	"github.com/tidewise/drivers-sonar-base/internal/sonar/raster"
)

// LUTSource exposes the LUT currently in use. Implemented by
// render.Renderer.
type LUTSource interface {
	LUT() *lut.LUT
	Rebuilds() int64
	Frames() int64
}

// AdminRoutes is implemented by components that mount debug endpoints.
type AdminRoutes interface {
	AttachAdminRoutes(mux *http.ServeMux)
}

// WebServer serves the monitoring endpoints.
type WebServer struct {
	address string
	source  LUTSource
	admins  []AdminRoutes
	server  *http.Server

	mu         sync.RWMutex
	image      *raster.Image
	sample     *sonar.Sample
	receivedAt time.Time
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address string
	Source  LUTSource
	Admins  []AdminRoutes
}

// NewWebServer creates a web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address: config.Address,
		source:  config.Source,
		admins:  config.Admins,
	}
	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.Handler(),
	}
	return ws
}

// Publish records the latest rendered frame and the sample it came from.
func (ws *WebServer) Publish(img *raster.Image, s *sonar.Sample) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.image = img
	ws.sample = s
	ws.receivedAt = time.Now()
}

func (ws *WebServer) latest() (*raster.Image, *sonar.Sample, time.Time) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.image, ws.sample, ws.receivedAt
}

// Start serves until ctx is cancelled, then shuts the server down.
func (ws *WebServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}
	monitoring.Logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}
	monitoring.Logf("HTTP server routine stopped")
	return nil
}

// Handler returns the routes of the monitor.
func (ws *WebServer) Handler() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/sonar/image.png", ws.handleImage)
	mux.HandleFunc("/sonar/lut", ws.handleLUTStats)
	mux.HandleFunc("/sonar/frame", ws.handleFrameHeatmap)
	mux.HandleFunc("/sonar/coverage", ws.handleBeamCoverage)
	for _, a := range ws.admins {
		a.AttachAdminRoutes(mux)
	}
	return mux
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("JSON encoding error: %v", err)
	}
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	ws.writeJSON(w, status, map[string]string{"error": msg})
}

func (ws *WebServer) currentLUT() *lut.LUT {
	if ws.source == nil {
		return nil
	}
	return ws.source.LUT()
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, _, at := ws.latest()
	resp := map[string]interface{}{
		"status":    "ok",
		"service":   "sonar",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if !at.IsZero() {
		resp["last_frame"] = at.UTC().Format(time.RFC3339Nano)
	}
	ws.writeJSON(w, http.StatusOK, resp)
}

// handleImage serves the latest raster as PNG. The optional scale query
// parameter (0.25 to 8) resizes it.
func (ws *WebServer) handleImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	img, _, _ := ws.latest()
	if img == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no frame rendered yet")
		return
	}
	if s := r.URL.Query().Get("scale"); s != "" {
		factor, err := strconv.ParseFloat(s, 64)
		if err != nil || factor < 0.25 || factor > 8 {
			ws.writeJSONError(w, http.StatusBadRequest, "scale must be a number between 0.25 and 8")
			return
		}
		img = img.Scale(factor)
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := img.EncodePNG(w); err != nil {
		monitoring.Logf("[Monitor] failed to encode frame: %v", err)
	}
}

// lutStatus is the JSON body of /sonar/lut.
type lutStatus struct {
	lut.Stats
	WindowSize int   `json:"window_size"`
	BeamCount  int   `json:"beam_count"`
	BinCount   int   `json:"bin_count"`
	Rebuilds   int64 `json:"rebuilds"`
	Frames     int64 `json:"frames"`
}

func (ws *WebServer) handleLUTStats(w http.ResponseWriter, r *http.Request) {
	l := ws.currentLUT()
	if l == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no LUT built yet")
		return
	}
	cfg := l.Config()
	ws.writeJSON(w, http.StatusOK, lutStatus{
		Stats:      l.Stats(),
		WindowSize: l.WindowSize(),
		BeamCount:  cfg.BeamCount,
		BinCount:   cfg.BinCount,
		Rebuilds:   ws.source.Rebuilds(),
		Frames:     ws.source.Frames(),
	})
}
