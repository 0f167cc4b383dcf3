package monitor

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/beyondlink/internal/db"
	"github.com/banshee-data/beyondlink/internal/laser"
)

//go:embed status.html
var statusFS embed.FS

var statusTemplate = template.Must(template.New("status.html").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).ParseFS(statusFS, "status.html"))

// HistoryStore provides recorded status snapshots.
type HistoryStore interface {
	RecentSnapshots(limit int) ([]db.StatusSnapshot, error)
}

// WebServer serves health, status and per-device point data over HTTP.
type WebServer struct {
	address  string
	server   *http.Server
	registry *laser.Registry
	stats    StatsSource
	reporter *Reporter
	ticks    *TickTimer
	history  HistoryStore
	info     RunInfo
	started  time.Time
}

// RunInfo describes the running receiver for the status page.
type RunInfo struct {
	Version     string `json:"version"`
	Port        int    `json:"port"`
	MaxDevices  int    `json:"max_devices"`
	ForwardAddr string `json:"forward_addr,omitempty"`
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address  string
	Registry *laser.Registry
	Stats    StatsSource
	Reporter *Reporter
	Ticks    *TickTimer
	// History is optional; /api/history is only served when set.
	History HistoryStore
	// Admin, if set, mounts extra routes (the /debug/ index).
	Admin func(*http.ServeMux) error
	Info  RunInfo
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(config WebServerConfig) (*WebServer, error) {
	ws := &WebServer{
		address:  config.Address,
		registry: config.Registry,
		stats:    config.Stats,
		reporter: config.Reporter,
		ticks:    config.Ticks,
		history:  config.History,
		info:     config.Info,
		started:  time.Now(),
	}

	mux := ws.setupRoutes()
	if config.Admin != nil {
		if err := config.Admin(mux); err != nil {
			return nil, err
		}
	}
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return ws, nil
}

// Handler returns the server's routes, for tests.
func (ws *WebServer) Handler() http.Handler {
	return ws.server.Handler
}

// Start serves until ctx is cancelled, then shuts the server down.
func (ws *WebServer) Start(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	log.Printf("HTTP server routine stopped")
	return nil
}

func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("GET /api/status", ws.handleStatusJSON)
	mux.HandleFunc("GET /api/devices/{id}/points", ws.handleDevicePoints)
	mux.HandleFunc("GET /api/devices/{id}/plot.png", ws.handleDevicePlot)
	mux.HandleFunc("GET /debug/devices/{id}/scatter", ws.handleDeviceScatter)
	if ws.history != nil {
		mux.HandleFunc("GET /api/history", ws.handleHistory)
	}

	return mux
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "beyondlink", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
}

// uptime prefers the receiver's own clock when the stats source keeps one.
func (ws *WebServer) uptime() time.Duration {
	if u, ok := ws.stats.(interface{ Uptime() time.Duration }); ok {
		return u.Uptime()
	}
	return time.Since(ws.started)
}

func (ws *WebServer) networkStats() laser.NetworkStats {
	if ws.stats == nil {
		return laser.NetworkStats{}
	}
	return ws.stats.Snapshot()
}

func (ws *WebServer) viewing() int {
	if ws.reporter == nil {
		return 0
	}
	return ws.reporter.Viewing()
}

func (ws *WebServer) tickSummary() TickSummary {
	if ws.ticks == nil {
		return TickSummary{}
	}
	return ws.ticks.Summary()
}

// handleStatus renders the HTML status page.
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	forwardingStatus := "disabled"
	if ws.info.ForwardAddr != "" {
		forwardingStatus = "enabled (" + ws.info.ForwardAddr + ")"
	}

	data := struct {
		RunInfo
		HTTPAddress      string
		ForwardingStatus string
		Uptime           string
		Network          laser.NetworkStats
		Ticks            TickSummary
		Devices          []laser.Status
		Viewing          int
		HistoryEnabled   bool
	}{
		RunInfo:          ws.info,
		HTTPAddress:      ws.address,
		ForwardingStatus: forwardingStatus,
		Uptime:           ws.uptime().Round(time.Second).String(),
		Network:          ws.networkStats(),
		Ticks:            ws.tickSummary(),
		Devices:          ws.registry.Statuses(),
		Viewing:          ws.viewing(),
		HistoryEnabled:   ws.history != nil,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusTemplate.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
	}
}

// StatusResponse is the /api/status payload.
type StatusResponse struct {
	RunInfo
	UptimeSeconds float64            `json:"uptime_seconds"`
	Viewing       int                `json:"viewing"`
	Network       laser.NetworkStats `json:"network"`
	Ticks         TickSummary        `json:"ticks"`
	Devices       []laser.Status     `json:"devices"`
	LastReport    *Report            `json:"last_report,omitempty"`
}

func (ws *WebServer) handleStatusJSON(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		RunInfo:       ws.info,
		UptimeSeconds: ws.uptime().Seconds(),
		Viewing:       ws.viewing(),
		Network:       ws.networkStats(),
		Ticks:         ws.tickSummary(),
		Devices:       ws.registry.Statuses(),
	}
	if ws.reporter != nil {
		resp.LastReport = ws.reporter.Latest()
	}
	ws.writeJSON(w, resp)
}

// deviceFromPath resolves the {id} path value, writing an error response
// and returning nil if it does not name a known device.
func (ws *WebServer) deviceFromPath(w http.ResponseWriter, r *http.Request) *laser.Source {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id < 0 {
		ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid device id %q", r.PathValue("id")))
		return nil
	}
	src := ws.registry.Get(id)
	if src == nil {
		ws.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("device %d not found", id))
		return nil
	}
	return src
}

// selectPoints returns the named point set of a source.
func selectPoints(src *laser.Source, set string) ([]laser.Point, bool) {
	switch set {
	case "", "main":
		return src.Processed().Points, true
	case "beam":
		return src.Processed().BeamPoints, true
	case "hot":
		return src.Processed().HotBeamPoints, true
	case "raw":
		return src.RawPoints(), true
	}
	return nil, false
}

// handleDevicePoints returns one point set of a device as JSON.
// Query params:
//
//	set (optional: main, beam, hot or raw; default main)
func (ws *WebServer) handleDevicePoints(w http.ResponseWriter, r *http.Request) {
	src := ws.deviceFromPath(w, r)
	if src == nil {
		return
	}
	set := r.URL.Query().Get("set")
	points, ok := selectPoints(src, set)
	if !ok {
		ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown point set %q", set))
		return
	}
	if points == nil {
		points = []laser.Point{}
	}
	ws.writeJSON(w, struct {
		DeviceIndex int           `json:"device_index"`
		Set         string        `json:"set"`
		State       string        `json:"state"`
		Points      []laser.Point `json:"points"`
	}{src.DeviceIndex(), setName(set), src.State().String(), points})
}

func setName(set string) string {
	if set == "" {
		return "main"
	}
	return set
}

func (ws *WebServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}
	snaps, err := ws.history.RecentSnapshots(limit)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get recent snapshots: %v", err))
		return
	}
	if snaps == nil {
		snaps = []db.StatusSnapshot{}
	}
	ws.writeJSON(w, snaps)
}
