package monitor

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/beyondlink/internal/db"
	"github.com/banshee-data/beyondlink/internal/laser"
	"github.com/banshee-data/beyondlink/internal/testutil"
)

type stubHistory struct {
	snaps []db.StatusSnapshot
	err   error
	limit int
}

func (s *stubHistory) RecentSnapshots(limit int) ([]db.StatusSnapshot, error) {
	s.limit = limit
	return s.snaps, s.err
}

func newTestServer(t *testing.T, history HistoryStore) *WebServer {
	t.Helper()
	reg := newTestRegistry(t)
	ws, err := NewWebServer(WebServerConfig{
		Address:  "127.0.0.1:0",
		Registry: reg,
		Stats:    fixedStats{PacketsReceived: 3, BytesReceived: 300},
		Reporter: NewReporter(reg, nil, nil, 0),
		Ticks:    NewTickTimer(4),
		History:  history,
		Info:     RunInfo{Version: "test", Port: 5568, MaxDevices: 2},
	})
	require.NoError(t, err)
	return ws
}

func get(t *testing.T, ws *WebServer, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandleHealth(t *testing.T) {
	rec := get(t, newTestServer(t, nil), "/health")
	testutil.AssertStatusCode(t, rec, http.StatusOK)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "beyondlink", body["service"])
}

func TestHandleStatusPage(t *testing.T) {
	ws := newTestServer(t, nil)

	rec := get(t, ws, "/")
	testutil.AssertStatusCode(t, rec, http.StatusOK)
	body := rec.Body.String()
	assert.Contains(t, body, "BeyondLink test")
	assert.Contains(t, body, "Device 1")
	assert.Contains(t, body, "Device 2")
	assert.Contains(t, body, "239.255.1.x")
	assert.NotContains(t, body, "/api/history")

	assert.Equal(t, http.StatusNotFound, get(t, ws, "/nope").Code)
}

func TestHandleStatusJSON(t *testing.T) {
	ws := newTestServer(t, nil)
	ws.reporter.Build(time.Now())

	rec := get(t, ws, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "test", resp.Version)
	assert.Equal(t, 5568, resp.Port)
	assert.Equal(t, uint64(3), resp.Network.PacketsReceived)
	require.Len(t, resp.Devices, 2)
	assert.Equal(t, "passthrough", resp.Devices[0].State)
	assert.Equal(t, "idle", resp.Devices[1].State)
	assert.NotNil(t, resp.LastReport)
}

// clockedStats also reports how long the receiver has been up.
type clockedStats struct {
	fixedStats
	up time.Duration
}

func (c clockedStats) Uptime() time.Duration { return c.up }

func TestHandleStatusJSON_ReceiverUptime(t *testing.T) {
	ws := newTestServer(t, nil)
	ws.stats = clockedStats{fixedStats: fixedStats{PacketsReceived: 3}, up: 90 * time.Minute}

	rec := get(t, ws, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(90*60), resp.UptimeSeconds)

	page := get(t, ws, "/")
	assert.Contains(t, page.Body.String(), "1h30m0s")
}

func TestHandleDevicePoints(t *testing.T) {
	ws := newTestServer(t, nil)

	rec := get(t, ws, "/api/devices/0/points")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		DeviceIndex int           `json:"device_index"`
		Set         string        `json:"set"`
		State       string        `json:"state"`
		Points      []laser.Point `json:"points"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "main", body.Set)
	assert.Len(t, body.Points, 4)

	rec = get(t, ws, "/api/devices/0/points?set=raw")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, testutil.SquarePoints(0.5), body.Points)

	rec = get(t, ws, "/api/devices/1/points?set=hot")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"points":[]`)
}

func TestHandleDevicePoints_Errors(t *testing.T) {
	ws := newTestServer(t, nil)

	cases := []struct {
		target string
		code   int
	}{
		{"/api/devices/abc/points", http.StatusBadRequest},
		{"/api/devices/-1/points", http.StatusBadRequest},
		{"/api/devices/9/points", http.StatusNotFound},
		{"/api/devices/0/points?set=bogus", http.StatusBadRequest},
		{"/api/devices/9/plot.png", http.StatusNotFound},
		{"/debug/devices/9/scatter", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.target, func(t *testing.T) {
			rec := get(t, ws, tc.target)
			assert.Equal(t, tc.code, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestHandleDevicePlot(t *testing.T) {
	ws := newTestServer(t, nil)

	for _, target := range []string{"/api/devices/0/plot.png", "/api/devices/1/plot.png"} {
		rec := get(t, ws, target)
		require.Equal(t, http.StatusOK, rec.Code, target)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG\r\n\x1a\n"), "%s is not a PNG", target)
	}
}

func TestHandleDeviceScatter(t *testing.T) {
	rec := get(t, newTestServer(t, nil), "/debug/devices/0/scatter")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Device 1 (239.255.0.x)")
}

func TestHandleHistory(t *testing.T) {
	h := &stubHistory{snaps: []db.StatusSnapshot{{SnapshotID: 2, FPS: 60}, {SnapshotID: 1}}}
	ws := newTestServer(t, h)

	rec := get(t, ws, "/api/history?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, h.limit)
	var snaps []db.StatusSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snaps))
	require.Len(t, snaps, 2)
	assert.Equal(t, 60.0, snaps[0].FPS)

	get(t, ws, "/api/history?limit=100000")
	assert.Equal(t, 10, h.limit, "out of range limit should fall back to the default")

	h.err = errors.New("disk full")
	rec = get(t, ws, "/api/history")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "disk full")

	assert.Contains(t, get(t, ws, "/").Body.String(), "/api/history")
}

func TestHandleHistory_Disabled(t *testing.T) {
	rec := get(t, newTestServer(t, nil), "/api/history")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewWebServer_Admin(t *testing.T) {
	reg := laser.NewRegistry(laser.DefaultScannerConfig())

	_, err := NewWebServer(WebServerConfig{
		Registry: reg,
		Admin:    func(*http.ServeMux) error { return errors.New("boom") },
	})
	assert.EqualError(t, err, "boom")

	ws, err := NewWebServer(WebServerConfig{
		Registry: reg,
		Admin: func(mux *http.ServeMux) error {
			mux.HandleFunc("/debug/", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTeapot)
			})
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, get(t, ws, "/debug/").Code)
	// device routes still win over the admin prefix
	assert.Equal(t, http.StatusNotFound, get(t, ws, "/debug/devices/0/scatter").Code)
}
