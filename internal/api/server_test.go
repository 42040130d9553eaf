package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jouleworks/gridmind/internal/config"
	"github.com/jouleworks/gridmind/internal/device"
	"github.com/jouleworks/gridmind/internal/llm"
	"github.com/jouleworks/gridmind/internal/optimize"
	"github.com/jouleworks/gridmind/internal/orchestrator"
	"github.com/jouleworks/gridmind/internal/telemetry"
)

type fakeLLM struct{}

func (fakeLLM) GenerateText(ctx context.Context, prompt string, opts llm.SampleOptions) (string, error) {
	return "", llm.ErrUnconfigured
}

func (fakeLLM) HealthCheck(ctx context.Context) llm.Health { return llm.Unhealthy }

// newTestStack starts an orchestrator with immediate agent passes and
// wraps it in an httptest server.
func newTestStack(t *testing.T) (*httptest.Server, *orchestrator.Orchestrator) {
	t.Helper()
	cfg := config.Default()
	orch := orchestrator.New(cfg, fakeLLM{}, nil)

	// Seed enough history for the monitor agent's first pass.
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 30; i++ {
		orch.IngestReading(telemetry.Reading{
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			TotalPower: 2000,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	orch.Start(ctx)
	t.Cleanup(func() {
		cancel()
		orch.Stop()
	})

	// Immediate tasks produce recommendations shortly after Start.
	deadline := time.After(3 * time.Second)
	for len(orch.Recommendations()) == 0 {
		select {
		case <-deadline:
			t.Fatal("no recommendations after start")
		case <-time.After(10 * time.Millisecond):
		}
	}

	srv := NewServer("", 0, orch, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, orch
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestDevicesEndpoints(t *testing.T) {
	ts, _ := newTestStack(t)

	var devices []device.Device
	if code := getJSON(t, ts.URL+"/api/devices", &devices); code != http.StatusOK {
		t.Fatalf("GET /api/devices = %d", code)
	}
	if len(devices) != len(device.DefaultDevices()) {
		t.Errorf("got %d devices, want %d", len(devices), len(device.DefaultDevices()))
	}

	var d device.Device
	if code := getJSON(t, ts.URL+"/api/devices/hvac-living", &d); code != http.StatusOK {
		t.Fatalf("GET one device = %d", code)
	}
	if d.ID != "hvac-living" {
		t.Errorf("device id = %q", d.ID)
	}

	if code := getJSON(t, ts.URL+"/api/devices/nope", nil); code != http.StatusNotFound {
		t.Errorf("unknown device = %d, want 404", code)
	}
}

func TestControlEndpoint(t *testing.T) {
	ts, orch := newTestStack(t)

	body := bytes.NewBufferString(`{"action": "turn_off"}`)
	resp, err := http.Post(ts.URL+"/api/devices/hvac-living/control", "application/json", body)
	if err != nil {
		t.Fatalf("POST control: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("control = %d", resp.StatusCode)
	}

	d, err := orch.Device("hvac-living")
	if err != nil {
		t.Fatal(err)
	}
	if d.IsOn {
		t.Error("device still on after turn_off")
	}

	// Bad action.
	resp2, err := http.Post(ts.URL+"/api/devices/hvac-living/control", "application/json",
		bytes.NewBufferString(`{"action": "explode"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("bad action = %d, want 400", resp2.StatusCode)
	}

	// Unknown device.
	resp3, err := http.Post(ts.URL+"/api/devices/nope/control", "application/json",
		bytes.NewBufferString(`{"action": "toggle"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusNotFound {
		t.Errorf("unknown device control = %d, want 404", resp3.StatusCode)
	}
}

func TestReadingsEndpoints(t *testing.T) {
	ts, _ := newTestStack(t)

	var latest telemetry.Reading
	if code := getJSON(t, ts.URL+"/api/readings/latest", &latest); code != http.StatusOK {
		t.Fatalf("latest reading = %d", code)
	}
	if latest.TotalPower <= 0 {
		t.Errorf("latest total power = %v", latest.TotalPower)
	}

	var readings []telemetry.Reading
	if code := getJSON(t, ts.URL+"/api/readings?count=5", &readings); code != http.StatusOK {
		t.Fatalf("readings = %d", code)
	}
	if len(readings) != 5 {
		t.Errorf("got %d readings, want 5", len(readings))
	}

	if code := getJSON(t, ts.URL+"/api/readings?count=-1", nil); code != http.StatusBadRequest {
		t.Errorf("negative count = %d, want 400", code)
	}
	if code := getJSON(t, ts.URL+"/api/readings?since=yesterday", nil); code != http.StatusBadRequest {
		t.Errorf("bad since = %d, want 400", code)
	}

	since := time.Now().Add(-10 * time.Minute).Format(time.RFC3339)
	if code := getJSON(t, ts.URL+"/api/readings?since="+since, &readings); code != http.StatusOK {
		t.Errorf("since query = %d", code)
	}
}

func TestForecastAndAnalysisEndpoints(t *testing.T) {
	ts, _ := newTestStack(t)

	var fc map[string]any
	if code := getJSON(t, ts.URL+"/api/forecast", &fc); code != http.StatusOK {
		t.Fatalf("forecast = %d", code)
	}
	if fc["source"] == "" {
		t.Error("forecast missing source tag")
	}

	var analysis map[string]any
	if code := getJSON(t, ts.URL+"/api/analysis", &analysis); code != http.StatusOK {
		t.Fatalf("analysis = %d", code)
	}
}

func TestRecommendationLifecycle(t *testing.T) {
	ts, orch := newTestStack(t)

	var recs []optimize.Recommendation
	if code := getJSON(t, ts.URL+"/api/recommendations", &recs); code != http.StatusOK {
		t.Fatalf("recommendations = %d", code)
	}
	if len(recs) == 0 {
		t.Fatal("empty recommendation list")
	}

	var target string
	for _, r := range recs {
		if r.Action != "" && r.Action != "schedule" && len(r.DeviceIDs) > 0 {
			target = r.ID
			break
		}
	}
	if target == "" {
		t.Skipf("no automatable recommendation in %+v", recs)
	}

	resp, err := http.Post(ts.URL+"/api/recommendations/"+target+"/apply", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("apply = %d", resp.StatusCode)
	}
	for _, r := range orch.Recommendations() {
		if r.ID == target {
			t.Error("applied recommendation still active")
		}
	}

	resp2, err := http.Post(ts.URL+"/api/recommendations/nope/apply", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("unknown apply = %d, want 404", resp2.StatusCode)
	}
}

func TestStatsAndHealthEndpoints(t *testing.T) {
	ts, _ := newTestStack(t)

	var stats orchestrator.Stats
	if code := getJSON(t, ts.URL+"/api/stats", &stats); code != http.StatusOK {
		t.Fatalf("stats = %d", code)
	}
	if stats.DeviceCount == 0 {
		t.Error("stats missing device count")
	}

	var health map[string]any
	if code := getJSON(t, ts.URL+"/api/health", &health); code != http.StatusOK {
		t.Fatalf("health = %d", code)
	}
	if health["status"] == "" {
		t.Error("health missing status")
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics = %d", resp.StatusCode)
	}
}

func TestWebSocketPush(t *testing.T) {
	ts, orch := newTestStack(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v", wsURL, err)
	}
	defer conn.Close()

	// The server subscribes after the upgrade completes; keep
	// publishing until the event comes back.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			orch.IngestReading(telemetry.Reading{TotalPower: 4242})
			select {
			case <-stop:
				return
			case <-time.After(200 * time.Millisecond):
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var e struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&e); err != nil {
			t.Fatalf("reading event: %v", err)
		}
		if e.Type != "energy_update" {
			continue
		}
		var r telemetry.Reading
		if err := json.Unmarshal(e.Data, &r); err != nil {
			t.Fatalf("decoding reading: %v", err)
		}
		if r.TotalPower == 4242 {
			return
		}
	}
}

func TestShutdownBeforeStart(t *testing.T) {
	// Start runs in a goroutine in production; a shutdown signal can
	// arrive before it. The server must be fully constructed up front.
	srv := NewServer("127.0.0.1", 0, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown before Start: %v", err)
	}
}

func TestRootEndpoint(t *testing.T) {
	ts, _ := newTestStack(t)

	var root map[string]string
	if code := getJSON(t, ts.URL+"/", &root); code != http.StatusOK {
		t.Fatalf("root = %d", code)
	}
	if root["service"] != "gridmind" {
		t.Errorf("service = %q", root["service"])
	}
}
