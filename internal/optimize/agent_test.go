package optimize

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jouleworks/gridmind/internal/agent"
	"github.com/jouleworks/gridmind/internal/device"
	"github.com/jouleworks/gridmind/internal/forecast"
	"github.com/jouleworks/gridmind/internal/llm"
)

type fakeLLM struct {
	text   string
	err    error
	health llm.Health
	calls  int
}

func (f *fakeLLM) GenerateText(ctx context.Context, prompt string, opts llm.SampleOptions) (string, error) {
	f.calls++
	return f.text, f.err
}

func (f *fakeLLM) HealthCheck(ctx context.Context) llm.Health { return f.health }

type fakeControl struct {
	calls []string
	err   error
}

func (f *fakeControl) control(deviceID string, action device.Action, value float64) error {
	f.calls = append(f.calls, deviceID+":"+string(action))
	return f.err
}

func newTestAgent(client llm.Client, devices []device.Device, fc *forecast.Forecast, control ControlFunc) *Agent {
	a := New(client,
		func() []device.Device { return devices },
		func() (forecast.Forecast, bool) {
			if fc == nil {
				return forecast.Forecast{}, false
			}
			return *fc, true
		},
		control, nil, nil)
	a.nowFunc = func() time.Time {
		return time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	}
	return a
}

func TestRunAIRecommendations(t *testing.T) {
	client := &fakeLLM{text: `{"recommendations": [
		{"title": "Lower thermostat", "description": "Drop 2 degrees", "category": "hvac",
		 "potential_savings": 1.2, "difficulty": "easy",
		 "device_ids": ["hvac-living"], "action": "set_temperature", "value": 70},
		{"title": "Run dryer late", "category": "appliance_scheduling",
		 "potential_savings": 0.8, "difficulty": "easy",
		 "device_ids": ["appl-dryer"], "action": "schedule"}
	]}`}
	a := newTestAgent(client, device.DefaultDevices(), nil, nil)

	a.Run(context.Background())

	recs := a.Active()
	if len(recs) != 2 {
		t.Fatalf("got %d recommendations, want 2", len(recs))
	}
	for i, r := range recs {
		if r.Source != SourceAI {
			t.Errorf("source = %q, want ai", r.Source)
		}
		if r.Rank != i+1 {
			t.Errorf("rank = %d, want %d", r.Rank, i+1)
		}
		if r.ID == "" {
			t.Error("missing id")
		}
	}
	if a.Status() != agent.StatusRunning {
		t.Errorf("status = %q, want running", a.Status())
	}
}

func TestRunScoresBeforeTruncating(t *testing.T) {
	// Seven candidates, the best one listed last. Ranking happens over
	// the full set, so the cap must not cut it off unscored.
	client := &fakeLLM{text: `{"recommendations": [
		{"title": "minor 1", "category": "lighting", "potential_savings": 0.1},
		{"title": "minor 2", "category": "lighting", "potential_savings": 0.1},
		{"title": "minor 3", "category": "lighting", "potential_savings": 0.1},
		{"title": "minor 4", "category": "lighting", "potential_savings": 0.1},
		{"title": "minor 5", "category": "lighting", "potential_savings": 0.1},
		{"title": "minor 6", "category": "lighting", "potential_savings": 0.1},
		{"title": "Shift the dryer", "category": "appliance_scheduling",
		 "potential_savings": 5.0, "difficulty": "easy",
		 "device_ids": ["appl-dryer"], "action": "schedule"}
	]}`}
	a := newTestAgent(client, device.DefaultDevices(), nil, nil)

	a.Run(context.Background())

	recs := a.Active()
	if len(recs) != maxRecommendations {
		t.Fatalf("got %d recommendations, want %d", len(recs), maxRecommendations)
	}
	if recs[0].Title != "Shift the dryer" {
		t.Errorf("rank 1 = %q, want the high-savings candidate", recs[0].Title)
	}
}

func TestRunLLMFailureNeverEmpty(t *testing.T) {
	client := &fakeLLM{err: &llm.RequestError{StatusCode: 502}}
	a := newTestAgent(client, device.DefaultDevices(), nil, nil)

	a.Run(context.Background())

	recs := a.Active()
	if len(recs) == 0 {
		t.Fatal("active list empty after a completed cycle")
	}
	for _, r := range recs {
		if r.Source != SourceRules {
			t.Errorf("source = %q, want rules", r.Source)
		}
	}
	if a.Status() != agent.StatusDegraded {
		t.Errorf("status = %q, want degraded", a.Status())
	}
}

// At hour 18 with the backend down, the rule set must include a
// pre-cool recommendation for the running climate-control device with
// a lower setpoint.
func TestRunPeakHourPreCoolFallback(t *testing.T) {
	client := &fakeLLM{err: &llm.RequestError{StatusCode: 500}}
	a := newTestAgent(client, device.DefaultDevices(), nil, nil)

	a.Run(context.Background())

	found := false
	for _, r := range a.Active() {
		if r.Category != CategoryHVAC {
			continue
		}
		for _, id := range r.DeviceIDs {
			if id == "hvac-living" && r.Value != nil && *r.Value < 72 {
				found = true
			}
		}
	}
	if !found {
		t.Errorf("no pre-cool recommendation for hvac-living in %+v", a.Active())
	}
}

func TestRunUnconfiguredStaysRunning(t *testing.T) {
	client := &fakeLLM{err: llm.ErrUnconfigured}
	a := newTestAgent(client, device.DefaultDevices(), nil, nil)

	a.Run(context.Background())

	if len(a.Active()) == 0 {
		t.Fatal("active list empty")
	}
	if a.Status() != agent.StatusRunning {
		t.Errorf("status = %q, want running", a.Status())
	}
}

func TestRunMalformedResponseFallsBack(t *testing.T) {
	client := &fakeLLM{text: "I refuse to answer in JSON."}
	a := newTestAgent(client, device.DefaultDevices(), nil, nil)

	a.Run(context.Background())

	if len(a.Active()) == 0 {
		t.Fatal("active list empty")
	}
	if a.Status() != agent.StatusDegraded {
		t.Errorf("status = %q, want degraded", a.Status())
	}
}

func TestRunForecastFeedsPrompt(t *testing.T) {
	fc := &forecast.Forecast{
		GeneratedAt: time.Now(),
		Source:      forecast.SourceAI,
		Points:      []forecast.Point{{Hour: 18, PredictedUsage: 4000, PredictedCost: 0.48, CostTier: forecast.TierPeak, Confidence: 0.8}},
	}
	client := &fakeLLM{err: llm.ErrUnconfigured}
	a := newTestAgent(client, device.DefaultDevices(), fc, nil)

	a.Run(context.Background())

	if client.calls != 1 {
		t.Fatalf("llm calls = %d, want 1", client.calls)
	}
}

func TestApply(t *testing.T) {
	ctl := &fakeControl{}
	a := newTestAgent(&fakeLLM{err: llm.ErrUnconfigured}, device.DefaultDevices(), nil, ctl.control)
	a.Run(context.Background())

	var target Recommendation
	for _, r := range a.Active() {
		if r.Action == string(device.ActionSetTemperature) && len(r.DeviceIDs) == 1 {
			target = r
			break
		}
	}
	if target.ID == "" {
		t.Fatalf("no automatable recommendation in %+v", a.Active())
	}
	before := len(a.Active())

	applied, err := a.Apply(target.ID)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if applied.ID != target.ID {
		t.Errorf("applied id = %q, want %q", applied.ID, target.ID)
	}
	if len(ctl.calls) != 1 {
		t.Fatalf("control calls = %v, want one", ctl.calls)
	}
	if got := len(a.Active()); got != before-1 {
		t.Errorf("active count = %d, want %d", got, before-1)
	}
	for _, r := range a.Active() {
		if r.ID == target.ID {
			t.Error("applied recommendation still active")
		}
	}
	for i, r := range a.Active() {
		if r.Rank != i+1 {
			t.Errorf("rank after apply = %d at position %d", r.Rank, i)
		}
	}
	if got := a.TotalSavings(); got != target.PotentialSavings {
		t.Errorf("total savings = %v, want %v", got, target.PotentialSavings)
	}
	if got := len(a.AppliedHistory()); got != 1 {
		t.Errorf("applied history length = %d, want 1", got)
	}
}

func TestApplyControlFailureKeepsRecommendation(t *testing.T) {
	ctl := &fakeControl{err: errors.New("device offline")}
	a := newTestAgent(&fakeLLM{err: llm.ErrUnconfigured}, device.DefaultDevices(), nil, ctl.control)
	a.Run(context.Background())

	var target Recommendation
	for _, r := range a.Active() {
		if r.Action == string(device.ActionSetTemperature) && len(r.DeviceIDs) == 1 {
			target = r
			break
		}
	}
	if target.ID == "" {
		t.Fatalf("no automatable recommendation in %+v", a.Active())
	}
	before := len(a.Active())

	if _, err := a.Apply(target.ID); err == nil {
		t.Fatal("Apply succeeded despite control failure")
	}
	if got := len(a.Active()); got != before {
		t.Errorf("active count changed to %d on failed apply", got)
	}
	if a.TotalSavings() != 0 {
		t.Errorf("savings accrued on failed apply: %v", a.TotalSavings())
	}
}

func TestApplyUnknownID(t *testing.T) {
	a := newTestAgent(&fakeLLM{err: llm.ErrUnconfigured}, device.DefaultDevices(), nil, nil)
	a.Run(context.Background())

	_, err := a.Apply("nope")
	if !errors.Is(err, ErrUnknownRecommendation) {
		t.Fatalf("err = %v, want ErrUnknownRecommendation", err)
	}
}
