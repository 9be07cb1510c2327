package splitz

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matt-riley/splitz/internal/visitor"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		SiteCode:        "test-site",
		Environment:     "production",
		BaseURL:         "http://configuration.invalid",
		RefreshInterval: time.Hour,
		FetchTimeout:    time.Second,
		FlushInterval:   time.Hour,
		LogLevel:        "error",
	}
}

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	client, err := NewClient(testConfig(), opts...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func loadSnapshot(t *testing.T, c *Client, payload string) {
	t.Helper()
	if err := c.LoadSnapshot([]byte(payload)); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
}

const testConfiguration = `{
	"settings": {"siteEnabled": true},
	"customData": [
		{"id": 1, "index": 1},
		{"id": 2, "index": 2, "localOnly": true}
	],
	"segments": [
		{"id": 10, "name": "gb-shoppers", "conditionsData":
			{"targetingType": "CUSTOM_DATUM", "customDataIndex": 1, "operator": "CONTAINS", "value": "gb", "include": true}},
		{"id": 11, "name": "no-phones", "conditionsData":
			{"targetingType": "DEVICE_TYPE", "device": "PHONE", "include": false}},
		{"id": 12, "name": "alice-only", "conditionsData":
			{"targetingType": "VISITOR_CODE", "operator": "EXACT", "value": "alice", "include": true}}
	],
	"featureFlags": [
		{
			"id": 100, "key": "full-on", "environmentEnabled": true,
			"featureStatus": "ACTIVATED", "defaultVariationKey": "off",
			"variations": [
				{"id": 0, "key": "off"},
				{"id": 7, "key": "on", "variables": [{"key": "color", "type": "STRING", "value": "blue"}]}
			],
			"rules": [{
				"id": 500, "order": 1, "type": "TARGETED_DELIVERY", "exposition": 1.0,
				"variationConfigurations": [
					{"variationId": 0, "deviation": 0.0},
					{"variationId": 7, "deviation": 1.0}
				]
			}]
		},
		{
			"id": 101, "key": "segmented", "environmentEnabled": true,
			"featureStatus": "ACTIVATED", "defaultVariationKey": "off",
			"variations": [{"id": 0, "key": "off"}, {"id": 8, "key": "on"}],
			"rules": [{
				"id": 501, "order": 1, "type": "TARGETED_DELIVERY", "exposition": 1.0,
				"segmentId": 10,
				"variationConfigurations": [
					{"variationId": 0, "deviation": 0.0},
					{"variationId": 8, "deviation": 1.0}
				]
			}]
		},
		{
			"id": 102, "key": "env-off", "environmentEnabled": false,
			"featureStatus": "ACTIVATED", "defaultVariationKey": "off",
			"variations": [{"id": 0, "key": "off"}]
		},
		{
			"id": 103, "key": "no-default", "environmentEnabled": true,
			"featureStatus": "ACTIVATED", "defaultVariationKey": "",
			"variations": [{"id": 9, "key": "win"}],
			"rules": [{
				"id": 503, "order": 1, "type": "TARGETED_DELIVERY", "exposition": 1.0,
				"segmentId": 12,
				"variationConfigurations": [{"variationId": 9, "deviation": 1.0}]
			}]
		},
		{
			"id": 104, "key": "scheduled", "environmentEnabled": true,
			"featureStatus": "ACTIVATED", "defaultVariationKey": "off",
			"variations": [{"id": 0, "key": "off"}, {"id": 5, "key": "on"}],
			"schedules": [{"dateStart": "2026-01-01T00:00:00Z", "dateEnd": "2026-02-01T00:00:00Z"}],
			"rules": [{
				"id": 504, "order": 1, "type": "TARGETED_DELIVERY", "exposition": 1.0,
				"variationConfigurations": [
					{"variationId": 0, "deviation": 0.0},
					{"variationId": 5, "deviation": 1.0}
				]
			}]
		},
		{
			"id": 105, "key": "excluded-phones", "environmentEnabled": true,
			"featureStatus": "ACTIVATED", "defaultVariationKey": "off",
			"variations": [{"id": 0, "key": "off"}, {"id": 6, "key": "on"}],
			"rules": [{
				"id": 505, "order": 1, "type": "TARGETED_DELIVERY", "exposition": 1.0,
				"segmentId": 11,
				"variationConfigurations": [
					{"variationId": 0, "deviation": 0.0},
					{"variationId": 6, "deviation": 1.0}
				]
			}]
		},
		{
			"id": 110, "key": "me-a", "environmentEnabled": true,
			"featureStatus": "ACTIVATED", "defaultVariationKey": "off",
			"meGroupName": "checkout",
			"variations": [{"id": 0, "key": "off"}, {"id": 2, "key": "on"}],
			"rules": [{
				"id": 510, "order": 1, "type": "TARGETED_DELIVERY", "exposition": 1.0,
				"variationConfigurations": [
					{"variationId": 0, "deviation": 0.0},
					{"variationId": 2, "deviation": 1.0}
				]
			}]
		},
		{
			"id": 111, "key": "me-b", "environmentEnabled": true,
			"featureStatus": "ACTIVATED", "defaultVariationKey": "off",
			"meGroupName": "checkout",
			"variations": [{"id": 0, "key": "off"}, {"id": 3, "key": "on"}],
			"rules": [{
				"id": 511, "order": 1, "type": "TARGETED_DELIVERY", "exposition": 1.0,
				"variationConfigurations": [
					{"variationId": 0, "deviation": 0.0},
					{"variationId": 3, "deviation": 1.0}
				]
			}]
		}
	],
	"experiments": [
		{"id": 200, "siteEnabled": true, "variationConfigurations": [{"variationId": 1, "deviation": 1.0}]},
		{"id": 201, "siteEnabled": true, "variationConfigurations": [{"variationId": 1, "deviation": 0.0}]},
		{"id": 202, "siteEnabled": false, "variationConfigurations": [{"variationId": 1, "deviation": 1.0}]}
	]
}`

func TestEvaluateFeatureFlagFullAllocation(t *testing.T) {
	client := newTestClient(t)
	loadSnapshot(t, client, testConfiguration)

	for _, code := range []string{"alice", "bob", "carol", "dave"} {
		result, err := client.EvaluateFeatureFlag(context.Background(), code, "full-on")
		if err != nil {
			t.Fatalf("EvaluateFeatureFlag(%q): %v", code, err)
		}
		if !result.Active || result.VariationKey != "on" {
			t.Errorf("visitor %q: got active=%v key=%q, want the full-allocation variation", code, result.Active, result.VariationKey)
		}
		if got := result.Variables["color"].Value; got != "blue" {
			t.Errorf("visitor %q: color variable = %v, want %q", code, got, "blue")
		}
	}
}

func TestEvaluateFeatureFlagIsSticky(t *testing.T) {
	client := newTestClient(t)
	loadSnapshot(t, client, testConfiguration)

	first, err := client.EvaluateFeatureFlag(context.Background(), "alice", "full-on")
	if err != nil {
		t.Fatalf("first evaluation: %v", err)
	}
	second, err := client.EvaluateFeatureFlag(context.Background(), "alice", "full-on")
	if err != nil {
		t.Fatalf("second evaluation: %v", err)
	}
	if first.VariationKey != second.VariationKey {
		t.Errorf("variation changed between evaluations: %q then %q", first.VariationKey, second.VariationKey)
	}
}

func TestEvaluateFeatureFlagErrors(t *testing.T) {
	client := newTestClient(t)
	loadSnapshot(t, client, testConfiguration)

	tests := []struct {
		name        string
		visitorCode string
		featureKey  string
		wantErr     error
	}{
		{"empty visitor code", "", "full-on", ErrVisitorCodeEmpty},
		{"visitor code too long", strings.Repeat("x", 256), "full-on", ErrVisitorCodeTooLong},
		{"unknown flag", "alice", "nope", ErrFeatureNotFound},
		{"environment disabled", "alice", "env-off", ErrFeatureEnvDisabled},
		{"not targeted without default", "bob", "no-default", ErrNotTargeted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.EvaluateFeatureFlag(context.Background(), tt.visitorCode, tt.featureKey)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got error %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEvaluateFeatureFlagSiteDisabled(t *testing.T) {
	client := newTestClient(t)
	loadSnapshot(t, client, `{"settings": {"siteEnabled": false}}`)

	if _, err := client.EvaluateFeatureFlag(context.Background(), "alice", "full-on"); !errors.Is(err, ErrSiteCodeDisabled) {
		t.Errorf("got error %v, want ErrSiteCodeDisabled", err)
	}
}

func TestEvaluateFeatureFlagSegmentTargeting(t *testing.T) {
	client := newTestClient(t)
	loadSnapshot(t, client, testConfiguration)
	ctx := context.Background()

	if err := client.AddData(ctx, "alice", CustomData{Index: 1, Values: []string{"fr", "gb"}}); err != nil {
		t.Fatalf("AddData: %v", err)
	}

	targeted, err := client.EvaluateFeatureFlag(ctx, "alice", "segmented")
	if err != nil {
		t.Fatalf("targeted visitor: %v", err)
	}
	if !targeted.Active || targeted.VariationKey != "on" {
		t.Errorf("targeted visitor: got active=%v key=%q, want the rule variation", targeted.Active, targeted.VariationKey)
	}

	// No custom data at all: the condition cannot match, the rule is
	// skipped, and the default variation applies without error.
	untargeted, err := client.EvaluateFeatureFlag(ctx, "bob", "segmented")
	if err != nil {
		t.Fatalf("untargeted visitor: %v", err)
	}
	if untargeted.Active || untargeted.VariationKey != "off" {
		t.Errorf("untargeted visitor: got active=%v key=%q, want the default", untargeted.Active, untargeted.VariationKey)
	}

	// Alice with matching data also satisfies the visitor-code segment on
	// the flag without a default.
	win, err := client.EvaluateFeatureFlag(ctx, "alice", "no-default")
	if err != nil {
		t.Fatalf("no-default for targeted visitor: %v", err)
	}
	if win.VariationKey != "win" {
		t.Errorf("no-default: got key %q, want %q", win.VariationKey, "win")
	}
}

func TestEvaluateFeatureFlagExclusionSegment(t *testing.T) {
	client := newTestClient(t)
	loadSnapshot(t, client, testConfiguration)
	ctx := context.Background()

	if err := client.AddData(ctx, "phone-user", Device{Type: "PHONE"}); err != nil {
		t.Fatalf("AddData: %v", err)
	}

	excluded, err := client.EvaluateFeatureFlag(ctx, "phone-user", "excluded-phones")
	if err != nil {
		t.Fatalf("excluded visitor: %v", err)
	}
	if excluded.Active {
		t.Errorf("phone visitor should be excluded, got variation %q", excluded.VariationKey)
	}

	// An exclusion condition over an unknown fact passes: a visitor whose
	// device is unknown cannot be proven to be on a phone.
	unknown, err := client.EvaluateFeatureFlag(ctx, "desktop-maybe", "excluded-phones")
	if err != nil {
		t.Fatalf("unknown-device visitor: %v", err)
	}
	if !unknown.Active || unknown.VariationKey != "on" {
		t.Errorf("unknown-device visitor: got active=%v key=%q, want targeted", unknown.Active, unknown.VariationKey)
	}
}

func TestEvaluateFeatureFlagSchedule(t *testing.T) {
	tests := []struct {
		name       string
		now        time.Time
		wantActive bool
	}{
		{"inside window", time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC), true},
		{"before window", time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC), false},
		{"after window", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, withClock(func() time.Time { return tt.now }))
			loadSnapshot(t, client, testConfiguration)

			result, err := client.EvaluateFeatureFlag(context.Background(), "alice", "scheduled")
			if err != nil {
				t.Fatalf("EvaluateFeatureFlag: %v", err)
			}
			if result.Active != tt.wantActive {
				t.Errorf("active = %v, want %v", result.Active, tt.wantActive)
			}
		})
	}
}

func TestEvaluateFeatureFlagMEGroup(t *testing.T) {
	client := newTestClient(t)
	loadSnapshot(t, client, testConfiguration)
	ctx := context.Background()

	// Exactly one member of a mutually-exclusive group may activate per
	// visitor, and the election is stable.
	for _, code := range []string{"alice", "bob", "carol", "dave", "erin"} {
		a, err := client.EvaluateFeatureFlag(ctx, code, "me-a")
		if err != nil {
			t.Fatalf("me-a for %q: %v", code, err)
		}
		b, err := client.EvaluateFeatureFlag(ctx, code, "me-b")
		if err != nil {
			t.Fatalf("me-b for %q: %v", code, err)
		}
		if a.Active == b.Active {
			t.Errorf("visitor %q: me-a active=%v, me-b active=%v, want exactly one", code, a.Active, b.Active)
		}

		again, err := client.EvaluateFeatureFlag(ctx, code, "me-a")
		if err != nil {
			t.Fatalf("me-a again for %q: %v", code, err)
		}
		if again.Active != a.Active {
			t.Errorf("visitor %q: me-a election flipped between calls", code)
		}
	}
}

func TestForcedVariation(t *testing.T) {
	client := newTestClient(t)
	loadSnapshot(t, client, testConfiguration)
	ctx := context.Background()

	if err := client.SetForcedVariation("alice", "full-on", "off"); err != nil {
		t.Fatalf("SetForcedVariation: %v", err)
	}
	forced, err := client.EvaluateFeatureFlag(ctx, "alice", "full-on")
	if err != nil {
		t.Fatalf("forced evaluation: %v", err)
	}
	if forced.Active || forced.VariationKey != "off" {
		t.Errorf("got active=%v key=%q, want the forced off variation", forced.Active, forced.VariationKey)
	}

	if err := client.SetForcedVariation("alice", "full-on", "missing"); err != nil {
		t.Fatalf("SetForcedVariation: %v", err)
	}
	if _, err := client.EvaluateFeatureFlag(ctx, "alice", "full-on"); !errors.Is(err, ErrVariationNotFound) {
		t.Errorf("got error %v, want ErrVariationNotFound", err)
	}

	// Empty key clears the override.
	if err := client.SetForcedVariation("alice", "full-on", ""); err != nil {
		t.Fatalf("SetForcedVariation: %v", err)
	}
	normal, err := client.EvaluateFeatureFlag(ctx, "alice", "full-on")
	if err != nil {
		t.Fatalf("cleared evaluation: %v", err)
	}
	if !normal.Active || normal.VariationKey != "on" {
		t.Errorf("after clearing: got active=%v key=%q, want normal allocation", normal.Active, normal.VariationKey)
	}
}

func TestEvaluateExperiment(t *testing.T) {
	client := newTestClient(t)
	loadSnapshot(t, client, testConfiguration)
	ctx := context.Background()

	id, err := client.EvaluateExperiment(ctx, "alice", 200)
	if err != nil {
		t.Fatalf("EvaluateExperiment: %v", err)
	}
	if id != 1 {
		t.Errorf("variation id = %d, want 1", id)
	}
	again, err := client.EvaluateExperiment(ctx, "alice", 200)
	if err != nil {
		t.Fatalf("repeat EvaluateExperiment: %v", err)
	}
	if again != id {
		t.Errorf("variation changed between calls: %d then %d", id, again)
	}

	if _, err := client.EvaluateExperiment(ctx, "alice", 201); !errors.Is(err, ErrNotActivated) {
		t.Errorf("zero-deviation experiment: got %v, want ErrNotActivated", err)
	}
	if _, err := client.EvaluateExperiment(ctx, "alice", 999); !errors.Is(err, ErrExperimentNotFound) {
		t.Errorf("unknown experiment: got %v, want ErrExperimentNotFound", err)
	}
	if _, err := client.EvaluateExperiment(ctx, "alice", 202); !errors.Is(err, ErrFeatureEnvDisabled) {
		t.Errorf("disabled experiment: got %v, want ErrFeatureEnvDisabled", err)
	}
}

func TestEvaluateBeforeConfiguration(t *testing.T) {
	client := newTestClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := client.EvaluateFeatureFlag(ctx, "alice", "full-on"); !errors.Is(err, ErrNoConfiguration) {
		t.Errorf("got error %v, want ErrNoConfiguration", err)
	}
}

func TestWaitInitUnblocksOnSnapshot(t *testing.T) {
	client := newTestClient(t)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = client.LoadSnapshot([]byte(testConfiguration))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.WaitInit(ctx); err != nil {
		t.Fatalf("WaitInit: %v", err)
	}
	if _, err := client.EvaluateFeatureFlag(ctx, "alice", "full-on"); err != nil {
		t.Errorf("evaluation after init: %v", err)
	}
}

func TestStartRefreshesConfiguration(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/configurations/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(testConfiguration))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.BaseURL = server.URL
	client, err := NewClient(cfg, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	client.Start(context.Background())
	defer func() {
		if err := client.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.WaitInit(ctx); err != nil {
		t.Fatalf("WaitInit: %v", err)
	}

	result, err := client.EvaluateFeatureFlag(ctx, "alice", "full-on")
	if err != nil {
		t.Fatalf("EvaluateFeatureFlag: %v", err)
	}
	if !result.Active {
		t.Error("fetched configuration should allocate the visitor")
	}
}

func TestLoadSnapshotKeepsLastGoodOnParseFailure(t *testing.T) {
	client := newTestClient(t)
	loadSnapshot(t, client, testConfiguration)

	if err := client.LoadSnapshot([]byte("{not json")); err == nil {
		t.Fatal("expected a parse error")
	}

	result, err := client.EvaluateFeatureFlag(context.Background(), "alice", "full-on")
	if err != nil {
		t.Fatalf("evaluation after failed reload: %v", err)
	}
	if !result.Active {
		t.Error("last good snapshot should still serve evaluations")
	}
}

// gateStore is a visitor store whose Load blocks until a fixed number of
// callers have arrived, forcing concurrent first-sight lookups for the same
// visitor code down the cold-load path together.
type gateStore struct {
	gate *sync.WaitGroup
}

func (s *gateStore) Load(_ context.Context, code string) (visitor.State, error) {
	s.gate.Done()
	s.gate.Wait()
	return visitor.State{Code: code}, nil
}

func (s *gateStore) Save(context.Context, visitor.State) error { return nil }
func (s *gateStore) Delete(context.Context, string) error      { return nil }
func (s *gateStore) Close() error                              { return nil }

func TestConcurrentColdLoadKeepsAllUpdates(t *testing.T) {
	var gate sync.WaitGroup
	gate.Add(2)
	client := newTestClient(t, WithVisitorStore(&gateStore{gate: &gate}))
	loadSnapshot(t, client, testConfiguration)

	var wg sync.WaitGroup
	for _, index := range []int{1, 2} {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			if err := client.AddData(context.Background(), "bob", CustomData{Index: index, Values: []string{"x"}}); err != nil {
				t.Errorf("AddData(index %d): %v", index, err)
			}
		}(index)
	}
	wg.Wait()

	v := client.visitors.Get("bob")
	if v == nil {
		t.Fatal("visitor missing from the registry")
	}
	facts := v.CustomDataFact()
	for _, index := range []int{1, 2} {
		if len(facts[index]) == 0 {
			t.Errorf("custom data at index %d was lost (have %v)", index, facts)
		}
	}
}

// trackingServer records every event batch posted to /v1/events.
type trackingServer struct {
	mu     sync.Mutex
	events []map[string]any
}

func (s *trackingServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/events" {
			http.NotFound(w, r)
			return
		}
		var batch []map[string]any
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.events = append(s.events, batch...)
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
}

func (s *trackingServer) kinds() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make(map[string]int)
	for _, e := range s.events {
		kind, _ := e["kind"].(string)
		kinds[kind]++
	}
	return kinds
}

func TestFlushDeliversTrackingEvents(t *testing.T) {
	sink := &trackingServer{}
	server := httptest.NewServer(sink.handler())
	defer server.Close()

	cfg := testConfig()
	cfg.BaseURL = server.URL
	client, err := NewClient(cfg, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	loadSnapshot(t, client, testConfiguration)
	ctx := context.Background()

	if _, err := client.EvaluateFeatureFlag(ctx, "alice", "full-on"); err != nil {
		t.Fatalf("EvaluateFeatureFlag: %v", err)
	}
	if err := client.TrackConversion(ctx, "alice", 42, 19.99); err != nil {
		t.Fatalf("TrackConversion: %v", err)
	}
	if err := client.AddData(ctx, "alice", CustomData{Index: 1, Values: []string{"gb"}}); err != nil {
		t.Fatalf("AddData: %v", err)
	}

	if err := client.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	kinds := sink.kinds()
	for _, kind := range []string{"activation", "conversion", "customData"} {
		if kinds[kind] != 1 {
			t.Errorf("event kind %q delivered %d times, want 1 (all: %v)", kind, kinds[kind], kinds)
		}
	}

	// Everything is marked sent; a second flush delivers nothing new.
	if err := client.Flush(ctx); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if total := len(sink.kinds()); total != 3 {
		t.Errorf("got %d distinct kinds after second flush, want 3 with no duplicates", total)
	}
}

func TestFlushSkipsLocalOnlyCustomData(t *testing.T) {
	sink := &trackingServer{}
	server := httptest.NewServer(sink.handler())
	defer server.Close()

	cfg := testConfig()
	cfg.BaseURL = server.URL
	client, err := NewClient(cfg, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	loadSnapshot(t, client, testConfiguration)
	ctx := context.Background()

	// Index 2 is declared local-only by the configuration.
	if err := client.AddData(ctx, "alice", CustomData{Index: 2, Values: []string{"secret"}}); err != nil {
		t.Fatalf("AddData: %v", err)
	}
	if err := client.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if kinds := sink.kinds(); len(kinds) != 0 {
		t.Errorf("local-only custom data leaked to the tracking endpoint: %v", kinds)
	}
}

func TestConsentGatesTracking(t *testing.T) {
	sink := &trackingServer{}
	server := httptest.NewServer(sink.handler())
	defer server.Close()

	consentConfiguration := strings.Replace(testConfiguration,
		`"settings": {"siteEnabled": true}`,
		`"settings": {"siteEnabled": true, "consentRequired": true}`, 1)

	cfg := testConfig()
	cfg.BaseURL = server.URL
	client, err := NewClient(cfg, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	loadSnapshot(t, client, consentConfiguration)
	ctx := context.Background()

	// Evaluation works without consent, but nothing is reported.
	result, err := client.EvaluateFeatureFlag(ctx, "alice", "full-on")
	if err != nil {
		t.Fatalf("EvaluateFeatureFlag: %v", err)
	}
	if !result.Active {
		t.Error("consent must not gate evaluation")
	}
	if err := client.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if kinds := sink.kinds(); len(kinds) != 0 {
		t.Fatalf("events delivered without consent: %v", kinds)
	}

	if err := client.SetLegalConsent(ctx, "alice", true); err != nil {
		t.Fatalf("SetLegalConsent: %v", err)
	}
	if err := client.Flush(ctx); err != nil {
		t.Fatalf("Flush after consent: %v", err)
	}
	if kinds := sink.kinds(); kinds["activation"] != 1 {
		t.Errorf("activation not delivered after consent: %v", kinds)
	}
}

const respoolConfigurationBefore = `{
	"settings": {"siteEnabled": true},
	"featureFlags": [{
		"id": 106, "key": "respool", "environmentEnabled": true,
		"featureStatus": "ACTIVATED", "defaultVariationKey": "off",
		"variations": [{"id": 0, "key": "off"}, {"id": 3, "key": "v3"}, {"id": 4, "key": "v4"}],
		"rules": [{
			"id": 506, "order": 1, "type": "TARGETED_DELIVERY", "exposition": 1.0,
			"variationConfigurations": [{"variationId": 3, "deviation": 1.0}]
		}]
	}]
}`

const respoolConfigurationAfter = `{
	"settings": {"siteEnabled": true},
	"featureFlags": [{
		"id": 106, "key": "respool", "environmentEnabled": true,
		"featureStatus": "ACTIVATED", "defaultVariationKey": "off",
		"variations": [{"id": 0, "key": "off"}, {"id": 3, "key": "v3"}, {"id": 4, "key": "v4"}],
		"rules": [{
			"id": 506, "order": 1, "type": "TARGETED_DELIVERY", "exposition": 1.0,
			"variationConfigurations": [
				{"variationId": 3, "deviation": 0.0, "respoolTime": 2000000000},
				{"variationId": 4, "deviation": 1.0}
			]
		}]
	}]
}`

const respoolConfigurationNoRespool = `{
	"settings": {"siteEnabled": true},
	"featureFlags": [{
		"id": 106, "key": "respool", "environmentEnabled": true,
		"featureStatus": "ACTIVATED", "defaultVariationKey": "off",
		"variations": [{"id": 0, "key": "off"}, {"id": 3, "key": "v3"}, {"id": 4, "key": "v4"}],
		"rules": [{
			"id": 506, "order": 1, "type": "TARGETED_DELIVERY", "exposition": 1.0,
			"variationConfigurations": [
				{"variationId": 3, "deviation": 0.0},
				{"variationId": 4, "deviation": 1.0}
			]
		}]
	}]
}`

func TestRespoolInvalidatesStickyAssignment(t *testing.T) {
	assignedAt := time.Unix(1900000000, 0) // before the repool timestamp
	client := newTestClient(t, withClock(func() time.Time { return assignedAt }))
	loadSnapshot(t, client, respoolConfigurationBefore)
	ctx := context.Background()

	first, err := client.EvaluateFeatureFlag(ctx, "alice", "respool")
	if err != nil {
		t.Fatalf("first evaluation: %v", err)
	}
	if first.VariationKey != "v3" {
		t.Fatalf("first evaluation landed on %q, want v3", first.VariationKey)
	}

	// A repool newer than the assignment forces a fresh allocation on the
	// updated table.
	loadSnapshot(t, client, respoolConfigurationAfter)
	second, err := client.EvaluateFeatureFlag(ctx, "alice", "respool")
	if err != nil {
		t.Fatalf("evaluation after repool: %v", err)
	}
	if second.VariationKey != "v4" {
		t.Errorf("after repool got %q, want v4", second.VariationKey)
	}
}

func TestStickyAssignmentSurvivesTableChangeWithoutRespool(t *testing.T) {
	client := newTestClient(t)
	loadSnapshot(t, client, respoolConfigurationBefore)
	ctx := context.Background()

	first, err := client.EvaluateFeatureFlag(ctx, "alice", "respool")
	if err != nil {
		t.Fatalf("first evaluation: %v", err)
	}
	if first.VariationKey != "v3" {
		t.Fatalf("first evaluation landed on %q, want v3", first.VariationKey)
	}

	// Without a repool the recorded assignment stays valid even though the
	// deviation table no longer favours it.
	loadSnapshot(t, client, respoolConfigurationNoRespool)
	second, err := client.EvaluateFeatureFlag(ctx, "alice", "respool")
	if err != nil {
		t.Fatalf("evaluation after table change: %v", err)
	}
	if second.VariationKey != "v3" {
		t.Errorf("after table change got %q, want the sticky v3", second.VariationKey)
	}
}
