package splitz

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/matt-riley/splitz/internal/allocation"
	"github.com/matt-riley/splitz/internal/config"
	"github.com/matt-riley/splitz/internal/logging"
	"github.com/matt-riley/splitz/internal/metrics"
	"github.com/matt-riley/splitz/internal/models"
	"github.com/matt-riley/splitz/internal/network"
	"github.com/matt-riley/splitz/internal/storage"
	"github.com/matt-riley/splitz/internal/targeting"
	"github.com/matt-riley/splitz/internal/tracing"
	"github.com/matt-riley/splitz/internal/visitor"
)

// Client is the SDK entry point. Evaluations are synchronous and CPU-only:
// they read the immutable configuration snapshot and the per-visitor state,
// never the network. Configuration refresh and event tracking run on
// background goroutines started by [Client.Start].
type Client struct {
	cfg      config.Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	store    *models.Store
	visitors *visitor.Manager
	fetcher  *network.Fetcher
	tracker  *network.Tracker
	vstore   storage.Store
	now      func() time.Time

	cancel         context.CancelFunc
	wg             sync.WaitGroup
	shutdownTracer func(context.Context) error
}

// Option customises a Client.
type Option func(*Client)

// WithLogger injects a logger. The default writes JSON to stderr at the
// configured level.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithMetrics injects a metrics set, letting the host application expose
// the SDK's registry alongside its own.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithVisitorStore attaches a durable visitor store. Visitor state is
// written through after mutations and loaded on first sight of a visitor
// code, so sticky assignments survive restarts. The caller owns the store's
// lifecycle.
func WithVisitorStore(store storage.Store) Option {
	return func(c *Client) { c.vstore = store }
}

// withClock overrides the evaluation clock in tests.
func withClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a Client from a configuration loaded with [LoadConfig].
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.SiteCode == "" {
		return nil, fmt.Errorf("splitz: site code is required")
	}

	c := &Client{
		cfg:      cfg,
		store:    models.NewStore(),
		visitors: visitor.NewManager(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logging.New(cfg.LogLevel)
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}

	if pg, ok := c.vstore.(*storage.PostgresStore); ok {
		pg.RegisterMetrics(c.metrics.Registry)
	}

	c.fetcher = network.NewFetcher(cfg.BaseURL, cfg.SiteCode, cfg.Environment, cfg.FetchTimeout, c.log)
	c.tracker = network.NewTracker(network.TrackerConfig{
		BaseURL:       cfg.BaseURL,
		SiteCode:      cfg.SiteCode,
		Timeout:       cfg.FetchTimeout,
		FlushInterval: cfg.FlushInterval,
		OnFlush:       c.metrics.RecordTrackingFlush,
	}, c.log)

	return c, nil
}

// Metrics returns the SDK's metric set, for exposing its registry.
func (c *Client) Metrics() *metrics.Metrics { return c.metrics }

// Start launches the configuration refresh and tracking loops. They stop
// when ctx is cancelled or [Client.Close] is called.
func (c *Client) Start(ctx context.Context) {
	shutdown, err := tracing.Init(ctx)
	if err != nil {
		c.log.Warn("tracing init failed", slog.String("error", err.Error()))
	} else {
		c.shutdownTracer = shutdown
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(3)
	go func() {
		defer c.wg.Done()
		c.refreshLoop(runCtx)
	}()
	go func() {
		defer c.wg.Done()
		c.tracker.Run(runCtx)
	}()
	go func() {
		defer c.wg.Done()
		c.collectLoop(runCtx)
	}()
}

// Close stops the background loops after handing any pending visitor
// events to the tracker, which makes a final delivery attempt.
func (c *Client) Close() error {
	c.collectTracking()
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	if c.shutdownTracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.shutdownTracer(ctx); err != nil {
			return fmt.Errorf("shut down tracer: %w", err)
		}
	}
	return nil
}

// WaitInit blocks until the first configuration snapshot is loaded or ctx
// expires. Evaluations before init return [ErrNoConfiguration] once their
// context expires.
func (c *Client) WaitInit(ctx context.Context) error {
	return c.store.Wait(ctx)
}

// LoadSnapshot installs a configuration from a raw JSON payload, bypassing
// the remote fetcher. Intended for QA tooling and offline evaluation.
// Malformed entries are skipped; a whole-payload parse failure installs an
// empty snapshot only when none was loaded before, and returns the error.
func (c *Client) LoadSnapshot(payload []byte) error {
	snap, err := models.ParseSnapshot(payload, c.log)
	if err != nil {
		if !c.store.Ready() {
			c.store.Swap(snap)
		}
		return err
	}
	c.store.Swap(snap)
	return nil
}

// EvaluateFeatureFlag evaluates a feature flag for a visitor: forced
// variations first, then the environment, schedule, and ME-group gates,
// then each rule in order (targeting, then allocation). The first rule that
// targets the visitor and allocates a variation wins; otherwise the flag's
// default variation applies.
func (c *Client) EvaluateFeatureFlag(ctx context.Context, visitorCode, featureKey string) (FlagResult, error) {
	start := time.Now()

	if err := validateVisitorCode(visitorCode); err != nil {
		return FlagResult{}, err
	}
	snap, err := c.snapshot(ctx)
	if err != nil {
		return FlagResult{}, err
	}
	if !snap.Settings.SiteEnabled {
		return FlagResult{}, ErrSiteCodeDisabled
	}

	flag, ok := snap.FeatureFlagByKey(featureKey)
	if !ok {
		return FlagResult{}, fmt.Errorf("%w: %q", ErrFeatureNotFound, featureKey)
	}

	v := c.visitorFor(ctx, visitorCode)

	if forcedKey, forced := v.ForcedVariation(featureKey); forced {
		result, ok := resultForKey(flag, forcedKey)
		if !ok {
			return FlagResult{}, fmt.Errorf("%w: %q on flag %q", ErrVariationNotFound, forcedKey, featureKey)
		}
		c.metrics.RecordEvaluation("feature_flag", result.Active, time.Since(start))
		return result, nil
	}

	if !flag.EnvironmentEnabled {
		return FlagResult{}, fmt.Errorf("%w: %q", ErrFeatureEnvDisabled, featureKey)
	}

	now := c.now()
	if !flag.ActiveAt(now) {
		result := defaultResult(flag)
		c.metrics.RecordEvaluation("feature_flag", false, time.Since(start))
		return result, nil
	}

	if flag.MEGroupName != "" {
		winner := allocation.SelectMEGroupFlag(visitorCode, flag.MEGroupName, snap.MEGroup(flag.MEGroupName))
		if winner == nil || winner.ID != flag.ID {
			result := defaultResult(flag)
			c.metrics.RecordEvaluation("feature_flag", false, time.Since(start))
			return result, nil
		}
	}

	for i := range flag.Rules {
		rule := &flag.Rules[i]

		if rule.SegmentID != 0 {
			segment, ok := snap.SegmentByID(rule.SegmentID)
			if !ok {
				continue
			}
			resolver := c.resolverFor(snap, v, visitorCode, rule.ID, now)
			if segment.Tree.Evaluate(resolver) != targeting.True {
				continue
			}
		}

		if record, ok := v.Assignment(rule.ID); ok {
			if allocation.Sticky(rule.Variations, record.VariationID, record.AssignedAt.Unix()) {
				result := flagResult(flag, record.VariationID)
				c.metrics.RecordEvaluation("feature_flag", result.Active, time.Since(start))
				return result, nil
			}
			// A repool newer than the assignment invalidates it.
			v.DropAssignment(rule.ID)
		}

		variationID, allocated := allocation.Allocate(visitorCode, rule.ID, rule.Variations, rule.Exposition)
		if !allocated {
			continue
		}

		v.SetAssignment(rule.ID, visitor.AssignmentRecord{
			Scope:       visitor.ScopeFeatureFlag,
			VariationID: variationID,
			RuleType:    string(rule.Type),
			AssignedAt:  now,
		})
		c.persist(ctx, v)

		result := flagResult(flag, variationID)
		c.metrics.RecordEvaluation("feature_flag", result.Active, time.Since(start))
		return result, nil
	}

	if flag.DefaultVariationKey == "" {
		return FlagResult{}, fmt.Errorf("%w: flag %q", ErrNotTargeted, featureKey)
	}
	result := defaultResult(flag)
	c.metrics.RecordEvaluation("feature_flag", false, time.Since(start))
	return result, nil
}

// EvaluateExperiment buckets a visitor into an experiment variation.
// Returns [ErrNotActivated] when the deviation table leaves the visitor
// unallocated (deviations summing below 1).
func (c *Client) EvaluateExperiment(ctx context.Context, visitorCode string, experimentID int) (int, error) {
	start := time.Now()

	if err := validateVisitorCode(visitorCode); err != nil {
		return 0, err
	}
	snap, err := c.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	if !snap.Settings.SiteEnabled {
		return 0, ErrSiteCodeDisabled
	}

	experiment, ok := snap.ExperimentByID(experimentID)
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrExperimentNotFound, experimentID)
	}
	if !experiment.SiteEnabled {
		return 0, fmt.Errorf("%w: experiment %d", ErrFeatureEnvDisabled, experimentID)
	}

	v := c.visitorFor(ctx, visitorCode)

	if record, ok := v.Assignment(experimentID); ok && record.Scope == visitor.ScopeExperiment {
		if allocation.Sticky(experiment.Variations, record.VariationID, record.AssignedAt.Unix()) {
			c.metrics.RecordEvaluation("experiment", true, time.Since(start))
			return record.VariationID, nil
		}
		v.DropAssignment(experimentID)
	}

	variationID, allocated := allocation.Allocate(visitorCode, experimentID, experiment.Variations, 1.0)
	if !allocated {
		c.metrics.RecordEvaluation("experiment", false, time.Since(start))
		return 0, fmt.Errorf("%w: experiment %d", ErrNotActivated, experimentID)
	}

	v.SetAssignment(experimentID, visitor.AssignmentRecord{
		Scope:       visitor.ScopeExperiment,
		VariationID: variationID,
		RuleType:    string(models.RuleExperimentation),
		AssignedAt:  c.now(),
	})
	c.persist(ctx, v)

	c.metrics.RecordEvaluation("experiment", true, time.Since(start))
	return variationID, nil
}

// AddData attaches visitor facts consumed by targeting conditions.
func (c *Client) AddData(ctx context.Context, visitorCode string, data ...Data) error {
	if err := validateVisitorCode(visitorCode); err != nil {
		return err
	}

	info := models.NewCustomDataInfo(nil)
	if snap := c.store.Current(); snap != nil {
		info = snap.CustomData
	}

	v := c.visitorFor(ctx, visitorCode)
	now := c.now()
	for _, d := range data {
		d.apply(v, info, now)
	}
	c.persist(ctx, v)
	return nil
}

// TrackConversion records a goal conversion for the visitor and queues it
// for the tracking endpoint.
func (c *Client) TrackConversion(ctx context.Context, visitorCode string, goalID int, revenue float64) error {
	if err := validateVisitorCode(visitorCode); err != nil {
		return err
	}
	v := c.visitorFor(ctx, visitorCode)
	v.AddConversion(goalID, revenue, c.now())
	c.persist(ctx, v)
	return nil
}

// SetLegalConsent records the visitor's consent decision. When the
// configuration requires consent and it is absent or revoked, evaluations
// still run but nothing is tracked or persisted for the visitor.
func (c *Client) SetLegalConsent(ctx context.Context, visitorCode string, granted bool) error {
	if err := validateVisitorCode(visitorCode); err != nil {
		return err
	}
	v := c.visitorFor(ctx, visitorCode)
	v.SetConsent(granted)
	c.persist(ctx, v)
	return nil
}

// SetForcedVariation forces a variation for a flag, bypassing targeting and
// allocation on subsequent evaluations. An empty variation key clears the
// override. A QA/preview backdoor; forced evaluations are never tracked.
func (c *Client) SetForcedVariation(visitorCode, featureKey, variationKey string) error {
	if err := validateVisitorCode(visitorCode); err != nil {
		return err
	}
	c.visitors.GetOrCreate(visitorCode).SetForcedVariation(featureKey, variationKey)
	return nil
}

// Flush hands all pending visitor events to the tracker and delivers them
// synchronously.
func (c *Client) Flush(ctx context.Context) error {
	c.collectTracking()
	return c.tracker.Flush(ctx)
}

func (c *Client) snapshot(ctx context.Context) (*models.Snapshot, error) {
	if snap := c.store.Current(); snap != nil {
		return snap, nil
	}
	// Cold start: wait up to the caller's deadline for the first snapshot.
	if err := c.store.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoConfiguration, err)
	}
	return c.store.Current(), nil
}

func (c *Client) visitorFor(ctx context.Context, code string) *visitor.Visitor {
	if v := c.visitors.Get(code); v != nil {
		return v
	}
	if c.vstore != nil {
		if state, err := c.vstore.Load(ctx, code); err == nil {
			// Put yields whichever instance won the registry: a
			// concurrent first sight of the same code must not
			// clobber mutations already applied to the winner.
			return c.visitors.Put(visitor.Restore(state))
		}
	}
	return c.visitors.GetOrCreate(code)
}

func (c *Client) persist(ctx context.Context, v *visitor.Visitor) {
	if c.vstore == nil || !c.trackingAllowed(v) {
		return
	}
	if err := c.vstore.Save(ctx, v.Export()); err != nil {
		c.log.Warn("persist visitor failed",
			slog.String("visitor_code", v.Code()),
			slog.String("error", err.Error()))
	}
}

// trackingAllowed applies consent gating: with no snapshot yet nothing is
// reported; with consent required, only visitors who granted it are
// tracked or persisted.
func (c *Client) trackingAllowed(v *visitor.Visitor) bool {
	snap := c.store.Current()
	if snap == nil {
		return false
	}
	if !snap.Settings.ConsentRequired {
		return true
	}
	granted, ok := v.Consent()
	return ok && granted
}

func (c *Client) refreshLoop(ctx context.Context) {
	c.refresh(ctx)

	ticker := time.NewTicker(c.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refresh(ctx)
		}
	}
}

func (c *Client) refresh(ctx context.Context) {
	start := time.Now()

	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	payload, notModified, err := c.fetcher.Fetch(fetchCtx)
	if err != nil {
		// Fail soft: keep the last snapshot.
		c.metrics.RecordConfigRefresh("error", time.Since(start))
		c.log.Warn("configuration refresh failed", slog.String("error", err.Error()))
		return
	}
	if notModified {
		c.metrics.RecordConfigRefresh("not_modified", time.Since(start))
		return
	}

	snap, err := models.ParseSnapshot(payload, c.log)
	if err != nil {
		c.metrics.RecordConfigRefresh("error", time.Since(start))
		c.log.Error("configuration unusable", slog.String("error", err.Error()))
		if !c.store.Ready() {
			// Degrade to an empty snapshot so evaluations report "not
			// targeted" instead of waiting forever.
			c.store.Swap(snap)
		}
		return
	}

	c.store.Swap(snap)
	c.metrics.RecordConfigRefresh("updated", time.Since(start))
	c.log.Info("configuration updated", slog.Int("feature_flags", len(snap.FeatureFlags())))
}

func (c *Client) collectLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collectTracking()
			c.metrics.SetVisitorsTracked(c.visitors.Count())
			c.metrics.SetTrackingQueueSize(c.tracker.QueueLen())
		}
	}
}

// collectTracking moves unsent visitor items onto the tracker queue. Once
// handed over, items are marked sent on the visitor; the tracker owns
// delivery and retries from there.
func (c *Client) collectTracking() {
	c.visitors.Each(func(v *visitor.Visitor) {
		if !c.trackingAllowed(v) {
			return
		}
		code := v.Code()
		userAgent := v.UserAgent()

		exposures := v.UnsentExposures()
		if len(exposures) > 0 {
			sent := make([]int, 0, len(exposures))
			for campaignID, record := range exposures {
				if err := c.tracker.Enqueue(activationEvent{
					Kind:        "activation",
					VisitorCode: code,
					UserAgent:   userAgent,
					CampaignID:  campaignID,
					VariationID: record.VariationID,
					RuleType:    record.RuleType,
					At:          record.AssignedAt.Unix(),
				}); err == nil {
					sent = append(sent, campaignID)
				}
			}
			v.MarkExposuresSent(sent)
		}

		conversions := v.UnsentConversions()
		if len(conversions) > 0 {
			sent := make([]int, 0, len(conversions))
			for index, conv := range conversions {
				if err := c.tracker.Enqueue(conversionEvent{
					Kind:        "conversion",
					VisitorCode: code,
					UserAgent:   userAgent,
					GoalID:      conv.GoalID,
					Revenue:     conv.Revenue,
					At:          conv.At.Unix(),
				}); err == nil {
					sent = append(sent, index)
				}
			}
			v.MarkConversionsSent(sent)
		}

		customData := v.UnsentCustomData()
		if len(customData) > 0 {
			sent := make([]int, 0, len(customData))
			for index, values := range customData {
				if err := c.tracker.Enqueue(customDataEvent{
					Kind:        "customData",
					VisitorCode: code,
					UserAgent:   userAgent,
					Index:       index,
					Values:      values,
				}); err == nil {
					sent = append(sent, index)
				}
			}
			v.MarkCustomDataSent(sent)
		}
	})
}

type activationEvent struct {
	Kind        string `json:"kind"`
	VisitorCode string `json:"visitorCode"`
	UserAgent   string `json:"userAgent,omitempty"`
	CampaignID  int    `json:"campaignId"`
	VariationID int    `json:"variationId"`
	RuleType    string `json:"ruleType,omitempty"`
	At          int64  `json:"at"`
}

type conversionEvent struct {
	Kind        string  `json:"kind"`
	VisitorCode string  `json:"visitorCode"`
	UserAgent   string  `json:"userAgent,omitempty"`
	GoalID      int     `json:"goalId"`
	Revenue     float64 `json:"revenue,omitempty"`
	At          int64   `json:"at"`
}

type customDataEvent struct {
	Kind        string   `json:"kind"`
	VisitorCode string   `json:"visitorCode"`
	UserAgent   string   `json:"userAgent,omitempty"`
	Index       int      `json:"index"`
	Values      []string `json:"values"`
}
