// Package visitor holds the mutable per-visitor state the engine consults:
// custom data, recorded assignments, page views, conversions, structured
// facts, consent, and forced variations.
//
// Each visitor carries its own lock; all mutations for one visitor code are
// serialized through it so concurrent calls never lose counter updates. The
// accessor methods return copies, never internal maps, so evaluations read a
// consistent view without holding the lock.
package visitor

import (
	"sync"
	"time"

	"github.com/matt-riley/splitz/internal/targeting"
)

// Scope classifies an assignment by the kind of campaign that produced it.
type Scope int

const (
	ScopeExperiment Scope = iota
	ScopeFeatureFlag
	ScopePersonalization
)

// AssignmentRecord is one sticky variation assignment.
type AssignmentRecord struct {
	Scope       Scope
	VariationID int
	RuleType    string
	AssignedAt  time.Time
	Sent        bool
}

// CustomDataEntry is one custom-data index's values. LocalOnly entries never
// leave the SDK.
type CustomDataEntry struct {
	Values    []string
	LocalOnly bool
	Sent      bool
}

// Conversion is one recorded goal conversion.
type Conversion struct {
	GoalID  int
	Revenue float64
	At      time.Time
	Sent    bool
}

type pageViewRecord struct {
	count    int
	lastView time.Time
	title    string
}

// Visitor is the accumulated state for one visitor code.
type Visitor struct {
	mu sync.Mutex

	code string

	customData  map[int]*CustomDataEntry
	assignments map[int]AssignmentRecord
	pageViews   map[string]*pageViewRecord
	conversions []Conversion

	currentURL   string
	currentTitle string
	previousURL  string

	device      *targeting.DeviceFact
	browser     *targeting.BrowserFact
	os          *targeting.OperatingSystemFact
	geolocation *targeting.GeolocationFact
	cookies     map[string]string

	previousVisits []time.Time
	currentVisit   time.Time

	consent           *bool
	mappingIdentifier string
	userAgent         string

	forced map[string]string
}

// New creates an empty visitor for the given code.
func New(code string) *Visitor {
	return &Visitor{
		code:        code,
		customData:  make(map[int]*CustomDataEntry),
		assignments: make(map[int]AssignmentRecord),
		pageViews:   make(map[string]*pageViewRecord),
		forced:      make(map[string]string),
	}
}

// Code returns the visitor code.
func (v *Visitor) Code() string { return v.code }

// AddCustomData stores values at a custom-data index. With overwrite the
// entry is replaced; otherwise values accumulate (deduplicated). Adding data
// resets the entry's sent flag so it is re-reported.
func (v *Visitor) AddCustomData(index int, localOnly, overwrite bool, values ...string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	entry, ok := v.customData[index]
	if !ok || overwrite {
		entry = &CustomDataEntry{}
		v.customData[index] = entry
	}
	entry.LocalOnly = localOnly
	entry.Sent = false
	for _, value := range values {
		if !contains(entry.Values, value) {
			entry.Values = append(entry.Values, value)
		}
	}
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

// CustomDataFact returns a copy of the custom data for targeting.
func (v *Visitor) CustomDataFact() targeting.CustomDataFact {
	v.mu.Lock()
	defer v.mu.Unlock()

	fact := make(targeting.CustomDataFact, len(v.customData))
	for index, entry := range v.customData {
		fact[index] = append([]string(nil), entry.Values...)
	}
	return fact
}

// UnsentCustomData returns the indexes and values not yet reported,
// excluding local-only entries.
func (v *Visitor) UnsentCustomData() map[int][]string {
	v.mu.Lock()
	defer v.mu.Unlock()

	unsent := make(map[int][]string)
	for index, entry := range v.customData {
		if entry.Sent || entry.LocalOnly {
			continue
		}
		unsent[index] = append([]string(nil), entry.Values...)
	}
	return unsent
}

// MarkCustomDataSent flags the given indexes as reported.
func (v *Visitor) MarkCustomDataSent(indexes []int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, index := range indexes {
		if entry, ok := v.customData[index]; ok {
			entry.Sent = true
		}
	}
}

// SetAssignment records a sticky assignment for a campaign id, overwriting
// any previous one.
func (v *Visitor) SetAssignment(campaignID int, record AssignmentRecord) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.assignments[campaignID] = record
}

// Assignment returns the recorded assignment for a campaign id.
func (v *Visitor) Assignment(campaignID int) (AssignmentRecord, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	record, ok := v.assignments[campaignID]
	return record, ok
}

// DropAssignment removes a recorded assignment, used when repooling
// invalidates it.
func (v *Visitor) DropAssignment(campaignID int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.assignments, campaignID)
}

// AssignmentsFact builds the campaign-targeting fact, scoped maps keyed by
// campaign id.
func (v *Visitor) AssignmentsFact(currentCampaignID int) targeting.AssignmentsFact {
	v.mu.Lock()
	defer v.mu.Unlock()

	fact := targeting.AssignmentsFact{
		CurrentCampaignID: currentCampaignID,
		Experiments:       make(map[int]targeting.Assignment),
		FeatureFlags:      make(map[int]targeting.Assignment),
		Personalizations:  make(map[int]targeting.Assignment),
	}
	for id, record := range v.assignments {
		assignment := targeting.Assignment{VariationID: record.VariationID, RuleType: record.RuleType}
		switch record.Scope {
		case ScopeExperiment:
			fact.Experiments[id] = assignment
		case ScopeFeatureFlag:
			fact.FeatureFlags[id] = assignment
		case ScopePersonalization:
			fact.Personalizations[id] = assignment
		}
	}
	return fact
}

// UnsentExposures returns the campaign ids of assignments not yet reported.
func (v *Visitor) UnsentExposures() map[int]AssignmentRecord {
	v.mu.Lock()
	defer v.mu.Unlock()

	unsent := make(map[int]AssignmentRecord)
	for id, record := range v.assignments {
		if !record.Sent {
			unsent[id] = record
		}
	}
	return unsent
}

// MarkExposuresSent flags the given campaign assignments as reported.
func (v *Visitor) MarkExposuresSent(campaignIDs []int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, id := range campaignIDs {
		if record, ok := v.assignments[id]; ok {
			record.Sent = true
			v.assignments[id] = record
		}
	}
}

// AddPageView records a page view, incrementing the per-URL counter and
// rotating the current page into the previous-page slot.
func (v *Visitor) AddPageView(url, title string, at time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()

	record, ok := v.pageViews[url]
	if !ok {
		record = &pageViewRecord{}
		v.pageViews[url] = record
	}
	record.count++
	record.lastView = at
	record.title = title

	if v.currentURL != "" && v.currentURL != url {
		v.previousURL = v.currentURL
	}
	v.currentURL = url
	v.currentTitle = title
}

// PageFact returns the current page, ok=false when no page view was ever
// recorded.
func (v *Visitor) PageFact() (targeting.PageFact, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.currentURL == "" {
		return targeting.PageFact{}, false
	}
	return targeting.PageFact{URL: v.currentURL, Title: v.currentTitle}, true
}

// PreviousPageFact returns the previously viewed URL.
func (v *Visitor) PreviousPageFact() (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.previousURL, v.previousURL != ""
}

// PageViewsFact returns a copy of the per-URL view records.
func (v *Visitor) PageViewsFact(now time.Time) (targeting.PageViewsFact, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.pageViews) == 0 {
		return targeting.PageViewsFact{}, false
	}
	fact := targeting.PageViewsFact{
		Views: make(map[string]targeting.PageViewRecord, len(v.pageViews)),
		Now:   now,
	}
	for url, record := range v.pageViews {
		fact.Views[url] = targeting.PageViewRecord{Count: record.count, LastView: record.lastView}
	}
	return fact, true
}

// SetDevice stores the device fact; with doNotOverwrite an existing fact is
// kept.
func (v *Visitor) SetDevice(fact targeting.DeviceFact, doNotOverwrite bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if doNotOverwrite && v.device != nil {
		return
	}
	v.device = &fact
}

// SetBrowser stores the browser fact; with doNotOverwrite an existing fact
// is kept.
func (v *Visitor) SetBrowser(fact targeting.BrowserFact, doNotOverwrite bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if doNotOverwrite && v.browser != nil {
		return
	}
	v.browser = &fact
}

// SetOperatingSystem stores the OS fact; with doNotOverwrite an existing
// fact is kept.
func (v *Visitor) SetOperatingSystem(fact targeting.OperatingSystemFact, doNotOverwrite bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if doNotOverwrite && v.os != nil {
		return
	}
	v.os = &fact
}

// SetGeolocation stores the geolocation fact; with doNotOverwrite an
// existing fact is kept.
func (v *Visitor) SetGeolocation(fact targeting.GeolocationFact, doNotOverwrite bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if doNotOverwrite && v.geolocation != nil {
		return
	}
	v.geolocation = &fact
}

// SetCookie stores one cookie value.
func (v *Visitor) SetCookie(name, value string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cookies == nil {
		v.cookies = make(map[string]string)
	}
	v.cookies[name] = value
}

// DeviceFact returns the stored device fact.
func (v *Visitor) DeviceFact() (targeting.DeviceFact, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.device == nil {
		return targeting.DeviceFact{}, false
	}
	return *v.device, true
}

// BrowserFact returns the stored browser fact.
func (v *Visitor) BrowserFact() (targeting.BrowserFact, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.browser == nil {
		return targeting.BrowserFact{}, false
	}
	return *v.browser, true
}

// OperatingSystemFact returns the stored OS fact.
func (v *Visitor) OperatingSystemFact() (targeting.OperatingSystemFact, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.os == nil {
		return targeting.OperatingSystemFact{}, false
	}
	return *v.os, true
}

// GeolocationFact returns the stored geolocation fact.
func (v *Visitor) GeolocationFact() (targeting.GeolocationFact, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.geolocation == nil {
		return targeting.GeolocationFact{}, false
	}
	return *v.geolocation, true
}

// CookieFact returns a copy of the stored cookies.
func (v *Visitor) CookieFact() (targeting.CookieFact, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.cookies) == 0 {
		return nil, false
	}
	fact := make(targeting.CookieFact, len(v.cookies))
	for name, value := range v.cookies {
		fact[name] = value
	}
	return fact, true
}

// AddConversion records a goal conversion.
func (v *Visitor) AddConversion(goalID int, revenue float64, at time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.conversions = append(v.conversions, Conversion{GoalID: goalID, Revenue: revenue, At: at})
}

// ConversionsFact lists the converted goal ids.
func (v *Visitor) ConversionsFact() (targeting.ConversionsFact, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.conversions) == 0 {
		return targeting.ConversionsFact{}, false
	}
	fact := targeting.ConversionsFact{GoalIDs: make([]int, 0, len(v.conversions))}
	for _, c := range v.conversions {
		fact.GoalIDs = append(fact.GoalIDs, c.GoalID)
	}
	return fact, true
}

// UnsentConversions returns the indexes and copies of conversions not yet
// reported.
func (v *Visitor) UnsentConversions() map[int]Conversion {
	v.mu.Lock()
	defer v.mu.Unlock()

	unsent := make(map[int]Conversion)
	for i, c := range v.conversions {
		if !c.Sent {
			unsent[i] = c
		}
	}
	return unsent
}

// MarkConversionsSent flags the conversions at the given indexes as
// reported.
func (v *Visitor) MarkConversionsSent(indexes []int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, i := range indexes {
		if i >= 0 && i < len(v.conversions) {
			v.conversions[i].Sent = true
		}
	}
}

// StartVisit begins a new visit at the given time, rotating any current
// visit into the history (most recent first).
func (v *Visitor) StartVisit(at time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.currentVisit.IsZero() {
		v.previousVisits = append([]time.Time{v.currentVisit}, v.previousVisits...)
	}
	v.currentVisit = at
}

// VisitsFact returns the visit history fact.
func (v *Visitor) VisitsFact(now time.Time) targeting.VisitsFact {
	v.mu.Lock()
	defer v.mu.Unlock()
	return targeting.VisitsFact{
		PreviousVisits: append([]time.Time(nil), v.previousVisits...),
		CurrentVisit:   v.currentVisit,
		Now:            now,
	}
}

// SetConsent records the visitor's legal consent decision.
func (v *Visitor) SetConsent(granted bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.consent = &granted
}

// Consent returns the consent decision; ok=false when never set.
func (v *Visitor) Consent() (granted, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.consent == nil {
		return false, false
	}
	return *v.consent, true
}

// SetMappingIdentifier links this visitor to a cross-device identity.
func (v *Visitor) SetMappingIdentifier(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mappingIdentifier = id
}

// MappingIdentifier returns the cross-device identity, if linked.
func (v *Visitor) MappingIdentifier() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mappingIdentifier
}

// SetUserAgent stores the visitor's user agent, attached to tracking
// events.
func (v *Visitor) SetUserAgent(ua string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.userAgent = ua
}

// UserAgent returns the stored user agent.
func (v *Visitor) UserAgent() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.userAgent
}

// SetForcedVariation forces a variation key for a flag, bypassing targeting
// and allocation. An empty variation key clears the override.
func (v *Visitor) SetForcedVariation(flagKey, variationKey string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if variationKey == "" {
		delete(v.forced, flagKey)
		return
	}
	v.forced[flagKey] = variationKey
}

// ForcedVariation returns the forced variation key for a flag, if any.
func (v *Visitor) ForcedVariation(flagKey string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	key, ok := v.forced[flagKey]
	return key, ok
}
