// Package models holds the in-memory configuration snapshot: feature flags,
// experiments, segments, custom-data definitions, and platform settings.
//
// A snapshot is immutable once built and is replaced wholesale on refresh;
// nothing in this package mutates a live snapshot.
package models

import (
	"sort"
	"time"

	"github.com/matt-riley/splitz/internal/targeting"
)

// RuleType distinguishes the two kinds of feature-flag rules.
type RuleType string

const (
	RuleExperimentation  RuleType = "EXPERIMENTATION"
	RuleTargetedDelivery RuleType = "TARGETED_DELIVERY"
)

// FeatureStatus is the coarse activation state of a feature flag.
type FeatureStatus string

const (
	FeatureActivated   FeatureStatus = "ACTIVATED"
	FeatureDeactivated FeatureStatus = "DEACTIVATED"
)

// VariableType tags a feature variable's value.
type VariableType string

const (
	VariableBoolean VariableType = "BOOLEAN"
	VariableString  VariableType = "STRING"
	VariableNumber  VariableType = "NUMBER"
	VariableJSON    VariableType = "JSON"
)

// Variable is one typed feature variable attached to a variation.
type Variable struct {
	Key   string
	Type  VariableType
	Value any
}

// Variation is one arm of a flag or experiment.
type Variation struct {
	ID        int
	Key       string
	Name      string
	Variables map[string]Variable
}

// VariationConfiguration is one row of a rule's deviation table: the traffic
// share for a variation id, an optional repool timestamp (unix seconds), and
// an optional custom JSON payload. Variation id 0 is the reference ("off")
// variation.
type VariationConfiguration struct {
	VariationID int
	Deviation   float64
	RespoolTime *int64
	CustomJSON  any
}

// Rule is one targeting/allocation step of a feature flag, iterated in
// ascending Order.
type Rule struct {
	ID          int
	Order       int
	Type        RuleType
	Exposition  float64
	RespoolTime *int64
	SegmentID   int // 0 when the rule has no targeting segment
	Variations  []VariationConfiguration
}

// Schedule is one activation window. A nil bound is open on that side; the
// window is [DateStart, DateEnd).
type Schedule struct {
	DateStart *time.Time
	DateEnd   *time.Time
}

// Contains reports whether t falls inside the window.
func (s Schedule) Contains(t time.Time) bool {
	if s.DateStart != nil && t.Before(*s.DateStart) {
		return false
	}
	if s.DateEnd != nil && !t.Before(*s.DateEnd) {
		return false
	}
	return true
}

// FeatureFlag is one remotely configured feature flag.
type FeatureFlag struct {
	ID                  int
	Key                 string
	EnvironmentEnabled  bool
	Status              FeatureStatus
	DefaultVariationKey string
	MEGroupName         string
	Variations          map[string]Variation
	Rules               []Rule // sorted by ascending Order
	Schedules           []Schedule
}

// VariationByID returns the flag variation with the given id.
func (f *FeatureFlag) VariationByID(id int) (Variation, bool) {
	for _, v := range f.Variations {
		if v.ID == id {
			return v, true
		}
	}
	return Variation{}, false
}

// ActiveAt applies the schedule gate: an explicitly deactivated flag is
// always inactive; without schedules the coarse status governs; with
// schedules the flag is active iff now falls in at least one window.
func (f *FeatureFlag) ActiveAt(now time.Time) bool {
	if f.Status == FeatureDeactivated {
		return false
	}
	if len(f.Schedules) == 0 {
		return f.Status == FeatureActivated
	}
	for _, s := range f.Schedules {
		if s.Contains(now) {
			return true
		}
	}
	return false
}

// Experiment is a standalone experiment with its own deviation table.
type Experiment struct {
	ID          int
	SiteEnabled bool
	Variations  []VariationConfiguration
}

// Segment is a reusable named targeting tree.
type Segment struct {
	ID   int
	Name string
	Tree *targeting.Tree
}

// CustomDataEntry describes one custom-data definition.
type CustomDataEntry struct {
	ID                int
	Index             int
	LocalOnly         bool
	VisitorScoped     bool
	MappingIdentifier bool
}

// CustomDataInfo indexes the custom-data definitions by index.
type CustomDataInfo struct {
	byIndex              map[int]CustomDataEntry
	mappingIdentifierIdx int
	hasMappingIdentifier bool
}

// NewCustomDataInfo builds the lookup from a definition list.
func NewCustomDataInfo(entries []CustomDataEntry) CustomDataInfo {
	info := CustomDataInfo{byIndex: make(map[int]CustomDataEntry, len(entries))}
	for _, e := range entries {
		info.byIndex[e.Index] = e
		if e.MappingIdentifier {
			info.mappingIdentifierIdx = e.Index
			info.hasMappingIdentifier = true
		}
	}
	return info
}

// LocalOnly reports whether custom data at index must never leave the SDK.
func (i CustomDataInfo) LocalOnly(index int) bool {
	return i.byIndex[index].LocalOnly
}

// VisitorScoped reports whether custom data at index is visitor-scoped.
func (i CustomDataInfo) VisitorScoped(index int) bool {
	return i.byIndex[index].VisitorScoped
}

// MappingIdentifierIndex returns the index flagged as the cross-device
// mapping identifier, if any.
func (i CustomDataInfo) MappingIdentifierIndex() (int, bool) {
	return i.mappingIdentifierIdx, i.hasMappingIdentifier
}

// Settings is the platform-level settings block.
type Settings struct {
	SiteEnabled     bool
	ConsentRequired bool
	ConsentBlock    string
}

// Snapshot is one immutable configuration generation.
type Snapshot struct {
	Settings        Settings
	CustomData      CustomDataInfo
	flagsByKey      map[string]*FeatureFlag
	flagsByID       map[int]*FeatureFlag
	experimentsByID map[int]*Experiment
	segmentsByID    map[int]*Segment
	meGroups        map[string][]*FeatureFlag
}

// NewSnapshot indexes the given entities into a snapshot. Flag rules are
// sorted by ascending order and ME-group members by ascending flag id.
func NewSnapshot(settings Settings, customData CustomDataInfo, flags []*FeatureFlag, experiments []*Experiment, segments []*Segment) *Snapshot {
	s := &Snapshot{
		Settings:        settings,
		CustomData:      customData,
		flagsByKey:      make(map[string]*FeatureFlag, len(flags)),
		flagsByID:       make(map[int]*FeatureFlag, len(flags)),
		experimentsByID: make(map[int]*Experiment, len(experiments)),
		segmentsByID:    make(map[int]*Segment, len(segments)),
		meGroups:        make(map[string][]*FeatureFlag),
	}

	for _, f := range flags {
		sort.SliceStable(f.Rules, func(i, j int) bool { return f.Rules[i].Order < f.Rules[j].Order })
		s.flagsByKey[f.Key] = f
		s.flagsByID[f.ID] = f
		if f.MEGroupName != "" {
			s.meGroups[f.MEGroupName] = append(s.meGroups[f.MEGroupName], f)
		}
	}
	for _, group := range s.meGroups {
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
	}
	for _, e := range experiments {
		s.experimentsByID[e.ID] = e
	}
	for _, seg := range segments {
		s.segmentsByID[seg.ID] = seg
	}

	return s
}

// EmptySnapshot returns a valid snapshot with no entities: the degraded state
// after a whole-configuration parse failure. The site stays enabled so future
// refreshes can recover without flipping evaluation errors.
func EmptySnapshot() *Snapshot {
	return NewSnapshot(Settings{SiteEnabled: true}, NewCustomDataInfo(nil), nil, nil, nil)
}

// FeatureFlagByKey looks a flag up by its key.
func (s *Snapshot) FeatureFlagByKey(key string) (*FeatureFlag, bool) {
	f, ok := s.flagsByKey[key]
	return f, ok
}

// FeatureFlagByID looks a flag up by its numeric id.
func (s *Snapshot) FeatureFlagByID(id int) (*FeatureFlag, bool) {
	f, ok := s.flagsByID[id]
	return f, ok
}

// FeatureFlags returns all flags, sorted by key.
func (s *Snapshot) FeatureFlags() []*FeatureFlag {
	flags := make([]*FeatureFlag, 0, len(s.flagsByKey))
	for _, f := range s.flagsByKey {
		flags = append(flags, f)
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i].Key < flags[j].Key })
	return flags
}

// ExperimentByID looks an experiment up by id.
func (s *Snapshot) ExperimentByID(id int) (*Experiment, bool) {
	e, ok := s.experimentsByID[id]
	return e, ok
}

// SegmentByID looks a segment up by id.
func (s *Snapshot) SegmentByID(id int) (*Segment, bool) {
	seg, ok := s.segmentsByID[id]
	return seg, ok
}

// MEGroup returns the flags sharing a mutually-exclusive group name, sorted
// by ascending flag id.
func (s *Snapshot) MEGroup(name string) []*FeatureFlag {
	return s.meGroups[name]
}
