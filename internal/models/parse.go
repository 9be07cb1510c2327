package models

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/matt-riley/splitz/internal/targeting"
)

// Wire types for the configuration document. The remote service owns the
// schema; this parser only cares about the fields the engine consumes and
// tolerates everything else.

type wireConfiguration struct {
	Settings     wireSettings      `json:"settings"`
	CustomData   []json.RawMessage `json:"customData"`
	Segments     []json.RawMessage `json:"segments"`
	FeatureFlags []json.RawMessage `json:"featureFlags"`
	Experiments  []json.RawMessage `json:"experiments"`
}

type wireSettings struct {
	SiteEnabled     *bool  `json:"siteEnabled"`
	ConsentRequired bool   `json:"consentRequired"`
	ConsentBlock    string `json:"consentBlock"`
}

type wireCustomData struct {
	ID                int  `json:"id"`
	Index             int  `json:"index"`
	LocalOnly         bool `json:"localOnly"`
	VisitorScoped     bool `json:"visitorScoped"`
	MappingIdentifier bool `json:"isMappingIdentifier"`
}

type wireSegment struct {
	ID             int             `json:"id"`
	Name           string          `json:"name"`
	ConditionsData json.RawMessage `json:"conditionsData"`
}

type wireTreeNode struct {
	OrOperator *bool           `json:"orOperator"`
	LeftChild  json.RawMessage `json:"leftChild"`
	RightChild json.RawMessage `json:"rightChild"`

	// Leaf fields.
	TargetingType   string   `json:"targetingType"`
	ID              int      `json:"id"`
	Include         *bool    `json:"include"`
	Operator        string   `json:"operator"`
	Value           string   `json:"value"`
	CustomDataIndex int      `json:"customDataIndex"`
	CampaignID      int      `json:"campaignId"`
	VariationID     int      `json:"variationId"`
	VariationMatch  string   `json:"variationMatchType"`
	SegmentID       int      `json:"segmentId"`
	Count           int      `json:"visitorCount"`
	CountSeconds    int64    `json:"countInSeconds"`
	Device          string   `json:"device"`
	Browser         string   `json:"browser"`
	Version         string   `json:"version"`
	OS              string   `json:"os"`
	Country         string   `json:"country"`
	Region          string   `json:"region"`
	City            string   `json:"city"`
	Language        string   `json:"sdkLanguage"`
	CookieName      string   `json:"cookieName"`
	GoalID          int      `json:"goalId"`
	URL             string   `json:"url"`
}

type wireFeatureFlag struct {
	ID                  int             `json:"id"`
	Key                 string          `json:"key"`
	EnvironmentEnabled  bool            `json:"environmentEnabled"`
	FeatureStatus       string          `json:"featureStatus"`
	DefaultVariationKey string          `json:"defaultVariationKey"`
	MEGroupName         string          `json:"meGroupName"`
	Variations          []wireVariation `json:"variations"`
	Rules               []wireRule      `json:"rules"`
	Schedules           []wireSchedule  `json:"schedules"`
}

type wireVariation struct {
	ID        int            `json:"id"`
	Key       string         `json:"key"`
	Name      string         `json:"name"`
	Variables []wireVariable `json:"variables"`
}

type wireVariable struct {
	Key   string          `json:"key"`
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

type wireRule struct {
	ID          int                          `json:"id"`
	Order       int                          `json:"order"`
	Type        string                       `json:"type"`
	Exposition  *float64                     `json:"exposition"`
	RespoolTime *int64                       `json:"respoolTime"`
	SegmentID   int                          `json:"segmentId"`
	Variations  []wireVariationConfiguration `json:"variationConfigurations"`
}

type wireVariationConfiguration struct {
	VariationID int             `json:"variationId"`
	Deviation   float64         `json:"deviation"`
	RespoolTime *int64          `json:"respoolTime"`
	CustomJSON  json.RawMessage `json:"customJson"`
}

type wireSchedule struct {
	DateStart *string `json:"dateStart"`
	DateEnd   *string `json:"dateEnd"`
}

type wireExperiment struct {
	ID          int                          `json:"id"`
	SiteEnabled bool                         `json:"siteEnabled"`
	Variations  []wireVariationConfiguration `json:"variationConfigurations"`
}

// ParseSnapshot builds a snapshot from a configuration document. Malformed
// individual entries are skipped and logged; only a document that fails to
// parse at all returns an error, alongside an empty but valid snapshot so
// the SDK degrades to "nothing targeted" rather than crashing.
func ParseSnapshot(payload []byte, log *slog.Logger) (*Snapshot, error) {
	if log == nil {
		log = slog.Default()
	}

	var wire wireConfiguration
	if err := json.Unmarshal(payload, &wire); err != nil {
		return EmptySnapshot(), fmt.Errorf("parse configuration: %w", err)
	}

	settings := Settings{
		SiteEnabled:     wire.Settings.SiteEnabled == nil || *wire.Settings.SiteEnabled,
		ConsentRequired: wire.Settings.ConsentRequired,
		ConsentBlock:    wire.Settings.ConsentBlock,
	}

	entries := make([]CustomDataEntry, 0, len(wire.CustomData))
	for _, raw := range wire.CustomData {
		var cd wireCustomData
		if err := json.Unmarshal(raw, &cd); err != nil {
			log.Warn("skipping malformed custom data entry", "error", err)
			continue
		}
		entries = append(entries, CustomDataEntry{
			ID:                cd.ID,
			Index:             cd.Index,
			LocalOnly:         cd.LocalOnly,
			VisitorScoped:     cd.VisitorScoped,
			MappingIdentifier: cd.MappingIdentifier,
		})
	}

	segments := make([]*Segment, 0, len(wire.Segments))
	for _, raw := range wire.Segments {
		var seg wireSegment
		if err := json.Unmarshal(raw, &seg); err != nil {
			log.Warn("skipping malformed segment", "error", err)
			continue
		}
		tree, err := parseTree(seg.ConditionsData)
		if err != nil {
			log.Warn("skipping segment with malformed targeting tree", "segment_id", seg.ID, "error", err)
			continue
		}
		segments = append(segments, &Segment{ID: seg.ID, Name: seg.Name, Tree: tree})
	}

	flags := make([]*FeatureFlag, 0, len(wire.FeatureFlags))
	for _, raw := range wire.FeatureFlags {
		flag, err := parseFeatureFlag(raw)
		if err != nil {
			log.Warn("skipping malformed feature flag", "error", err)
			continue
		}
		flags = append(flags, flag)
	}

	experiments := make([]*Experiment, 0, len(wire.Experiments))
	for _, raw := range wire.Experiments {
		var exp wireExperiment
		if err := json.Unmarshal(raw, &exp); err != nil {
			log.Warn("skipping malformed experiment", "error", err)
			continue
		}
		experiments = append(experiments, &Experiment{
			ID:          exp.ID,
			SiteEnabled: exp.SiteEnabled,
			Variations:  parseVariationConfigurations(exp.Variations),
		})
	}

	return NewSnapshot(settings, NewCustomDataInfo(entries), flags, experiments, segments), nil
}

func parseFeatureFlag(raw json.RawMessage) (*FeatureFlag, error) {
	var wf wireFeatureFlag
	if err := json.Unmarshal(raw, &wf); err != nil {
		return nil, err
	}
	if wf.Key == "" {
		return nil, fmt.Errorf("feature flag %d has no key", wf.ID)
	}

	flag := &FeatureFlag{
		ID:                  wf.ID,
		Key:                 wf.Key,
		EnvironmentEnabled:  wf.EnvironmentEnabled,
		Status:              FeatureStatus(wf.FeatureStatus),
		DefaultVariationKey: wf.DefaultVariationKey,
		MEGroupName:         wf.MEGroupName,
		Variations:          make(map[string]Variation, len(wf.Variations)),
	}
	if flag.Status == "" {
		flag.Status = FeatureActivated
	}

	for _, wv := range wf.Variations {
		variation := Variation{
			ID:        wv.ID,
			Key:       wv.Key,
			Name:      wv.Name,
			Variables: make(map[string]Variable, len(wv.Variables)),
		}
		for _, v := range wv.Variables {
			variation.Variables[v.Key] = Variable{
				Key:   v.Key,
				Type:  VariableType(v.Type),
				Value: parseVariableValue(VariableType(v.Type), v.Value),
			}
		}
		flag.Variations[wv.Key] = variation
	}

	for _, wr := range wf.Rules {
		exposition := 1.0
		if wr.Exposition != nil {
			exposition = *wr.Exposition
		}
		flag.Rules = append(flag.Rules, Rule{
			ID:          wr.ID,
			Order:       wr.Order,
			Type:        RuleType(wr.Type),
			Exposition:  exposition,
			RespoolTime: wr.RespoolTime,
			SegmentID:   wr.SegmentID,
			Variations:  parseVariationConfigurations(wr.Variations),
		})
	}

	for _, ws := range wf.Schedules {
		schedule, err := parseSchedule(ws)
		if err != nil {
			return nil, fmt.Errorf("flag %q: %w", wf.Key, err)
		}
		flag.Schedules = append(flag.Schedules, schedule)
	}

	return flag, nil
}

func parseVariationConfigurations(wire []wireVariationConfiguration) []VariationConfiguration {
	configs := make([]VariationConfiguration, 0, len(wire))
	for _, wc := range wire {
		config := VariationConfiguration{
			VariationID: wc.VariationID,
			Deviation:   wc.Deviation,
			RespoolTime: wc.RespoolTime,
		}
		if len(wc.CustomJSON) > 0 && string(wc.CustomJSON) != "null" {
			var payload any
			if err := json.Unmarshal(wc.CustomJSON, &payload); err == nil {
				config.CustomJSON = payload
			}
		}
		configs = append(configs, config)
	}
	return configs
}

func parseSchedule(ws wireSchedule) (Schedule, error) {
	var schedule Schedule
	if ws.DateStart != nil {
		t, err := time.Parse(time.RFC3339, *ws.DateStart)
		if err != nil {
			return Schedule{}, fmt.Errorf("parse schedule start: %w", err)
		}
		schedule.DateStart = &t
	}
	if ws.DateEnd != nil {
		t, err := time.Parse(time.RFC3339, *ws.DateEnd)
		if err != nil {
			return Schedule{}, fmt.Errorf("parse schedule end: %w", err)
		}
		schedule.DateEnd = &t
	}
	return schedule, nil
}

func parseVariableValue(kind VariableType, raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	switch kind {
	case VariableBoolean:
		var v bool
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	case VariableNumber:
		var v float64
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	case VariableString:
		var v string
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	case VariableJSON:
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	}
	return nil
}

// parseTree decodes a targeting tree. A missing or null tree means no
// targeting: everyone qualifies.
func parseTree(raw json.RawMessage) (*targeting.Tree, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var node wireTreeNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, err
	}

	// Leaf: a node carrying a targeting type.
	if node.TargetingType != "" {
		include := node.Include == nil || *node.Include
		condition := targeting.Build(targeting.ConditionData{
			ID:              node.ID,
			Type:            targeting.Type(node.TargetingType),
			Include:         include,
			Operator:        targeting.Operator(node.Operator),
			Value:           node.Value,
			CustomDataIndex: node.CustomDataIndex,
			CampaignID:      node.CampaignID,
			VariationID:     node.VariationID,
			VariationMatch:  node.VariationMatch,
			SegmentID:       node.SegmentID,
			Count:           node.Count,
			CountSeconds:    node.CountSeconds,
			Device:          node.Device,
			Browser:         node.Browser,
			Version:         node.Version,
			OS:              node.OS,
			Country:         node.Country,
			Region:          node.Region,
			City:            node.City,
			Language:        node.Language,
			CookieName:      node.CookieName,
			GoalID:          node.GoalID,
			URL:             node.URL,
		})
		return &targeting.Tree{Condition: condition}, nil
	}

	left, err := parseTree(node.LeftChild)
	if err != nil {
		return nil, err
	}
	right, err := parseTree(node.RightChild)
	if err != nil {
		return nil, err
	}
	or := node.OrOperator != nil && *node.OrOperator
	return &targeting.Tree{OrOperator: or, LeftChild: left, RightChild: right}, nil
}
