// Package splitz is a feature-flagging and A/B-testing SDK client. It
// fetches an experiment configuration from a remote service, evaluates
// targeting rules and deterministic hash-based traffic allocation for a
// visitor, and reports exposure and conversion events back.
//
// The entry point is [Client]: create one with [NewClient], start its
// background refresh and tracking loops with [Client.Start], then call
// [Client.EvaluateFeatureFlag] or [Client.EvaluateExperiment] per request.
// Visitor facts are attached with [Client.AddData] and conversions with
// [Client.TrackConversion]. Bucketing is deterministic: the same visitor
// code always lands in the same variation until a repool event invalidates
// the assignment.
package splitz

import (
	"github.com/google/uuid"

	"github.com/matt-riley/splitz/internal/models"
)

// SDKLanguage and SDKVersion identify this SDK in targeting conditions and
// tracking events.
const (
	SDKLanguage = "GO"
	SDKVersion  = "1.0.0"
)

// Variable is one typed feature variable attached to a variation. Type is
// one of "BOOLEAN", "STRING", "NUMBER", "JSON"; Value holds the decoded Go
// value (bool, string, float64, or any for JSON).
type Variable struct {
	Key   string
	Type  string
	Value any
}

// FlagResult is the outcome of a feature-flag evaluation.
type FlagResult struct {
	Active       bool
	VariationKey string
	Variables    map[string]Variable
}

// NewVisitorCode returns a fresh random visitor code, for callers that do
// not bring their own stable identifier.
func NewVisitorCode() string {
	return uuid.NewString()
}

func flagResult(flag *models.FeatureFlag, variationID int) FlagResult {
	variation, ok := flag.VariationByID(variationID)
	if !ok {
		return FlagResult{Active: false, VariationKey: flag.DefaultVariationKey}
	}
	return FlagResult{
		Active:       variationID != 0,
		VariationKey: variation.Key,
		Variables:    publicVariables(variation),
	}
}

func resultForKey(flag *models.FeatureFlag, variationKey string) (FlagResult, bool) {
	variation, ok := flag.Variations[variationKey]
	if !ok {
		return FlagResult{}, false
	}
	return FlagResult{
		Active:       variation.ID != 0,
		VariationKey: variationKey,
		Variables:    publicVariables(variation),
	}, true
}

func defaultResult(flag *models.FeatureFlag) FlagResult {
	if result, ok := resultForKey(flag, flag.DefaultVariationKey); ok {
		return FlagResult{Active: false, VariationKey: result.VariationKey, Variables: result.Variables}
	}
	return FlagResult{Active: false, VariationKey: flag.DefaultVariationKey}
}

func publicVariables(variation models.Variation) map[string]Variable {
	if len(variation.Variables) == 0 {
		return nil
	}
	vars := make(map[string]Variable, len(variation.Variables))
	for key, v := range variation.Variables {
		vars[key] = Variable{Key: v.Key, Type: string(v.Type), Value: v.Value}
	}
	return vars
}
