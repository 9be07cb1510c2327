package visitor

import "time"

// State is the JSON-serializable form of a visitor, used by the durable
// stores. Tracking flags and local-only custom data are deliberately
// excluded: restores on another node start with a clean reporting slate.
type State struct {
	Code              string                   `json:"code"`
	CustomData        map[int][]string         `json:"customData,omitempty"`
	Assignments       map[int]AssignmentState  `json:"assignments,omitempty"`
	PageViews         map[string]PageViewState `json:"pageViews,omitempty"`
	Conversions       []ConversionState        `json:"conversions,omitempty"`
	PreviousVisits    []time.Time              `json:"previousVisits,omitempty"`
	CurrentVisit      *time.Time               `json:"currentVisit,omitempty"`
	Consent           *bool                    `json:"consent,omitempty"`
	MappingIdentifier string                   `json:"mappingIdentifier,omitempty"`
}

// AssignmentState is the serializable form of an assignment.
type AssignmentState struct {
	Scope       int       `json:"scope"`
	VariationID int       `json:"variationId"`
	RuleType    string    `json:"ruleType,omitempty"`
	AssignedAt  time.Time `json:"assignedAt"`
}

// PageViewState is the serializable form of one URL's view record.
type PageViewState struct {
	Count    int       `json:"count"`
	LastView time.Time `json:"lastView"`
	Title    string    `json:"title,omitempty"`
}

// ConversionState is the serializable form of a conversion.
type ConversionState struct {
	GoalID  int       `json:"goalId"`
	Revenue float64   `json:"revenue,omitempty"`
	At      time.Time `json:"at"`
}

// Export copies the visitor into its serializable form.
func (v *Visitor) Export() State {
	v.mu.Lock()
	defer v.mu.Unlock()

	state := State{Code: v.code, MappingIdentifier: v.mappingIdentifier}

	for index, entry := range v.customData {
		if entry.LocalOnly {
			continue
		}
		if state.CustomData == nil {
			state.CustomData = make(map[int][]string)
		}
		state.CustomData[index] = append([]string(nil), entry.Values...)
	}
	for id, record := range v.assignments {
		if state.Assignments == nil {
			state.Assignments = make(map[int]AssignmentState)
		}
		state.Assignments[id] = AssignmentState{
			Scope:       int(record.Scope),
			VariationID: record.VariationID,
			RuleType:    record.RuleType,
			AssignedAt:  record.AssignedAt,
		}
	}
	for url, record := range v.pageViews {
		if state.PageViews == nil {
			state.PageViews = make(map[string]PageViewState)
		}
		state.PageViews[url] = PageViewState{Count: record.count, LastView: record.lastView, Title: record.title}
	}
	for _, c := range v.conversions {
		state.Conversions = append(state.Conversions, ConversionState{GoalID: c.GoalID, Revenue: c.Revenue, At: c.At})
	}
	if len(v.previousVisits) > 0 {
		state.PreviousVisits = append([]time.Time(nil), v.previousVisits...)
	}
	if !v.currentVisit.IsZero() {
		visit := v.currentVisit
		state.CurrentVisit = &visit
	}
	if v.consent != nil {
		granted := *v.consent
		state.Consent = &granted
	}
	return state
}

// Restore builds a visitor from a serialized state. Restored items are
// marked sent so a node rebuilding its registry does not re-report history.
func Restore(state State) *Visitor {
	v := New(state.Code)
	v.mappingIdentifier = state.MappingIdentifier

	for index, values := range state.CustomData {
		v.customData[index] = &CustomDataEntry{Values: append([]string(nil), values...), Sent: true}
	}
	for id, record := range state.Assignments {
		v.assignments[id] = AssignmentRecord{
			Scope:       Scope(record.Scope),
			VariationID: record.VariationID,
			RuleType:    record.RuleType,
			AssignedAt:  record.AssignedAt,
			Sent:        true,
		}
	}
	for url, record := range state.PageViews {
		v.pageViews[url] = &pageViewRecord{count: record.Count, lastView: record.LastView, title: record.Title}
	}
	for _, c := range state.Conversions {
		v.conversions = append(v.conversions, Conversion{GoalID: c.GoalID, Revenue: c.Revenue, At: c.At, Sent: true})
	}
	v.previousVisits = append([]time.Time(nil), state.PreviousVisits...)
	if state.CurrentVisit != nil {
		v.currentVisit = *state.CurrentVisit
	}
	if state.Consent != nil {
		granted := *state.Consent
		v.consent = &granted
	}
	return v
}
