package targeting

type campaignScope int

const (
	scopeExperiment campaignScope = iota
	scopeFeatureFlag
	scopePersonalization
)

func (f AssignmentsFact) byScope(scope campaignScope) map[int]Assignment {
	switch scope {
	case scopeExperiment:
		return f.Experiments
	case scopeFeatureFlag:
		return f.FeatureFlags
	default:
		return f.Personalizations
	}
}

// TargetCampaignCondition matches visitors already assigned to a referenced
// experiment, feature flag rule, or personalization. MatchAny accepts any
// assigned variation; otherwise the assignment must be to VariationID.
type TargetCampaignCondition struct {
	base
	scope       campaignScope
	CampaignID  int
	VariationID int
	MatchAny    bool
}

func (c *TargetCampaignCondition) FactKind() FactKind { return KindAssignments }

func (c *TargetCampaignCondition) Check(fact any) bool {
	assignments, ok := fact.(AssignmentsFact)
	if !ok {
		return false
	}
	assignment, present := assignments.byScope(c.scope)[c.CampaignID]
	if !present {
		return false
	}
	return c.MatchAny || assignment.VariationID == c.VariationID
}

// ExclusiveCampaignCondition keeps mutually exclusive campaigns apart: it
// matches when the visitor holds no assignment in the scope, or exactly one
// and it is the campaign currently being evaluated.
type ExclusiveCampaignCondition struct {
	base
	scope campaignScope
}

func (c *ExclusiveCampaignCondition) FactKind() FactKind { return KindAssignments }

func (c *ExclusiveCampaignCondition) Check(fact any) bool {
	assignments, ok := fact.(AssignmentsFact)
	if !ok {
		return false
	}
	assigned := assignments.byScope(c.scope)
	switch len(assigned) {
	case 0:
		return true
	case 1:
		_, current := assigned[assignments.CurrentCampaignID]
		return current
	default:
		return false
	}
}

// SegmentCondition references another named segment; the tree evaluator
// resolves the segment id and recursively evaluates its tree against the
// same facts. There is no cycle detection: configurations are assumed
// acyclic.
type SegmentCondition struct {
	base
	SegmentID int
}

func (c *SegmentCondition) FactKind() FactKind { return KindNone }

// Check is never called directly; the tree evaluator special-cases segment
// conditions to recurse. It reports false so a misuse is visible in tests.
func (c *SegmentCondition) Check(any) bool { return false }
