package targeting

import "time"

// FactKind identifies the fact bundle a condition consumes. The tree
// evaluator asks the resolver for exactly one fact per leaf, keyed by the
// leaf's declared kind; conditions never see unrelated visitor data.
type FactKind int

const (
	KindCustomData FactKind = iota
	KindPage
	KindPreviousPage
	KindPageViews
	KindVisitorCode
	KindCookie
	KindDevice
	KindBrowser
	KindOperatingSystem
	KindGeolocation
	KindSDK
	KindConversions
	KindAssignments
	KindVisits
	KindNone
)

// FactResolver supplies condition facts for one visitor evaluation. Fact
// returns ok=false when the visitor has no data of that kind, which makes
// the leaf evaluate to Unknown. Segment resolves a named segment referenced
// by a nested segment condition.
//
// Segment recursion performs no cycle detection: configurations are assumed
// acyclic, matching the reference SDKs.
type FactResolver interface {
	Fact(kind FactKind) (any, bool)
	Segment(id int) (*Tree, bool)
}

// CustomDataFact maps a custom-data index to the visitor's (possibly
// multi-valued) entry for that index. A missing index is handled by the
// condition itself, not by the resolver, so the UNDEFINED operator works.
type CustomDataFact map[int][]string

// PageFact describes the page the visitor is currently on.
type PageFact struct {
	URL   string
	Title string
}

// PageViewRecord is the visit history for a single URL.
type PageViewRecord struct {
	Count    int
	LastView time.Time
}

// PageViewsFact carries the per-URL view records plus the evaluation instant
// used by elapsed-time conditions.
type PageViewsFact struct {
	Views map[string]PageViewRecord
	Now   time.Time
}

// CookieFact maps cookie name to value.
type CookieFact map[string]string

// DeviceFact describes the visitor's device class, e.g. "PHONE", "TABLET",
// "DESKTOP".
type DeviceFact struct {
	Type string
}

// BrowserFact describes the visitor's browser and its major version.
type BrowserFact struct {
	Type    string
	Version float64
}

// OperatingSystemFact describes the visitor's operating system.
type OperatingSystemFact struct {
	Type string
}

// GeolocationFact describes the visitor's resolved location.
type GeolocationFact struct {
	Country string
	Region  string
	City    string
}

// SDKFact describes the SDK evaluating the visitor.
type SDKFact struct {
	Language string
	Version  string
}

// ConversionsFact lists the goals the visitor has converted on.
type ConversionsFact struct {
	GoalIDs []int
}

// Assignment is one recorded variation assignment.
type Assignment struct {
	VariationID int
	RuleType    string
}

// AssignmentsFact exposes the visitor's recorded assignments to the
// campaign-targeting conditions. CurrentCampaignID is the id of the
// experiment or rule being evaluated, used by the exclusivity conditions.
type AssignmentsFact struct {
	CurrentCampaignID int
	Experiments       map[int]Assignment
	FeatureFlags      map[int]Assignment
	Personalizations  map[int]Assignment
}

// VisitsFact carries the visitor's visit history. PreviousVisits holds the
// start times of earlier visits, most recent first. Now is the evaluation
// instant; "today" is bounded by local midnight of Now.
type VisitsFact struct {
	PreviousVisits []time.Time
	CurrentVisit   time.Time
	Now            time.Time
}
