package targeting

// Type names a targeting condition variant as it appears in the remote
// configuration.
type Type string

const (
	TypeCustomDatum           Type = "CUSTOM_DATUM"
	TypePageURL               Type = "PAGE_URL"
	TypePageTitle             Type = "PAGE_TITLE"
	TypePreviousPage          Type = "PREVIOUS_PAGE"
	TypePageViews             Type = "PAGE_VIEWS"
	TypeTimeSincePageView     Type = "TIME_SINCE_PAGE_VIEW"
	TypeVisitorCode           Type = "VISITOR_CODE"
	TypeCookie                Type = "COOKIE"
	TypeDeviceType            Type = "DEVICE_TYPE"
	TypeBrowser               Type = "BROWSER"
	TypeOperatingSystem       Type = "OPERATING_SYSTEM"
	TypeGeolocation           Type = "GEOLOCATION"
	TypeSDKLanguage           Type = "SDK_LANGUAGE"
	TypeConversions           Type = "CONVERSIONS"
	TypeNewVisitors           Type = "NEW_VISITORS"
	TypeFirstVisit            Type = "FIRST_VISIT"
	TypeLastVisit             Type = "LAST_VISIT"
	TypeVisits                Type = "VISITS"
	TypeSameDayVisits         Type = "SAME_DAY_VISITS"
	TypeTargetExperiment      Type = "TARGET_EXPERIMENT"
	TypeTargetFeatureFlag     Type = "TARGET_FEATURE_FLAG"
	TypeTargetPersonalization Type = "TARGET_PERSONALIZATION"
	TypeExclusiveExperiment   Type = "EXCLUSIVE_EXPERIMENT"
	TypeExclusiveFeatureFlag  Type = "EXCLUSIVE_FEATURE_FLAG"
	TypeSegment               Type = "SEGMENT"
)

// Operator is a comparison operator used by string, numeric, and custom-data
// conditions.
type Operator string

const (
	OperatorUndefined   Operator = "UNDEFINED"
	OperatorExact       Operator = "EXACT"
	OperatorContains    Operator = "CONTAINS"
	OperatorRegexp      Operator = "REGULAR_EXPRESSION"
	OperatorEqual       Operator = "EQUAL"
	OperatorGreater     Operator = "GREATER"
	OperatorLower       Operator = "LOWER"
	OperatorTrue        Operator = "TRUE"
	OperatorFalse       Operator = "FALSE"
	OperatorAmongValues Operator = "AMONG_VALUES"
	OperatorAny         Operator = "ANY"
)

// Condition is one leaf evaluator. Check receives the fact bundle matching
// the condition's declared FactKind and reports whether the visitor matches.
// Check must be pure: no I/O, no side effects.
type Condition interface {
	ID() int
	Include() bool
	FactKind() FactKind
	Check(fact any) bool
}

type base struct {
	id      int
	include bool
}

func (b base) ID() int       { return b.id }
func (b base) Include() bool { return b.include }

// ConditionData is the flat, type-erased record the configuration parser
// produces for one leaf. Build inspects Type and constructs the matching
// typed condition; unrecognised types fall back to an always-true stub.
type ConditionData struct {
	ID      int
	Type    Type
	Include bool

	Operator Operator
	Value    string

	CustomDataIndex int

	CampaignID     int
	VariationID    int
	VariationMatch string // "EXACT" or "ANY"

	SegmentID int

	Count       int
	CountSeconds int64

	Device   string
	Browser  string
	Version  string
	OS       string
	Country  string
	Region   string
	City     string
	Language string

	CookieName string
	GoalID     int
	URL        string
}

// Build constructs the typed condition for data. It never fails: unknown
// condition types become an UnknownCondition so forward-incompatible
// configurations degrade to "always targeted" rather than erroring.
func Build(data ConditionData) Condition {
	b := base{id: data.ID, include: data.Include}

	switch data.Type {
	case TypeCustomDatum:
		return &CustomDatumCondition{base: b, Index: data.CustomDataIndex, Operator: data.Operator, Value: data.Value}
	case TypePageURL:
		return &StringCondition{base: b, kind: KindPage, field: pageFieldURL, Operator: data.Operator, Value: data.Value}
	case TypePageTitle:
		return &StringCondition{base: b, kind: KindPage, field: pageFieldTitle, Operator: data.Operator, Value: data.Value}
	case TypePreviousPage:
		return &StringCondition{base: b, kind: KindPreviousPage, field: pageFieldURL, Operator: data.Operator, Value: data.Value}
	case TypeVisitorCode:
		return &StringCondition{base: b, kind: KindVisitorCode, field: pageFieldRaw, Operator: data.Operator, Value: data.Value}
	case TypeCookie:
		return &CookieCondition{base: b, Name: data.CookieName, Operator: data.Operator, Value: data.Value}
	case TypePageViews:
		return &PageViewsCondition{base: b, URL: data.URL, Operator: data.Operator, Count: data.Count}
	case TypeTimeSincePageView:
		return &TimeSincePageViewCondition{base: b, URL: data.URL, Operator: data.Operator, Seconds: data.CountSeconds}
	case TypeDeviceType:
		return &DeviceCondition{base: b, Device: data.Device}
	case TypeBrowser:
		return &BrowserCondition{base: b, Browser: data.Browser, Version: data.Version, Operator: data.Operator}
	case TypeOperatingSystem:
		return &OperatingSystemCondition{base: b, OS: data.OS}
	case TypeGeolocation:
		return &GeolocationCondition{base: b, Country: data.Country, Region: data.Region, City: data.City}
	case TypeSDKLanguage:
		return &SDKLanguageCondition{base: b, Language: data.Language, Version: data.Version, Operator: data.Operator}
	case TypeConversions:
		return &ConversionCondition{base: b, GoalID: data.GoalID}
	case TypeNewVisitors:
		return &NewVisitorsCondition{base: b, NewVisitor: data.Value != "RETURNING"}
	case TypeFirstVisit:
		return &VisitAgeCondition{base: b, first: true, Operator: data.Operator, Seconds: data.CountSeconds}
	case TypeLastVisit:
		return &VisitAgeCondition{base: b, first: false, Operator: data.Operator, Seconds: data.CountSeconds}
	case TypeVisits:
		return &VisitCountCondition{base: b, sameDay: false, Operator: data.Operator, Count: data.Count}
	case TypeSameDayVisits:
		return &VisitCountCondition{base: b, sameDay: true, Operator: data.Operator, Count: data.Count}
	case TypeTargetExperiment:
		return &TargetCampaignCondition{base: b, scope: scopeExperiment, CampaignID: data.CampaignID, VariationID: data.VariationID, MatchAny: data.VariationMatch == "ANY"}
	case TypeTargetFeatureFlag:
		return &TargetCampaignCondition{base: b, scope: scopeFeatureFlag, CampaignID: data.CampaignID, VariationID: data.VariationID, MatchAny: data.VariationMatch == "ANY"}
	case TypeTargetPersonalization:
		return &TargetCampaignCondition{base: b, scope: scopePersonalization, CampaignID: data.CampaignID, VariationID: data.VariationID, MatchAny: data.VariationMatch == "ANY"}
	case TypeExclusiveExperiment:
		return &ExclusiveCampaignCondition{base: b, scope: scopeExperiment}
	case TypeExclusiveFeatureFlag:
		return &ExclusiveCampaignCondition{base: b, scope: scopeFeatureFlag}
	case TypeSegment:
		return &SegmentCondition{base: b, SegmentID: data.SegmentID}
	default:
		return &UnknownCondition{base: b}
	}
}

// UnknownCondition is the forward-compatibility stub for condition types this
// SDK version does not understand. It always matches.
type UnknownCondition struct {
	base
}

func (c *UnknownCondition) FactKind() FactKind { return KindNone }

func (c *UnknownCondition) Check(any) bool { return true }
