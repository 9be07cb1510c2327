package splitz

import (
	"time"

	"github.com/matt-riley/splitz/internal/models"
	"github.com/matt-riley/splitz/internal/targeting"
	"github.com/matt-riley/splitz/internal/visitor"
)

// factResolver adapts a visitor's accumulated data to the targeting
// evaluator for one evaluation. It is built per call: the campaign id and
// evaluation instant are fixed for the lifetime of the resolver.
type factResolver struct {
	snap        *models.Snapshot
	visitor     *visitor.Visitor
	visitorCode string
	campaignID  int
	now         time.Time
}

func (c *Client) resolverFor(snap *models.Snapshot, v *visitor.Visitor, visitorCode string, campaignID int, now time.Time) *factResolver {
	return &factResolver{
		snap:        snap,
		visitor:     v,
		visitorCode: visitorCode,
		campaignID:  campaignID,
		now:         now,
	}
}

func (r *factResolver) Fact(kind targeting.FactKind) (any, bool) {
	switch kind {
	case targeting.KindCustomData:
		// Always ok: a missing index is resolved by the condition itself
		// so UNDEFINED can match.
		return r.visitor.CustomDataFact(), true
	case targeting.KindPage:
		fact, ok := r.visitor.PageFact()
		return fact, ok
	case targeting.KindPreviousPage:
		url, ok := r.visitor.PreviousPageFact()
		return url, ok
	case targeting.KindPageViews:
		fact, ok := r.visitor.PageViewsFact(r.now)
		return fact, ok
	case targeting.KindVisitorCode:
		return r.visitorCode, true
	case targeting.KindCookie:
		fact, ok := r.visitor.CookieFact()
		return fact, ok
	case targeting.KindDevice:
		fact, ok := r.visitor.DeviceFact()
		return fact, ok
	case targeting.KindBrowser:
		fact, ok := r.visitor.BrowserFact()
		return fact, ok
	case targeting.KindOperatingSystem:
		fact, ok := r.visitor.OperatingSystemFact()
		return fact, ok
	case targeting.KindGeolocation:
		fact, ok := r.visitor.GeolocationFact()
		return fact, ok
	case targeting.KindSDK:
		return targeting.SDKFact{Language: SDKLanguage, Version: SDKVersion}, true
	case targeting.KindConversions:
		fact, ok := r.visitor.ConversionsFact()
		return fact, ok
	case targeting.KindAssignments:
		return r.visitor.AssignmentsFact(r.campaignID), true
	case targeting.KindVisits:
		return r.visitor.VisitsFact(r.now), true
	default:
		return nil, false
	}
}

func (r *factResolver) Segment(id int) (*targeting.Tree, bool) {
	segment, ok := r.snap.SegmentByID(id)
	if !ok {
		return nil, false
	}
	return segment.Tree, true
}
