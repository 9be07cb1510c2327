package targeting

// compareNumbers applies a numeric operator; unknown operators never match.
func compareNumbers(op Operator, fact, want float64) bool {
	switch op {
	case OperatorEqual:
		return fact == want
	case OperatorGreater:
		return fact > want
	case OperatorLower:
		return fact < want
	default:
		return false
	}
}

// PageViewsCondition matches the view count recorded for a URL.
type PageViewsCondition struct {
	base
	URL      string
	Operator Operator
	Count    int
}

func (c *PageViewsCondition) FactKind() FactKind { return KindPageViews }

func (c *PageViewsCondition) Check(fact any) bool {
	views, ok := fact.(PageViewsFact)
	if !ok {
		return false
	}
	record, present := views.Views[c.URL]
	if !present {
		return false
	}
	return compareNumbers(c.Operator, float64(record.Count), float64(c.Count))
}

// TimeSincePageViewCondition matches the elapsed seconds since a URL was last
// viewed. A URL never viewed does not match.
type TimeSincePageViewCondition struct {
	base
	URL      string
	Operator Operator
	Seconds  int64
}

func (c *TimeSincePageViewCondition) FactKind() FactKind { return KindPageViews }

func (c *TimeSincePageViewCondition) Check(fact any) bool {
	views, ok := fact.(PageViewsFact)
	if !ok {
		return false
	}
	record, present := views.Views[c.URL]
	if !present || record.LastView.IsZero() {
		return false
	}
	elapsed := views.Now.Sub(record.LastView).Seconds()
	return compareNumbers(c.Operator, elapsed, float64(c.Seconds))
}

// ConversionCondition matches visitors who converted on a goal. GoalID zero
// matches any conversion.
type ConversionCondition struct {
	base
	GoalID int
}

func (c *ConversionCondition) FactKind() FactKind { return KindConversions }

func (c *ConversionCondition) Check(fact any) bool {
	conversions, ok := fact.(ConversionsFact)
	if !ok {
		return false
	}
	if c.GoalID == 0 {
		return len(conversions.GoalIDs) > 0
	}
	for _, id := range conversions.GoalIDs {
		if id == c.GoalID {
			return true
		}
	}
	return false
}
