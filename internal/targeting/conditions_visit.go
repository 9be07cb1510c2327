package targeting

import "time"

// NewVisitorsCondition distinguishes first-time visitors from returning ones.
type NewVisitorsCondition struct {
	base
	NewVisitor bool
}

func (c *NewVisitorsCondition) FactKind() FactKind { return KindVisits }

func (c *NewVisitorsCondition) Check(fact any) bool {
	visits, ok := fact.(VisitsFact)
	if !ok {
		return false
	}
	isNew := len(visits.PreviousVisits) == 0
	return isNew == c.NewVisitor
}

// VisitAgeCondition matches the elapsed seconds since the visitor's first or
// most recent previous visit. Visitors with no previous visits never match.
type VisitAgeCondition struct {
	base
	first    bool
	Operator Operator
	Seconds  int64
}

func (c *VisitAgeCondition) FactKind() FactKind { return KindVisits }

func (c *VisitAgeCondition) Check(fact any) bool {
	visits, ok := fact.(VisitsFact)
	if !ok || len(visits.PreviousVisits) == 0 {
		return false
	}

	// PreviousVisits is ordered most recent first.
	reference := visits.PreviousVisits[0]
	if c.first {
		reference = visits.PreviousVisits[len(visits.PreviousVisits)-1]
	}
	elapsed := visits.Now.Sub(reference).Seconds()
	return compareNumbers(c.Operator, elapsed, float64(c.Seconds))
}

// VisitCountCondition matches the visitor's total visit count, or the count
// of visits started today. The current visit counts; "today" starts at local
// midnight of the evaluation instant.
type VisitCountCondition struct {
	base
	sameDay  bool
	Operator Operator
	Count    int
}

func (c *VisitCountCondition) FactKind() FactKind { return KindVisits }

func (c *VisitCountCondition) Check(fact any) bool {
	visits, ok := fact.(VisitsFact)
	if !ok {
		return false
	}

	count := len(visits.PreviousVisits)
	if !visits.CurrentVisit.IsZero() {
		count++
	}

	if c.sameDay {
		midnight := localMidnight(visits.Now)
		count = 0
		if !visits.CurrentVisit.IsZero() && !visits.CurrentVisit.Before(midnight) {
			count++
		}
		for _, v := range visits.PreviousVisits {
			if !v.Before(midnight) {
				count++
			}
		}
	}

	return compareNumbers(c.Operator, float64(count), float64(c.Count))
}

func localMidnight(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
