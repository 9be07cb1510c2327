package targeting

import (
	"regexp"
	"strings"
)

type pageField int

const (
	pageFieldURL pageField = iota
	pageFieldTitle
	pageFieldRaw
)

// matchString applies a string operator. REGULAR_EXPRESSION performs a
// pattern search, not a full match; an invalid pattern never matches.
func matchString(op Operator, fact, want string) bool {
	switch op {
	case OperatorExact:
		return fact == want
	case OperatorContains:
		return strings.Contains(fact, want)
	case OperatorRegexp:
		matched, err := regexp.MatchString(want, fact)
		return err == nil && matched
	case OperatorUndefined:
		return fact == ""
	default:
		return false
	}
}

// StringCondition matches a single string fact: page URL, page title,
// previous page URL, or the visitor code itself.
type StringCondition struct {
	base
	kind     FactKind
	field    pageField
	Operator Operator
	Value    string
}

func (c *StringCondition) FactKind() FactKind { return c.kind }

func (c *StringCondition) Check(fact any) bool {
	var subject string
	switch f := fact.(type) {
	case PageFact:
		if c.field == pageFieldTitle {
			subject = f.Title
		} else {
			subject = f.URL
		}
	case string:
		subject = f
	default:
		return false
	}
	return matchString(c.Operator, subject, c.Value)
}

// CookieCondition matches the value of a named cookie.
type CookieCondition struct {
	base
	Name     string
	Operator Operator
	Value    string
}

func (c *CookieCondition) FactKind() FactKind { return KindCookie }

func (c *CookieCondition) Check(fact any) bool {
	cookies, ok := fact.(CookieFact)
	if !ok {
		return false
	}
	value, present := cookies[c.Name]
	if !present {
		return c.Operator == OperatorUndefined
	}
	return matchString(c.Operator, value, c.Value)
}
