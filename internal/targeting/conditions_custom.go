package targeting

import (
	"encoding/json"
	"strconv"
	"strings"
)

// CustomDatumCondition matches visitor custom data by index. Custom-data
// entries are multi-valued: the condition matches when any one stored value
// satisfies the operator. A missing index matches only under UNDEFINED.
type CustomDatumCondition struct {
	base
	Index    int
	Operator Operator
	Value    string
}

func (c *CustomDatumCondition) FactKind() FactKind { return KindCustomData }

func (c *CustomDatumCondition) Check(fact any) bool {
	data, ok := fact.(CustomDataFact)
	if !ok {
		return false
	}

	values, present := data[c.Index]
	if !present || len(values) == 0 {
		return c.Operator == OperatorUndefined
	}
	if c.Operator == OperatorUndefined {
		return false
	}

	for _, v := range values {
		if c.matchOne(v) {
			return true
		}
	}
	return false
}

func (c *CustomDatumCondition) matchOne(value string) bool {
	switch c.Operator {
	case OperatorExact, OperatorContains, OperatorRegexp:
		return matchString(c.Operator, value, c.Value)
	case OperatorTrue:
		return value == "true"
	case OperatorFalse:
		return value == "false"
	case OperatorEqual, OperatorGreater, OperatorLower:
		fact, err1 := strconv.ParseFloat(strings.TrimSpace(value), 64)
		want, err2 := strconv.ParseFloat(strings.TrimSpace(c.Value), 64)
		if err1 != nil || err2 != nil {
			return false
		}
		return compareNumbers(c.Operator, fact, want)
	case OperatorAmongValues:
		return amongValues(c.Value, value)
	default:
		return false
	}
}

// amongValues reports whether candidate appears in the condition's value,
// which is a JSON array of scalars. Non-JSON values fall back to a
// comma-separated list.
func amongValues(list, candidate string) bool {
	var values []any
	if err := json.Unmarshal([]byte(list), &values); err == nil {
		for _, v := range values {
			switch typed := v.(type) {
			case string:
				if typed == candidate {
					return true
				}
			case bool:
				if strconv.FormatBool(typed) == candidate {
					return true
				}
			case float64:
				if number, err := strconv.ParseFloat(candidate, 64); err == nil && number == typed {
					return true
				}
			}
		}
		return false
	}

	for _, v := range strings.Split(list, ",") {
		if strings.TrimSpace(v) == candidate {
			return true
		}
	}
	return false
}
