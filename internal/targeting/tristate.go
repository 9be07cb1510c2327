// Package targeting implements the three-valued targeting engine: an AND/OR
// tree of heterogeneous conditions evaluated against visitor-derived facts.
//
// Every leaf yields true, false, or unknown (when the fact a condition needs
// is absent), and the tree combines leaves with Kleene three-valued logic.
// Unknown or unparseable condition types yield a raw true, which inclusion
// keeps and exclusion inverts, so new server-side condition types never
// break older SDK versions.
package targeting

// Value is the three-valued result of evaluating a condition or a tree.
// The zero value is Unknown.
type Value int8

const (
	// Unknown means the required fact was absent or inapplicable.
	Unknown Value = iota
	// True means the visitor matches.
	True
	// False means the visitor does not match.
	False
)

// String returns the lower-case name of the value.
func (v Value) String() string {
	switch v {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

// FromBool converts a plain boolean into a Value.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// And combines two values with three-valued conjunction: true only when both
// operands are true, false when either operand is false, unknown otherwise.
func And(a, b Value) Value {
	switch {
	case a == False || b == False:
		return False
	case a == True && b == True:
		return True
	default:
		return Unknown
	}
}

// Or combines two values with three-valued disjunction: true when either
// operand is true, false only when both are false, unknown otherwise.
func Or(a, b Value) Value {
	switch {
	case a == True || b == True:
		return True
	case a == False && b == False:
		return False
	default:
		return Unknown
	}
}

// Exclude inverts a raw condition result for a leaf marked as an exclusion:
// true becomes false, false becomes true, and unknown becomes true (absence
// of contrary evidence satisfies an exclusion).
func Exclude(v Value) Value {
	if v == True {
		return False
	}
	return True
}
