package targeting

// Tree is a binary AND/OR tree of targeting conditions. A node is either a
// leaf (Condition non-nil) or an inner node combining its children with AND
// (OrOperator false) or OR (OrOperator true). A nil tree, a leaf with no
// condition, and a nil child all evaluate to True: absent targeting means
// everyone is targeted.
type Tree struct {
	OrOperator bool
	LeftChild  *Tree
	RightChild *Tree
	Condition  Condition
}

// Evaluate walks the tree with three-valued logic. The right subtree is
// evaluated only when its value could still change the outcome: left=True
// under OR and left=False under AND short-circuit. Conditions must therefore
// not rely on being evaluated at all.
func (t *Tree) Evaluate(resolver FactResolver) Value {
	if t == nil {
		return True
	}
	if t.Condition != nil {
		return t.evaluateLeaf(resolver)
	}

	left := t.LeftChild.Evaluate(resolver)
	if t.OrOperator {
		if left == True {
			return True
		}
		return Or(left, t.RightChild.Evaluate(resolver))
	}
	if left == False {
		return False
	}
	return And(left, t.RightChild.Evaluate(resolver))
}

func (t *Tree) evaluateLeaf(resolver FactResolver) Value {
	raw := t.rawLeafValue(resolver)
	if !t.Condition.Include() {
		return Exclude(raw)
	}
	return raw
}

func (t *Tree) rawLeafValue(resolver FactResolver) Value {
	// An unrecognised condition type matches as a raw result, so a new
	// server-side condition type never reduces reach on old SDKs; an
	// exclusion leaf inverts it like any other raw value.
	if _, unknown := t.Condition.(*UnknownCondition); unknown {
		return True
	}

	if segment, ok := t.Condition.(*SegmentCondition); ok {
		tree, found := resolver.Segment(segment.SegmentID)
		if !found {
			return Unknown
		}
		return tree.Evaluate(resolver)
	}

	fact, ok := resolver.Fact(t.Condition.FactKind())
	if !ok {
		return Unknown
	}
	return FromBool(t.Condition.Check(fact))
}
