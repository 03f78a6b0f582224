package docstore

import (
	"strings"

	"github.com/pkg/errors"
)

// Search evaluates field <op> operand over the ascending entries of one field
// index and returns the matching primary keys. The result never aliases the
// entries' id sets.
func Search(entries []FieldIndexEntry, op Operator, operand Operand) (KeySet, error) {
	if len(operand.values) == 0 && op != In && op != NotIn {
		return nil, errors.Wrapf(ErrUnsupportedOperator, "%v without a value", op)
	}
	if operand.list && op != In && op != NotIn {
		return nil, errors.Wrapf(ErrUnsupportedOperator, "%v with a list", op)
	}
	v := operand.Value()

	switch op {
	case Equals:
		return searchEquals(entries, v), nil
	case NotEquals:
		return searchNotEquals(entries, v), nil
	case GreaterThan, GreaterThanEquals, SmallerThan, SmallerThanEquals:
		if v.kind != KindDouble && v.kind != KindCustom {
			return nil, errors.Wrapf(ErrUnsupportedOperator, "%v on %v values", op, v.kind)
		}
		return searchRange(entries, op, v), nil
	case Contains:
		if v.kind != KindString {
			return nil, errors.Wrapf(ErrUnsupportedOperator, "%v on %v values", op, v.kind)
		}
		return searchContains(entries, v), nil
	case In:
		return searchIn(entries, operand.values, false), nil
	case NotIn:
		return searchIn(entries, operand.values, true), nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedOperator, "%v", op)
	}
}

func findEntry(entries []FieldIndexEntry, v FieldValue) (int, bool) {
	lo, hi := 0, len(entries)-1
	for lo <= hi {
		mid := int(uint(lo+hi) >> 1)
		switch c := entries[mid].Value.Compare(v); {
		case c == 0:
			return mid, true
		case c < 0:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return -1, false
}

func unionIDs(entries []FieldIndexEntry) KeySet {
	result := make(KeySet)
	for _, e := range entries {
		result.AddAll(e.IDs)
	}
	return result
}

func searchEquals(entries []FieldIndexEntry, v FieldValue) KeySet {
	if i, ok := findEntry(entries, v); ok {
		return entries[i].IDs.Clone()
	}
	return make(KeySet)
}

func searchNotEquals(entries []FieldIndexEntry, v FieldValue) KeySet {
	i, ok := findEntry(entries, v)
	if !ok {
		return unionIDs(entries)
	}
	rest := make([]FieldIndexEntry, 0, len(entries)-1)
	rest = append(rest, entries[:i]...)
	rest = append(rest, entries[i+1:]...)
	return unionIDs(rest)
}

func searchRange(entries []FieldIndexEntry, op Operator, v FieldValue) KeySet {
	switch op {
	case GreaterThan, GreaterThanEquals:
		if i := firstGreater(entries, v, op == GreaterThanEquals); i >= 0 {
			return unionIDs(entries[i:])
		}
	case SmallerThan, SmallerThanEquals:
		if i := lastSmaller(entries, v, op == SmallerThanEquals); i >= 0 {
			return unionIDs(entries[:i+1])
		}
	}
	return make(KeySet)
}

// firstGreater returns the index of the first entry above v (at or above v
// when inclusive), or -1. An index of fewer than two entries has no valid
// boundary and always yields -1.
func firstGreater(entries []FieldIndexEntry, v FieldValue, inclusive bool) int {
	n := len(entries)
	if n < 2 {
		return -1
	}
	satisfies := func(i int) bool {
		c := entries[i].Value.Compare(v)
		return c > 0 || (inclusive && c == 0)
	}
	if entries[0].Value.Compare(v) > 0 {
		return 0
	}
	if !satisfies(n - 1) {
		return -1
	}
	lo, hi := 0, n-1
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if satisfies(mid) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// lastSmaller returns the index of the last entry below v (at or below v
// when inclusive), or -1, with the same small-index rule as firstGreater.
func lastSmaller(entries []FieldIndexEntry, v FieldValue, inclusive bool) int {
	n := len(entries)
	if n < 2 {
		return -1
	}
	satisfies := func(i int) bool {
		c := entries[i].Value.Compare(v)
		return c < 0 || (inclusive && c == 0)
	}
	if entries[n-1].Value.Compare(v) < 0 {
		return n - 1
	}
	if !satisfies(0) {
		return -1
	}
	lo, hi := 0, n-1
	for lo < hi {
		mid := int(uint(lo+hi+1) >> 1)
		if satisfies(mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

func searchContains(entries []FieldIndexEntry, v FieldValue) KeySet {
	result := make(KeySet)
	for _, e := range entries {
		if e.Value.kind == KindString && strings.Contains(e.Value.fold, v.fold) {
			result.AddAll(e.IDs)
		}
	}
	return result
}

func searchIn(entries []FieldIndexEntry, targets []FieldValue, negate bool) KeySet {
	result := make(KeySet)
	for _, e := range entries {
		found := false
		for _, t := range targets {
			if e.Value.Compare(t) == 0 {
				found = true
				break
			}
		}
		if found != negate {
			result.AddAll(e.IDs)
		}
	}
	return result
}
