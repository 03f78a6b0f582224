package docstore

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Operator is the comparison of a field predicate.
type Operator int

const (
	Equals Operator = iota + 1
	NotEquals
	GreaterThan
	GreaterThanEquals
	SmallerThan
	SmallerThanEquals
	Contains
	In
	NotIn
)

var operatorNames = [...]string{
	Equals:            "EQUALS",
	NotEquals:         "NOT_EQUALS",
	GreaterThan:       "GREATER_THAN",
	GreaterThanEquals: "GREATER_THAN_EQUALS",
	SmallerThan:       "SMALLER_THAN",
	SmallerThanEquals: "SMALLER_THAN_EQUALS",
	Contains:          "CONTAINS",
	In:                "IN",
	NotIn:             "NOT_IN",
}

var operatorSymbols = map[string]Operator{
	"=":  Equals,
	"==": Equals,
	"!=": NotEquals,
	"<>": NotEquals,
	">":  GreaterThan,
	">=": GreaterThanEquals,
	"<":  SmallerThan,
	"<=": SmallerThanEquals,
	"~":  Contains,
}

func (op Operator) String() string {
	if op > 0 && int(op) < len(operatorNames) {
		return operatorNames[op]
	}
	return fmt.Sprintf("invalid operator %d", int(op))
}

func (op Operator) IsValid() bool {
	return op >= Equals && op <= NotIn
}

// IsRange reports whether op is answered by a boundary search.
func (op Operator) IsRange() bool {
	return op >= GreaterThan && op <= SmallerThanEquals
}

// ParseOperator accepts operator names (case-insensitive) and the usual
// comparison symbols.
func ParseOperator(s string) (Operator, error) {
	if op, ok := operatorSymbols[s]; ok {
		return op, nil
	}
	u := strings.ToUpper(s)
	for op, name := range operatorNames {
		if op > 0 && name == u {
			return Operator(op), nil
		}
	}
	return 0, errors.Wrapf(ErrUnsupportedOperator, "%q", s)
}
