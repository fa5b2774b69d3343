package rules

import (
	"fmt"
	"strconv"
	"strings"
)

// Evaluate runs a definition against a field source. Pure and
// side-effect free.
//
// An empty condition list matches vacuously. AND stops at the first
// false condition, OR at the first true one; later conditions are not
// looked up at all. A missing field fails its condition.
func Evaluate(def Definition, src FieldSource) bool {
	if len(def.Conditions) == 0 {
		return true
	}

	if def.Logic == LogicOr {
		for _, cond := range def.Conditions {
			if evalCondition(cond, src) {
				return true
			}
		}
		return false
	}

	for _, cond := range def.Conditions {
		if !evalCondition(cond, src) {
			return false
		}
	}
	return true
}

func evalCondition(cond Condition, src FieldSource) bool {
	actual, ok := src.Field(cond.Field)
	if !ok {
		return false
	}

	switch cond.Operator {
	case OperatorEquals:
		return actual.AsString() == cond.Value
	case OperatorGT:
		return compare(actual, cond.Value) > 0
	case OperatorLT:
		return compare(actual, cond.Value) < 0
	case OperatorGTE:
		return compare(actual, cond.Value) >= 0
	case OperatorLTE:
		return compare(actual, cond.Value) <= 0
	case OperatorContains:
		return strings.Contains(actual.AsString(), cond.Value)
	case OperatorIn:
		return member(actual, cond)
	default:
		return false
	}
}

// compare orders actual against expected numerically when both sides
// parse, falling back to lexicographic string order otherwise.
func compare(actual Value, expected string) int {
	left, leftOK := actual.AsNumber()
	right, rightErr := strconv.ParseFloat(strings.TrimSpace(expected), 64)

	if leftOK && rightErr == nil {
		switch {
		case left < right:
			return -1
		case left > right:
			return 1
		default:
			return 0
		}
	}

	return strings.Compare(actual.AsString(), expected)
}

// member implements IN as true set membership: the field value must
// equal one of the expected values.
func member(actual Value, cond Condition) bool {
	candidates := cond.Values
	if len(candidates) == 0 {
		candidates = strings.Split(cond.Value, ",")
	}

	got := actual.AsString()
	for _, candidate := range candidates {
		if got == strings.TrimSpace(candidate) {
			return true
		}
	}
	return false
}

// matchReason describes a successful evaluation for the audit trail.
func matchReason(def Definition) string {
	if len(def.Conditions) == 0 {
		return "matched: no conditions (catch-all)"
	}

	logic := def.Logic
	if logic == "" {
		logic = LogicAnd
	}

	parts := make([]string, 0, len(def.Conditions))
	for _, cond := range def.Conditions {
		parts = append(parts, fmt.Sprintf("%s %s %s", cond.Field, cond.Operator, cond.Value))
	}
	return fmt.Sprintf("matched %s(%s)", logic, strings.Join(parts, "; "))
}
