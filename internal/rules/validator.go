package rules

import (
	"fmt"
)

func validOperator(op Operator) bool {
	switch op {
	case OperatorEquals, OperatorGT, OperatorLT, OperatorGTE, OperatorLTE,
		OperatorContains, OperatorIn:
		return true
	default:
		return false
	}
}

func ValidateDefinition(def Definition) error {
	if def.Logic != "" && def.Logic != LogicAnd && def.Logic != LogicOr {
		return fmt.Errorf("logic must be AND or OR, got %q", def.Logic)
	}

	for i, cond := range def.Conditions {
		if cond.Field == "" {
			return fmt.Errorf("condition %d: field is required", i)
		}
		if !validOperator(cond.Operator) {
			return fmt.Errorf("condition %d: unsupported operator %q", i, cond.Operator)
		}
		if cond.Operator == OperatorIn && cond.Value == "" && len(cond.Values) == 0 {
			return fmt.Errorf("condition %d: IN requires a value list", i)
		}
	}

	for i, action := range def.Actions {
		if action.Type == "" {
			return fmt.Errorf("action %d: type is required", i)
		}
	}

	return nil
}

func ValidateCreateRule(req CreateRuleRequest) error {
	if req.Name == "" {
		return fmt.Errorf("name is required")
	}
	if req.Status != "" && req.Status != StatusDraft && req.Status != StatusActive {
		return fmt.Errorf("status must be DRAFT or ACTIVE on creation, got %q", req.Status)
	}
	if req.EffectiveFrom != nil && req.EffectiveTo != nil && !req.EffectiveFrom.Before(*req.EffectiveTo) {
		return fmt.Errorf("effective_from must precede effective_to")
	}
	return ValidateDefinition(req.Definition)
}

func ValidateUpdateRule(req UpdateRuleRequest) error {
	if req.Name != nil && *req.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if req.Status != nil && *req.Status != StatusDraft && *req.Status != StatusActive {
		return fmt.Errorf("status must be DRAFT or ACTIVE, got %q", *req.Status)
	}
	if req.Definition != nil {
		return ValidateDefinition(*req.Definition)
	}
	return nil
}
