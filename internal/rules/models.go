package rules

import "time"

type Operator string

const (
	OperatorEquals   Operator = "EQUALS"
	OperatorGT       Operator = "GT"
	OperatorLT       Operator = "LT"
	OperatorGTE      Operator = "GTE"
	OperatorLTE      Operator = "LTE"
	OperatorContains Operator = "CONTAINS"
	OperatorIn       Operator = "IN"
)

type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// Condition compares one context field against an expected value.
// For the IN operator the expected set comes from Values, or from
// Value split on commas when Values is empty.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
	Values   []string `json:"values,omitempty"`
}

type Action struct {
	Type    string            `json:"type"`
	Payload map[string]string `json:"payload,omitempty"`
}

// Definition is a flat condition list with a single combinator.
// Immutable once persisted.
type Definition struct {
	Conditions []Condition `json:"conditions"`
	Logic      Logic       `json:"logic"`
	Actions    []Action    `json:"actions,omitempty"`
}

type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusActive   Status = "ACTIVE"
	StatusArchived Status = "ARCHIVED"
)

// Rule is one immutable version of an advisory rule. All versions of
// the same rule share a GroupID; the first version's own ID is the
// group id. Exactly one version per group may be ACTIVE.
type Rule struct {
	ID            string     `json:"id" db:"id"`
	GroupID       string     `json:"group_id" db:"group_id"`
	Name          string     `json:"name" db:"name"`
	Definition    Definition `json:"definition" db:"definition"`
	Status        Status     `json:"status" db:"status"`
	IsActive      bool       `json:"is_active" db:"is_active"`
	Version       int        `json:"version" db:"version"`
	Priority      int        `json:"priority" db:"priority"`
	EffectiveFrom *time.Time `json:"effective_from,omitempty" db:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty" db:"effective_to"`
	CreatedBy     string     `json:"created_by" db:"created_by"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// EffectiveAt reports whether the rule's [from, to) window covers t.
// A nil bound is open.
func (r *Rule) EffectiveAt(t time.Time) bool {
	if r.EffectiveFrom != nil && t.Before(*r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && !t.Before(*r.EffectiveTo) {
		return false
	}
	return true
}

// Result is produced per evaluated rule that matched. Ephemeral.
type Result struct {
	RuleID      string    `json:"rule_id"`
	RuleName    string    `json:"rule_name"`
	Priority    int       `json:"priority"`
	Triggered   bool      `json:"triggered"`
	Actions     []Action  `json:"actions,omitempty"`
	MatchReason string    `json:"match_reason"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

type CreateRuleRequest struct {
	Name          string     `json:"name" binding:"required"`
	Definition    Definition `json:"definition" binding:"required"`
	Status        Status     `json:"status"`
	Priority      int        `json:"priority"`
	EffectiveFrom *time.Time `json:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to"`
	CreatedBy     string     `json:"created_by"`
}

type UpdateRuleRequest struct {
	Name          *string     `json:"name"`
	Definition    *Definition `json:"definition"`
	Status        *Status     `json:"status"`
	Priority      *int        `json:"priority"`
	EffectiveFrom *time.Time  `json:"effective_from"`
	EffectiveTo   *time.Time  `json:"effective_to"`
	UpdatedBy     string      `json:"updated_by"`
}

type ListFilter struct {
	Status  Status
	GroupID string
}

type SimulateRequest struct {
	Definition Definition             `json:"definition" binding:"required"`
	Context    map[string]interface{} `json:"context" binding:"required"`
}
