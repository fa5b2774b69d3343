package rules

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"agroadvisor/internal/constants"
	"agroadvisor/internal/logger"
	pkgerrors "agroadvisor/pkg/errors"
	"agroadvisor/pkg/metrics"
)

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Service owns rule CRUD, the active-rule cache and evaluation.
// Mutations invalidate the cache atomically with the write.
type Service struct {
	repo   Repository
	audit  AuditRepository
	clock  Clock
	logger logger.Logger

	mu     sync.RWMutex
	active []Rule
	loaded bool
}

type ServiceOption func(*Service)

func WithAudit(audit AuditRepository) ServiceOption {
	return func(s *Service) {
		s.audit = audit
	}
}

func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		s.clock = clock
	}
}

func NewService(repo Repository, log logger.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		repo:   repo,
		clock:  time.Now,
		logger: log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreateRule(ctx context.Context, req CreateRuleRequest) (*Rule, error) {
	if err := ValidateCreateRule(req); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrValidation)
	}

	status := req.Status
	if status == "" {
		status = StatusActive
	}

	rule := &Rule{
		ID:            uuid.New().String(),
		Name:          req.Name,
		Definition:    req.Definition,
		Status:        status,
		IsActive:      status == StatusActive,
		Version:       1,
		Priority:      req.Priority,
		EffectiveFrom: req.EffectiveFrom,
		EffectiveTo:   req.EffectiveTo,
		CreatedBy:     req.CreatedBy,
	}
	rule.GroupID = rule.ID

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Create(ctx, rule); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	s.invalidateLocked()

	s.writeAudit(ctx, rule, "create", nil)
	s.logger.InfowCtx(ctx, "Rule created", "rule_id", rule.ID, "name", rule.Name, "priority", rule.Priority)

	return rule, nil
}

// UpdateRule never mutates the existing version: the old row is
// archived and a successor row with version+1 and the same group id
// is inserted in one transaction.
func (s *Service) UpdateRule(ctx context.Context, id string, req UpdateRuleRequest) (*Rule, error) {
	if err := ValidateUpdateRule(req); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrValidation)
	}

	old, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	if old == nil {
		return nil, pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	if old.Status == StatusArchived {
		return nil, pkgerrors.ErrConflict.WithDetail("message", "archived rule versions cannot be updated")
	}

	next := &Rule{
		ID:            uuid.New().String(),
		GroupID:       old.GroupID,
		Name:          old.Name,
		Definition:    old.Definition,
		Status:        old.Status,
		Priority:      old.Priority,
		EffectiveFrom: old.EffectiveFrom,
		EffectiveTo:   old.EffectiveTo,
		CreatedBy:     req.UpdatedBy,
		Version:       old.Version + 1,
	}
	if next.CreatedBy == "" {
		next.CreatedBy = old.CreatedBy
	}

	if req.Name != nil {
		next.Name = *req.Name
	}
	if req.Definition != nil {
		next.Definition = *req.Definition
	}
	if req.Status != nil {
		next.Status = *req.Status
	}
	if req.Priority != nil {
		next.Priority = *req.Priority
	}
	if req.EffectiveFrom != nil {
		next.EffectiveFrom = req.EffectiveFrom
	}
	if req.EffectiveTo != nil {
		next.EffectiveTo = req.EffectiveTo
	}
	next.IsActive = next.Status == StatusActive

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.ArchiveAndInsert(ctx, old.ID, next); err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	s.invalidateLocked()

	s.writeAudit(ctx, next, "update", ruleToMap(old))
	s.logger.InfowCtx(ctx, "Rule updated",
		"group_id", next.GroupID,
		"old_version", old.Version,
		"new_version", next.Version,
	)

	return next, nil
}

func (s *Service) GetRule(ctx context.Context, id string) (*Rule, error) {
	rule, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	if rule == nil {
		return nil, pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	return rule, nil
}

func (s *Service) ListRules(ctx context.Context, filter ListFilter) ([]Rule, error) {
	rules, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	return rules, nil
}

func (s *Service) ListVersions(ctx context.Context, id string) ([]Rule, error) {
	rule, err := s.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	versions, err := s.repo.ListVersions(ctx, rule.GroupID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	return versions, nil
}

func (s *Service) GetAuditLogs(ctx context.Context, groupID string, limit int) ([]AuditLog, error) {
	if s.audit == nil {
		return nil, pkgerrors.ErrInternal.WithDetail("message", "audit logging not enabled")
	}
	if limit <= 0 || limit > constants.MaxLimit {
		limit = constants.DefaultLimit
	}
	logs, err := s.audit.GetAuditLogs(ctx, groupID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	return logs, nil
}

// ExecuteRules evaluates every active, currently effective rule
// against the field source, independently of each other. Result order
// is deterministic: priority descending, creation order breaking ties.
func (s *Service) ExecuteRules(ctx context.Context, src FieldSource) ([]Result, error) {
	active, err := s.activeRules(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	var results []Result
	for _, rule := range active {
		if !rule.EffectiveAt(now) {
			continue
		}

		metrics.RuleEvaluationsTotal.Inc()
		if !Evaluate(rule.Definition, src) {
			continue
		}

		results = append(results, Result{
			RuleID:      rule.ID,
			RuleName:    rule.Name,
			Priority:    rule.Priority,
			Triggered:   true,
			Actions:     rule.Definition.Actions,
			MatchReason: matchReason(rule.Definition),
			EvaluatedAt: now,
		})
	}

	return results, nil
}

// Simulate evaluates an ad-hoc definition against a caller-supplied
// context without touching the stored rule set.
func (s *Service) Simulate(ctx context.Context, req SimulateRequest) (*Result, error) {
	if err := ValidateDefinition(req.Definition); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrValidation)
	}

	src := FieldMapFrom(req.Context)
	triggered := Evaluate(req.Definition, src)

	result := &Result{
		Triggered:   triggered,
		Actions:     req.Definition.Actions,
		EvaluatedAt: s.clock(),
	}
	if triggered {
		result.MatchReason = matchReason(req.Definition)
	}
	return result, nil
}

func (s *Service) activeRules(ctx context.Context) ([]Rule, error) {
	s.mu.RLock()
	if s.loaded {
		cached := make([]Rule, len(s.active))
		copy(cached, s.active)
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		cached := make([]Rule, len(s.active))
		copy(cached, s.active)
		return cached, nil
	}

	rules, err := s.repo.GetActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	s.active = rules
	s.loaded = true
	metrics.SetActiveRules(len(rules))

	cached := make([]Rule, len(rules))
	copy(cached, rules)
	return cached, nil
}

func (s *Service) invalidateLocked() {
	s.active = nil
	s.loaded = false
}

func (s *Service) writeAudit(ctx context.Context, rule *Rule, action string, oldValue map[string]interface{}) {
	if s.audit == nil {
		return
	}

	log := &AuditLog{
		RuleID:    rule.ID,
		GroupID:   rule.GroupID,
		Action:    action,
		OldValue:  oldValue,
		NewValue:  ruleToMap(rule),
		ChangedBy: rule.CreatedBy,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.WarnwCtx(ctx, "Failed to write rule audit log", "rule_id", rule.ID, "error", err)
	}
}
