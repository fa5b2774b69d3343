package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"

	"agroadvisor/internal/advisory"
	"agroadvisor/internal/logger"
	"agroadvisor/internal/rules"
	pkgerrors "agroadvisor/pkg/errors"
	"agroadvisor/pkg/metrics"
)

type Clock func() time.Time

// Service owns the delivery log lifecycle: creation with hour-bucket
// deduplication, and the status transitions reported back by the
// notification channels.
type Service struct {
	repo   Repository
	clock  Clock
	logger logger.Logger
}

func NewService(repo Repository, log logger.Logger, opts ...Option) *Service {
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

type Option func(*Service)

func WithClock(clock Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// NewLogFromMatch freezes an advisory context and a triggered rule into
// a delivery log in CREATED state.
func NewLogFromMatch(advisoryCtx *advisory.AdvisoryContext, match rules.Result, advisoryType, channel string, now time.Time) *Log {
	log := &Log{
		ID:              uuid.New().String(),
		FarmerID:        advisoryCtx.FarmerID,
		FarmerName:      advisoryCtx.FarmerName,
		FarmerPhone:     advisoryCtx.FarmerPhone,
		RuleID:          match.RuleID,
		RuleName:        match.RuleName,
		AdvisoryType:    advisoryType,
		Channel:         channel,
		District:        advisoryCtx.District,
		CropType:        advisoryCtx.CropType,
		GrowthStage:     string(advisoryCtx.GrowthStage),
		Title:           match.RuleName,
		ContentSnapshot: advisoryCtx.SnapshotText(),
		Status:          StatusCreated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if advisoryCtx.PrimarySignal != nil {
		log.Signal = string(advisoryCtx.PrimarySignal.Kind)
		log.Severity = advisoryCtx.PrimarySignal.Severity.String()
		log.Priority = PriorityFor(advisoryCtx.PrimarySignal.Severity)
	} else {
		log.Priority = PriorityLow
	}

	log.DedupKey = DedupKeyFor(log.FarmerID, log.AdvisoryType, log.Signal, now)
	return log
}

// Record persists the log, first checking the hour bucket: when an
// active log for the same dedup key already exists, this one is stored
// as DEDUPED and the caller must not dispatch it.
func (s *Service) Record(ctx context.Context, log *Log) (deduped bool, err error) {
	existing, err := s.repo.FindActiveByDedupKey(ctx, log.DedupKey)
	if err != nil {
		return false, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	if existing != nil {
		log.Status = StatusDeduped
		metrics.DeliveryDedupTotal.Inc()
		s.logger.InfowCtx(ctx, "duplicate advisory suppressed",
			"farmer_id", log.FarmerID,
			"dedup_key", log.DedupKey,
			"existing_id", existing.ID)
	}

	if err := s.repo.Create(ctx, log); err != nil {
		return false, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	metrics.DeliveryLogsTotal.WithLabelValues(string(log.Status)).Inc()
	return log.Status == StatusDeduped, nil
}

func (s *Service) GetLog(ctx context.Context, id string) (*Log, error) {
	log, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	if log == nil {
		return nil, pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	return log, nil
}

func (s *Service) History(ctx context.Context, farmerID, cursor string, limit int) (*HistoryPage, error) {
	return s.ListLogs(ctx, ListFilter{FarmerID: farmerID}, cursor, limit)
}

func (s *Service) ListLogs(ctx context.Context, filter ListFilter, cursor string, limit int) (*HistoryPage, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	page, err := s.repo.List(ctx, filter, cursor, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrValidation)
	}
	return page, nil
}

func (s *Service) MarkDispatched(ctx context.Context, id string) (*Log, error) {
	return s.transition(ctx, id, StatusDispatched, nil)
}

func (s *Service) MarkDelivered(ctx context.Context, id string) (*Log, error) {
	return s.transition(ctx, id, StatusDelivered, nil)
}

func (s *Service) MarkDeliveryFailed(ctx context.Context, id, reason string) (*Log, error) {
	return s.transition(ctx, id, StatusDeliveryFailed, func(log *Log) {
		log.FailureReason = reason
	})
}

// MarkOpened is idempotent: opening an already-opened advisory returns
// the log unchanged.
func (s *Service) MarkOpened(ctx context.Context, id string) (*Log, error) {
	return s.transition(ctx, id, StatusOpened, nil)
}

func (s *Service) MarkFeedback(ctx context.Context, id, feedback, comment string) (*Log, error) {
	return s.transition(ctx, id, StatusFeedbackReceived, func(log *Log) {
		log.Feedback = feedback
		log.FeedbackComment = comment
	})
}

func (s *Service) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	return counts, nil
}

// transition loads, applies the state machine and persists. Illegal
// transitions are logged and ignored, returning the log as-is.
func (s *Service) transition(ctx context.Context, id string, next Status, mutate func(*Log)) (*Log, error) {
	log, err := s.GetLog(ctx, id)
	if err != nil {
		return nil, err
	}

	if log.Status == next {
		return log, nil
	}

	if !log.Transition(next, s.clock()) {
		s.logger.WarnwCtx(ctx, "illegal delivery status transition ignored",
			"delivery_id", id,
			"from", string(log.Status),
			"to", string(next))
		return log, nil
	}

	if mutate != nil {
		mutate(log)
	}

	if err := s.repo.Update(ctx, log); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	metrics.DeliveryLogsTotal.WithLabelValues(string(next)).Inc()
	return log, nil
}
