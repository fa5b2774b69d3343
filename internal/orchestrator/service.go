package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"agroadvisor/internal/advisory"
	"agroadvisor/internal/delivery"
	"agroadvisor/internal/logger"
	"agroadvisor/internal/notification"
	"agroadvisor/internal/rules"
	"agroadvisor/internal/weather"
	pkgerrors "agroadvisor/pkg/errors"
	"agroadvisor/pkg/logging"
	"agroadvisor/pkg/metrics"
)

// SignalSource is the slice of the weather ingestor the orchestrator
// consumes.
type SignalSource interface {
	SignalsByDistrict() map[string][]weather.Signal
	ProviderAvailability() map[string]bool
	LastPoll() time.Time
}

// ContextSource builds advisory contexts for cycle and on-demand runs.
type ContextSource interface {
	BuildForDistrict(ctx context.Context, district string) ([]advisory.AdvisoryContext, error)
	BuildForFarmer(ctx context.Context, farmerID string) (*advisory.AdvisoryContext, error)
}

// RuleExecutor evaluates the active rule set against one context.
type RuleExecutor interface {
	ExecuteRules(ctx context.Context, src rules.FieldSource) ([]rules.Result, error)
}

// CycleReport is the outcome of one evaluation cycle. Per-farmer
// failures are collected here instead of aborting the cycle.
type CycleReport struct {
	CycleID            string    `json:"cycle_id"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
	DistrictsEvaluated int       `json:"districts_evaluated"`
	FarmersEvaluated   int       `json:"farmers_evaluated"`
	RulesMatched       int       `json:"rules_matched"`
	AdvisoriesCreated  int       `json:"advisories_created"`
	Deduped            int       `json:"deduped"`
	Dispatched         int       `json:"dispatched"`
	Errors             []string  `json:"errors,omitempty"`
}

// Orchestrator runs the poll-evaluate-notify pipeline: weather signals
// per district, advisory contexts per farmer, rule evaluation,
// deduplicated delivery.
type Orchestrator struct {
	signals    SignalSource
	contexts   ContextSource
	rules      RuleExecutor
	deliveries *delivery.Service
	sender     notification.Sender
	dedup      *DedupSet
	clock      Clock
	logger     logger.Logger

	mu        sync.Mutex
	running   bool
	lastRun   *CycleReport
	lastRunAt time.Time
}

func New(
	signals SignalSource,
	contexts ContextSource,
	ruleExec RuleExecutor,
	deliveries *delivery.Service,
	sender notification.Sender,
	log logger.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		signals:    signals,
		contexts:   contexts,
		rules:      ruleExec,
		deliveries: deliveries,
		sender:     sender,
		clock:      time.Now,
		logger:     log,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.dedup == nil {
		o.dedup = NewDedupSet(o.clock)
	}
	return o
}

type Option func(*Orchestrator)

func WithClock(clock Clock) Option {
	return func(o *Orchestrator) {
		o.clock = clock
	}
}

func WithDedupSet(set *DedupSet) Option {
	return func(o *Orchestrator) {
		o.dedup = set
	}
}

// RunCycle evaluates every district with active weather signals. Only
// one cycle runs at a time; overlapping triggers are rejected.
func (o *Orchestrator) RunCycle(ctx context.Context) (*CycleReport, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, pkgerrors.ErrConflict.WithDetail("message", "cycle already running")
	}
	o.running = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	report := &CycleReport{
		CycleID:   uuid.New().String(),
		StartedAt: o.clock(),
	}
	ctx = logging.WithCycleID(ctx, report.CycleID)

	// Stale entries from previous hours would only accumulate; the
	// hour-of-day in the key already guards correctness.
	o.dedup.Clear()

	o.logger.InfowCtx(ctx, "Advisory cycle started")

	for district, signals := range o.signals.SignalsByDistrict() {
		if !hasActionableSignal(signals) {
			continue
		}
		report.DistrictsEvaluated++

		contexts, err := o.contexts.BuildForDistrict(ctx, district)
		if err != nil {
			report.Errors = append(report.Errors,
				fmt.Sprintf("district %s: %v", district, err))
			continue
		}

		for i := range contexts {
			o.processContext(ctx, &contexts[i], report)
		}
	}

	report.FinishedAt = o.clock()

	o.mu.Lock()
	o.lastRun = report
	o.lastRunAt = report.FinishedAt
	o.mu.Unlock()

	metrics.CyclesTotal.Inc()
	metrics.CycleDurationSeconds.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())

	o.logger.InfowCtx(ctx, "Advisory cycle finished",
		"districts", report.DistrictsEvaluated,
		"farmers", report.FarmersEvaluated,
		"advisories", report.AdvisoriesCreated,
		"deduped", report.Deduped,
		"dispatched", report.Dispatched,
		"errors", len(report.Errors),
	)
	return report, nil
}

// ProcessFarmer evaluates a single farmer outside the scheduled cycle,
// e.g. right after a new crop listing. It shares the cycle dedup set,
// so a farmer already served this hour is a no-op.
func (o *Orchestrator) ProcessFarmer(ctx context.Context, farmerID string) (*CycleReport, error) {
	report := &CycleReport{
		CycleID:   uuid.New().String(),
		StartedAt: o.clock(),
	}
	ctx = logging.WithCycleID(ctx, report.CycleID)
	ctx = logging.WithFarmerID(ctx, farmerID)

	built, err := o.contexts.BuildForFarmer(ctx, farmerID)
	if err != nil {
		return nil, err
	}
	if built != nil {
		o.processContext(ctx, built, report)
	}

	report.FinishedAt = o.clock()
	return report, nil
}

// processContext runs one farmer through dedup, rule evaluation and
// dispatch. Panics are contained so one bad context cannot take down
// the cycle.
func (o *Orchestrator) processContext(ctx context.Context, advisoryCtx *advisory.AdvisoryContext, report *CycleReport) {
	defer func() {
		if r := recover(); r != nil {
			err := pkgerrors.RecoverPanic(r)
			report.Errors = append(report.Errors,
				fmt.Sprintf("farmer %s: %v", advisoryCtx.FarmerID, err))
			o.logger.ErrorwCtx(ctx, "Panic recovered during farmer evaluation",
				"farmer_id", advisoryCtx.FarmerID,
				"error", err,
			)
		}
	}()

	if !advisoryCtx.Valid() {
		return
	}
	report.FarmersEvaluated++

	primary := advisoryCtx.PrimarySignal
	if primary == nil || primary.IsNormal() {
		return
	}

	dedupKey := o.dedup.Key(advisoryCtx.FarmerID, string(primary.Kind), advisoryCtx.CropType)
	if o.dedup.Seen(dedupKey) {
		report.Deduped++
		metrics.OrchestratorDedupTotal.Inc()
		return
	}

	results, err := o.rules.ExecuteRules(ctx, advisoryCtx.Fields())
	if err != nil {
		report.Errors = append(report.Errors,
			fmt.Sprintf("farmer %s: rule evaluation: %v", advisoryCtx.FarmerID, err))
		return
	}

	created := 0
	for _, match := range results {
		if !match.Triggered {
			continue
		}
		report.RulesMatched++

		if err := o.dispatch(ctx, advisoryCtx, match, report); err != nil {
			report.Errors = append(report.Errors,
				fmt.Sprintf("farmer %s: rule %s: %v", advisoryCtx.FarmerID, match.RuleID, err))
			continue
		}
		created++
	}

	if created > 0 {
		o.dedup.Mark(dedupKey)
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, advisoryCtx *advisory.AdvisoryContext, match rules.Result, report *CycleReport) error {
	channel := notification.ChannelFor(advisoryCtx.PrimarySignal.Severity)
	now := o.clock()

	log := delivery.NewLogFromMatch(advisoryCtx, match, advisoryType(match), channel, now)

	deduped, err := o.deliveries.Record(ctx, log)
	if err != nil {
		return err
	}
	if deduped {
		report.Deduped++
		return nil
	}
	report.AdvisoriesCreated++

	msg := notification.Message{
		DeliveryID: log.ID,
		FarmerID:   log.FarmerID,
		Channel:    channel,
		Priority:   log.Priority,
		Title:      log.Title,
		Body:       log.ContentSnapshot,
	}
	// On publish failure the log stays CREATED; a later cycle may
	// retry once the hour bucket rolls over.
	if err := o.sender.Send(ctx, msg); err != nil {
		return err
	}

	if _, err := o.deliveries.MarkDispatched(ctx, log.ID); err != nil {
		return err
	}
	report.Dispatched++
	metrics.AdvisoriesDispatchedTotal.WithLabelValues(channel).Inc()
	return nil
}

// advisoryType comes from the matched rule's action payload, falling
// back to a generic weather alert.
func advisoryType(match rules.Result) string {
	for _, action := range match.Actions {
		if action.Type != "SEND_ADVISORY" {
			continue
		}
		if t, ok := action.Payload["advisory_type"]; ok && t != "" {
			return t
		}
	}
	return "WEATHER_ALERT"
}

func hasActionableSignal(signals []weather.Signal) bool {
	for _, s := range signals {
		if !s.IsNormal() {
			return true
		}
	}
	return false
}

// HealthStatus is exposed on the admin API.
type HealthStatus struct {
	Running              bool            `json:"running"`
	LastRunAt            *time.Time      `json:"last_run_at,omitempty"`
	LastCycle            *CycleReport    `json:"last_cycle,omitempty"`
	DedupSize            int             `json:"dedup_size"`
	ProviderAvailability map[string]bool `json:"provider_availability"`
	LastWeatherPoll      *time.Time      `json:"last_weather_poll,omitempty"`
}

func (o *Orchestrator) Health() HealthStatus {
	o.mu.Lock()
	status := HealthStatus{
		Running:   o.running,
		LastCycle: o.lastRun,
		DedupSize: o.dedup.Len(),
	}
	if !o.lastRunAt.IsZero() {
		at := o.lastRunAt
		status.LastRunAt = &at
	}
	o.mu.Unlock()

	status.ProviderAvailability = o.signals.ProviderAvailability()
	if poll := o.signals.LastPoll(); !poll.IsZero() {
		status.LastWeatherPoll = &poll
	}
	return status
}
