package delivery

import (
	"fmt"
	"time"

	"agroadvisor/internal/weather"
)

type Status string

const (
	StatusCreated          Status = "CREATED"
	StatusDispatched       Status = "DISPATCHED"
	StatusDelivered        Status = "DELIVERED"
	StatusDeliveryFailed   Status = "DELIVERY_FAILED"
	StatusOpened           Status = "OPENED"
	StatusFeedbackReceived Status = "FEEDBACK_RECEIVED"
	StatusDeduped          Status = "DEDUPED"
)

// legalTransitions is the full lifecycle graph. DEDUPED, DELIVERY_FAILED
// and FEEDBACK_RECEIVED are terminal.
var legalTransitions = map[Status][]Status{
	StatusCreated:    {StatusDispatched, StatusDeduped},
	StatusDispatched: {StatusDelivered, StatusDeliveryFailed},
	StatusDelivered:  {StatusOpened},
	StatusOpened:     {StatusFeedbackReceived},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return len(legalTransitions[s]) == 0
}

type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// PriorityFor maps signal severity to delivery priority.
func PriorityFor(severity weather.Severity) Priority {
	switch severity {
	case weather.SeverityEmergency:
		return PriorityCritical
	case weather.SeverityWarning:
		return PriorityHigh
	case weather.SeverityWatch:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Log is one advisory delivery attempt, persisted for audit and farmer
// history. The content snapshot is frozen at creation; later status
// updates never rewrite it.
type Log struct {
	ID string `bson:"_id" json:"id"`

	// Farmer identity is denormalized at creation so later profile
	// edits do not rewrite delivery history.
	FarmerID    string `bson:"farmer_id" json:"farmer_id"`
	FarmerName  string `bson:"farmer_name,omitempty" json:"farmer_name,omitempty"`
	FarmerPhone string `bson:"farmer_phone,omitempty" json:"farmer_phone,omitempty"`

	RuleID       string `bson:"rule_id" json:"rule_id"`
	RuleName     string `bson:"rule_name" json:"rule_name"`
	AdvisoryType string `bson:"advisory_type" json:"advisory_type"`

	Signal   string   `bson:"signal" json:"signal"`
	Severity string   `bson:"severity" json:"severity"`
	Priority Priority `bson:"priority" json:"priority"`
	Channel  string   `bson:"channel" json:"channel"`

	District    string `bson:"district" json:"district"`
	CropType    string `bson:"crop_type" json:"crop_type"`
	GrowthStage string `bson:"growth_stage,omitempty" json:"growth_stage,omitempty"`

	Title           string `bson:"title" json:"title"`
	ContentSnapshot string `bson:"content_snapshot" json:"content_snapshot"`

	DedupKey string `bson:"dedup_key" json:"dedup_key"`
	Status   Status `bson:"status" json:"status"`

	FailureReason   string `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	Feedback        string `bson:"feedback,omitempty" json:"feedback,omitempty"`
	FeedbackComment string `bson:"feedback_comment,omitempty" json:"feedback_comment,omitempty"`

	CreatedAt    time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at" json:"updated_at"`
	DispatchedAt *time.Time `bson:"dispatched_at,omitempty" json:"dispatched_at,omitempty"`
	DeliveredAt  *time.Time `bson:"delivered_at,omitempty" json:"delivered_at,omitempty"`
	OpenedAt     *time.Time `bson:"opened_at,omitempty" json:"opened_at,omitempty"`
	FeedbackAt   *time.Time `bson:"feedback_at,omitempty" json:"feedback_at,omitempty"`
}

// Transition moves the log to next if the state machine allows it and
// stamps the matching timestamp exactly once. Returns false for
// illegal moves, including repeats, which callers treat as a no-op.
func (l *Log) Transition(next Status, at time.Time) bool {
	if !l.Status.CanTransitionTo(next) {
		return false
	}

	l.Status = next
	l.UpdatedAt = at

	switch next {
	case StatusDispatched:
		if l.DispatchedAt == nil {
			l.DispatchedAt = &at
		}
	case StatusDelivered:
		if l.DeliveredAt == nil {
			l.DeliveredAt = &at
		}
	case StatusOpened:
		if l.OpenedAt == nil {
			l.OpenedAt = &at
		}
	case StatusFeedbackReceived:
		if l.FeedbackAt == nil {
			l.FeedbackAt = &at
		}
	}
	return true
}

// DedupKeyFor buckets deliveries by hour so the same advisory is not
// sent to the same farmer twice within the hour.
func DedupKeyFor(farmerID, advisoryType, signal string, at time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%s", farmerID, advisoryType, signal, at.UTC().Format("2006010215"))
}

// HistoryPage is a cursor-paginated slice of a farmer's delivery logs,
// newest first. NextCursor is empty on the last page.
type HistoryPage struct {
	Logs       []Log  `json:"logs"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// ListFilter narrows a delivery-log listing. Zero fields match all.
type ListFilter struct {
	FarmerID string
	Status   Status
	District string
	Signal   string
}

type FeedbackRequest struct {
	Feedback string `json:"feedback" binding:"required"`
	Comment  string `json:"comment,omitempty"`
}

type StatusCallbackRequest struct {
	Status Status `json:"status" binding:"required"`
	Reason string `json:"reason,omitempty"`
}
