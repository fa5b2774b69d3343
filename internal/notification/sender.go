package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"agroadvisor/internal/broker"
	"agroadvisor/internal/constants"
	"agroadvisor/internal/delivery"
	"agroadvisor/internal/logger"
	"agroadvisor/internal/weather"
	"agroadvisor/pkg/metrics"
)

// ChannelFor picks the outbound channel for a severity. Emergencies go
// over SMS so they reach farmers without smartphones or data coverage.
func ChannelFor(severity weather.Severity) string {
	if severity == weather.SeverityEmergency {
		return constants.ChannelSMS
	}
	return constants.ChannelPush
}

// Message is the payload published for the downstream SMS and push
// gateways.
type Message struct {
	DeliveryID string            `json:"delivery_id"`
	FarmerID   string            `json:"farmer_id"`
	Channel    string            `json:"channel"`
	Priority   delivery.Priority `json:"priority"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
}

// Sender hands an advisory to the delivery channels.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// KafkaSender publishes messages to the notification topic. Actual
// gateway fan-out happens downstream.
type KafkaSender struct {
	producer broker.Producer
	topic    string
	logger   logger.Logger
}

func NewKafkaSender(producer broker.Producer, topic string, log logger.Logger) *KafkaSender {
	if topic == "" {
		topic = constants.DefaultAdvisoryTopic
	}
	return &KafkaSender{
		producer: producer,
		topic:    topic,
		logger:   log,
	}
}

func (s *KafkaSender) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	envelope := broker.Envelope{
		ID:        uuid.New().String(),
		Type:      "advisory.notification",
		Source:    "advisory-service",
		Timestamp: time.Now(),
		Payload:   payload,
	}

	if err := s.producer.Publish(ctx, s.topic, envelope); err != nil {
		metrics.NotificationsSentTotal.WithLabelValues(msg.Channel, "error").Inc()
		return err
	}

	metrics.NotificationsSentTotal.WithLabelValues(msg.Channel, "ok").Inc()
	s.logger.InfowCtx(ctx, "Notification dispatched",
		"delivery_id", msg.DeliveryID,
		"farmer_id", msg.FarmerID,
		"channel", msg.Channel,
		"priority", string(msg.Priority),
	)
	return nil
}
