package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"agroadvisor/internal/broker"
	"agroadvisor/internal/delivery"
	"agroadvisor/internal/logger"
)

// Receipt is what the SMS and push gateways publish back after a
// delivery attempt.
type Receipt struct {
	DeliveryID string `json:"delivery_id"`
	Delivered  bool   `json:"delivered"`
	Reason     string `json:"reason,omitempty"`
}

// ReceiptListener consumes gateway receipts and moves the matching
// delivery logs to DELIVERED or DELIVERY_FAILED.
type ReceiptListener struct {
	consumer   broker.Consumer
	deliveries *delivery.Service
	topic      string
	logger     logger.Logger
}

func NewReceiptListener(consumer broker.Consumer, deliveries *delivery.Service, topic string, log logger.Logger) *ReceiptListener {
	return &ReceiptListener{
		consumer:   consumer,
		deliveries: deliveries,
		topic:      topic,
		logger:     log,
	}
}

// Run blocks until ctx is canceled. A missing topic disables the
// listener entirely, for deployments where gateways call back over HTTP.
func (l *ReceiptListener) Run(ctx context.Context) error {
	if l.topic == "" {
		l.logger.Infow("Receipt topic not configured, receipt listener disabled")
		<-ctx.Done()
		return ctx.Err()
	}
	return l.consumer.Consume(ctx, l.topic, l.handle)
}

func (l *ReceiptListener) handle(ctx context.Context, msg broker.Envelope) error {
	var receipt Receipt
	if err := json.Unmarshal(msg.Payload, &receipt); err != nil {
		return fmt.Errorf("failed to unmarshal receipt: %w", err)
	}
	if receipt.DeliveryID == "" {
		return fmt.Errorf("receipt without delivery_id")
	}

	var err error
	if receipt.Delivered {
		_, err = l.deliveries.MarkDelivered(ctx, receipt.DeliveryID)
	} else {
		_, err = l.deliveries.MarkDeliveryFailed(ctx, receipt.DeliveryID, receipt.Reason)
	}
	return err
}
