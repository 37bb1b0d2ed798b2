package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"payment-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher publishes payment lifecycle events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishPaymentCreated publishes a PaymentCreated event
func (ep *EventPublisher) PublishPaymentCreated(ctx context.Context, event *models.PaymentCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, event.PaymentID, event)
}

// PublishPaymentStatusChanged publishes a PaymentStatusChanged event
func (ep *EventPublisher) PublishPaymentStatusChanged(ctx context.Context, event *models.PaymentStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, event.PaymentID, event)
}

// EventHandler routes inbound broker messages
type EventHandler struct {
	onProviderNotification func(context.Context, *models.NotificationEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnProviderNotification registers a handler for provider notifications
// delivered over the broker.
func (eh *EventHandler) OnProviderNotification(handler func(context.Context, *models.NotificationEvent) error) {
	eh.onProviderNotification = handler
}

// HandleMessage routes messages to the registered handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeProviderNotification:
		if eh.onProviderNotification != nil {
			var event models.ProviderNotificationEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ProviderNotification event: %w", err)
			}
			return eh.onProviderNotification(ctx, &event.Notification)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
