package models

import "time"

// Event types
const (
	EventTypePaymentCreated       = "PAYMENT_CREATED"
	EventTypePaymentStatusChanged = "PAYMENT_STATUS_CHANGED"
	EventTypeProviderNotification = "PROVIDER_NOTIFICATION"
)

// BaseEvent contains common fields for all broker events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// PaymentCreatedEvent published when a new payment record is allocated.
// Idempotent replays do not publish a second event.
type PaymentCreatedEvent struct {
	BaseEvent
	PaymentID     string `json:"payment_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"payment_method"`
}

// PaymentStatusChangedEvent published when a notification is applied and
// the payment's effective state changes.
type PaymentStatusChangedEvent struct {
	BaseEvent
	PaymentID         string    `json:"payment_id"`
	OldStatus         string    `json:"old_status"`
	NewStatus         string    `json:"new_status"`
	EventTimestamp    time.Time `json:"event_timestamp"`
	AppliedEventCount int       `json:"applied_event_count"`
}

// ProviderNotificationEvent wraps a provider webhook delivered over the
// broker instead of HTTP. The payload is identical to the webhook body.
type ProviderNotificationEvent struct {
	BaseEvent
	Notification NotificationEvent `json:"notification"`
}
