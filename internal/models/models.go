package models

import "time"

// Payment statuses. Pending is the initial state; the others are assigned
// by provider notifications.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusApproved   = "approved"
	StatusDeclined   = "declined"
	StatusExpired    = "expired"
)

// Supported payment methods
const (
	MethodPSE  = "PSE"
	MethodPIX  = "PIX"
	MethodOXXO = "OXXO"
	MethodCard = "CARD"
)

// ValidStatus reports whether s is a known payment status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusApproved, StatusDeclined, StatusExpired:
		return true
	}
	return false
}

// TerminalStatus reports whether s is a settled status. Pending and
// processing payments are still waiting on the provider.
func TerminalStatus(s string) bool {
	switch s {
	case StatusApproved, StatusDeclined, StatusExpired:
		return true
	}
	return false
}

// ValidMethod reports whether m is an allowed payment method.
func ValidMethod(m string) bool {
	switch m {
	case MethodPSE, MethodPIX, MethodOXXO, MethodCard:
		return true
	}
	return false
}

// Customer holds the payer's identification data.
type Customer struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Document string `json:"document"`
}

// EventSignature identifies one provider notification delivery. Two
// deliveries with the same status and event timestamp are the same
// notification retransmitted.
type EventSignature struct {
	Status         string    `json:"status"`
	EventTimestamp time.Time `json:"event_timestamp"`
}

// Payment is the reconciliation engine's view of one payment.
//
// LastEventAt is the watermark: the event timestamp of the most recent
// notification actually applied, or the creation time if none has been.
// It never regresses. Version is bumped on every store write and drives
// the optimistic concurrency check.
type Payment struct {
	ID                string           `json:"payment_id"`
	Status            string           `json:"status"`
	Amount            string           `json:"amount"`
	Currency          string           `json:"currency"`
	PaymentMethod     string           `json:"payment_method"`
	Bank              string           `json:"bank,omitempty"`
	Customer          Customer         `json:"customer"`
	RedirectURL       string           `json:"redirect_url"`
	CreationKey       string           `json:"idempotency_key"`
	CreatedAt         time.Time        `json:"created_at"`
	LastEventAt       time.Time        `json:"last_event_at"`
	AppliedEventCount int              `json:"applied_event_count"`
	SeenSignatures    []EventSignature `json:"-"`
	Version           int64            `json:"-"`
}

// HasSeenSignature reports whether sig is in the payment's recent
// signature history.
func (p *Payment) HasSeenSignature(sig EventSignature) bool {
	for _, s := range p.SeenSignatures {
		if s.Status == sig.Status && s.EventTimestamp.Equal(sig.EventTimestamp) {
			return true
		}
	}
	return false
}

// RecordSignature appends sig to the signature history, evicting the
// oldest entries beyond capacity. Capacity <= 0 disables the bound.
func (p *Payment) RecordSignature(sig EventSignature, capacity int) {
	p.SeenSignatures = append(p.SeenSignatures, sig)
	if capacity > 0 && len(p.SeenSignatures) > capacity {
		p.SeenSignatures = p.SeenSignatures[len(p.SeenSignatures)-capacity:]
	}
}

// Clone returns a deep copy of the payment so callers never share the
// store's internal record.
func (p *Payment) Clone() *Payment {
	cp := *p
	cp.SeenSignatures = make([]EventSignature, len(p.SeenSignatures))
	copy(cp.SeenSignatures, p.SeenSignatures)
	return &cp
}

// NotificationEvent is a provider status notification after parsing.
// EventTimestamp is the provider's event-generation time, not our receipt
// time. AuthToken carries the provider signature; verification is not
// wired in yet.
type NotificationEvent struct {
	PaymentID      string    `json:"payment_id"`
	Status         string    `json:"status"`
	EventTimestamp time.Time `json:"timestamp"`
	AuthToken      string    `json:"signature,omitempty"`
	Reason         string    `json:"reason,omitempty"`
}

// Signature returns the dedup signature for the event.
func (e *NotificationEvent) Signature() EventSignature {
	return EventSignature{Status: e.Status, EventTimestamp: e.EventTimestamp}
}
