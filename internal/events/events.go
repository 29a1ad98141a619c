package events

import "time"

// Event names, appended to the configured topic prefix.
const (
	PaymentApproved      = "payments/approved"
	BalanceDebited       = "balance/debited"
	TranscriptionCreated = "transcriptions/created"
	UserCreated          = "users/created"
)

// Publisher emits domain events. Publish never blocks on the broker.
type Publisher interface {
	Publish(event string, payload any)
}

// Nop discards every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(string, any) {}

type PaymentApprovedEvent struct {
	TransactionID string    `json:"transactionId"`
	ClerkID       string    `json:"clerkId"`
	PackageID     string    `json:"packageId"`
	Minutes       int       `json:"minutes"`
	Credits       int       `json:"credits"`
	At            time.Time `json:"at"`
}

type BalanceDebitedEvent struct {
	ClerkID string    `json:"clerkId"`
	Minutes int       `json:"minutes"`
	Credits int       `json:"credits"`
	At      time.Time `json:"at"`
}

type TranscriptionCreatedEvent struct {
	ID       string    `json:"id"`
	ClerkID  string    `json:"clerkId"`
	Duration int       `json:"duration"`
	Language string    `json:"language"`
	At       time.Time `json:"at"`
}

type UserCreatedEvent struct {
	ClerkID string    `json:"clerkId"`
	Name    string    `json:"name"`
	At      time.Time `json:"at"`
}
