package domain

import "time"

// PaymentProvider identifies the gateway a transaction came from.
type PaymentProvider string

const (
	ProviderStripe  PaymentProvider = "stripe"
	ProviderPhonePe PaymentProvider = "phonepe"
)

// Valid reports whether p is a known provider.
func (p PaymentProvider) Valid() bool {
	return p == ProviderStripe || p == ProviderPhonePe
}

// TransactionStatus enumerates the states of a payment.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "PENDING"
	TxSucceeded TransactionStatus = "SUCCEEDED"
	TxFailed    TransactionStatus = "FAILED"
	TxRefunded  TransactionStatus = "REFUNDED"
)

var txTransitions = map[TransactionStatus][]TransactionStatus{
	TxPending:   {TxSucceeded, TxFailed},
	TxSucceeded: {TxRefunded},
}

// CanTransition reports whether from -> to is a legal transaction transition.
func (s TransactionStatus) CanTransition(to TransactionStatus) bool {
	for _, next := range txTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Transaction is a payment for a tier upgrade.
type Transaction struct {
	ID           string            `json:"id" db:"id"`
	SubscriberID string            `json:"subscriber_id" db:"subscriber_id"`
	Provider     PaymentProvider   `json:"provider" db:"provider"`
	ProviderRef  string            `json:"provider_ref" db:"provider_ref"`
	Tier         Tier              `json:"tier" db:"tier"`
	AmountMinor  int64             `json:"amount_minor" db:"amount_minor"`
	Currency     string            `json:"currency" db:"currency"`
	Status       TransactionStatus `json:"status" db:"status"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at" db:"updated_at"`
}
