package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MinimumAmountBRL is the smallest deposit accepted for a new transaction.
var MinimumAmountBRL = decimal.NewFromInt(100)

// PaymentWindow is how long a client has to pay before a pending
// transaction expires.
const PaymentWindow = 40 * time.Minute

type Status string

const (
	StatusPendingPayment  Status = "pending_payment"
	StatusPaymentReceived Status = "payment_received"
	StatusConverting      Status = "converting"
	StatusSent            Status = "sent"
	StatusCancelled       Status = "cancelled"
	StatusExpired         Status = "expired"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPendingPayment, StatusPaymentReceived, StatusConverting,
		StatusSent, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	switch s {
	case StatusSent, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is allowed by the
// lifecycle. Preconditions that depend on transaction data (tx_hash, expiry)
// are enforced by the service, not here.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case StatusPaymentReceived:
		return s == StatusPendingPayment
	case StatusConverting:
		return s == StatusPaymentReceived
	case StatusSent:
		return s == StatusPaymentReceived || s == StatusConverting
	case StatusCancelled:
		return true
	case StatusExpired:
		return s == StatusPendingPayment
	}
	return false
}

type Network string

const (
	NetworkBitcoin  Network = "bitcoin"
	NetworkEthereum Network = "ethereum"
	NetworkPolygon  Network = "polygon"
	NetworkBSC      Network = "bsc"
	NetworkSolana   Network = "solana"
	NetworkTron     Network = "tron"
)

// AllowedFor reports whether the network can be used for a transaction with
// the given ownership. Tron, Polygon and BSC are only offered on the
// anonymous flow.
func (n Network) AllowedFor(owned bool) bool {
	switch n {
	case NetworkBitcoin, NetworkEthereum, NetworkSolana:
		return true
	case NetworkPolygon, NetworkBSC, NetworkTron:
		return !owned
	}
	return false
}

type PaymentMethod string

const (
	MethodPix PaymentMethod = "pix"
	MethodTed PaymentMethod = "ted"
)

// PaymentInstructions is the snapshot of the receiving account copied onto a
// transaction at creation time. It never changes afterwards, even if the
// account registry does.
type PaymentInstructions struct {
	PixKey        string `json:"pix_key,omitempty"`
	BankName      string `json:"bank_name,omitempty"`
	BankCode      string `json:"bank_code,omitempty"`
	AccountHolder string `json:"account_holder,omitempty"`
	Agency        string `json:"agency,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
}

type Transaction struct {
	ID                 string              `json:"id"`
	TransactionNumber  string              `json:"transaction_number"`
	UserID             *int64              `json:"user_id,omitempty"`
	AmountBRL          decimal.Decimal     `json:"amount_brl"`
	AmountUSD          decimal.Decimal     `json:"amount_usd"`
	ExchangeRate       decimal.Decimal     `json:"exchange_rate"`
	CryptoAmount       decimal.NullDecimal `json:"crypto_amount,omitempty"`
	CryptoNetwork      Network             `json:"crypto_network"`
	WalletAddress      string              `json:"wallet_address"`
	PaymentMethod      PaymentMethod       `json:"payment_method,omitempty"`
	Instructions       PaymentInstructions `json:"payment_instructions"`
	Status             Status              `json:"status"`
	AdminNotes         string              `json:"admin_notes,omitempty"`
	TxHash             string              `json:"tx_hash,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	ExpiresAt          time.Time           `json:"expires_at"`
	PaymentConfirmedAt *time.Time          `json:"payment_confirmed_at,omitempty"`
	CryptoSentAt       *time.Time          `json:"crypto_sent_at,omitempty"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// Owned reports whether the transaction belongs to a registered profile.
func (t *Transaction) Owned() bool { return t.UserID != nil }

// ExpiredBy reports whether the payment window had elapsed at the given
// instant while the transaction was still waiting for payment.
func (t *Transaction) ExpiredBy(now time.Time) bool {
	return t.Status == StatusPendingPayment && now.After(t.ExpiresAt)
}

// TransactionEvent is the row-level change record emitted on every insert and
// status write, both to the Postgres NOTIFY channel (realtime view sync) and
// to Kafka (notification dispatch).
type TransactionEvent struct {
	Kind          string    `json:"kind"` // transaction_created | status_changed
	TransactionID string    `json:"transaction_id"`
	Number        string    `json:"transaction_number"`
	OldStatus     Status    `json:"old_status,omitempty"`
	NewStatus     Status    `json:"new_status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

const (
	EventTransactionCreated = "transaction_created"
	EventStatusChanged      = "status_changed"
)
