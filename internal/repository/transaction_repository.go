package repository

import (
	"context"
	"time"

	"github.com/hubp2p/exchange-service/internal/models"
)

// StatusUpdate carries the fields written by a single lifecycle transition.
// Only non-nil/non-empty fields are applied; the update is conditional on the
// expected current status so concurrent admin actions cannot interleave.
type StatusUpdate struct {
	From               models.Status
	To                 models.Status
	TxHash             string
	AdminNotes         string
	PaymentConfirmedAt *time.Time
	CryptoSentAt       *time.Time
}

type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Transaction, error)
	List(ctx context.Context, status models.Status, limit int) ([]models.Transaction, error)
	// UpdateStatus applies upd as one conditional UPDATE and returns the
	// refreshed row. ErrTransactionConflict when the row exists but its
	// status no longer matches upd.From.
	UpdateStatus(ctx context.Context, id string, upd StatusUpdate) (*models.Transaction, error)
	// ExpireOverdue flips every pending_payment row whose expires_at has
	// elapsed to expired and returns the affected ids.
	ExpireOverdue(ctx context.Context, now time.Time) ([]string, error)
}
