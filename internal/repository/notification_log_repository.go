package repository

import (
	"context"

	"github.com/hubp2p/exchange-service/internal/models"
)

type NotificationLogRepository interface {
	// Create appends one audit row. Logs are never mutated after insert.
	Create(ctx context.Context, log *models.NotificationLog) error
	ListByTransaction(ctx context.Context, transactionID string) ([]models.NotificationLog, error)
	List(ctx context.Context, limit int) ([]models.NotificationLog, error)
}
