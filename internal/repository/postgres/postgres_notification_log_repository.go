package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/hubp2p/exchange-service/internal/models"
	pkgerrors "github.com/hubp2p/exchange-service/pkg/errors"
)

const logColumns = `id, transaction_id, type, recipient, message, status, error_message, sent_at`

type PostgresNotificationLogRepository struct {
	db *sql.DB
}

func NewPostgresNotificationLogRepository(db *sql.DB) *PostgresNotificationLogRepository {
	return &PostgresNotificationLogRepository{db: db}
}

// Create appends one audit row. There is no update path; the table is the
// durable record of every dispatch attempt.
func (r *PostgresNotificationLogRepository) Create(ctx context.Context, log *models.NotificationLog) error {
	if log == nil {
		return fmt.Errorf("%w: nil notification log", pkgerrors.ErrInvalidInput)
	}
	query := `INSERT INTO notification_logs (transaction_id, type, recipient, message, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, sent_at`
	err := r.db.QueryRowContext(ctx, query,
		nullString(log.TransactionID), log.Type, log.Recipient, log.Message, log.Status, log.ErrorMessage,
	).Scan(&log.ID, &log.SentAt)
	if err != nil {
		slog.Error("failed to create notification log", "method", "Create", "transaction_id", log.TransactionID, "error", err)
		return fmt.Errorf("failed to create notification log: %w", err)
	}
	return nil
}

func (r *PostgresNotificationLogRepository) ListByTransaction(ctx context.Context, transactionID string) ([]models.NotificationLog, error) {
	query := `SELECT ` + logColumns + ` FROM notification_logs WHERE transaction_id = $1 ORDER BY sent_at DESC`
	rows, err := r.db.QueryContext(ctx, query, transactionID)
	if err != nil {
		slog.Error("failed to list notification logs", "method", "ListByTransaction", "transaction_id", transactionID, "error", err)
		return nil, fmt.Errorf("failed to list notification logs: %w", err)
	}
	defer rows.Close()
	return collectLogs(rows)
}

func (r *PostgresNotificationLogRepository) List(ctx context.Context, limit int) ([]models.NotificationLog, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + logColumns + ` FROM notification_logs ORDER BY sent_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		slog.Error("failed to list notification logs", "method", "List", "error", err)
		return nil, fmt.Errorf("failed to list notification logs: %w", err)
	}
	defer rows.Close()
	return collectLogs(rows)
}

func collectLogs(rows *sql.Rows) ([]models.NotificationLog, error) {
	var out []models.NotificationLog
	for rows.Next() {
		var (
			log  models.NotificationLog
			txID sql.NullString
		)
		if err := rows.Scan(&log.ID, &txID, &log.Type, &log.Recipient, &log.Message, &log.Status, &log.ErrorMessage, &log.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification log: %w", err)
		}
		log.TransactionID = txID.String
		out = append(out, log)
	}
	return out, rows.Err()
}
