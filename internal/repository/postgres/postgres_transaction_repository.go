package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hubp2p/exchange-service/internal/infrastructure/observability"
	"github.com/hubp2p/exchange-service/internal/models"
	"github.com/hubp2p/exchange-service/internal/repository"
	pkgerrors "github.com/hubp2p/exchange-service/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ChangefeedChannel is the NOTIFY channel carrying row-level transaction
// events for the realtime view sync.
const ChangefeedChannel = "transaction_events"

const transactionColumns = `id, transaction_number, user_id, amount_brl, amount_usd, exchange_rate, crypto_amount, crypto_network, wallet_address, payment_method, pix_key, bank_name, bank_code, account_holder, agency, account_number, status, admin_notes, tx_hash, created_at, expires_at, payment_confirmed_at, crypto_sent_at, updated_at`

type PostgresTransactionRepository struct {
	db *sql.DB
}

func NewPostgresTransactionRepository(db *sql.DB) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db}
}

func (r *PostgresTransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	var err error
	tracer := otel.Tracer("transaction-repository")
	ctx, span := tracer.Start(ctx, "CreateTransaction")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("CreateTransaction", status).Inc()
		observability.RepositoryDuration.WithLabelValues("CreateTransaction").Observe(time.Since(start).Seconds())
	}()

	if tx == nil {
		err = fmt.Errorf("%w: nil transaction", pkgerrors.ErrInvalidInput)
		return err
	}
	if !tx.Status.Valid() {
		err = fmt.Errorf("%w: status %q", pkgerrors.ErrInvalidInput, tx.Status)
		return err
	}

	span.SetAttributes(
		attribute.String("transaction_id", tx.ID),
		attribute.String("status", string(tx.Status)),
		attribute.String("network", string(tx.CryptoNetwork)),
	)

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "Create", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	var seq int64
	if err = dbTx.QueryRowContext(ctx, `SELECT nextval('transaction_number_seq')`).Scan(&seq); err != nil {
		dbTx.Rollback()
		slog.Error("failed to allocate transaction number", "method", "Create", "error", err)
		return fmt.Errorf("failed to allocate transaction number: %w", err)
	}
	tx.TransactionNumber = fmt.Sprintf("TXN-%06d", seq)

	query := `INSERT INTO transactions (id, transaction_number, user_id, amount_brl, amount_usd, exchange_rate, crypto_network, wallet_address, payment_method, pix_key, bank_name, bank_code, account_holder, agency, account_number, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING created_at, updated_at`
	err = dbTx.QueryRowContext(ctx, query,
		tx.ID, tx.TransactionNumber, nullInt64(tx.UserID),
		tx.AmountBRL, tx.AmountUSD, tx.ExchangeRate,
		tx.CryptoNetwork, tx.WalletAddress, nullString(string(tx.PaymentMethod)),
		tx.Instructions.PixKey, tx.Instructions.BankName, tx.Instructions.BankCode,
		tx.Instructions.AccountHolder, tx.Instructions.Agency, tx.Instructions.AccountNumber,
		tx.Status, tx.ExpiresAt,
	).Scan(&tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		dbTx.Rollback()
		slog.Error("failed to create transaction", "method", "Create", "transaction_number", tx.TransactionNumber, "error", err)
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	event := models.TransactionEvent{
		Kind:          models.EventTransactionCreated,
		TransactionID: tx.ID,
		Number:        tx.TransactionNumber,
		NewStatus:     tx.Status,
		UpdatedAt:     tx.UpdatedAt,
	}
	if err = notifyChangefeed(ctx, dbTx, event); err != nil {
		dbTx.Rollback()
		return err
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "Create", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Info("transaction created", "method", "Create", "id", tx.ID, "transaction_number", tx.TransactionNumber, "status", tx.Status)
	return nil
}

func (r *PostgresTransactionRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	var err error
	tracer := otel.Tracer("transaction-repository")
	ctx, span := tracer.Start(ctx, "GetTransactionByID")
	span.SetAttributes(attribute.String("transaction_id", id))
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("GetTransactionByID", status).Inc()
		observability.RepositoryDuration.WithLabelValues("GetTransactionByID").Observe(time.Since(start).Seconds())
	}()

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrTransactionNotFound
		return nil, err
	}
	if err != nil {
		slog.Error("failed to get transaction", "method", "GetByID", "transaction_id", id, "error", err)
		return nil, fmt.Errorf("failed to get transaction by id: %w", err)
	}
	return tx, nil
}

func (r *PostgresTransactionRepository) ListByUser(ctx context.Context, userID int64) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Error("failed to list transactions", "method", "ListByUser", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (r *PostgresTransactionRepository) List(ctx context.Context, status models.Status, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		query := `SELECT ` + transactionColumns + ` FROM transactions ORDER BY created_at DESC LIMIT $1`
		rows, err = r.db.QueryContext(ctx, query, limit)
	} else {
		query := `SELECT ` + transactionColumns + ` FROM transactions WHERE status = $1 ORDER BY created_at DESC LIMIT $2`
		rows, err = r.db.QueryContext(ctx, query, status, limit)
	}
	if err != nil {
		slog.Error("failed to list transactions", "method", "List", "status", status, "error", err)
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (r *PostgresTransactionRepository) UpdateStatus(ctx context.Context, id string, upd repository.StatusUpdate) (*models.Transaction, error) {
	var err error
	tracer := otel.Tracer("transaction-repository")
	ctx, span := tracer.Start(ctx, "UpdateTransactionStatus")
	span.SetAttributes(
		attribute.String("transaction_id", id),
		attribute.String("from", string(upd.From)),
		attribute.String("to", string(upd.To)),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("UpdateTransactionStatus", status).Inc()
		observability.RepositoryDuration.WithLabelValues("UpdateTransactionStatus").Observe(time.Since(start).Seconds())
	}()

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "UpdateStatus", "error", err)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Single conditional UPDATE keyed on the expected current status. A lost
	// race leaves zero rows and the prior status intact.
	query := `UPDATE transactions SET
			status = $3,
			tx_hash = COALESCE(NULLIF($4, ''), tx_hash),
			admin_notes = COALESCE(NULLIF($5, ''), admin_notes),
			payment_confirmed_at = COALESCE($6, payment_confirmed_at),
			crypto_sent_at = COALESCE($7, crypto_sent_at),
			updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING ` + transactionColumns
	updated, err := scanTransaction(dbTx.QueryRowContext(ctx, query,
		id, upd.From, upd.To, upd.TxHash, upd.AdminNotes,
		nullTime(upd.PaymentConfirmedAt), nullTime(upd.CryptoSentAt),
	))
	if stderrors.Is(err, sql.ErrNoRows) {
		dbTx.Rollback()
		var exists bool
		if probeErr := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)`, id).Scan(&exists); probeErr == nil && !exists {
			err = pkgerrors.ErrTransactionNotFound
			return nil, err
		}
		err = pkgerrors.ErrTransactionConflict
		slog.Warn("status transition lost a race", "method", "UpdateStatus", "transaction_id", id, "from", upd.From, "to", upd.To)
		return nil, err
	}
	if err != nil {
		dbTx.Rollback()
		slog.Error("failed to update transaction status", "method", "UpdateStatus", "transaction_id", id, "error", err)
		return nil, fmt.Errorf("failed to update transaction status: %w", err)
	}

	event := models.TransactionEvent{
		Kind:          models.EventStatusChanged,
		TransactionID: updated.ID,
		Number:        updated.TransactionNumber,
		OldStatus:     upd.From,
		NewStatus:     updated.Status,
		UpdatedAt:     updated.UpdatedAt,
	}
	if err = notifyChangefeed(ctx, dbTx, event); err != nil {
		dbTx.Rollback()
		return nil, err
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit status update", "method", "UpdateStatus", "error", err)
		return nil, fmt.Errorf("failed to commit status update: %w", err)
	}

	slog.Info("transaction status updated", "method", "UpdateStatus", "transaction_id", id, "from", upd.From, "to", updated.Status)
	return updated, nil
}

func (r *PostgresTransactionRepository) ExpireOverdue(ctx context.Context, now time.Time) ([]string, error) {
	var err error
	tracer := otel.Tracer("transaction-repository")
	ctx, span := tracer.Start(ctx, "ExpireOverdueTransactions")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("ExpireOverdueTransactions", status).Inc()
		observability.RepositoryDuration.WithLabelValues("ExpireOverdueTransactions").Observe(time.Since(start).Seconds())
	}()

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	query := `UPDATE transactions SET status = $1, updated_at = now()
		WHERE status = $2 AND expires_at <= $3
		RETURNING id, transaction_number, updated_at`
	rows, err := dbTx.QueryContext(ctx, query, models.StatusExpired, models.StatusPendingPayment, now)
	if err != nil {
		dbTx.Rollback()
		slog.Error("failed to expire transactions", "method", "ExpireOverdue", "error", err)
		return nil, fmt.Errorf("failed to expire transactions: %w", err)
	}

	var events []models.TransactionEvent
	var ids []string
	for rows.Next() {
		var ev models.TransactionEvent
		if err = rows.Scan(&ev.TransactionID, &ev.Number, &ev.UpdatedAt); err != nil {
			rows.Close()
			dbTx.Rollback()
			return nil, fmt.Errorf("failed to scan expired transaction: %w", err)
		}
		ev.Kind = models.EventStatusChanged
		ev.OldStatus = models.StatusPendingPayment
		ev.NewStatus = models.StatusExpired
		events = append(events, ev)
		ids = append(ids, ev.TransactionID)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		dbTx.Rollback()
		return nil, fmt.Errorf("failed to expire transactions: %w", err)
	}

	for _, ev := range events {
		if err = notifyChangefeed(ctx, dbTx, ev); err != nil {
			dbTx.Rollback()
			return nil, err
		}
	}

	if err = dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit expiry sweep: %w", err)
	}

	if len(ids) > 0 {
		slog.Info("expired overdue transactions", "method", "ExpireOverdue", "count", len(ids))
	}
	return ids, nil
}

// notifyChangefeed emits the row-level change on the NOTIFY channel inside
// the same database transaction as the write, so subscribers never observe an
// event for a write that rolled back.
func notifyChangefeed(ctx context.Context, dbTx *sql.Tx, event models.TransactionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal changefeed event: %w", err)
	}
	if _, err := dbTx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, ChangefeedChannel, string(payload)); err != nil {
		slog.Error("failed to notify changefeed", "transaction_id", event.TransactionID, "error", err)
		return fmt.Errorf("failed to notify changefeed: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		tx            models.Transaction
		userID        sql.NullInt64
		paymentMethod sql.NullString
		adminNotes    sql.NullString
		txHash        sql.NullString
		confirmedAt   sql.NullTime
		sentAt        sql.NullTime
	)
	err := row.Scan(
		&tx.ID, &tx.TransactionNumber, &userID,
		&tx.AmountBRL, &tx.AmountUSD, &tx.ExchangeRate, &tx.CryptoAmount,
		&tx.CryptoNetwork, &tx.WalletAddress, &paymentMethod,
		&tx.Instructions.PixKey, &tx.Instructions.BankName, &tx.Instructions.BankCode,
		&tx.Instructions.AccountHolder, &tx.Instructions.Agency, &tx.Instructions.AccountNumber,
		&tx.Status, &adminNotes, &txHash,
		&tx.CreatedAt, &tx.ExpiresAt, &confirmedAt, &sentAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		tx.UserID = &userID.Int64
	}
	if paymentMethod.Valid {
		tx.PaymentMethod = models.PaymentMethod(paymentMethod.String)
	}
	tx.AdminNotes = adminNotes.String
	tx.TxHash = txHash.String
	if confirmedAt.Valid {
		t := confirmedAt.Time
		tx.PaymentConfirmedAt = &t
	}
	if sentAt.Valid {
		t := sentAt.Time
		tx.CryptoSentAt = &t
	}
	return &tx, nil
}

func collectTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	var out []models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}
