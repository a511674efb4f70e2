package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hubp2p/exchange-service/internal/infrastructure/observability"
	"github.com/hubp2p/exchange-service/internal/models"
	pkgerrors "github.com/hubp2p/exchange-service/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const accountColumns = `id, account_type, is_active, pix_key, bank_name, bank_code, account_holder, agency, account_number, created_at`

type PostgresPaymentAccountRepository struct {
	db *sql.DB
}

func NewPostgresPaymentAccountRepository(db *sql.DB) *PostgresPaymentAccountRepository {
	return &PostgresPaymentAccountRepository{db: db}
}

func (r *PostgresPaymentAccountRepository) Create(ctx context.Context, account *models.PaymentAccount) error {
	if account == nil {
		return fmt.Errorf("%w: nil account", pkgerrors.ErrInvalidInput)
	}
	if !account.AccountType.Valid() {
		return fmt.Errorf("%w: account type %q", pkgerrors.ErrInvalidInput, account.AccountType)
	}

	// New accounts never auto-activate.
	query := `INSERT INTO payment_accounts (account_type, is_active, pix_key, bank_name, bank_code, account_holder, agency, account_number)
		VALUES ($1, false, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query,
		account.AccountType, account.PixKey, account.BankName, account.BankCode,
		account.AccountHolder, account.Agency, account.AccountNumber,
	).Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		slog.Error("failed to create payment account", "method", "Create", "type", account.AccountType, "error", err)
		return fmt.Errorf("failed to create payment account: %w", err)
	}
	account.IsActive = false

	slog.Info("payment account created", "method", "Create", "id", account.ID, "type", account.AccountType)
	return nil
}

func (r *PostgresPaymentAccountRepository) GetByID(ctx context.Context, id int64) (*models.PaymentAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM payment_accounts WHERE id = $1`
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrAccountNotFound
	}
	if err != nil {
		slog.Error("failed to get payment account", "method", "GetByID", "id", id, "error", err)
		return nil, fmt.Errorf("failed to get payment account: %w", err)
	}
	return account, nil
}

func (r *PostgresPaymentAccountRepository) List(ctx context.Context) ([]models.PaymentAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM payment_accounts ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		slog.Error("failed to list payment accounts", "method", "List", "error", err)
		return nil, fmt.Errorf("failed to list payment accounts: %w", err)
	}
	defer rows.Close()

	var out []models.PaymentAccount
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment account: %w", err)
		}
		out = append(out, *account)
	}
	return out, rows.Err()
}

// ToggleActive flips is_active. Deactivating siblings and activating the
// target happen in one database transaction, so two concurrent activations
// serialize on the row locks instead of leaving two active accounts.
func (r *PostgresPaymentAccountRepository) ToggleActive(ctx context.Context, id int64) (*models.PaymentAccount, error) {
	var err error
	tracer := otel.Tracer("payment-account-repository")
	ctx, span := tracer.Start(ctx, "ToggleActive")
	span.SetAttributes(attribute.Int64("account_id", id))
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("ToggleActive", status).Inc()
		observability.RepositoryDuration.WithLabelValues("ToggleActive").Observe(time.Since(start).Seconds())
	}()

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "ToggleActive", "error", err)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	var (
		accountType models.AccountType
		isActive    bool
	)
	err = dbTx.QueryRowContext(ctx, `SELECT account_type, is_active FROM payment_accounts WHERE id = $1 FOR UPDATE`, id).
		Scan(&accountType, &isActive)
	if stderrors.Is(err, sql.ErrNoRows) {
		dbTx.Rollback()
		err = pkgerrors.ErrAccountNotFound
		return nil, err
	}
	if err != nil {
		dbTx.Rollback()
		slog.Error("failed to lock payment account", "method", "ToggleActive", "id", id, "error", err)
		return nil, fmt.Errorf("failed to lock payment account: %w", err)
	}

	if !isActive {
		if _, err = dbTx.ExecContext(ctx, `UPDATE payment_accounts SET is_active = false WHERE account_type = $1 AND id <> $2`, accountType, id); err != nil {
			dbTx.Rollback()
			slog.Error("failed to deactivate sibling accounts", "method", "ToggleActive", "type", accountType, "error", err)
			return nil, fmt.Errorf("failed to deactivate sibling accounts: %w", err)
		}
	}

	account, err := scanAccount(dbTx.QueryRowContext(ctx,
		`UPDATE payment_accounts SET is_active = NOT is_active WHERE id = $1 RETURNING `+accountColumns, id))
	if err != nil {
		dbTx.Rollback()
		slog.Error("failed to toggle payment account", "method", "ToggleActive", "id", id, "error", err)
		return nil, fmt.Errorf("failed to toggle payment account: %w", err)
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit toggle", "method", "ToggleActive", "error", err)
		return nil, fmt.Errorf("failed to commit toggle: %w", err)
	}

	slog.Info("payment account toggled", "method", "ToggleActive", "id", account.ID, "type", account.AccountType, "is_active", account.IsActive)
	return account, nil
}

// GetActive returns (nil, nil) when nothing is active; the absence of an
// active account is an expected state, not an error.
func (r *PostgresPaymentAccountRepository) GetActive(ctx context.Context, accountType models.AccountType) (*models.PaymentAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM payment_accounts WHERE account_type = $1 AND is_active = true LIMIT 1`
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, accountType))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("failed to get active payment account", "method", "GetActive", "type", accountType, "error", err)
		return nil, fmt.Errorf("failed to get active payment account: %w", err)
	}
	return account, nil
}

func (r *PostgresPaymentAccountRepository) GetActiveAny(ctx context.Context) (*models.PaymentAccount, error) {
	// PIX first: instant rail is the default for the anonymous flow.
	query := `SELECT ` + accountColumns + ` FROM payment_accounts WHERE is_active = true ORDER BY account_type = 'pix' DESC LIMIT 1`
	account, err := scanAccount(r.db.QueryRowContext(ctx, query))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("failed to get active payment account", "method", "GetActiveAny", "error", err)
		return nil, fmt.Errorf("failed to get active payment account: %w", err)
	}
	return account, nil
}

// Delete is a hard delete. Deleting the active account leaves the pool with
// no active account; nothing is promoted in its place.
func (r *PostgresPaymentAccountRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM payment_accounts WHERE id = $1`, id)
	if err != nil {
		slog.Error("failed to delete payment account", "method", "Delete", "id", id, "error", err)
		return fmt.Errorf("failed to delete payment account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete payment account: %w", err)
	}
	if affected == 0 {
		return pkgerrors.ErrAccountNotFound
	}
	slog.Info("payment account deleted", "method", "Delete", "id", id)
	return nil
}

func scanAccount(row rowScanner) (*models.PaymentAccount, error) {
	var account models.PaymentAccount
	err := row.Scan(
		&account.ID, &account.AccountType, &account.IsActive,
		&account.PixKey, &account.BankName, &account.BankCode,
		&account.AccountHolder, &account.Agency, &account.AccountNumber,
		&account.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}
