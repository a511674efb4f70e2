package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/hubp2p/exchange-service/internal/models"
	pkgerrors "github.com/hubp2p/exchange-service/pkg/errors"
)

const kycColumns = `id, user_id, status, document_type, document_number, document_url, selfie_url, rejection_reason, verified_at, created_at, updated_at`

type PostgresKYCRepository struct {
	db *sql.DB
}

func NewPostgresKYCRepository(db *sql.DB) *PostgresKYCRepository {
	return &PostgresKYCRepository{db: db}
}

func (r *PostgresKYCRepository) Create(ctx context.Context, v *models.KYCVerification) error {
	if v == nil {
		return fmt.Errorf("%w: nil verification", pkgerrors.ErrInvalidInput)
	}
	query := `INSERT INTO kyc_verifications (user_id, status, document_type, document_number, document_url, selfie_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		v.UserID, v.Status, v.DocumentType, v.DocumentNumber, v.DocumentURL, v.SelfieURL,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		slog.Error("failed to create kyc verification", "method", "Create", "user_id", v.UserID, "error", err)
		return fmt.Errorf("failed to create kyc verification: %w", err)
	}
	slog.Info("kyc verification created", "method", "Create", "id", v.ID, "user_id", v.UserID)
	return nil
}

func (r *PostgresKYCRepository) GetByID(ctx context.Context, id int64) (*models.KYCVerification, error) {
	query := `SELECT ` + kycColumns + ` FROM kyc_verifications WHERE id = $1`
	v, err := scanKYC(r.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrKYCNotFound
	}
	if err != nil {
		slog.Error("failed to get kyc verification", "method", "GetByID", "id", id, "error", err)
		return nil, fmt.Errorf("failed to get kyc verification: %w", err)
	}
	return v, nil
}

// GetCurrentByUser returns the most recently updated attempt; that record is
// the user's current KYC status.
func (r *PostgresKYCRepository) GetCurrentByUser(ctx context.Context, userID int64) (*models.KYCVerification, error) {
	query := `SELECT ` + kycColumns + ` FROM kyc_verifications WHERE user_id = $1 ORDER BY updated_at DESC LIMIT 1`
	v, err := scanKYC(r.db.QueryRowContext(ctx, query, userID))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrKYCNotFound
	}
	if err != nil {
		slog.Error("failed to get current kyc verification", "method", "GetCurrentByUser", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to get current kyc verification: %w", err)
	}
	return v, nil
}

func (r *PostgresKYCRepository) ListByStatus(ctx context.Context, status models.KYCStatus) ([]models.KYCVerification, error) {
	query := `SELECT ` + kycColumns + ` FROM kyc_verifications WHERE status = $1 ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, status)
	if err != nil {
		slog.Error("failed to list kyc verifications", "method", "ListByStatus", "status", status, "error", err)
		return nil, fmt.Errorf("failed to list kyc verifications: %w", err)
	}
	defer rows.Close()

	var out []models.KYCVerification
	for rows.Next() {
		v, err := scanKYC(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan kyc verification: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (r *PostgresKYCRepository) UpdateStatus(ctx context.Context, id int64, status models.KYCStatus, rejectionReason string) (*models.KYCVerification, error) {
	query := `UPDATE kyc_verifications SET
			status = $2,
			rejection_reason = $3,
			verified_at = CASE WHEN $2 = 'approved' THEN now() ELSE verified_at END,
			updated_at = now()
		WHERE id = $1
		RETURNING ` + kycColumns
	v, err := scanKYC(r.db.QueryRowContext(ctx, query, id, status, rejectionReason))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrKYCNotFound
	}
	if err != nil {
		slog.Error("failed to update kyc status", "method", "UpdateStatus", "id", id, "status", status, "error", err)
		return nil, fmt.Errorf("failed to update kyc status: %w", err)
	}
	slog.Info("kyc status updated", "method", "UpdateStatus", "id", id, "status", status)
	return v, nil
}

func scanKYC(row rowScanner) (*models.KYCVerification, error) {
	var (
		v          models.KYCVerification
		docURL     sql.NullString
		selfieURL  sql.NullString
		reason     sql.NullString
		verifiedAt sql.NullTime
	)
	err := row.Scan(
		&v.ID, &v.UserID, &v.Status, &v.DocumentType, &v.DocumentNumber,
		&docURL, &selfieURL, &reason, &verifiedAt, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.DocumentURL = docURL.String
	v.SelfieURL = selfieURL.String
	v.RejectionReason = reason.String
	if verifiedAt.Valid {
		t := verifiedAt.Time
		v.VerifiedAt = &t
	}
	return &v, nil
}
