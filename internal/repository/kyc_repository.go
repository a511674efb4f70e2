package repository

import (
	"context"

	"github.com/hubp2p/exchange-service/internal/models"
)

type KYCRepository interface {
	Create(ctx context.Context, v *models.KYCVerification) error
	GetByID(ctx context.Context, id int64) (*models.KYCVerification, error)
	// GetCurrentByUser returns the most recently updated attempt for the user.
	GetCurrentByUser(ctx context.Context, userID int64) (*models.KYCVerification, error)
	ListByStatus(ctx context.Context, status models.KYCStatus) ([]models.KYCVerification, error)
	UpdateStatus(ctx context.Context, id int64, status models.KYCStatus, rejectionReason string) (*models.KYCVerification, error)
}
