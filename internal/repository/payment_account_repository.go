package repository

import (
	"context"

	"github.com/hubp2p/exchange-service/internal/models"
)

type PaymentAccountRepository interface {
	Create(ctx context.Context, account *models.PaymentAccount) error
	GetByID(ctx context.Context, id int64) (*models.PaymentAccount, error)
	List(ctx context.Context) ([]models.PaymentAccount, error)
	// ToggleActive flips is_active on the account. When the new state is
	// active, every sibling of the same type is deactivated in the same
	// database transaction.
	ToggleActive(ctx context.Context, id int64) (*models.PaymentAccount, error)
	// GetActive returns (nil, nil) when no account of the type is active.
	GetActive(ctx context.Context, accountType models.AccountType) (*models.PaymentAccount, error)
	// GetActiveAny returns any active account regardless of type, PIX
	// preferred. Used by the anonymous flow, which has a single global pool.
	GetActiveAny(ctx context.Context) (*models.PaymentAccount, error)
	Delete(ctx context.Context, id int64) error
}
