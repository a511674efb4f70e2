package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hubp2p/exchange-service/internal/models"
	"github.com/hubp2p/exchange-service/internal/repository"
	pkgerrors "github.com/hubp2p/exchange-service/pkg/errors"
)

// CreateAccountInput carries the fields for a new receiving account.
type CreateAccountInput struct {
	AccountType   models.AccountType
	PixKey        string
	BankName      string
	BankCode      string
	AccountHolder string
	Agency        string
	AccountNumber string
}

type AccountService interface {
	Create(ctx context.Context, input CreateAccountInput) (*models.PaymentAccount, error)
	List(ctx context.Context) ([]models.PaymentAccount, error)
	ToggleActive(ctx context.Context, id int64) (*models.PaymentAccount, error)
	// GetActive returns ErrNoActiveAccount when nothing is active.
	GetActive(ctx context.Context, accountType models.AccountType) (*models.PaymentAccount, error)
	Delete(ctx context.Context, id int64) error
}

type accountService struct {
	accountRepo repository.PaymentAccountRepository
}

func NewAccountService(accountRepo repository.PaymentAccountRepository) *accountService {
	return &accountService{accountRepo: accountRepo}
}

func (s *accountService) Create(ctx context.Context, input CreateAccountInput) (*models.PaymentAccount, error) {
	account := &models.PaymentAccount{
		AccountType:   input.AccountType,
		PixKey:        strings.TrimSpace(input.PixKey),
		BankName:      strings.TrimSpace(input.BankName),
		BankCode:      strings.TrimSpace(input.BankCode),
		AccountHolder: strings.TrimSpace(input.AccountHolder),
		Agency:        strings.TrimSpace(input.Agency),
		AccountNumber: strings.TrimSpace(input.AccountNumber),
	}

	switch input.AccountType {
	case models.AccountPix:
		if account.PixKey == "" {
			return nil, fmt.Errorf("%w: pix_key is required", pkgerrors.ErrInvalidInput)
		}
	case models.AccountTed:
		if account.BankName == "" || account.AccountHolder == "" || account.Agency == "" || account.AccountNumber == "" {
			return nil, fmt.Errorf("%w: bank_name, account_holder, agency and account_number are required", pkgerrors.ErrInvalidInput)
		}
	default:
		return nil, fmt.Errorf("%w: account type %q", pkgerrors.ErrInvalidInput, input.AccountType)
	}

	if err := s.accountRepo.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *accountService) List(ctx context.Context) ([]models.PaymentAccount, error) {
	return s.accountRepo.List(ctx)
}

func (s *accountService) ToggleActive(ctx context.Context, id int64) (*models.PaymentAccount, error) {
	account, err := s.accountRepo.ToggleActive(ctx, id)
	if err != nil {
		return nil, err
	}
	slog.Info("payment account activation changed", "account_id", account.ID, "type", account.AccountType, "is_active", account.IsActive)
	return account, nil
}

func (s *accountService) GetActive(ctx context.Context, accountType models.AccountType) (*models.PaymentAccount, error) {
	if !accountType.Valid() {
		return nil, fmt.Errorf("%w: account type %q", pkgerrors.ErrInvalidInput, accountType)
	}
	account, err := s.accountRepo.GetActive(ctx, accountType)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("%w for %s", pkgerrors.ErrNoActiveAccount, accountType)
	}
	return account, nil
}

func (s *accountService) Delete(ctx context.Context, id int64) error {
	return s.accountRepo.Delete(ctx, id)
}
