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

type SubmitKYCInput struct {
	DocumentType   string
	DocumentNumber string
	DocumentURL    string
	SelfieURL      string
}

type KYCService interface {
	Submit(ctx context.Context, userID int64, input SubmitKYCInput) (*models.KYCVerification, error)
	// Current returns the user's latest verification attempt; that record
	// carries the user's effective KYC status.
	Current(ctx context.Context, userID int64) (*models.KYCVerification, error)
	ListPending(ctx context.Context) ([]models.KYCVerification, error)
	StartReview(ctx context.Context, id int64) (*models.KYCVerification, error)
	Approve(ctx context.Context, id int64) (*models.KYCVerification, error)
	Reject(ctx context.Context, id int64, reason string) (*models.KYCVerification, error)
}

type kycService struct {
	kycRepo repository.KYCRepository
}

func NewKYCService(kycRepo repository.KYCRepository) *kycService {
	return &kycService{kycRepo: kycRepo}
}

func (s *kycService) Submit(ctx context.Context, userID int64, input SubmitKYCInput) (*models.KYCVerification, error) {
	if strings.TrimSpace(input.DocumentType) == "" || strings.TrimSpace(input.DocumentNumber) == "" {
		return nil, fmt.Errorf("%w: document_type and document_number are required", pkgerrors.ErrInvalidInput)
	}

	v := &models.KYCVerification{
		UserID:         userID,
		Status:         models.KYCPending,
		DocumentType:   strings.TrimSpace(input.DocumentType),
		DocumentNumber: strings.TrimSpace(input.DocumentNumber),
		DocumentURL:    strings.TrimSpace(input.DocumentURL),
		SelfieURL:      strings.TrimSpace(input.SelfieURL),
	}
	if err := s.kycRepo.Create(ctx, v); err != nil {
		return nil, err
	}
	slog.Info("kyc verification submitted", "kyc_id", v.ID, "user_id", userID)
	return v, nil
}

func (s *kycService) Current(ctx context.Context, userID int64) (*models.KYCVerification, error) {
	return s.kycRepo.GetCurrentByUser(ctx, userID)
}

func (s *kycService) ListPending(ctx context.Context) ([]models.KYCVerification, error) {
	return s.kycRepo.ListByStatus(ctx, models.KYCPending)
}

func (s *kycService) StartReview(ctx context.Context, id int64) (*models.KYCVerification, error) {
	return s.review(ctx, id, models.KYCInReview, "")
}

func (s *kycService) Approve(ctx context.Context, id int64) (*models.KYCVerification, error) {
	return s.review(ctx, id, models.KYCApproved, "")
}

func (s *kycService) Reject(ctx context.Context, id int64, reason string) (*models.KYCVerification, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, pkgerrors.ErrRejectionReason
	}
	return s.review(ctx, id, models.KYCRejected, strings.TrimSpace(reason))
}

func (s *kycService) review(ctx context.Context, id int64, status models.KYCStatus, reason string) (*models.KYCVerification, error) {
	existing, err := s.kycRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status == models.KYCApproved || existing.Status == models.KYCRejected {
		return nil, fmt.Errorf("%w: verification already %s", pkgerrors.ErrInvalidInput, existing.Status)
	}

	v, err := s.kycRepo.UpdateStatus(ctx, id, status, reason)
	if err != nil {
		return nil, err
	}
	slog.Info("kyc verification reviewed", "kyc_id", id, "status", status)
	return v, nil
}
