package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hubp2p/exchange-service/internal/infrastructure/kafka"
	"github.com/hubp2p/exchange-service/internal/infrastructure/observability"
	"github.com/hubp2p/exchange-service/internal/models"
	"github.com/hubp2p/exchange-service/internal/repository"
	pkgerrors "github.com/hubp2p/exchange-service/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CreateTransactionInput carries a deposit request. UserID is nil for the
// anonymous flow.
type CreateTransactionInput struct {
	UserID        *int64
	AmountBRL     decimal.Decimal
	Network       models.Network
	WalletAddress string
	PaymentMethod models.PaymentMethod
}

// TransitionInput carries the optional fields an admin may attach to a
// status change.
type TransitionInput struct {
	TxHash     string
	AdminNotes string
}

type TransactionService interface {
	Create(ctx context.Context, input CreateTransactionInput) (*models.Transaction, error)
	Get(ctx context.Context, id string) (*models.Transaction, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Transaction, error)
	List(ctx context.Context, status models.Status, limit int) ([]models.Transaction, error)
	Transition(ctx context.Context, id string, to models.Status, input TransitionInput) (*models.Transaction, error)
	ExpireOverdue(ctx context.Context) (int, error)
}

type transactionService struct {
	transactionRepo repository.TransactionRepository
	accountRepo     repository.PaymentAccountRepository
	rates           RateService
	producer        kafka.KafkaProducer
	topic           string
	now             func() time.Time
}

func NewTransactionService(
	transactionRepo repository.TransactionRepository,
	accountRepo repository.PaymentAccountRepository,
	rates RateService,
	producer kafka.KafkaProducer,
	topic string,
) *transactionService {
	return &transactionService{
		transactionRepo: transactionRepo,
		accountRepo:     accountRepo,
		rates:           rates,
		producer:        producer,
		topic:           topic,
		now:             time.Now,
	}
}

func (s *transactionService) Create(ctx context.Context, input CreateTransactionInput) (*models.Transaction, error) {
	tracer := otel.Tracer("transaction-service")
	ctx, span := tracer.Start(ctx, "CreateTransaction")
	defer span.End()

	owned := input.UserID != nil
	span.SetAttributes(
		attribute.String("network", string(input.Network)),
		attribute.Bool("owned", owned),
	)

	if input.AmountBRL.LessThan(models.MinimumAmountBRL) {
		span.SetStatus(codes.Error, "amount below minimum")
		return nil, fmt.Errorf("%w: minimum deposit is R$ %s", pkgerrors.ErrAmountBelowMinimum, models.MinimumAmountBRL.StringFixed(2))
	}
	if strings.TrimSpace(input.WalletAddress) == "" {
		span.SetStatus(codes.Error, "missing wallet address")
		return nil, pkgerrors.ErrMissingWallet
	}
	if !input.Network.AllowedFor(owned) {
		span.SetStatus(codes.Error, "unsupported network")
		return nil, fmt.Errorf("%w: %s", pkgerrors.ErrInvalidNetwork, input.Network)
	}

	account, err := s.resolveActiveAccount(ctx, owned, input.PaymentMethod)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "no active payment account")
		return nil, err
	}

	// Authoritative snapshot: a fallback rate is never frozen into a real
	// transaction. A dead rate API fails the creation, loudly.
	snapshot, err := s.rates.Snapshot(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rate unavailable")
		return nil, err
	}

	now := s.now().UTC()
	tx := &models.Transaction{
		ID:            uuid.NewString(),
		UserID:        input.UserID,
		AmountBRL:     input.AmountBRL,
		AmountUSD:     ConvertBrlToUsd(input.AmountBRL, snapshot.FinalRate),
		ExchangeRate:  snapshot.FinalRate,
		CryptoNetwork: input.Network,
		WalletAddress: strings.TrimSpace(input.WalletAddress),
		PaymentMethod: models.PaymentMethod(account.AccountType),
		Instructions:  account.Instructions(),
		Status:        models.StatusPendingPayment,
		ExpiresAt:     now.Add(models.PaymentWindow),
	}

	if err := s.transactionRepo.Create(ctx, tx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, err
	}

	s.publishEvent(models.TransactionEvent{
		Kind:          models.EventTransactionCreated,
		TransactionID: tx.ID,
		Number:        tx.TransactionNumber,
		NewStatus:     tx.Status,
		UpdatedAt:     tx.UpdatedAt,
	})

	slog.Info("transaction created",
		"transaction_id", tx.ID,
		"transaction_number", tx.TransactionNumber,
		"amount_brl", tx.AmountBRL.StringFixed(2),
		"amount_usd", tx.AmountUSD.StringFixed(2),
		"exchange_rate", tx.ExchangeRate.String(),
		"network", tx.CryptoNetwork,
		"expires_at", tx.ExpiresAt)
	return tx, nil
}

func (s *transactionService) resolveActiveAccount(ctx context.Context, owned bool, method models.PaymentMethod) (*models.PaymentAccount, error) {
	if !owned {
		// Anonymous flow draws from a single global pool.
		account, err := s.accountRepo.GetActiveAny(ctx)
		if err != nil {
			return nil, err
		}
		if account == nil {
			return nil, pkgerrors.ErrNoActiveAccount
		}
		return account, nil
	}

	var accountType models.AccountType
	switch method {
	case models.MethodPix:
		accountType = models.AccountPix
	case models.MethodTed:
		accountType = models.AccountTed
	default:
		return nil, fmt.Errorf("%w: payment method %q", pkgerrors.ErrInvalidInput, method)
	}

	account, err := s.accountRepo.GetActive(ctx, accountType)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("%w for %s", pkgerrors.ErrNoActiveAccount, method)
	}
	return account, nil
}

func (s *transactionService) Get(ctx context.Context, id string) (*models.Transaction, error) {
	return s.transactionRepo.GetByID(ctx, id)
}

func (s *transactionService) ListByUser(ctx context.Context, userID int64) ([]models.Transaction, error) {
	return s.transactionRepo.ListByUser(ctx, userID)
}

func (s *transactionService) List(ctx context.Context, status models.Status, limit int) ([]models.Transaction, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: status %q", pkgerrors.ErrInvalidInput, status)
	}
	return s.transactionRepo.List(ctx, status, limit)
}

// Transition drives one admin-triggered step through the lifecycle. The
// repository applies the change as a single conditional update, so a failed
// or racing transition leaves the prior status intact.
func (s *transactionService) Transition(ctx context.Context, id string, to models.Status, input TransitionInput) (*models.Transaction, error) {
	tracer := otel.Tracer("transaction-service")
	ctx, span := tracer.Start(ctx, "TransitionTransaction")
	span.SetAttributes(
		attribute.String("transaction_id", id),
		attribute.String("to", string(to)),
	)
	defer span.End()

	if !to.Valid() {
		return nil, fmt.Errorf("%w: status %q", pkgerrors.ErrInvalidInput, to)
	}
	if to == models.StatusExpired {
		// Expiry is time-based, owned by the sweeper.
		return nil, fmt.Errorf("%w: %s cannot be set manually", pkgerrors.ErrInvalidTransition, to)
	}

	tx, err := s.transactionRepo.GetByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	now := s.now().UTC()
	if tx.ExpiredBy(now) {
		span.SetStatus(codes.Error, "payment window elapsed")
		slog.Warn("transition rejected, payment window elapsed",
			"transaction_id", id, "expires_at", tx.ExpiresAt, "to", to)
		return nil, pkgerrors.ErrTransactionExpired
	}

	if !tx.Status.CanTransition(to) {
		span.SetStatus(codes.Error, "invalid transition")
		return nil, fmt.Errorf("%w: %s -> %s", pkgerrors.ErrInvalidTransition, tx.Status, to)
	}

	upd := repository.StatusUpdate{
		From:       tx.Status,
		To:         to,
		AdminNotes: input.AdminNotes,
	}
	switch to {
	case models.StatusPaymentReceived:
		upd.PaymentConfirmedAt = &now
	case models.StatusSent:
		txHash := strings.TrimSpace(input.TxHash)
		if txHash == "" {
			txHash = strings.TrimSpace(tx.TxHash)
		}
		if txHash == "" {
			span.SetStatus(codes.Error, "missing tx_hash")
			return nil, pkgerrors.ErrMissingTxHash
		}
		upd.TxHash = txHash
		upd.CryptoSentAt = &now
	}

	updated, err := s.transactionRepo.UpdateStatus(ctx, id, upd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return nil, err
	}

	s.publishEvent(models.TransactionEvent{
		Kind:          models.EventStatusChanged,
		TransactionID: updated.ID,
		Number:        updated.TransactionNumber,
		OldStatus:     tx.Status,
		NewStatus:     updated.Status,
		UpdatedAt:     updated.UpdatedAt,
	})

	slog.Info("transaction transitioned",
		"transaction_id", updated.ID,
		"transaction_number", updated.TransactionNumber,
		"from", tx.Status,
		"to", updated.Status)
	return updated, nil
}

// ExpireOverdue flips every pending_payment row past its window to expired
// and emits the same notification events as an admin transition.
func (s *transactionService) ExpireOverdue(ctx context.Context) (int, error) {
	ids, err := s.transactionRepo.ExpireOverdue(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.publishEvent(models.TransactionEvent{
			Kind:          models.EventStatusChanged,
			TransactionID: id,
			OldStatus:     models.StatusPendingPayment,
			NewStatus:     models.StatusExpired,
			UpdatedAt:     s.now().UTC(),
		})
	}
	observability.TransactionsExpired.Add(float64(len(ids)))
	return len(ids), nil
}

// publishEvent hands the committed change to Kafka for notification
// dispatch. Best-effort: a publish failure is logged, never propagated, so
// the state change it describes stands regardless.
func (s *transactionService) publishEvent(event models.TransactionEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal lifecycle event", "transaction_id", event.TransactionID, "error", err)
		return
	}
	if err := s.producer.Send(context.Background(), s.topic, event.TransactionID, payload); err != nil {
		slog.Error("failed to publish lifecycle event", "transaction_id", event.TransactionID, "kind", event.Kind, "error", err)
	}
}
