package service

import (
	"context"
	"testing"
	"time"

	"github.com/hubp2p/exchange-service/internal/models"
	pkgerrors "github.com/hubp2p/exchange-service/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func newTestTransactionService(txRepo *fakeTransactionRepo, accountRepo *fakeAccountRepo, rates RateService, producer *fakeProducer) *transactionService {
	svc := NewTransactionService(txRepo, accountRepo, rates, producer, "transaction-events")
	return svc
}

func activePixAccount(t *testing.T, repo *fakeAccountRepo) *models.PaymentAccount {
	t.Helper()
	account := &models.PaymentAccount{
		AccountType: models.AccountPix,
		PixKey:      "hubp2p@example.com",
	}
	assert.NoError(t, repo.Create(context.Background(), account))
	toggled, err := repo.ToggleActive(context.Background(), account.ID)
	assert.NoError(t, err)
	return toggled
}

func TestTransactionService_Create(t *testing.T) {
	ctx := context.Background()
	rates := &stubRates{snapshot: &RateSnapshot{
		BaseRate:  decimal.RequireFromString("5.69"),
		FinalRate: decimal.RequireFromString("5.9676"),
	}}

	t.Run("anonymous happy path", func(t *testing.T) {
		txRepo := newFakeTransactionRepo()
		accountRepo := newFakeAccountRepo()
		activePixAccount(t, accountRepo)
		producer := &fakeProducer{}
		svc := newTestTransactionService(txRepo, accountRepo, rates, producer)
		created := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
		svc.now = func() time.Time { return created }

		tx, err := svc.Create(ctx, CreateTransactionInput{
			AmountBRL:     decimal.NewFromInt(100),
			Network:       models.NetworkBitcoin,
			WalletAddress: "bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh",
		})
		assert.NoError(t, err)
		assert.Equal(t, models.StatusPendingPayment, tx.Status)
		assert.Equal(t, "TXN-000001", tx.TransactionNumber)
		assert.Nil(t, tx.UserID)
		assert.True(t, tx.AmountUSD.Equal(decimal.RequireFromString("16.76")), "got %s", tx.AmountUSD)
		assert.True(t, tx.ExchangeRate.Equal(decimal.RequireFromString("5.9676")))
		assert.Equal(t, models.MethodPix, tx.PaymentMethod)
		assert.Equal(t, "hubp2p@example.com", tx.Instructions.PixKey)
		assert.Equal(t, created.Add(models.PaymentWindow), tx.ExpiresAt)
		assert.Len(t, producer.messages, 1)
	})

	t.Run("below minimum", func(t *testing.T) {
		svc := newTestTransactionService(newFakeTransactionRepo(), newFakeAccountRepo(), rates, &fakeProducer{})

		_, err := svc.Create(ctx, CreateTransactionInput{
			AmountBRL:     decimal.RequireFromString("99.99"),
			Network:       models.NetworkBitcoin,
			WalletAddress: "bc1qxy",
		})
		assert.ErrorIs(t, err, pkgerrors.ErrAmountBelowMinimum)
	})

	t.Run("missing wallet", func(t *testing.T) {
		svc := newTestTransactionService(newFakeTransactionRepo(), newFakeAccountRepo(), rates, &fakeProducer{})

		_, err := svc.Create(ctx, CreateTransactionInput{
			AmountBRL: decimal.NewFromInt(150),
			Network:   models.NetworkBitcoin,
		})
		assert.ErrorIs(t, err, pkgerrors.ErrMissingWallet)
	})

	t.Run("anonymous-only network rejected for registered user", func(t *testing.T) {
		accountRepo := newFakeAccountRepo()
		activePixAccount(t, accountRepo)
		svc := newTestTransactionService(newFakeTransactionRepo(), accountRepo, rates, &fakeProducer{})
		userID := int64(7)

		_, err := svc.Create(ctx, CreateTransactionInput{
			UserID:        &userID,
			AmountBRL:     decimal.NewFromInt(150),
			Network:       models.NetworkTron,
			WalletAddress: "TJRabPrwbZy45sbavfcjinPJC18kjpRTv8",
			PaymentMethod: models.MethodPix,
		})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidNetwork)
	})

	t.Run("no active account", func(t *testing.T) {
		svc := newTestTransactionService(newFakeTransactionRepo(), newFakeAccountRepo(), rates, &fakeProducer{})

		_, err := svc.Create(ctx, CreateTransactionInput{
			AmountBRL:     decimal.NewFromInt(150),
			Network:       models.NetworkBitcoin,
			WalletAddress: "bc1qxy",
		})
		assert.ErrorIs(t, err, pkgerrors.ErrNoActiveAccount)
	})

	t.Run("rate outage fails creation", func(t *testing.T) {
		accountRepo := newFakeAccountRepo()
		activePixAccount(t, accountRepo)
		down := &stubRates{snapshotErr: pkgerrors.ErrRateUnavailable}
		svc := newTestTransactionService(newFakeTransactionRepo(), accountRepo, down, &fakeProducer{})

		_, err := svc.Create(ctx, CreateTransactionInput{
			AmountBRL:     decimal.NewFromInt(150),
			Network:       models.NetworkBitcoin,
			WalletAddress: "bc1qxy",
		})
		assert.ErrorIs(t, err, pkgerrors.ErrRateUnavailable)
	})

	t.Run("registered flow picks account by method", func(t *testing.T) {
		txRepo := newFakeTransactionRepo()
		accountRepo := newFakeAccountRepo()
		ted := &models.PaymentAccount{
			AccountType:   models.AccountTed,
			BankName:      "Banco do Brasil",
			AccountHolder: "HubP2P Ltda",
			Agency:        "1234",
			AccountNumber: "56789-0",
		}
		assert.NoError(t, accountRepo.Create(ctx, ted))
		_, err := accountRepo.ToggleActive(ctx, ted.ID)
		assert.NoError(t, err)
		svc := newTestTransactionService(txRepo, accountRepo, rates, &fakeProducer{})
		userID := int64(7)

		tx, err := svc.Create(ctx, CreateTransactionInput{
			UserID:        &userID,
			AmountBRL:     decimal.NewFromInt(500),
			Network:       models.NetworkEthereum,
			WalletAddress: "0x9f8e7d6c5b4a39281706f5e4d3c2b1a098765432",
			PaymentMethod: models.MethodTed,
		})
		assert.NoError(t, err)
		assert.Equal(t, models.MethodTed, tx.PaymentMethod)
		assert.Equal(t, "Banco do Brasil", tx.Instructions.BankName)
		assert.Equal(t, &userID, tx.UserID)
	})
}

func TestTransactionService_Transition(t *testing.T) {
	ctx := context.Background()
	rates := &stubRates{snapshot: &RateSnapshot{
		BaseRate:  decimal.RequireFromString("5.69"),
		FinalRate: decimal.RequireFromString("5.9676"),
	}}

	seed := func(t *testing.T) (*transactionService, *fakeTransactionRepo, *fakeProducer, *models.Transaction) {
		t.Helper()
		txRepo := newFakeTransactionRepo()
		accountRepo := newFakeAccountRepo()
		activePixAccount(t, accountRepo)
		producer := &fakeProducer{}
		svc := newTestTransactionService(txRepo, accountRepo, rates, producer)
		created := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
		svc.now = func() time.Time { return created }

		tx, err := svc.Create(ctx, CreateTransactionInput{
			AmountBRL:     decimal.NewFromInt(250),
			Network:       models.NetworkBitcoin,
			WalletAddress: "bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh",
		})
		assert.NoError(t, err)
		return svc, txRepo, producer, tx
	}

	t.Run("full lifecycle", func(t *testing.T) {
		svc, _, producer, tx := seed(t)

		got, err := svc.Transition(ctx, tx.ID, models.StatusPaymentReceived, TransitionInput{})
		assert.NoError(t, err)
		assert.Equal(t, models.StatusPaymentReceived, got.Status)
		assert.NotNil(t, got.PaymentConfirmedAt)

		got, err = svc.Transition(ctx, tx.ID, models.StatusConverting, TransitionInput{})
		assert.NoError(t, err)
		assert.Equal(t, models.StatusConverting, got.Status)

		got, err = svc.Transition(ctx, tx.ID, models.StatusSent, TransitionInput{TxHash: "0xabc123"})
		assert.NoError(t, err)
		assert.Equal(t, models.StatusSent, got.Status)
		assert.Equal(t, "0xabc123", got.TxHash)
		assert.NotNil(t, got.CryptoSentAt)

		// create + three transitions
		assert.Len(t, producer.messages, 4)
	})

	t.Run("sent requires tx_hash", func(t *testing.T) {
		svc, _, _, tx := seed(t)

		_, err := svc.Transition(ctx, tx.ID, models.StatusPaymentReceived, TransitionInput{})
		assert.NoError(t, err)

		_, err = svc.Transition(ctx, tx.ID, models.StatusSent, TransitionInput{})
		assert.ErrorIs(t, err, pkgerrors.ErrMissingTxHash)

		// The failed attempt must not have advanced the status.
		got, err := svc.Get(ctx, tx.ID)
		assert.NoError(t, err)
		assert.Equal(t, models.StatusPaymentReceived, got.Status)
	})

	t.Run("skipping a step is rejected", func(t *testing.T) {
		svc, _, _, tx := seed(t)

		_, err := svc.Transition(ctx, tx.ID, models.StatusConverting, TransitionInput{})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)
	})

	t.Run("terminal status is frozen", func(t *testing.T) {
		svc, _, _, tx := seed(t)

		_, err := svc.Transition(ctx, tx.ID, models.StatusCancelled, TransitionInput{AdminNotes: "client gave up"})
		assert.NoError(t, err)

		_, err = svc.Transition(ctx, tx.ID, models.StatusPaymentReceived, TransitionInput{})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)
	})

	t.Run("expired cannot be set manually", func(t *testing.T) {
		svc, _, _, tx := seed(t)

		_, err := svc.Transition(ctx, tx.ID, models.StatusExpired, TransitionInput{})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)
	})

	t.Run("overdue pending rejects confirmation", func(t *testing.T) {
		svc, _, _, tx := seed(t)
		svc.now = func() time.Time { return tx.ExpiresAt.Add(time.Minute) }

		_, err := svc.Transition(ctx, tx.ID, models.StatusPaymentReceived, TransitionInput{})
		assert.ErrorIs(t, err, pkgerrors.ErrTransactionExpired)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		svc, _, _, _ := seed(t)

		_, err := svc.Transition(ctx, "6d2f27ae-0000-0000-0000-000000000000", models.StatusCancelled, TransitionInput{})
		assert.ErrorIs(t, err, pkgerrors.ErrTransactionNotFound)
	})
}

func TestTransactionService_ExpireOverdue(t *testing.T) {
	ctx := context.Background()
	rates := &stubRates{snapshot: &RateSnapshot{
		BaseRate:  decimal.RequireFromString("5.69"),
		FinalRate: decimal.RequireFromString("5.9676"),
	}}

	txRepo := newFakeTransactionRepo()
	accountRepo := newFakeAccountRepo()
	activePixAccount(t, accountRepo)
	producer := &fakeProducer{}
	svc := newTestTransactionService(txRepo, accountRepo, rates, producer)
	created := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return created }

	tx, err := svc.Create(ctx, CreateTransactionInput{
		AmountBRL:     decimal.NewFromInt(300),
		Network:       models.NetworkSolana,
		WalletAddress: "7Np41oeYqPefeNQEHSv1UDhYrehxin3NStELsSKCT4K2",
	})
	assert.NoError(t, err)

	// Still inside the window: nothing to do.
	count, err := svc.ExpireOverdue(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0, count)

	svc.now = func() time.Time { return created.Add(models.PaymentWindow + time.Minute) }
	count, err = svc.ExpireOverdue(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := svc.Get(ctx, tx.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusExpired, got.Status)

	// create event + expiry event
	assert.Len(t, producer.messages, 2)
}
