package service

import (
	"context"
	"time"

	"github.com/hubp2p/exchange-service/internal/infrastructure/pushover"
	"github.com/hubp2p/exchange-service/internal/models"
	"github.com/hubp2p/exchange-service/internal/repository"
	pkgerrors "github.com/hubp2p/exchange-service/pkg/errors"
	"github.com/shopspring/decimal"
)

type fakeTransactionRepo struct {
	byID      map[string]*models.Transaction
	createErr error
	updateErr error
	expired   []string
	updates   []repository.StatusUpdate
}

func newFakeTransactionRepo() *fakeTransactionRepo {
	return &fakeTransactionRepo{byID: map[string]*models.Transaction{}}
}

func (f *fakeTransactionRepo) Create(_ context.Context, tx *models.Transaction) error {
	if f.createErr != nil {
		return f.createErr
	}
	tx.TransactionNumber = "TXN-000001"
	tx.CreatedAt = time.Now().UTC()
	tx.UpdatedAt = tx.CreatedAt
	cp := *tx
	f.byID[tx.ID] = &cp
	return nil
}

func (f *fakeTransactionRepo) GetByID(_ context.Context, id string) (*models.Transaction, error) {
	tx, ok := f.byID[id]
	if !ok {
		return nil, pkgerrors.ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

func (f *fakeTransactionRepo) ListByUser(_ context.Context, userID int64) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, tx := range f.byID {
		if tx.UserID != nil && *tx.UserID == userID {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (f *fakeTransactionRepo) List(_ context.Context, status models.Status, _ int) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, tx := range f.byID {
		if status == "" || tx.Status == status {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (f *fakeTransactionRepo) UpdateStatus(_ context.Context, id string, upd repository.StatusUpdate) (*models.Transaction, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	tx, ok := f.byID[id]
	if !ok {
		return nil, pkgerrors.ErrTransactionNotFound
	}
	if tx.Status != upd.From {
		return nil, pkgerrors.ErrTransactionConflict
	}
	f.updates = append(f.updates, upd)
	tx.Status = upd.To
	if upd.TxHash != "" {
		tx.TxHash = upd.TxHash
	}
	if upd.AdminNotes != "" {
		tx.AdminNotes = upd.AdminNotes
	}
	if upd.PaymentConfirmedAt != nil {
		tx.PaymentConfirmedAt = upd.PaymentConfirmedAt
	}
	if upd.CryptoSentAt != nil {
		tx.CryptoSentAt = upd.CryptoSentAt
	}
	tx.UpdatedAt = time.Now().UTC()
	cp := *tx
	return &cp, nil
}

func (f *fakeTransactionRepo) ExpireOverdue(_ context.Context, now time.Time) ([]string, error) {
	var ids []string
	for id, tx := range f.byID {
		if tx.ExpiredBy(now) {
			tx.Status = models.StatusExpired
			ids = append(ids, id)
		}
	}
	f.expired = ids
	return ids, nil
}

type fakeAccountRepo struct {
	accounts map[int64]*models.PaymentAccount
	nextID   int64
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: map[int64]*models.PaymentAccount{}}
}

func (f *fakeAccountRepo) Create(_ context.Context, account *models.PaymentAccount) error {
	f.nextID++
	account.ID = f.nextID
	account.CreatedAt = time.Now().UTC()
	cp := *account
	f.accounts[account.ID] = &cp
	return nil
}

func (f *fakeAccountRepo) GetByID(_ context.Context, id int64) (*models.PaymentAccount, error) {
	account, ok := f.accounts[id]
	if !ok {
		return nil, pkgerrors.ErrAccountNotFound
	}
	cp := *account
	return &cp, nil
}

func (f *fakeAccountRepo) List(_ context.Context) ([]models.PaymentAccount, error) {
	var out []models.PaymentAccount
	for _, account := range f.accounts {
		out = append(out, *account)
	}
	return out, nil
}

func (f *fakeAccountRepo) ToggleActive(_ context.Context, id int64) (*models.PaymentAccount, error) {
	account, ok := f.accounts[id]
	if !ok {
		return nil, pkgerrors.ErrAccountNotFound
	}
	if !account.IsActive {
		for _, sibling := range f.accounts {
			if sibling.AccountType == account.AccountType {
				sibling.IsActive = false
			}
		}
	}
	account.IsActive = !account.IsActive
	cp := *account
	return &cp, nil
}

func (f *fakeAccountRepo) GetActive(_ context.Context, accountType models.AccountType) (*models.PaymentAccount, error) {
	for _, account := range f.accounts {
		if account.AccountType == accountType && account.IsActive {
			cp := *account
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeAccountRepo) GetActiveAny(_ context.Context) (*models.PaymentAccount, error) {
	if account, _ := f.GetActive(context.Background(), models.AccountPix); account != nil {
		return account, nil
	}
	return f.GetActive(context.Background(), models.AccountTed)
}

func (f *fakeAccountRepo) Delete(_ context.Context, id int64) error {
	if _, ok := f.accounts[id]; !ok {
		return pkgerrors.ErrAccountNotFound
	}
	delete(f.accounts, id)
	return nil
}

type fakeLogRepo struct {
	logs      []models.NotificationLog
	createErr error
}

func (f *fakeLogRepo) Create(_ context.Context, log *models.NotificationLog) error {
	if f.createErr != nil {
		return f.createErr
	}
	log.ID = int64(len(f.logs) + 1)
	log.SentAt = time.Now().UTC()
	f.logs = append(f.logs, *log)
	return nil
}

func (f *fakeLogRepo) ListByTransaction(_ context.Context, transactionID string) ([]models.NotificationLog, error) {
	var out []models.NotificationLog
	for _, log := range f.logs {
		if log.TransactionID == transactionID {
			out = append(out, log)
		}
	}
	return out, nil
}

func (f *fakeLogRepo) List(_ context.Context, _ int) ([]models.NotificationLog, error) {
	return f.logs, nil
}

// stubRates satisfies RateService with canned values.
type stubRates struct {
	snapshot    *RateSnapshot
	snapshotErr error
}

func (s *stubRates) GetQuote(_ context.Context, amountBRL decimal.Decimal) (*Quote, error) {
	snap := s.snapshot
	return &Quote{
		BaseRate:  snap.BaseRate,
		FinalRate: snap.FinalRate,
		AmountBRL: amountBRL,
		AmountUSD: ConvertBrlToUsd(amountBRL, snap.FinalRate),
	}, nil
}

func (s *stubRates) Snapshot(_ context.Context) (*RateSnapshot, error) {
	if s.snapshotErr != nil {
		return nil, s.snapshotErr
	}
	return s.snapshot, nil
}

// stubMarketSource satisfies MarketSource for rate service tests.
type stubMarketSource struct {
	base      decimal.Decimal
	baseErr   error
	btc       decimal.Decimal
	btcErr    error
	baseCalls int
}

func (s *stubMarketSource) BaseRate(_ context.Context) (decimal.Decimal, error) {
	s.baseCalls++
	return s.base, s.baseErr
}

func (s *stubMarketSource) BTCUSDRate(_ context.Context) (decimal.Decimal, error) {
	return s.btc, s.btcErr
}

type fakeRedis struct {
	store map[string]string
	err   error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{store: map[string]string{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	v, ok := f.store[key]
	if !ok {
		return "", pkgerrors.ErrInternal
	}
	return v, nil
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if f.err != nil {
		return f.err
	}
	if s, ok := value.(string); ok {
		f.store[key] = s
	}
	return nil
}

func (f *fakeRedis) Del(_ context.Context, key string) error {
	delete(f.store, key)
	return nil
}

func (f *fakeRedis) Close() error { return nil }

type fakeProducer struct {
	messages []string
	err      error
}

func (f *fakeProducer) Send(_ context.Context, _ string, key string, _ []byte) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, key)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

type fakeSender struct {
	configured bool
	sendErr    error
	sent       []pushover.Message
}

func (f *fakeSender) Configured() bool  { return f.configured }
func (f *fakeSender) Recipient() string { return "staff-key" }

func (f *fakeSender) Send(_ context.Context, msg pushover.Message) error {
	if !f.configured {
		return pkgerrors.ErrNotifierNotConfigured
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}
