package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hubp2p/exchange-service/internal/infrastructure/observability"
	"github.com/hubp2p/exchange-service/internal/infrastructure/pushover"
	"github.com/hubp2p/exchange-service/internal/models"
	"github.com/hubp2p/exchange-service/internal/repository"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	KindNewTransaction = "new_transaction"
	KindStatusUpdate   = "status_update"
)

// PushSender is the outbound messaging provider.
type PushSender interface {
	Configured() bool
	Recipient() string
	Send(ctx context.Context, msg pushover.Message) error
}

type NotifierService interface {
	// Notify formats and sends a staff alert for the transaction and always
	// appends one NotificationLog row, success or failure. A non-nil error
	// means the dispatch failed; the triggering state change has already
	// committed and is unaffected.
	Notify(ctx context.Context, transactionID, kind string) error
	ListLogs(ctx context.Context, limit int) ([]models.NotificationLog, error)
	ListLogsByTransaction(ctx context.Context, transactionID string) ([]models.NotificationLog, error)
}

type notifierService struct {
	transactionRepo repository.TransactionRepository
	logRepo         repository.NotificationLogRepository
	sender          PushSender
}

func NewNotifierService(
	transactionRepo repository.TransactionRepository,
	logRepo repository.NotificationLogRepository,
	sender PushSender,
) *notifierService {
	return &notifierService{
		transactionRepo: transactionRepo,
		logRepo:         logRepo,
		sender:          sender,
	}
}

// Dispatch adapts Kafka lifecycle events onto Notify.
func (s *notifierService) Dispatch(ctx context.Context, transactionID, eventKind string) error {
	kind := KindStatusUpdate
	if eventKind == models.EventTransactionCreated {
		kind = KindNewTransaction
	}
	return s.Notify(ctx, transactionID, kind)
}

func (s *notifierService) Notify(ctx context.Context, transactionID, kind string) error {
	tracer := otel.Tracer("notifier-service")
	ctx, span := tracer.Start(ctx, "Notify")
	span.SetAttributes(
		attribute.String("transaction_id", transactionID),
		attribute.String("kind", kind),
	)
	defer span.End()

	// Always reload: never alert on a caller-passed snapshot that may have
	// gone stale between commit and dispatch.
	tx, err := s.transactionRepo.GetByID(ctx, transactionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction load failed")
		return err
	}

	title, message := formatAlert(tx, kind)

	dispatchErr := s.sender.Send(ctx, pushover.Message{
		Title:  title,
		Body:   message,
		Urgent: true,
	})

	logRow := &models.NotificationLog{
		TransactionID: tx.ID,
		Type:          models.NotifyPushover,
		Recipient:     s.sender.Recipient(),
		Message:       title + "\n" + message,
		Status:        models.NotificationSent,
	}
	result := "sent"
	if dispatchErr != nil {
		logRow.Status = models.NotificationFailed
		logRow.ErrorMessage = dispatchErr.Error()
		result = "failed"
		span.RecordError(dispatchErr)
		span.SetStatus(codes.Error, "dispatch failed")
	}
	observability.NotificationsDispatched.WithLabelValues(kind, result).Inc()

	// The log row is the durable record; it is written whether or not the
	// provider accepted the message.
	if err := s.logRepo.Create(ctx, logRow); err != nil {
		slog.Error("failed to persist notification log",
			"transaction_id", tx.ID, "kind", kind, "dispatch_error", dispatchErr, "error", err)
		if dispatchErr != nil {
			return dispatchErr
		}
		return err
	}

	if dispatchErr != nil {
		slog.Error("notification dispatch failed",
			"transaction_id", tx.ID, "transaction_number", tx.TransactionNumber, "kind", kind, "error", dispatchErr)
		return dispatchErr
	}

	slog.Info("notification dispatched",
		"transaction_id", tx.ID, "transaction_number", tx.TransactionNumber, "kind", kind)
	return nil
}

func (s *notifierService) ListLogs(ctx context.Context, limit int) ([]models.NotificationLog, error) {
	return s.logRepo.List(ctx, limit)
}

func (s *notifierService) ListLogsByTransaction(ctx context.Context, transactionID string) ([]models.NotificationLog, error) {
	return s.logRepo.ListByTransaction(ctx, transactionID)
}

func formatAlert(tx *models.Transaction, kind string) (title, message string) {
	switch kind {
	case KindNewTransaction:
		title = fmt.Sprintf("New transaction %s", tx.TransactionNumber)
		message = fmt.Sprintf("%s (≈ US$ %s) via %s → %s %s. Pay by %s.",
			FormatBRL(tx.AmountBRL),
			tx.AmountUSD.StringFixed(2),
			strings.ToUpper(string(tx.PaymentMethod)),
			tx.CryptoNetwork,
			MaskWallet(tx.WalletAddress),
			tx.ExpiresAt.Format("15:04 MST"),
		)
	default:
		title = fmt.Sprintf("Transaction %s: %s", tx.TransactionNumber, tx.Status)
		message = fmt.Sprintf("%s → %s %s now %s.",
			FormatBRL(tx.AmountBRL),
			tx.CryptoNetwork,
			MaskWallet(tx.WalletAddress),
			tx.Status,
		)
		if tx.TxHash != "" {
			message += fmt.Sprintf(" tx_hash %s", tx.TxHash)
		}
	}
	return title, message
}

// FormatBRL renders an amount in the Brazilian convention: R$ 1.234,56.
func FormatBRL(amount decimal.Decimal) string {
	fixed := amount.StringFixed(2)
	neg := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	intPart := fixed[:len(fixed)-3]
	fracPart := fixed[len(fixed)-2:]

	var grouped strings.Builder
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(digit)
	}

	out := "R$ " + grouped.String() + "," + fracPart
	if neg {
		out = "-" + out
	}
	return out
}

// MaskWallet shortens an address for display: first six, ellipsis, last four.
func MaskWallet(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:6] + "…" + address[len(address)-4:]
}
