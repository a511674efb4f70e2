package models

import "time"

type NotificationType string

const (
	NotifyPushover NotificationType = "pushover"
	NotifyEmail    NotificationType = "email"
	NotifySMS      NotificationType = "sms"
)

type NotificationStatus string

const (
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
	NotificationPending NotificationStatus = "pending"
)

// NotificationLog is the append-only audit record of a dispatch attempt.
// Rows are never mutated after insert.
type NotificationLog struct {
	ID            int64              `json:"id"`
	TransactionID string             `json:"transaction_id,omitempty"`
	Type          NotificationType   `json:"type"`
	Recipient     string             `json:"recipient"`
	Message       string             `json:"message"`
	Status        NotificationStatus `json:"status"`
	ErrorMessage  string             `json:"error_message,omitempty"`
	SentAt        time.Time          `json:"sent_at"`
}
