package models

import "time"

type KYCStatus string

const (
	KYCPending  KYCStatus = "pending"
	KYCInReview KYCStatus = "in_review"
	KYCApproved KYCStatus = "approved"
	KYCRejected KYCStatus = "rejected"
)

func (s KYCStatus) Valid() bool {
	switch s {
	case KYCPending, KYCInReview, KYCApproved, KYCRejected:
		return true
	}
	return false
}

// KYCVerification is one identity verification attempt. A user may accumulate
// several; the current status is the most recently updated record.
type KYCVerification struct {
	ID              int64      `json:"id"`
	UserID          int64      `json:"user_id"`
	Status          KYCStatus  `json:"status"`
	DocumentType    string     `json:"document_type"`
	DocumentNumber  string     `json:"document_number"`
	DocumentURL     string     `json:"document_url,omitempty"`
	SelfieURL       string     `json:"selfie_url,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	VerifiedAt      *time.Time `json:"verified_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
