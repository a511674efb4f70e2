package models

import "time"

type AccountType string

const (
	AccountPix AccountType = "pix"
	AccountTed AccountType = "ted"
)

func (t AccountType) Valid() bool {
	return t == AccountPix || t == AccountTed
}

// PaymentAccount is a receiving account for fiat deposits. At most one
// account per type is active at any time; activating one deactivates its
// siblings in the same database transaction.
type PaymentAccount struct {
	ID            int64       `json:"id"`
	AccountType   AccountType `json:"account_type"`
	IsActive      bool        `json:"is_active"`
	PixKey        string      `json:"pix_key,omitempty"`
	BankName      string      `json:"bank_name,omitempty"`
	BankCode      string      `json:"bank_code,omitempty"`
	AccountHolder string      `json:"account_holder,omitempty"`
	Agency        string      `json:"agency,omitempty"`
	AccountNumber string      `json:"account_number,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Instructions copies the payable fields into the snapshot stored on a
// transaction.
func (a *PaymentAccount) Instructions() PaymentInstructions {
	return PaymentInstructions{
		PixKey:        a.PixKey,
		BankName:      a.BankName,
		BankCode:      a.BankCode,
		AccountHolder: a.AccountHolder,
		Agency:        a.Agency,
		AccountNumber: a.AccountNumber,
	}
}
