package errors

import "errors"

var (
	// Validation.
	ErrInvalidInput       = errors.New("invalid input")
	ErrAmountBelowMinimum = errors.New("amount below minimum")
	ErrMissingTxHash      = errors.New("tx_hash is required")
	ErrInvalidNetwork     = errors.New("unsupported crypto network")
	ErrMissingWallet      = errors.New("wallet address is required")
	ErrRejectionReason    = errors.New("rejection reason is required")

	// Authorization.
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrNotAdmin           = errors.New("admin privileges required")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameExists     = errors.New("username already exists")

	// Not found.
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAccountNotFound     = errors.New("payment account not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrKYCNotFound         = errors.New("kyc verification not found")

	// Lifecycle conflicts.
	ErrNoActiveAccount     = errors.New("no active payment account")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrTransactionExpired  = errors.New("transaction payment window has expired")
	ErrTransactionConflict = errors.New("transaction was modified concurrently")

	// External dependencies.
	ErrRateUnavailable       = errors.New("exchange rate unavailable")
	ErrNotifierNotConfigured = errors.New("push notification credentials not configured")
	ErrNotificationDispatch  = errors.New("failed to dispatch push notification")

	// Infrastructure.
	ErrInternal = errors.New("internal error")
)
