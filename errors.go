package revshare

import (
	"errors"
	"fmt"

	"github.com/xraph/revshare/types"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("revshare: not found")
	ErrAlreadyExists = errors.New("revshare: already exists")
	ErrInvalidInput  = errors.New("revshare: invalid input")
	ErrUnauthorized  = errors.New("revshare: unauthorized")

	// Credential errors
	ErrInvalidCredential = errors.New("revshare: invalid credential")

	// Pool errors
	ErrPoolNotFound      = fmt.Errorf("%w: pool", ErrNotFound)
	ErrPoolExists        = fmt.Errorf("%w: pool", ErrAlreadyExists)
	ErrInvalidFeePercent = errors.New("revshare: fee percent exceeds maximum")
	ErrPoolInsolvent     = errors.New("revshare: distribution exceeds deposited revenue")

	// Payee errors
	ErrPayeeNotFound = fmt.Errorf("%w: payee", ErrNotFound)
	ErrPayeeExists   = fmt.Errorf("%w: payee", ErrAlreadyExists)
	ErrIDTooLong     = errors.New("revshare: external id too long")
	ErrInvalidPayee  = errors.New("revshare: payee label does not match")

	// Withdrawal errors
	ErrNoFundsToWithdraw      = errors.New("revshare: no funds to withdraw")
	ErrUnauthorizedWithdrawal = errors.New("revshare: caller does not own payee")
	ErrInsufficientPoolFunds  = errors.New("revshare: insufficient pool funds")

	// Wallet errors
	ErrInsufficientBalance = errors.New("revshare: insufficient balance")

	// Arithmetic errors
	ErrArithmeticOverflow = types.ErrOverflow

	// Batch errors
	ErrBatchTooLarge = errors.New("revshare: batch too large")

	// Usage feed errors
	ErrUsageBufferFull   = errors.New("revshare: usage buffer full")
	ErrUsageFeedDisabled = errors.New("revshare: usage feed has no operator credential")

	// Store errors
	ErrConflict    = errors.New("revshare: concurrent modification")
	ErrStoreClosed = errors.New("revshare: store is closed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("revshare: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap returns the sentinel the failure is classified under.
func (e ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// BatchItemError reports which item rejected a batch.
type BatchItemError struct {
	Index int
	Err   error
}

func (e *BatchItemError) Error() string {
	return fmt.Sprintf("revshare: batch item %d: %v", e.Index, e.Err)
}

func (e *BatchItemError) Unwrap() error { return e.Err }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAuthorizationError returns true if the caller was not allowed to act.
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrUnauthorizedWithdrawal) ||
		errors.Is(err, ErrInvalidPayee) ||
		errors.Is(err, ErrInvalidCredential)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrUsageBufferFull)
}
