package split

import "errors"

var (
	// Validation failures raised while checking operation inputs.
	ErrNoPayees       = errors.New("split: no payees provided")
	ErrLengthMismatch = errors.New("split: payees and shares length mismatch")
	ErrZeroAddress    = errors.New("split: payee address is zero")
	ErrZeroShares     = errors.New("split: payee shares must be positive")
	ErrDuplicatePayee = errors.New("split: duplicate payee address")
	ErrSharesOverflow = errors.New("split: total shares overflow")
	ErrInvalidAsset   = errors.New("split: invalid asset symbol")

	// Lifecycle failures raised when an operation meets the wrong roster state.
	ErrAlreadyPopulated = errors.New("split: roster already populated")
	ErrNotPopulated     = errors.New("split: roster not populated")

	// ErrUnauthorized is returned when the caller is not the configured operator.
	ErrUnauthorized = errors.New("split: caller is not the operator")

	// Payment failures raised by release operations.
	ErrNotPayee        = errors.New("split: account has no shares")
	ErrNothingDue      = errors.New("split: no payment due")
	ErrIndexOutOfRange = errors.New("split: payee index out of range")
)
