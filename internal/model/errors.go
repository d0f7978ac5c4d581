package model

import "errors"

var (
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidAmount rejects non-positive principals and payments, and
	// discounts outside [0, principal].
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidTransition rejects a state-machine edge the current status does not allow.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrReasonRequired is returned when cancelling without a reason.
	ErrReasonRequired = errors.New("reason required")

	// ErrRecordLengthViolation is returned when a bank record would not fit the
	// mandated line length or a numeric field would overflow its columns.
	ErrRecordLengthViolation = errors.New("record length violation")

	// ErrConcurrentModification is returned when a write is based on a stale version.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrSequenceExhausted is returned when a counter would overflow its fixed width.
	ErrSequenceExhausted = errors.New("sequence exhausted")

	// ErrNotReturnFile is returned when a return artifact has no usable content.
	ErrNotReturnFile = errors.New("not a return file")
)
