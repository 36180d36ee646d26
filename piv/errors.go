package piv

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNoDevice is returned when no token is attached
	ErrNoDevice = errors.New("no device detected")
	// ErrAmbiguousDevice is returned when more than one token is attached
	ErrAmbiguousDevice = errors.New("ambiguous device")
	// ErrSlotNotSigning is returned for a slot that can not hold a signing key
	ErrSlotNotSigning = errors.New("slot is not signing-capable")
	// ErrPINCancelled is returned when the user cancels PIN entry
	ErrPINCancelled = errors.New("PIN entry cancelled")
	// ErrPINLocked is returned when the PIN retry counter is exhausted
	ErrPINLocked = errors.New("PIN is locked")
	// ErrUnsupportedRequest is returned for unknown key entry request
	ErrUnsupportedRequest = errors.New("unsupported key entry request")
)

// WrongPINError is returned by PINVerifier when the token rejected the PIN
type WrongPINError struct {
	// RetriesRemaining is the number of attempts left, or -1 if unknown
	RetriesRemaining int
}

func (e *WrongPINError) Error() string {
	if e.RetriesRemaining < 0 {
		return "incorrect PIN"
	}
	return fmt.Sprintf("incorrect PIN, %d retries remaining", e.RetriesRemaining)
}
