package piv

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

// KeyEntryRequest is a request from a session to the key collector.
// The set of requests is closed: ReleaseRequest and VerifyPINRequest.
type KeyEntryRequest interface {
	keyEntryRequest()
}

// ReleaseRequest is sent when the session no longer needs credentials
type ReleaseRequest struct{}

// VerifyPINRequest is sent when the token requires the user PIN
type VerifyPINRequest struct {
	// IsRetry is true when the previous PIN was rejected
	IsRetry bool
	// RetriesRemaining is the number of attempts left, or -1 if unknown
	RetriesRemaining int
}

func (ReleaseRequest) keyEntryRequest()   {}
func (VerifyPINRequest) keyEntryRequest() {}

// KeyCollector collects credentials for a token session
type KeyCollector interface {
	// Release is called when the session is closed, it must not fail
	Release() error
	// VerifyPIN returns the PIN entered by the user.
	// The returned buffer is owned by the caller, which zeroes it after use.
	VerifyPIN(req VerifyPINRequest) ([]byte, error)
}

// Dispatch routes the request to the collector
func Dispatch(c KeyCollector, req KeyEntryRequest) ([]byte, error) {
	switch r := req.(type) {
	case ReleaseRequest:
		return nil, c.Release()
	case *ReleaseRequest:
		return nil, c.Release()
	case VerifyPINRequest:
		return c.VerifyPIN(r)
	case *VerifyPINRequest:
		return c.VerifyPIN(*r)
	}
	return nil, errors.WithMessagef(ErrUnsupportedRequest, "%T", req)
}

// PINVerifier submits the PIN to the token.
// It returns *WrongPINError if the token rejected the PIN.
type PINVerifier func(pin []byte) error

// VerifyPIN runs PIN entry until the token accepts the PIN,
// the user cancels, or the PIN is locked.
// The PIN buffer is zeroed after each submission.
func VerifyPIN(c KeyCollector, verify PINVerifier) error {
	req := VerifyPINRequest{RetriesRemaining: -1}
	for {
		pin, err := Dispatch(c, req)
		if err != nil {
			return err
		}

		err = verify(pin)
		clear(pin)
		if err == nil {
			return nil
		}

		var wrong *WrongPINError
		if !errors.As(err, &wrong) {
			return err
		}
		if wrong.RetriesRemaining == 0 {
			return errors.WithStack(ErrPINLocked)
		}
		logger.KV(xlog.DEBUG, "reason", "wrong_pin", "retries", wrong.RetriesRemaining)

		req = VerifyPINRequest{
			IsRetry:          true,
			RetriesRemaining: wrong.RetriesRemaining,
		}
	}
}

// ValidPINLength returns true for PIN of 6, 7 or 8 characters
func ValidPINLength(n int) bool {
	return n >= 6 && n <= 8
}

// IsCancel returns true if the input requests to cancel PIN entry
func IsCancel(input []byte) bool {
	return len(input) == 1 && (input[0] == 'c' || input[0] == 'C')
}
