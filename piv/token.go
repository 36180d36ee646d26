package piv

import (
	"crypto"
	"crypto/rsa"
	"fmt"

	"github.com/cockroachdb/errors"
)

// TokenInfo describes an attached token
type TokenInfo struct {
	// SlotID is the reader slot identifier of the backend
	SlotID       uint   `json:"slot_id" yaml:"slot_id"`
	Label        string `json:"label" yaml:"label"`
	Manufacturer string `json:"manufacturer" yaml:"manufacturer"`
	Model        string `json:"model" yaml:"model"`
	Serial       string `json:"serial" yaml:"serial"`
	Description  string `json:"description,omitempty" yaml:"description,omitempty"`
}

// String returns token description
func (t TokenInfo) String() string {
	return fmt.Sprintf("%s %s (serial %s)", t.Manufacturer, t.Model, t.Serial)
}

// Provider enumerates tokens and opens sessions
type Provider interface {
	// Tokens returns the list of attached tokens
	Tokens() ([]TokenInfo, error)
	// OpenSession opens a session with the token.
	// The collector is used when the token requires the PIN.
	OpenSession(token TokenInfo, collector KeyCollector) (Session, error)
	// Close releases the provider
	Close() error
}

// Session is an exclusive connection to a token.
// Only one call is in flight at a time.
type Session interface {
	// PublicKey returns the public key in the slot, or nil if the slot is empty
	PublicKey(slot Slot) (crypto.PublicKey, error)
	// GenerateRSAKey generates a new RSA key in the slot,
	// replacing the existing one
	GenerateRSAKey(slot Slot, bits int) (*rsa.PublicKey, error)
	// SignRaw performs the raw RSA private-key transform of the block,
	// which must be of the modulus length
	SignRaw(slot Slot, block []byte) ([]byte, error)
	// Close releases the session, it is safe to call more than once
	Close() error
}

// SelectToken returns the only token in the list
func SelectToken(list []TokenInfo) (TokenInfo, error) {
	switch len(list) {
	case 0:
		return TokenInfo{}, errors.WithStack(ErrNoDevice)
	case 1:
		return list[0], nil
	}
	return TokenInfo{}, errors.WithMessagef(ErrAmbiguousDevice, "%d tokens attached", len(list))
}
