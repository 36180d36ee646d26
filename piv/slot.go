package piv

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

// Slot is a PIV key reference
type Slot byte

// PIV slots
const (
	SlotAuthentication     Slot = 0x9a
	SlotSignature          Slot = 0x9c
	SlotKeyManagement      Slot = 0x9d
	SlotCardAuthentication Slot = 0x9e
	SlotAttestation        Slot = 0xf9

	// SlotRetiredFirst and SlotRetiredLast bound the retired key management slots
	SlotRetiredFirst Slot = 0x82
	SlotRetiredLast  Slot = 0x95
)

// DefaultSlot is used when no slot is specified
const DefaultSlot = SlotKeyManagement

// String returns two hex digits of the slot
func (s Slot) String() string {
	return fmt.Sprintf("%02x", byte(s))
}

// Name returns descriptive name of the slot
func (s Slot) Name() string {
	switch s {
	case SlotAuthentication:
		return "PIV Authentication"
	case SlotSignature:
		return "Digital Signature"
	case SlotKeyManagement:
		return "Key Management"
	case SlotCardAuthentication:
		return "Card Authentication"
	case SlotAttestation:
		return "Attestation"
	}
	if s.IsRetired() {
		return fmt.Sprintf("Retired Key Management %d", int(s-SlotRetiredFirst)+1)
	}
	return "Unknown"
}

// IsRetired returns true for retired key management slots
func (s Slot) IsRetired() bool {
	return s >= SlotRetiredFirst && s <= SlotRetiredLast
}

// CanSign returns true if the slot can hold a signing key
func (s Slot) CanSign() bool {
	switch s {
	case SlotAuthentication, SlotSignature, SlotKeyManagement, SlotCardAuthentication:
		return true
	}
	return s.IsRetired()
}

// SigningSlots returns the signing-capable slots in ascending order
func SigningSlots() []Slot {
	list := make([]Slot, 0, 24)
	for s := SlotRetiredFirst; s <= SlotRetiredLast; s++ {
		list = append(list, s)
	}
	return append(list, SlotAuthentication, SlotSignature, SlotKeyManagement, SlotCardAuthentication)
}

// ParseSlot returns the slot from two hex digits or a well-known name
func ParseSlot(s string) (Slot, error) {
	val := strings.ToLower(strings.TrimSpace(s))
	switch val {
	case "auth", "authentication":
		return SlotAuthentication, nil
	case "sig", "signature":
		return SlotSignature, nil
	case "km", "keymgmt", "keymanagement":
		return SlotKeyManagement, nil
	case "cardauth", "cardauthentication":
		return SlotCardAuthentication, nil
	}

	val = strings.TrimPrefix(val, "0x")
	if len(val) != 2 {
		return 0, errors.Errorf("invalid slot %q: expected two hex digits", s)
	}
	b, err := strconv.ParseUint(val, 16, 8)
	if err != nil {
		return 0, errors.Errorf("invalid slot %q: expected two hex digits", s)
	}
	return Slot(b), nil
}

// ValidateSigningSlot returns ErrSlotNotSigning if the slot
// can not be used to sign a request
func ValidateSigningSlot(s Slot) error {
	if !s.CanSign() {
		logger.KV(xlog.DEBUG, "reason", "not_signing", "slot", s)
		return errors.WithMessagef(ErrSlotNotSigning, "slot %s", s)
	}
	return nil
}
