package crypto11

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/pivcsr/piv"
)

// KeyID returns CKA_ID of the key objects in PIV slot,
// as assigned by ykcs11
func KeyID(slot piv.Slot) (byte, error) {
	switch slot {
	case piv.SlotAuthentication:
		return 1, nil
	case piv.SlotSignature:
		return 2, nil
	case piv.SlotKeyManagement:
		return 3, nil
	case piv.SlotCardAuthentication:
		return 4, nil
	case piv.SlotAttestation:
		return 25, nil
	}
	if slot.IsRetired() {
		return byte(slot-piv.SlotRetiredFirst) + 5, nil
	}
	return 0, errors.Errorf("slot %s has no PKCS#11 object", slot)
}
