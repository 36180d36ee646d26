// Package piv defines PIV slots, the token and session contracts used to
// delegate raw RSA operations to a smart card, and the PIN entry state machine.
//
// The package does not talk to a device; see crypto11 for the PKCS#11 backend
// and pivtest for an in-memory token.
package piv

import "github.com/effective-security/xlog"

var logger = xlog.NewPackageLogger("github.com/effective-security/pivcsr", "piv")
