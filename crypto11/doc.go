// Package crypto11 implements piv.Provider over a PKCS#11 module exposing
// PIV tokens, such as Yubico ykcs11.
//
// PIV slots are addressed by CKA_ID of the key objects. Signing uses
// CKM_RSA_X_509, so the caller is responsible for hashing and padding.
// The user PIN is requested from piv.KeyCollector when the module reports
// CKR_USER_NOT_LOGGED_IN, and key generation logs in as SO with the
// PIV management key.
package crypto11

import "github.com/effective-security/xlog"

var logger = xlog.NewPackageLogger("github.com/effective-security/pivcsr", "crypto11")
