// Package cryptoprov provides token configuration, the registry of token
// providers by manufacturer, and the Signer that delegates the RSA
// private-key operation to a key in a PIV slot.
//
// The hash and signature padding are computed locally, the token only
// performs the raw RSA transform of the padded block.
package cryptoprov

import "github.com/effective-security/xlog"

var logger = xlog.NewPackageLogger("github.com/effective-security/pivcsr", "cryptoprov")
