// Package csr creates PKCS#10 Certificate Signing Requests (RFC 2986)
// signed by a key that stays on a PIV token.
//
// The request is assembled in software: ordered subject attributes,
// subjectAltName extension with DNS, email, IP, URI and UPN names,
// and the algorithm identifier supplied by the signature generator.
// Only the padded signing block is sent to the token.
package csr

import "github.com/effective-security/xlog"

var logger = xlog.NewPackageLogger("github.com/effective-security/pivcsr", "csr")
