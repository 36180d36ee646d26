package csr

import (
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/pivcsr/certutil"
	"github.com/effective-security/xlog"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// Info provides the parsed request
type Info struct {
	*x509.CertificateRequest
	// SAN contains all supported names, including UPN
	SAN *SubjectAltNames
	// SignatureOID is the signature algorithm as encoded in the request
	SignatureOID asn1.ObjectIdentifier
	// Verified is false if the signature algorithm
	// is not supported by crypto/x509
	Verified bool
}

// Parse takes an incoming certificate request and
// verifies its signature
func Parse(csrBytes []byte) (*Info, error) {
	csrv, err := x509.ParseCertificateRequest(csrBytes)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to parse")
	}

	info := &Info{
		CertificateRequest: csrv,
		SignatureOID:       signatureOID(csrv.Raw),
	}
	if csrv.SignatureAlgorithm == x509.UnknownSignatureAlgorithm {
		logger.KV(xlog.WARNING, "reason", "unverified", "subject", certutil.NameToString(&csrv.Subject))
	} else {
		err = csrv.CheckSignature()
		if err != nil {
			return nil, errors.WithMessagef(err, "key mismatch")
		}
		info.Verified = true
	}

	info.SAN, err = FindSubjectAltNames(csrv.Extensions)
	if err != nil {
		return nil, err
	}
	if info.SAN == nil {
		info.SAN = new(SubjectAltNames)
	}

	return info, nil
}

// ParsePEM takes an incoming PEM encoded certificate request and
// verifies its signature
func ParsePEM(csrPEM []byte) (*Info, error) {
	block, _ := pem.Decode(csrPEM)
	if block == nil {
		return nil, errors.New("unable to parse PEM")
	}

	if block.Type != certutil.PEMTypeCSRLegacy && block.Type != certutil.PEMTypeCSR {
		return nil, errors.Errorf("unsupported type in PEM: %s", block.Type)
	}

	return Parse(block.Bytes)
}

// signatureOID returns the algorithm of
// CertificationRequest ::= SEQUENCE { info, signatureAlgorithm, signature }
func signatureOID(raw []byte) asn1.ObjectIdentifier {
	input := cryptobyte.String(raw)
	var seq, alg cryptobyte.String
	var id asn1.ObjectIdentifier
	if !input.ReadASN1(&seq, cbasn1.SEQUENCE) ||
		!seq.SkipASN1(cbasn1.SEQUENCE) ||
		!seq.ReadASN1(&alg, cbasn1.SEQUENCE) ||
		!alg.ReadASN1ObjectIdentifier(&id) {
		return nil
	}
	return id
}
