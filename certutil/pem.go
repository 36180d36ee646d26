package certutil

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"strings"

	"github.com/cockroachdb/errors"
)

// PEM block types
const (
	PEMTypeCSR       = "CERTIFICATE REQUEST"
	PEMTypeCSRLegacy = "NEW CERTIFICATE REQUEST"
	PEMTypePublicKey = "PUBLIC KEY"
)

// EncodeCSRToPEM returns PEM encoded certificate request
func EncodeCSRToPEM(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  PEMTypeCSR,
		Bytes: der,
	})
}

// EncodePublicKeyToPEM returns PEM encoded public key
func EncodePublicKeyToPEM(pubKey crypto.PublicKey) ([]byte, error) {
	asn1Bytes, err := x509.MarshalPKIXPublicKey(pubKey)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var pemkey = &pem.Block{
		Type:  PEMTypePublicKey,
		Bytes: asn1Bytes,
	}

	b := bytes.NewBuffer([]byte{})

	err = pem.Encode(b, pemkey)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return b.Bytes(), nil
}

// ParseRSAPublicKeyFromPEM parses PEM encoded RSA public key,
// in PKIX or PKCS#1 format
func ParseRSAPublicKeyFromPEM(key []byte) (*rsa.PublicKey, error) {
	var err error

	// Parse PEM block
	block, _ := pem.Decode(key)
	if block == nil {
		return nil, errors.New("key must be PEM encoded")
	}

	// Parse the key
	parsedKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		pkcs1 := new(rsa.PublicKey)
		if _, err = asn1.Unmarshal(block.Bytes, pkcs1); err != nil {
			return nil, errors.New("unable to parse RSA Public Key")
		}
		parsedKey = pkcs1
	}

	pkey, ok := parsedKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not RSA Public Key")
	}

	return pkey, nil
}

// JoinPEM returns concantenated PEM
func JoinPEM(p1, p2 []byte) []byte {
	p1 = bytes.TrimSpace(p1)
	if len(p2) > 0 {
		if len(p1) > 0 {
			p1 = append(p1, '\n')
		}
		p1 = append(p1, bytes.TrimSpace(p2)...)
	}
	return p1
}

// TrimPEM returns PEM without surrounding white space,
// terminated with a new line
func TrimPEM(p []byte) string {
	s := strings.TrimSpace(string(p))
	if s == "" {
		return s
	}
	return s + "\n"
}
