package certutil

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"

	"github.com/cockroachdb/errors"
)

// KeyInfo provides information about the key
type KeyInfo struct {
	KeySize int    `json:"size" yaml:"size"`
	Type    string `json:"type" yaml:"type"`
	// Hash is the hash algorithm matching the key strength
	Hash crypto.Hash `json:"-" yaml:"-"`
	// Fingerprint is SHA-256 of SubjectPublicKeyInfo
	Fingerprint string `json:"fingerprint" yaml:"fingerprint"`

	Key crypto.PublicKey `json:"-" yaml:"-"`
}

// NewKeyInfo returns *KeyInfo for public key, or a signer
func NewKeyInfo(k any) (*KeyInfo, error) {
	var pubKey crypto.PublicKey

	// find the Public
	switch typ := k.(type) {
	case crypto.Signer:
		pubKey = typ.Public()
	case crypto.Decrypter:
		pubKey = typ.Public()
	default:
		pubKey = k
	}

	ki := &KeyInfo{Key: pubKey}
	switch typ := pubKey.(type) {
	case *rsa.PublicKey:
		ki.KeySize = typ.N.BitLen()
		ki.Type = "RSA"
	case *ecdsa.PublicKey:
		ki.Type = "ECDSA"
		ki.KeySize = typ.Curve.Params().BitSize
	default:
		return nil, errors.Errorf("key not supported: %T", typ)
	}

	spki, err := x509.MarshalPKIXPublicKey(pubKey)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	fp := sha256.Sum256(spki)
	ki.Fingerprint = hex.EncodeToString(fp[:])
	ki.Hash = hashAlgo(pubKey)
	return ki, nil
}

// String returns short description of the key
func (ki *KeyInfo) String() string {
	return fmt.Sprintf("%s-%d", ki.Type, ki.KeySize)
}

func hashAlgo(pub crypto.PublicKey) crypto.Hash {
	switch pub := pub.(type) {
	case *rsa.PublicKey:
		keySize := pub.N.BitLen()
		switch {
		case keySize >= 4096:
			return crypto.SHA512
		case keySize >= 3072:
			return crypto.SHA384
		case keySize >= 2048:
			return crypto.SHA256
		default:
			return crypto.SHA1
		}
	case *ecdsa.PublicKey:
		switch pub.Curve {
		case elliptic.P256():
			return crypto.SHA256
		case elliptic.P384():
			return crypto.SHA384
		case elliptic.P521():
			return crypto.SHA512
		default:
			return crypto.SHA1
		}
	default:
		return crypto.SHA1
	}
}
