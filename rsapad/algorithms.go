package rsapad

import (
	"crypto"
	_ "crypto/sha1" // register SHA1
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/asn1"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/pivcsr/oid"
)

var (
	// ErrUnsupportedHash is returned for a hash algorithm without a table entry
	ErrUnsupportedHash = errors.New("unsupported hash algorithm")
	// ErrUnsupportedScheme is returned for an unknown padding scheme
	ErrUnsupportedScheme = errors.New("unsupported padding scheme")
	// ErrEncoding is returned when a signature block can not be encoded
	// to the modulus length
	ErrEncoding = errors.New("signature encoding failed")
	// ErrDigest is returned when the digest has unexpected size
	ErrDigest = errors.New("digest failed")
)

// Algorithm describes a supported hash algorithm
type Algorithm struct {
	Hash crypto.Hash
	// Name is the canonical name, like SHA256
	Name string
	// OID of the hash algorithm
	OID asn1.ObjectIdentifier
	// SignatureOID is shaXWithRSAEncryption
	SignatureOID asn1.ObjectIdentifier
	// Size of the digest in bytes
	Size int

	// DER encoded DigestInfo up to the digest value
	prefix []byte
}

// Algorithms is the static table of supported hash algorithms
var Algorithms = map[crypto.Hash]*Algorithm{
	crypto.SHA1: {
		Hash:         crypto.SHA1,
		Name:         "SHA1",
		OID:          oid.HashSHA1,
		SignatureOID: oid.SignatureSHA1RSA,
		Size:         20,
		prefix:       []byte{0x30, 0x21, 0x30, 0x09, 0x06, 0x05, 0x2b, 0x0e, 0x03, 0x02, 0x1a, 0x05, 0x00, 0x04, 0x14},
	},
	crypto.SHA256: {
		Hash:         crypto.SHA256,
		Name:         "SHA256",
		OID:          oid.HashSHA256,
		SignatureOID: oid.SignatureSHA256RSA,
		Size:         32,
		prefix:       []byte{0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20},
	},
	crypto.SHA384: {
		Hash:         crypto.SHA384,
		Name:         "SHA384",
		OID:          oid.HashSHA384,
		SignatureOID: oid.SignatureSHA384RSA,
		Size:         48,
		prefix:       []byte{0x30, 0x41, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x02, 0x05, 0x00, 0x04, 0x30},
	},
	crypto.SHA512: {
		Hash:         crypto.SHA512,
		Name:         "SHA512",
		OID:          oid.HashSHA512,
		SignatureOID: oid.SignatureSHA512RSA,
		Size:         64,
		prefix:       []byte{0x30, 0x51, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x03, 0x05, 0x00, 0x04, 0x40},
	},
}

// Lookup returns the table entry for the hash
func Lookup(hash crypto.Hash) (*Algorithm, error) {
	alg, ok := Algorithms[hash]
	if !ok {
		return nil, errors.WithMessagef(ErrUnsupportedHash, "hash %d", uint(hash))
	}
	return alg, nil
}

// ParseHash returns the hash by its name or OID
func ParseHash(s string) (crypto.Hash, error) {
	val := strings.TrimSpace(s)
	name := strings.ToUpper(strings.ReplaceAll(val, "-", ""))
	for h, alg := range Algorithms {
		if name == alg.Name || val == alg.OID.String() {
			return h, nil
		}
	}
	return 0, errors.WithMessagef(ErrUnsupportedHash, "%q", s)
}

// Digest returns the digest of the message
func Digest(hash crypto.Hash, msg []byte) ([]byte, error) {
	alg, err := Lookup(hash)
	if err != nil {
		return nil, err
	}
	if !hash.Available() {
		return nil, errors.WithMessagef(ErrDigest, "%s is not linked", alg.Name)
	}

	h := hash.New()
	_, _ = h.Write(msg)
	digest := h.Sum(nil)
	if len(digest) != alg.Size {
		return nil, errors.WithMessagef(ErrDigest, "%s produced %d bytes", alg.Name, len(digest))
	}
	return digest, nil
}
