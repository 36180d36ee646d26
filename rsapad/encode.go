package rsapad

import (
	"crypto"
	"encoding/binary"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
)

// Scheme specifies RSA signature padding
type Scheme int

const (
	// SchemeUnknown is not a valid scheme
	SchemeUnknown Scheme = iota
	// PKCS1v15 is EMSA-PKCS1-v1_5
	PKCS1v15
	// PSS is EMSA-PSS with MGF1 over the signing hash
	PSS
)

// SaltLengthEqualsHash selects PSS salt of the digest size
const SaltLengthEqualsHash = -1

// String returns the name of the scheme
func (s Scheme) String() string {
	switch s {
	case PKCS1v15:
		return "pkcs1"
	case PSS:
		return "pss"
	}
	return "unknown"
}

// ParseScheme returns the padding scheme by name
func ParseScheme(s string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pss":
		return PSS, nil
	case "pkcs1", "pkcs1v15", "pkcs1v1.5":
		return PKCS1v15, nil
	}
	return SchemeUnknown, errors.WithMessagef(ErrUnsupportedScheme, "%q", s)
}

// Pad digests the message and returns the padded signature block
// of the modulus length, ready for the raw RSA transform
func Pad(rand io.Reader, scheme Scheme, hash crypto.Hash, msg []byte, modulusBits int) ([]byte, error) {
	if scheme != PKCS1v15 && scheme != PSS {
		return nil, errors.WithMessagef(ErrUnsupportedScheme, "%d", int(scheme))
	}
	digest, err := Digest(hash, msg)
	if err != nil {
		return nil, err
	}
	return PadDigest(rand, scheme, hash, digest, modulusBits)
}

// PadDigest returns the padded signature block for already computed digest
func PadDigest(rand io.Reader, scheme Scheme, hash crypto.Hash, digest []byte, modulusBits int) ([]byte, error) {
	switch scheme {
	case PKCS1v15:
		return EncodePKCS1v15(hash, digest, modulusBits)
	case PSS:
		return EncodePSS(rand, hash, digest, modulusBits, SaltLengthEqualsHash)
	}
	return nil, errors.WithMessagef(ErrUnsupportedScheme, "%d", int(scheme))
}

// EncodePKCS1v15 returns EM = 0x00 || 0x01 || PS || 0x00 || DigestInfo,
// where PS is at least 8 bytes of 0xff
func EncodePKCS1v15(hash crypto.Hash, digest []byte, modulusBits int) ([]byte, error) {
	alg, err := Lookup(hash)
	if err != nil {
		return nil, err
	}
	if len(digest) != alg.Size {
		return nil, errors.WithMessagef(ErrEncoding, "%s digest must be %d bytes, got %d", alg.Name, alg.Size, len(digest))
	}

	k := (modulusBits + 7) / 8
	tLen := len(alg.prefix) + len(digest)
	if k < tLen+11 {
		return nil, errors.WithMessagef(ErrEncoding, "modulus of %d bits is too short for %s", modulusBits, alg.Name)
	}

	em := make([]byte, k)
	em[1] = 0x01
	for i := 2; i < k-tLen-1; i++ {
		em[i] = 0xff
	}
	copy(em[k-tLen:], alg.prefix)
	copy(em[k-len(digest):], digest)
	return em, nil
}

// EncodePSS returns EMSA-PSS encoding of the digest for emBits = modulusBits-1,
// left padded with zero to the modulus byte length
func EncodePSS(rand io.Reader, hash crypto.Hash, digest []byte, modulusBits, saltLen int) ([]byte, error) {
	alg, err := Lookup(hash)
	if err != nil {
		return nil, err
	}
	hLen := alg.Size
	if len(digest) != hLen {
		return nil, errors.WithMessagef(ErrEncoding, "%s digest must be %d bytes, got %d", alg.Name, hLen, len(digest))
	}
	if saltLen == SaltLengthEqualsHash {
		saltLen = hLen
	}
	if saltLen < 0 {
		return nil, errors.WithMessagef(ErrEncoding, "invalid salt length: %d", saltLen)
	}

	k := (modulusBits + 7) / 8
	emBits := modulusBits - 1
	emLen := (emBits + 7) / 8
	if emLen < hLen+saltLen+2 {
		return nil, errors.WithMessagef(ErrEncoding, "modulus of %d bits is too short for %s", modulusBits, alg.Name)
	}

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand, salt); err != nil {
		return nil, errors.WithMessage(err, "unable to generate salt")
	}

	// H = Hash(0x00*8 || mHash || salt)
	h := hash.New()
	_, _ = h.Write(make([]byte, 8))
	_, _ = h.Write(digest)
	_, _ = h.Write(salt)
	mh := h.Sum(nil)

	// DB = PS || 0x01 || salt
	db := make([]byte, emLen-hLen-1)
	db[len(db)-saltLen-1] = 0x01
	copy(db[len(db)-saltLen:], salt)

	mgf1XOR(db, hash, mh)
	db[0] &= 0xff >> (8*emLen - emBits)

	em := make([]byte, k)
	off := k - emLen
	copy(em[off:], db)
	copy(em[off+len(db):], mh)
	em[k-1] = 0xbc
	return em, nil
}

// mgf1XOR XORs out with MGF1(seed) of the same length
func mgf1XOR(out []byte, hash crypto.Hash, seed []byte) {
	var counter [4]byte
	done := 0
	for c := uint32(0); done < len(out); c++ {
		binary.BigEndian.PutUint32(counter[:], c)

		h := hash.New()
		_, _ = h.Write(seed)
		_, _ = h.Write(counter[:])
		mask := h.Sum(nil)

		for i := 0; i < len(mask) && done < len(out); i++ {
			out[done] ^= mask[i]
			done++
		}
	}
}
