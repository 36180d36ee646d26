package cryptoprov

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509/pkix"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/pivcsr/metricskey"
	"github.com/effective-security/pivcsr/piv"
	"github.com/effective-security/pivcsr/rsapad"
	"github.com/effective-security/xlog"
)

// ProviderName is the name used in metrics
const ProviderName = "piv"

// Signer delegates the RSA private-key operation to a key in a PIV slot.
// It implements crypto.Signer.
type Signer struct {
	session piv.Session
	slot    piv.Slot
	pubKey  *rsa.PublicKey
	scheme  rsapad.Scheme
	rand    io.Reader
}

// NewSigner creates new signer for the key in the slot
func NewSigner(session piv.Session, slot piv.Slot, publicKey crypto.PublicKey, scheme rsapad.Scheme) (*Signer, error) {
	if session == nil {
		return nil, errors.New("session is required")
	}
	pub, ok := publicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.Errorf("unexpected key type in slot %s: %v", slot, reflect.TypeOf(publicKey))
	}
	if scheme != rsapad.PKCS1v15 && scheme != rsapad.PSS {
		return nil, errors.WithMessagef(rsapad.ErrUnsupportedScheme, "%d", int(scheme))
	}

	logger.KV(xlog.DEBUG, "slot", slot, "size", pub.N.BitLen(), "padding", scheme)
	return &Signer{
		session: session,
		slot:    slot,
		pubKey:  pub,
		scheme:  scheme,
		rand:    rand.Reader,
	}, nil
}

// Slot returns the slot of the key
func (s *Signer) Slot() piv.Slot {
	return s.slot
}

// Scheme returns padding scheme
func (s *Signer) Scheme() rsapad.Scheme {
	return s.scheme
}

// PublicKey returns the public key of the signer
func (s *Signer) PublicKey() crypto.PublicKey {
	return s.pubKey
}

// Public returns public key for the signer
func (s *Signer) Public() crypto.PublicKey {
	return s.pubKey
}

func (s *Signer) String() string {
	return fmt.Sprintf("slot=%s, size=%d, padding=%s",
		s.slot,
		s.pubKey.N.BitLen(),
		s.scheme,
	)
}

// SignatureAlgorithmIdentifier returns the AlgorithmIdentifier
// of the signatures produced with the hash
func (s *Signer) SignatureAlgorithmIdentifier(hash crypto.Hash) (pkix.AlgorithmIdentifier, error) {
	return rsapad.SignatureAlgorithm(s.scheme, hash)
}

// SignData hashes and signs the data
func (s *Signer) SignData(data []byte, hash crypto.Hash) ([]byte, error) {
	defer metricskey.PerfCryptoOperation.MeasureSince(time.Now(), ProviderName, "sign")

	if hash == crypto.SHA1 {
		logger.KV(xlog.WARNING, "reason", "weak_hash", "hash", "SHA1")
	}

	block, err := rsapad.Pad(s.rand, s.scheme, hash, data, s.pubKey.N.BitLen())
	if err != nil {
		return nil, err
	}
	return s.signBlock(block)
}

// Sign implements crypto.Signer for already computed digest.
// The padding requested by opts must match the padding of the signer.
func (s *Signer) Sign(rand io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	defer metricskey.PerfCryptoOperation.MeasureSince(time.Now(), ProviderName, "sign")

	scheme := rsapad.PKCS1v15
	if pss, ok := opts.(*rsa.PSSOptions); ok {
		scheme = rsapad.PSS
		if pss.SaltLength > 0 && pss.SaltLength != len(digest) {
			return nil, errors.Errorf("unsupported PSS salt length: %d", pss.SaltLength)
		}
	}
	if scheme != s.scheme {
		return nil, errors.Errorf("signer uses %s padding, requested %s", s.scheme, scheme)
	}
	if rand == nil {
		rand = s.rand
	}

	block, err := rsapad.PadDigest(rand, scheme, opts.HashFunc(), digest, s.pubKey.N.BitLen())
	if err != nil {
		return nil, err
	}
	return s.signBlock(block)
}

func (s *Signer) signBlock(block []byte) ([]byte, error) {
	sig, err := s.session.SignRaw(s.slot, block)
	clear(block)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to sign with slot %s", s.slot)
	}

	k := s.pubKey.Size()
	switch {
	case len(sig) == k:
		return sig, nil
	case len(sig) < k:
		// the token may return the integer without leading zeros
		padded := make([]byte, k)
		copy(padded[k-len(sig):], sig)
		return padded, nil
	}
	return nil, errors.Errorf("unexpected signature size: %d, expected %d", len(sig), k)
}
