package csr

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/pivcsr/certutil"
	"github.com/effective-security/pivcsr/cryptoprov"
	"github.com/effective-security/pivcsr/metricskey"
	"github.com/effective-security/pivcsr/piv"
	"github.com/effective-security/xlog"
)

// DefaultKeyBits is the size of generated RSA key
const DefaultKeyBits = 2048

// KeyOptions specifies the key for the request
type KeyOptions struct {
	// Slot is the PIV slot of the key
	Slot piv.Slot
	// Regenerate forces new key, even if the slot has one
	Regenerate bool
	// KeyBits is the size of generated key, DefaultKeyBits if not set
	KeyBits int
}

// Result of the request creation.
// Nothing is written by the provider, the caller stores the artifacts.
type Result struct {
	// CSR is PEM encoded request
	CSR []byte
	// DER is the encoded request
	DER []byte
	// PublicKey is PEM encoded SubjectPublicKeyInfo
	PublicKey []byte
	// KeyGenerated is true if the key was generated in the slot
	KeyGenerated bool
	// Token is the token used to sign
	Token piv.TokenInfo
}

// Provider creates requests signed by a key on the attached PIV token
type Provider struct {
	tokens    piv.Provider
	collector piv.KeyCollector
}

// NewProvider returns Provider
func NewProvider(tokens piv.Provider, collector piv.KeyCollector) *Provider {
	return &Provider{
		tokens:    tokens,
		collector: collector,
	}
}

// CreateRequest validates the request, finds the only attached token,
// retrieves or generates the key in the slot, and signs the request.
// The session is closed on return.
func (p *Provider) CreateRequest(ctx context.Context, req *CertificateRequest, opts KeyOptions) (*Result, error) {
	defer metricskey.PerfCSROperation.MeasureSince(time.Now(), "create")

	if req == nil {
		return nil, errors.New("request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := piv.ValidateSigningSlot(opts.Slot); err != nil {
		return nil, err
	}
	bits := opts.KeyBits
	if bits == 0 {
		bits = DefaultKeyBits
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	list, err := p.tokens.Tokens()
	if err != nil {
		return nil, errors.WithMessage(err, "unable to list tokens")
	}
	token, err := piv.SelectToken(list)
	if err != nil {
		return nil, err
	}

	session, err := p.tokens.OpenSession(token, p.collector)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to open session with %s", token.Serial)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.KV(xlog.WARNING, "reason", "close", "token", token.Serial, "err", cerr.Error())
		}
	}()

	logger.KV(xlog.DEBUG, "token", token.Serial, "slot", opts.Slot, "regenerate", opts.Regenerate)

	res := &Result{Token: token}

	pub, err := session.PublicKey(opts.Slot)
	if err != nil {
		return nil, err
	}
	if pub == nil || opts.Regenerate {
		if err = ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}
		rsaPub, err := session.GenerateRSAKey(opts.Slot, bits)
		if err != nil {
			return nil, errors.WithMessagef(err, "unable to generate key in slot %s", opts.Slot)
		}
		pub = rsaPub
		res.KeyGenerated = true
	}

	signer, err := cryptoprov.NewSigner(session, opts.Slot, pub, req.Padding)
	if err != nil {
		return nil, err
	}

	if err = ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	res.DER, err = req.Build(signer)
	if err != nil {
		return nil, err
	}

	res.PublicKey, err = certutil.EncodePublicKeyToPEM(signer.PublicKey())
	if err != nil {
		return nil, err
	}
	res.CSR = EncodePEM(res.DER)

	logger.KV(xlog.INFO,
		"status", "created",
		"token", token.Serial,
		"slot", opts.Slot,
		"hash", req.Hash,
		"padding", req.Padding,
		"key_generated", res.KeyGenerated,
	)
	return res, nil
}
