package csr

import (
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/pivcsr/certutil"
	"github.com/effective-security/pivcsr/oid"
	"github.com/effective-security/xlog"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// SignatureGenerator provides the key and the signature for the request
type SignatureGenerator interface {
	// PublicKey returns the public key to include in the request
	PublicKey() crypto.PublicKey
	// SignatureAlgorithmIdentifier returns the algorithm of SignData output
	SignatureAlgorithmIdentifier(hash crypto.Hash) (pkix.AlgorithmIdentifier, error)
	// SignData hashes and signs the data
	SignData(data []byte, hash crypto.Hash) ([]byte, error)
}

// Build returns DER encoded PKCS#10 request signed by the generator
func (r *CertificateRequest) Build(gen SignatureGenerator) ([]byte, error) {
	if gen == nil {
		return nil, errors.New("signature generator is required")
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	tbs, err := r.marshalInfo(gen.PublicKey())
	if err != nil {
		return nil, err
	}

	algID, err := gen.SignatureAlgorithmIdentifier(r.Hash)
	if err != nil {
		return nil, err
	}
	algDER, err := asn1.Marshal(algID)
	if err != nil {
		return nil, errors.WithMessage(err, "unable to encode signature algorithm")
	}

	sig, err := gen.SignData(tbs, r.Hash)
	if err != nil {
		return nil, err
	}

	// CertificationRequest ::= SEQUENCE {
	//   certificationRequestInfo, signatureAlgorithm, signature BIT STRING }
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddBytes(tbs)
		b.AddBytes(algDER)
		b.AddASN1BitString(sig)
	})

	der, err := b.Bytes()
	if err != nil {
		return nil, errors.WithMessage(err, "unable to encode request")
	}

	logger.KV(xlog.DEBUG, "subject", r.SubjectString(), "alg", oid.Name(algID.Algorithm), "size", len(der))
	return der, nil
}

// marshalInfo returns DER encoded CertificationRequestInfo
func (r *CertificateRequest) marshalInfo(pub crypto.PublicKey) ([]byte, error) {
	if pub == nil {
		return nil, errors.New("public key is required")
	}
	spki, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, errors.WithMessage(err, "unable to encode public key")
	}

	subject, err := marshalSubject(r.Subject)
	if err != nil {
		return nil, err
	}

	var extensions []byte
	if !r.SAN.Empty() {
		ext, err := r.SAN.Extension(len(r.Subject) == 0)
		if err != nil {
			return nil, err
		}
		// Extensions ::= SEQUENCE OF Extension
		if extensions, err = asn1.Marshal([]pkix.Extension{ext}); err != nil {
			return nil, errors.WithMessage(err, "unable to encode extensions")
		}
	}

	// CertificationRequestInfo ::= SEQUENCE {
	//   version INTEGER { v1(0) },
	//   subject Name,
	//   subjectPKInfo SubjectPublicKeyInfo,
	//   attributes [0] Attributes }
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1Int64(0)
		b.AddBytes(subject)
		b.AddBytes(spki)
		b.AddASN1(cbasn1.Tag(0).ContextSpecific().Constructed(), func(b *cryptobyte.Builder) {
			if extensions == nil {
				return
			}
			// Attribute ::= SEQUENCE { type OID, values SET OF ANY }
			b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
				b.AddASN1ObjectIdentifier(oid.ExtensionRequest)
				b.AddASN1(cbasn1.SET, func(b *cryptobyte.Builder) {
					b.AddBytes(extensions)
				})
			})
		})
	})

	der, err := b.Bytes()
	if err != nil {
		return nil, errors.WithMessage(err, "unable to encode request info")
	}
	return der, nil
}

// EncodePEM returns PEM encoded request
func EncodePEM(der []byte) []byte {
	return certutil.EncodeCSRToPEM(der)
}
