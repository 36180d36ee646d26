package rsapad

import (
	"crypto"
	"crypto/x509/pkix"
	"encoding/asn1"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/pivcsr/oid"
)

// pssParameters reflects RSASSA-PSS-params from RFC 4055
type pssParameters struct {
	Hash         pkix.AlgorithmIdentifier `asn1:"explicit,tag:0"`
	MGF          pkix.AlgorithmIdentifier `asn1:"explicit,tag:1"`
	SaltLength   int                      `asn1:"explicit,tag:2"`
	TrailerField int                      `asn1:"optional,explicit,tag:3,default:1"`
}

// SignatureAlgorithm returns the AlgorithmIdentifier of the RSA signature
// produced with the scheme and hash
func SignatureAlgorithm(scheme Scheme, hash crypto.Hash) (pkix.AlgorithmIdentifier, error) {
	alg, err := Lookup(hash)
	if err != nil {
		return pkix.AlgorithmIdentifier{}, err
	}

	switch scheme {
	case PKCS1v15:
		return pkix.AlgorithmIdentifier{
			Algorithm:  alg.SignatureOID,
			Parameters: asn1.NullRawValue,
		}, nil
	case PSS:
		hashAlg := pkix.AlgorithmIdentifier{
			Algorithm:  alg.OID,
			Parameters: asn1.NullRawValue,
		}
		mgfParams, err := asn1.Marshal(hashAlg)
		if err != nil {
			return pkix.AlgorithmIdentifier{}, errors.WithStack(err)
		}
		params, err := asn1.Marshal(pssParameters{
			Hash: hashAlg,
			MGF: pkix.AlgorithmIdentifier{
				Algorithm:  oid.MGF1,
				Parameters: asn1.RawValue{FullBytes: mgfParams},
			},
			SaltLength:   alg.Size,
			TrailerField: 1,
		})
		if err != nil {
			return pkix.AlgorithmIdentifier{}, errors.WithStack(err)
		}
		return pkix.AlgorithmIdentifier{
			Algorithm:  oid.SignatureRSAPSS,
			Parameters: asn1.RawValue{FullBytes: params},
		}, nil
	}

	return pkix.AlgorithmIdentifier{}, errors.WithMessagef(ErrUnsupportedScheme, "%d", int(scheme))
}
