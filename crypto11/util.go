package crypto11

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/asn1"
	"encoding/binary"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/miekg/pkcs11"
)

var (
	oidNamedCurveP256 = asn1.ObjectIdentifier{1, 2, 840, 10045, 3, 1, 7}
	oidNamedCurveP384 = asn1.ObjectIdentifier{1, 3, 132, 0, 34}
)

// isError returns true if err is PKCS#11 error with the code
func isError(err error, code uint) bool {
	var p11err pkcs11.Error
	return errors.As(err, &p11err) && uint(p11err) == code
}

// BytesToUlong converts CK_ULONG attribute value
func BytesToUlong(b []byte) uint {
	switch len(b) {
	case 8:
		return uint(binary.NativeEndian.Uint64(b))
	case 4:
		return uint(binary.NativeEndian.Uint32(b))
	case 1:
		return uint(b[0])
	}
	return 0
}

// publicKey returns RSA or EC public key of the object
func (s *Session) publicKey(obj pkcs11.ObjectHandle) (crypto.PublicKey, error) {
	attrs, err := s.lib.Ctx.GetAttributeValue(s.handle, obj, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, nil),
	})
	if err != nil {
		return nil, errors.WithMessage(err, "GetAttributeValue on key type")
	}

	switch keyType := BytesToUlong(attrs[0].Value); keyType {
	case pkcs11.CKK_RSA:
		attrs, err = s.lib.Ctx.GetAttributeValue(s.handle, obj, []*pkcs11.Attribute{
			pkcs11.NewAttribute(pkcs11.CKA_MODULUS, nil),
			pkcs11.NewAttribute(pkcs11.CKA_PUBLIC_EXPONENT, nil),
		})
		if err != nil {
			return nil, errors.WithMessage(err, "GetAttributeValue on RSA key")
		}
		return &rsa.PublicKey{
			N: new(big.Int).SetBytes(attrs[0].Value),
			// exponent is a big-endian integer, not CK_ULONG
			E: int(new(big.Int).SetBytes(attrs[1].Value).Int64()),
		}, nil

	case pkcs11.CKK_EC:
		attrs, err = s.lib.Ctx.GetAttributeValue(s.handle, obj, []*pkcs11.Attribute{
			pkcs11.NewAttribute(pkcs11.CKA_EC_PARAMS, nil),
			pkcs11.NewAttribute(pkcs11.CKA_EC_POINT, nil),
		})
		if err != nil {
			return nil, errors.WithMessage(err, "GetAttributeValue on EC key")
		}
		return parseECPublicKey(attrs[0].Value, attrs[1].Value)

	default:
		return nil, errors.Errorf("unsupported key type: 0x%x", keyType)
	}
}

func parseECPublicKey(params, point []byte) (*ecdsa.PublicKey, error) {
	var curveOID asn1.ObjectIdentifier
	if _, err := asn1.Unmarshal(params, &curveOID); err != nil {
		return nil, errors.WithMessage(err, "invalid EC params")
	}

	var curve elliptic.Curve
	switch {
	case curveOID.Equal(oidNamedCurveP256):
		curve = elliptic.P256()
	case curveOID.Equal(oidNamedCurveP384):
		curve = elliptic.P384()
	default:
		return nil, errors.Errorf("unsupported curve: %s", curveOID)
	}

	// CKA_EC_POINT is DER encoded OCTET STRING, some modules return the raw point.
	// The raw point starts with 0x04, the same as OCTET STRING tag.
	coordLen := (curve.Params().BitSize + 7) / 8
	raw := point
	if len(point) != 1+2*coordLen || point[0] != 0x04 {
		rest, err := asn1.Unmarshal(point, &raw)
		if err != nil {
			return nil, errors.WithMessage(err, "invalid EC point")
		}
		if len(rest) > 0 {
			return nil, errors.New("invalid EC point: trailing data")
		}
	}
	pub, err := ecdsa.ParseUncompressedPublicKey(curve, raw)
	if err != nil {
		return nil, errors.WithMessage(err, "invalid EC point")
	}
	return pub, nil
}
