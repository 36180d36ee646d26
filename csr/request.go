package csr

import (
	"crypto"
	"crypto/x509/pkix"
	"encoding/asn1"
	"net/mail"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/pivcsr/oid"
	"github.com/effective-security/pivcsr/rsapad"
)

// DistinguishedName contains the subject fields of the request.
// A nil field is not included in the subject.
type DistinguishedName struct {
	CommonName         *string `json:"cn,omitempty" yaml:"cn,omitempty"`
	Country            *string `json:"c,omitempty" yaml:"c,omitempty"`
	DomainComponent    *string `json:"dc,omitempty" yaml:"dc,omitempty"`
	EmailAddress       *string `json:"e,omitempty" yaml:"e,omitempty"`
	Locality           *string `json:"l,omitempty" yaml:"l,omitempty"`
	OrganizationalUnit *string `json:"ou,omitempty" yaml:"ou,omitempty"`
	Organization       *string `json:"o,omitempty" yaml:"o,omitempty"`
	Province           *string `json:"st,omitempty" yaml:"st,omitempty"`
}

// NameAttribute is a single attribute of the subject
type NameAttribute struct {
	Type  asn1.ObjectIdentifier
	Value string
}

// String returns attribute in NAME=value form
func (a NameAttribute) String() string {
	return oid.Name(a.Type) + "=" + a.Value
}

// NewSubject returns subject attributes in the order:
// CN, C, DC, E, L, OU, O, ST
func NewSubject(dn DistinguishedName) []NameAttribute {
	var list []NameAttribute
	add := func(id asn1.ObjectIdentifier, val *string) {
		if val != nil {
			list = append(list, NameAttribute{Type: id, Value: *val})
		}
	}

	add(oid.NameCN, dn.CommonName)
	add(oid.NameC, dn.Country)
	add(oid.NameDomainComponent, dn.DomainComponent)
	add(oid.NameEmailAddress, dn.EmailAddress)
	add(oid.NameL, dn.Locality)
	add(oid.NameOU, dn.OrganizationalUnit)
	add(oid.NameO, dn.Organization)
	add(oid.NameST, dn.Province)
	return list
}

// CertificateRequest describes the request to be signed
type CertificateRequest struct {
	Subject []NameAttribute
	SAN     SubjectAltNames
	Hash    crypto.Hash
	Padding rsapad.Scheme
}

// Validate returns error if the request can not be encoded
func (r *CertificateRequest) Validate() error {
	if _, err := rsapad.Lookup(r.Hash); err != nil {
		return err
	}
	if r.Padding != rsapad.PKCS1v15 && r.Padding != rsapad.PSS {
		return errors.WithStack(rsapad.ErrUnsupportedScheme)
	}

	for _, a := range r.Subject {
		if err := validateAttribute(a); err != nil {
			return err
		}
	}

	return r.SAN.Validate()
}

// SubjectString returns the subject in the encoded order
func (r *CertificateRequest) SubjectString() string {
	parts := make([]string, 0, len(r.Subject))
	for _, a := range r.Subject {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, ", ")
}

func validateAttribute(a NameAttribute) error {
	name := oid.Name(a.Type)
	if strings.TrimSpace(a.Value) == "" {
		return errors.Errorf("subject %s must not be empty", name)
	}

	switch {
	case a.Type.Equal(oid.NameC):
		if len(a.Value) != 2 || !isAlpha(a.Value) {
			return errors.Errorf("subject C must be two-letter country code: %q", a.Value)
		}
	case a.Type.Equal(oid.NameEmailAddress):
		if !isIA5(a.Value) {
			return errors.Errorf("subject E must be ASCII: %q", a.Value)
		}
		if _, err := mail.ParseAddress(a.Value); err != nil {
			return errors.Errorf("subject E is not valid email: %q", a.Value)
		}
	case a.Type.Equal(oid.NameDomainComponent):
		if !isIA5(a.Value) {
			return errors.Errorf("subject DC must be ASCII: %q", a.Value)
		}
	}
	return nil
}

// marshalSubject returns DER encoded Name,
// each attribute in its own RDN
func marshalSubject(attrs []NameAttribute) ([]byte, error) {
	seq := make(pkix.RDNSequence, 0, len(attrs))
	for _, a := range attrs {
		var val any = a.Value
		switch {
		case a.Type.Equal(oid.NameEmailAddress), a.Type.Equal(oid.NameDomainComponent):
			val = asn1.RawValue{Tag: asn1.TagIA5String, Bytes: []byte(a.Value)}
		case a.Type.Equal(oid.NameC):
			val = asn1.RawValue{Tag: asn1.TagPrintableString, Bytes: []byte(a.Value)}
		}
		seq = append(seq, pkix.RelativeDistinguishedNameSET{
			{Type: a.Type, Value: val},
		})
	}

	der, err := asn1.Marshal(seq)
	if err != nil {
		return nil, errors.WithMessage(err, "unable to encode subject")
	}
	return der, nil
}

func isAlpha(s string) bool {
	for _, c := range s {
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

func isIA5(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			return false
		}
	}
	return true
}
