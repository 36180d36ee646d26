package csr

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"net"
	"net/mail"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/pivcsr/oid"
	"github.com/effective-security/xlog"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
	"golang.org/x/net/idna"
)

// GeneralName tags, RFC 5280 4.2.1.6
const (
	nameTypeOther = 0
	nameTypeEmail = 1
	nameTypeDNS   = 2
	nameTypeURI   = 6
	nameTypeIP    = 7
)

// SubjectAltNames contains the names for subjectAltName extension
type SubjectAltNames struct {
	DNS    []string `json:"dns,omitempty" yaml:"dns,omitempty"`
	Emails []string `json:"email,omitempty" yaml:"email,omitempty"`
	IPs    []string `json:"ip,omitempty" yaml:"ip,omitempty"`
	URIs   []string `json:"uri,omitempty" yaml:"uri,omitempty"`
	UPNs   []string `json:"upn,omitempty" yaml:"upn,omitempty"`
}

// Empty returns true if no names are specified
func (s SubjectAltNames) Empty() bool {
	return len(s.DNS) == 0 &&
		len(s.Emails) == 0 &&
		len(s.IPs) == 0 &&
		len(s.URIs) == 0 &&
		len(s.UPNs) == 0
}

// Validate returns error if any of the names can not be encoded
func (s SubjectAltNames) Validate() error {
	for _, v := range s.DNS {
		if _, err := toASCIIDomain(v); err != nil {
			return err
		}
	}
	for _, v := range s.Emails {
		if err := validateEmail(v); err != nil {
			return err
		}
	}
	for _, v := range s.IPs {
		if _, err := parseIP(v); err != nil {
			return err
		}
	}
	for _, v := range s.URIs {
		if err := validateURI(v); err != nil {
			return err
		}
	}
	for _, v := range s.UPNs {
		if strings.TrimSpace(v) == "" {
			return errors.New("SAN UPN must not be empty")
		}
	}
	return nil
}

// Marshal returns DER encoded GeneralNames
func (s SubjectAltNames) Marshal() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		for _, v := range s.DNS {
			name, _ := toASCIIDomain(v)
			b.AddASN1(cbasn1.Tag(nameTypeDNS).ContextSpecific(), func(b *cryptobyte.Builder) {
				b.AddBytes([]byte(name))
			})
		}
		for _, v := range s.Emails {
			b.AddASN1(cbasn1.Tag(nameTypeEmail).ContextSpecific(), func(b *cryptobyte.Builder) {
				b.AddBytes([]byte(v))
			})
		}
		for _, v := range s.IPs {
			ip, _ := parseIP(v)
			b.AddASN1(cbasn1.Tag(nameTypeIP).ContextSpecific(), func(b *cryptobyte.Builder) {
				b.AddBytes(ip)
			})
		}
		for _, v := range s.URIs {
			b.AddASN1(cbasn1.Tag(nameTypeURI).ContextSpecific(), func(b *cryptobyte.Builder) {
				b.AddBytes([]byte(v))
			})
		}
		for _, v := range s.UPNs {
			// OtherName ::= SEQUENCE { type-id OID, value [0] EXPLICIT ANY }
			b.AddASN1(cbasn1.Tag(nameTypeOther).ContextSpecific().Constructed(), func(b *cryptobyte.Builder) {
				b.AddASN1ObjectIdentifier(oid.UserPrincipalName)
				b.AddASN1(cbasn1.Tag(0).ContextSpecific().Constructed(), func(b *cryptobyte.Builder) {
					b.AddASN1(cbasn1.UTF8String, func(b *cryptobyte.Builder) {
						b.AddBytes([]byte(v))
					})
				})
			})
		}
	})

	der, err := b.Bytes()
	if err != nil {
		return nil, errors.WithMessage(err, "unable to encode SAN")
	}
	return der, nil
}

// Extension returns subjectAltName extension,
// critical if the subject is empty
func (s SubjectAltNames) Extension(emptySubject bool) (pkix.Extension, error) {
	der, err := s.Marshal()
	if err != nil {
		return pkix.Extension{}, err
	}
	return pkix.Extension{
		Id:       oid.ExtensionSubjectAltName,
		Critical: emptySubject,
		Value:    der,
	}, nil
}

// ParseSubjectAltNames returns names from DER encoded GeneralNames,
// unsupported name types are skipped
func ParseSubjectAltNames(der []byte) (*SubjectAltNames, error) {
	san := new(SubjectAltNames)

	input := cryptobyte.String(der)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, cbasn1.SEQUENCE) || !input.Empty() {
		return nil, errors.New("invalid SAN: malformed GeneralNames")
	}

	for !seq.Empty() {
		var val cryptobyte.String
		var tag cbasn1.Tag
		if !seq.ReadAnyASN1(&val, &tag) {
			return nil, errors.New("invalid SAN: malformed GeneralName")
		}

		switch tag {
		case cbasn1.Tag(nameTypeDNS).ContextSpecific():
			san.DNS = append(san.DNS, string(val))
		case cbasn1.Tag(nameTypeEmail).ContextSpecific():
			san.Emails = append(san.Emails, string(val))
		case cbasn1.Tag(nameTypeURI).ContextSpecific():
			san.URIs = append(san.URIs, string(val))
		case cbasn1.Tag(nameTypeIP).ContextSpecific():
			if len(val) != net.IPv4len && len(val) != net.IPv6len {
				return nil, errors.Errorf("invalid SAN: IP address of %d bytes", len(val))
			}
			san.IPs = append(san.IPs, net.IP(val).String())
		case cbasn1.Tag(nameTypeOther).ContextSpecific().Constructed():
			upn, ok, err := parseUPN(val)
			if err != nil {
				return nil, err
			}
			if ok {
				san.UPNs = append(san.UPNs, upn)
			}
		default:
			logger.KV(xlog.DEBUG, "reason", "unsupported_name", "tag", int(tag))
		}
	}
	return san, nil
}

// FindSubjectAltNames returns names from subjectAltName extension,
// or nil if the extension is not present
func FindSubjectAltNames(list []pkix.Extension) (*SubjectAltNames, error) {
	for _, ext := range list {
		if ext.Id.Equal(oid.ExtensionSubjectAltName) {
			return ParseSubjectAltNames(ext.Value)
		}
	}
	return nil, nil
}

func parseUPN(val cryptobyte.String) (string, bool, error) {
	var typeID asn1.ObjectIdentifier
	if !val.ReadASN1ObjectIdentifier(&typeID) {
		return "", false, errors.New("invalid SAN: malformed otherName")
	}
	if !typeID.Equal(oid.UserPrincipalName) {
		return "", false, nil
	}

	var explicit, utf8 cryptobyte.String
	if !val.ReadASN1(&explicit, cbasn1.Tag(0).ContextSpecific().Constructed()) ||
		!explicit.ReadASN1(&utf8, cbasn1.UTF8String) {
		return "", false, errors.New("invalid SAN: malformed UPN")
	}
	return string(utf8), true, nil
}

func toASCIIDomain(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("SAN DNS must not be empty")
	}

	// wildcard label is not valid IDNA
	prefix := ""
	host := name
	if strings.HasPrefix(name, "*.") {
		prefix = "*."
		host = name[2:]
	}

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", errors.Errorf("SAN DNS is not valid domain name: %q", name)
	}
	return prefix + ascii, nil
}

func validateEmail(v string) error {
	if !isIA5(v) {
		return errors.Errorf("SAN email must be ASCII: %q", v)
	}
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v {
		return errors.Errorf("SAN email is not valid: %q", v)
	}
	return nil
}

func parseIP(v string) (net.IP, error) {
	ip := net.ParseIP(strings.TrimSpace(v))
	if ip == nil {
		return nil, errors.Errorf("SAN IP is not valid: %q", v)
	}
	if ip4 := ip.To4(); ip4 != nil {
		return ip4, nil
	}
	return ip, nil
}

func validateURI(v string) error {
	if !isIA5(v) {
		return errors.Errorf("SAN URI must be ASCII: %q", v)
	}
	u, err := url.Parse(v)
	if err != nil || !u.IsAbs() {
		return errors.Errorf("SAN URI must be absolute: %q", v)
	}
	return nil
}
