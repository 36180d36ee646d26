package oid

import (
	"encoding/asn1"
)

// well-known OIDs
var (
	ExtensionSubjectAltName = asn1.ObjectIdentifier{2, 5, 29, 17}
	ExtensionRequest        = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 14}
	UserPrincipalName       = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 20, 2, 3}

	NameEmailAddress    = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}
	NameDomainComponent = asn1.ObjectIdentifier{0, 9, 2342, 19200300, 100, 1, 25}
	NameCN              = asn1.ObjectIdentifier{2, 5, 4, 3}
	NameC               = asn1.ObjectIdentifier{2, 5, 4, 6}
	NameL               = asn1.ObjectIdentifier{2, 5, 4, 7}
	NameST              = asn1.ObjectIdentifier{2, 5, 4, 8}
	NameO               = asn1.ObjectIdentifier{2, 5, 4, 10}
	NameOU              = asn1.ObjectIdentifier{2, 5, 4, 11}
)

// Hash and signature algorithms
var (
	HashSHA1   = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}
	HashSHA256 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	HashSHA384 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 2}
	HashSHA512 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 3}

	RSAEncryption      = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}
	MGF1               = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 8}
	SignatureRSAPSS    = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 10}
	SignatureSHA1RSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 5}
	SignatureSHA256RSA = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}
	SignatureSHA384RSA = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 12}
	SignatureSHA512RSA = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 13}
)

// DisplayName provides OID name
var DisplayName = map[string]string{
	"2.5.29.17":                  "Subject Alt Name",
	"1.2.840.113549.1.9.14":      "Extension Request",
	"1.3.6.1.4.1.311.20.2.3":     "UPN",
	"1.2.840.113549.1.9.1":       "E",
	"0.9.2342.19200300.100.1.25": "DC",
	"2.5.4.3":                    "CN",
	"2.5.4.6":                    "C",
	"2.5.4.7":                    "L",
	"2.5.4.8":                    "ST",
	"2.5.4.10":                   "O",
	"2.5.4.11":                   "OU",
	"1.2.840.113549.1.1.1":       "RSA",
	"1.2.840.113549.1.1.5":       "SHA1-RSA",
	"1.2.840.113549.1.1.10":      "RSASSA-PSS",
	"1.2.840.113549.1.1.11":      "SHA256-RSA",
	"1.2.840.113549.1.1.12":      "SHA384-RSA",
	"1.2.840.113549.1.1.13":      "SHA512-RSA",
}

// Name returns display name of the OID, or its dotted form
func Name(id asn1.ObjectIdentifier) string {
	s := id.String()
	if n, ok := DisplayName[s]; ok {
		return n
	}
	return s
}
