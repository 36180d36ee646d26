package certutil

import (
	"crypto/x509/pkix"
	"fmt"
	"strings"

	"github.com/effective-security/pivcsr/oid"
)

// NameToString returns string representation of the name,
// attributes are listed in the encoded order with short names
func NameToString(name *pkix.Name) string {
	var seq pkix.RDNSequence
	if len(name.Names) > 0 {
		for _, atv := range name.Names {
			seq = append(seq, pkix.RelativeDistinguishedNameSET{atv})
		}
	} else {
		seq = name.ToRDNSequence()
	}
	return RDNSequenceToString(seq)
}

// RDNSequenceToString returns string representation of the sequence,
// in the encoded order
func RDNSequenceToString(seq pkix.RDNSequence) string {
	var parts []string
	for _, rdn := range seq {
		for _, atv := range rdn {
			parts = append(parts, fmt.Sprintf("%s=%v", oid.Name(atv.Type), atv.Value))
		}
	}
	return strings.Join(parts, ", ")
}
