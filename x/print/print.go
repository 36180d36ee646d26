// Package print provides helper package to print objects.
package print

import (
	"crypto"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/effective-security/pivcsr/certutil"
	"github.com/effective-security/pivcsr/csr"
	"github.com/effective-security/pivcsr/oid"
	"github.com/effective-security/pivcsr/piv"
	"github.com/effective-security/x/values"
)

// JSON prints value to out
func JSON(w io.Writer, value any) error {
	b, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
	return nil
}

// CertificateRequest prints CSR info
func CertificateRequest(w io.Writer, r *csr.Info) {
	fmt.Fprintf(w, "Subject: %s\n", certutil.NameToString(&r.Subject))
	fmt.Fprintf(w, "Signature: %s (%s)\n",
		signatureName(r),
		values.Select(r.Verified, "verified", "not verified"))
	PublicKey(w, r.PublicKey)

	san := r.SAN
	if san == nil {
		san = &csr.SubjectAltNames{}
	}
	list(w, "DNS Names", san.DNS)
	list(w, "Emails", san.Emails)
	list(w, "IP Addresses", san.IPs)
	list(w, "URIs", san.URIs)
	list(w, "UPNs", san.UPNs)
}

// PublicKey prints public key info
func PublicKey(w io.Writer, pub crypto.PublicKey) {
	ki, err := certutil.NewKeyInfo(pub)
	if err != nil {
		fmt.Fprintf(w, "Public key: ERROR: %s\n", err.Error())
		return
	}
	fmt.Fprintf(w, "Public key: %s\n", ki.String())
	fmt.Fprintf(w, "Key fingerprint: %s\n", ki.Fingerprint)
}

// Tokens prints the list of attached tokens
func Tokens(w io.Writer, tokens []piv.TokenInfo) {
	if len(tokens) == 0 {
		fmt.Fprintln(w, "no tokens attached")
		return
	}
	for _, t := range tokens {
		fmt.Fprintf(w, "Slot: %d\n", t.SlotID)
		fmt.Fprintf(w, "  Description:  %s\n", t.Description)
		fmt.Fprintf(w, "  Token serial: %s\n", t.Serial)
		fmt.Fprintf(w, "  Token label:  %s\n", t.Label)
		fmt.Fprintf(w, "  Manufacturer: %s\n", t.Manufacturer)
		fmt.Fprintf(w, "  Model:        %s\n", t.Model)
	}
}

// SlotKey prints the key in PIV slot, nil key means the slot is empty
func SlotKey(w io.Writer, slot piv.Slot, pub crypto.PublicKey) {
	if pub == nil {
		fmt.Fprintf(w, "%s  %-28s empty\n", slot, slot.Name())
		return
	}
	ki, err := certutil.NewKeyInfo(pub)
	if err != nil {
		fmt.Fprintf(w, "%s  %-28s ERROR: %s\n", slot, slot.Name(), err.Error())
		return
	}
	fmt.Fprintf(w, "%s  %-28s %s %s\n", slot, slot.Name(), ki.String(), ki.Fingerprint)
}

func signatureName(r *csr.Info) string {
	if r.Verified {
		return r.SignatureAlgorithm.String()
	}
	if len(r.SignatureOID) > 0 {
		return oid.Name(r.SignatureOID)
	}
	return "unknown"
}

func list(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n  %s\n", title, strings.Join(items, "\n  "))
}
