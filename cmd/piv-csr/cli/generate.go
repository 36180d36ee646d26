package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/pivcsr/certutil"
	"github.com/effective-security/pivcsr/csr"
	"github.com/effective-security/pivcsr/piv"
	"github.com/effective-security/pivcsr/rsapad"
	"github.com/effective-security/x/fileutil"
	"github.com/effective-security/xlog"
)

// GenerateCmd creates certificate request signed by the key in PIV slot
type GenerateCmd struct {
	NewPK   bool   `name:"new-pk" aliases:"replace-private-key" help:"generate new key in the slot, even if the slot has one"`
	Slot    string `aliases:"slot-number" default:"9d" help:"PIV slot of the key, two hex digits"`
	Out     string `aliases:"out-file" help:"file to save the certificate request"`
	OutPub  string `name:"out-pub" aliases:"out-pub-file" help:"file to save the public key"`
	Text    *bool  `help:"print the certificate request, the default if --out is not specified"`
	TextPub *bool  `name:"text-pub" help:"print the public key, the default if --out-pub is not specified"`
	Hash    string `default:"SHA256" help:"hash algorithm: SHA1, SHA256, SHA384, SHA512"`
	Padding string `default:"pss" help:"signature padding: pss or pkcs1"`

	CommonName         *string `name:"cn" aliases:"common-name" help:"subject common name"`
	Country            *string `name:"c" aliases:"country,region" help:"subject two-letter country code"`
	DomainComponent    *string `name:"dc" aliases:"domain-component" help:"subject domain component"`
	EmailAddress       *string `name:"e" aliases:"email" help:"subject email address"`
	Locality           *string `name:"l" aliases:"locality,city" help:"subject locality"`
	OrganizationalUnit *string `name:"ou" aliases:"organizational-unit" help:"subject organizational unit"`
	Organization       *string `name:"o" aliases:"organization" help:"subject organization"`
	Province           *string `name:"st" aliases:"state,province" help:"subject state or province"`

	SanDNS   []string `name:"san-dns" aliases:"s-dns" sep:"none" help:"DNS name for Subject Alt Names, can be repeated"`
	SanEmail []string `name:"san-email" aliases:"s-e" sep:"none" help:"email for Subject Alt Names, can be repeated"`
	SanIP    []string `name:"san-ip" aliases:"s-ip" sep:"none" help:"IP address for Subject Alt Names, can be repeated"`
	SanURI   []string `name:"san-uri" aliases:"s-uri" sep:"none" help:"URI for Subject Alt Names, can be repeated"`
	SanUPN   []string `name:"san-upn" aliases:"s-upn,san-user-principal-name" sep:"none" help:"User Principal Name for Subject Alt Names, can be repeated"`
}

// Run the command
func (a *GenerateCmd) Run(ctx *Cli) error {
	req, opts, err := a.request()
	if err != nil {
		return err
	}

	for _, file := range []string{a.Out, a.OutPub} {
		if file == "" {
			continue
		}
		if err = fileutil.FolderExists(filepath.Dir(file)); err != nil {
			return errors.WithMessagef(err, "invalid output %s", file)
		}
	}

	tokens, err := ctx.TokenProvider()
	if err != nil {
		return err
	}

	res, err := csr.NewProvider(tokens, ctx.KeyCollector()).CreateRequest(ctx.Context(), req, opts)
	if err != nil {
		return err
	}
	if res.KeyGenerated {
		logger.KV(xlog.INFO, "status", "key_generated", "slot", opts.Slot, "token", res.Token.Serial)
	}

	var files []outputFile
	if a.Out != "" {
		files = append(files, outputFile{name: a.Out, data: res.CSR})
	}
	if a.OutPub != "" {
		files = append(files, outputFile{name: a.OutPub, data: res.PublicKey})
	}
	if err = writeFiles(files); err != nil {
		return err
	}

	var console []byte
	if printOutput(a.Text, a.Out) {
		console = certutil.JoinPEM(console, res.CSR)
	}
	if printOutput(a.TextPub, a.OutPub) {
		console = certutil.JoinPEM(console, res.PublicKey)
	}
	if len(console) > 0 {
		fmt.Fprint(ctx.Writer(), certutil.TrimPEM(console))
	}
	return nil
}

// request returns the validated request,
// the token is not touched if the flags are invalid
func (a *GenerateCmd) request() (*csr.CertificateRequest, csr.KeyOptions, error) {
	opts := csr.KeyOptions{Regenerate: a.NewPK}

	slot, err := piv.ParseSlot(a.Slot)
	if err != nil {
		return nil, opts, err
	}
	if err = piv.ValidateSigningSlot(slot); err != nil {
		return nil, opts, err
	}
	opts.Slot = slot

	hash, err := rsapad.ParseHash(a.Hash)
	if err != nil {
		return nil, opts, err
	}
	padding, err := rsapad.ParseScheme(a.Padding)
	if err != nil {
		return nil, opts, err
	}

	req := &csr.CertificateRequest{
		Subject: csr.NewSubject(csr.DistinguishedName{
			CommonName:         a.CommonName,
			Country:            a.Country,
			DomainComponent:    a.DomainComponent,
			EmailAddress:       a.EmailAddress,
			Locality:           a.Locality,
			OrganizationalUnit: a.OrganizationalUnit,
			Organization:       a.Organization,
			Province:           a.Province,
		}),
		SAN: csr.SubjectAltNames{
			DNS:    a.SanDNS,
			Emails: a.SanEmail,
			IPs:    a.SanIP,
			URIs:   a.SanURI,
			UPNs:   a.SanUPN,
		},
		Hash:    hash,
		Padding: padding,
	}
	if err = req.Validate(); err != nil {
		return nil, opts, err
	}
	return req, opts, nil
}

// printOutput returns true if the artifact goes to the console:
// when requested explicitly, or when no file is given
func printOutput(text *bool, file string) bool {
	if text != nil {
		return *text
	}
	return file == ""
}

type outputFile struct {
	name string
	data []byte
	tmp  string
}

// writeFiles writes all files or none:
// the content is staged in temp files next to the targets,
// and renamed into place once every file is staged
func writeFiles(files []outputFile) error {
	for i := range files {
		if err := files[i].stage(); err != nil {
			discard(files[:i])
			return err
		}
	}
	for i := range files {
		if err := os.Rename(files[i].tmp, files[i].name); err != nil {
			discard(files[i:])
			for _, f := range files[:i] {
				_ = os.Remove(f.name)
			}
			return errors.WithMessagef(err, "unable to write %s", files[i].name)
		}
	}
	return nil
}

func (f *outputFile) stage() error {
	tmp, err := os.CreateTemp(filepath.Dir(f.name), "."+filepath.Base(f.name)+".*.tmp")
	if err != nil {
		return errors.WithMessagef(err, "unable to write %s", f.name)
	}
	f.tmp = tmp.Name()

	_, err = tmp.Write(f.data)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(f.tmp, 0644)
	}
	if err != nil {
		_ = os.Remove(f.tmp)
		return errors.WithMessagef(err, "unable to write %s", f.name)
	}
	return nil
}

func discard(files []outputFile) {
	for _, f := range files {
		if err := os.Remove(f.tmp); err != nil {
			logger.KV(xlog.DEBUG, "reason", "remove", "file", f.tmp, "err", err.Error())
		}
	}
}
