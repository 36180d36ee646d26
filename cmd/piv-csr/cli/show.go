package cli

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/pivcsr/csr"
	"github.com/effective-security/pivcsr/x/print"
)

// ShowCmd prints certificate request
type ShowCmd struct {
	File string `kong:"arg" required:"" help:"PEM encoded certificate request"`
}

// Run the command
func (a *ShowCmd) Run(ctx *Cli) error {
	b, err := os.ReadFile(a.File)
	if err != nil {
		return errors.WithMessagef(err, "unable to load %s", a.File)
	}

	info, err := csr.ParsePEM(b)
	if err != nil {
		return err
	}

	print.CertificateRequest(ctx.Writer(), info)
	return nil
}
