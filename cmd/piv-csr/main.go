package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/effective-security/pivcsr/cmd/piv-csr/cli"
	"github.com/effective-security/pivcsr/internal/version"
	"github.com/effective-security/x/ctl"
)

type app struct {
	cli.Cli

	Version kong.VersionFlag `name:"version" help:"Print version information and quit"`

	Generate cli.GenerateCmd `cmd:"" help:"create certificate request signed by the key in PIV slot"`
	Tokens   cli.TokensCmd   `cmd:"" help:"list attached tokens and keys"`
	Slots    cli.SlotsCmd    `cmd:"" help:"list signing-capable PIV slots"`
	Show     cli.ShowCmd     `cmd:"" help:"print certificate request"`
}

func main() {
	realMain(os.Args, os.Stdout, os.Stderr, os.Exit)
}

func realMain(args []string, out io.Writer, errout io.Writer, exit func(int)) {
	cl := app{
		Cli: cli.Cli{},
	}
	cl.Cli.WithErrWriter(errout).
		WithWriter(out)

	parser, err := kong.New(&cl,
		kong.Name("piv-csr"),
		kong.Description("CLI tool to create certificate request with the key on PIV token"),
		kong.Writers(out, errout),
		kong.Exit(exit),
		ctl.BoolPtrMapper,
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version.Current().String(),
		})
	if err != nil {
		panic(err)
	}

	ctx, err := parser.Parse(args[1:])
	parser.FatalIfErrorf(err)

	if ctx != nil {
		if cl.Debug {
			// in DEBUG more print command line
			_, _ = fmt.Fprintf(ctx.Stdout, "#\n# %s\n#\n", strings.Join(args, " "))
		}
		err = ctx.Run(&cl.Cli)
		_ = cl.Close()
		ctx.FatalIfErrorf(err)
	}
}
