package cli

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/pivcsr/crypto11"
	"github.com/effective-security/pivcsr/cryptoprov"
	"github.com/effective-security/pivcsr/piv"
	"github.com/effective-security/pivcsr/x/print"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/pivcsr", "cli")

func init() {
	_ = cryptoprov.Register(cryptoprov.DefaultManufacturer, crypto11.LoadProvider)
}

// Cli provides CLI context to run commands
type Cli struct {
	Cfg           string `help:"Location of token config file" type:"path"`
	Debug         bool   `short:"D" help:"Enable debug mode"`
	LogLevel      string `short:"l" help:"Set the logging level (debug|info|warn|error)" default:"error"`
	Module        string `help:"Path to PKCS#11 module, overrides the config" env:"PIVCSR_PKCS11_MODULE"`
	ManagementKey string `help:"Hex encoded PIV management key, or file: prefixed path, overrides the config" env:"PIVCSR_MANAGEMENT_KEY"`

	// Stdin is the source to read from, typically set to os.Stdin
	stdin io.Reader
	// Output is the destination for all output from the command, typically set to os.Stdout
	output io.Writer
	// ErrOutput is the destinaton for errors.
	// If not set, errors will be written to os.StdError
	errOutput io.Writer

	ctx       context.Context
	tokens    piv.Provider
	collector piv.KeyCollector
}

// Context for requests
func (c *Cli) Context() context.Context {
	if c.ctx == nil {
		c.ctx = context.Background()
	}
	return c.ctx
}

// WithContext allows to specify a custom context
func (c *Cli) WithContext(ctx context.Context) *Cli {
	c.ctx = ctx
	return c
}

// Reader is the source to read from, typically set to os.Stdin
func (c *Cli) Reader() io.Reader {
	if c.stdin != nil {
		return c.stdin
	}
	return os.Stdin
}

// WithReader allows to specify a custom reader
func (c *Cli) WithReader(reader io.Reader) *Cli {
	c.stdin = reader
	return c
}

// Writer returns a writer for control output
func (c *Cli) Writer() io.Writer {
	if c.output != nil {
		return c.output
	}
	return os.Stdout
}

// WithWriter allows to specify a custom writer
func (c *Cli) WithWriter(out io.Writer) *Cli {
	c.output = out
	return c
}

// ErrWriter returns a writer for control output
func (c *Cli) ErrWriter() io.Writer {
	if c.errOutput != nil {
		return c.errOutput
	}
	return os.Stderr
}

// WithErrWriter allows to specify a custom error writer
func (c *Cli) WithErrWriter(out io.Writer) *Cli {
	c.errOutput = out
	return c
}

// AfterApply hook sets the log level
func (c *Cli) AfterApply(app *kong.Kong, vars kong.Vars) error {
	if c.Debug {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	} else {
		val := strings.TrimLeft(c.LogLevel, "=")
		l, err := xlog.ParseLevel(strings.ToUpper(val))
		if err != nil {
			return errors.WithStack(err)
		}
		xlog.SetGlobalLogLevel(l)
	}

	return nil
}

// WriteJSON prints response to out
func (c *Cli) WriteJSON(value any) error {
	return print.JSON(c.Writer(), value)
}

// TokenConfig returns the token configuration:
// defaults, then the config file, then the command line overrides
func (c *Cli) TokenConfig() (*cryptoprov.Config, error) {
	cfg := cryptoprov.DefaultConfig()
	if c.Cfg != "" {
		var err error
		cfg, err = cryptoprov.LoadTokenConfig(c.Cfg)
		if err != nil {
			return nil, errors.WithMessage(err, "unable to load token config")
		}
	}

	err := cfg.Merge(&cryptoprov.Config{
		Dir:     c.Module,
		MgmtKey: c.ManagementKey,
	})
	if err != nil {
		return nil, err
	}

	if err = cfg.ResolveManagementKey(""); err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// TokenProvider loads the PKCS#11 module
func (c *Cli) TokenProvider() (piv.Provider, error) {
	if c.tokens != nil {
		return c.tokens, nil
	}

	cfg, err := c.TokenConfig()
	if err != nil {
		return nil, err
	}

	c.tokens, err = cryptoprov.LoadProvider(cfg)
	if err != nil {
		return nil, errors.WithMessage(err, "unable to initialize token provider")
	}
	logger.KV(xlog.DEBUG, "module", cfg.Path(), "manufacturer", cfg.Manufacturer())
	return c.tokens, nil
}

// WithTokenProvider allows to specify a custom token provider
func (c *Cli) WithTokenProvider(p piv.Provider) *Cli {
	c.tokens = p
	return c
}

// KeyCollector returns the collector to ask for the PIN
func (c *Cli) KeyCollector() piv.KeyCollector {
	if c.collector == nil {
		c.collector = piv.NewPromptCollector(c.Reader(), c.ErrWriter())
	}
	return c.collector
}

// WithKeyCollector allows to specify a custom key collector
func (c *Cli) WithKeyCollector(collector piv.KeyCollector) *Cli {
	c.collector = collector
	return c
}

// Close releases the token provider, if it was loaded
func (c *Cli) Close() error {
	if c.tokens == nil {
		return nil
	}
	err := c.tokens.Close()
	c.tokens = nil
	return err
}
