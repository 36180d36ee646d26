package piv

import (
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"golang.org/x/term"
)

// PromptCollector asks for the PIN on a console
type PromptCollector struct {
	out  io.Writer
	in   io.Reader
	term int // file descriptor, or -1 if input is not a terminal
}

// NewPromptCollector returns a collector reading from in and prompting to out.
// Input is not echoed when in is a terminal.
func NewPromptCollector(in io.Reader, out io.Writer) *PromptCollector {
	c := &PromptCollector{
		out:  out,
		in:   in,
		term: -1,
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		c.term = int(f.Fd())
	}
	return c
}

// Release implements KeyCollector
func (c *PromptCollector) Release() error {
	return nil
}

// VerifyPIN implements KeyCollector
func (c *PromptCollector) VerifyPIN(req VerifyPINRequest) ([]byte, error) {
	if req.IsRetry {
		fmt.Fprintln(c.out, "Invalid PIN. Please try again.")
		if req.RetriesRemaining >= 0 {
			fmt.Fprintf(c.out, "%d retries remaining before PIN is locked.\n", req.RetriesRemaining)
		}
	}

	for {
		fmt.Fprint(c.out, "Please input your PIV PIN (C to cancel): ")
		pin, err := c.readLine()
		if err != nil {
			return nil, errors.WithMessage(err, "unable to read PIN")
		}

		if IsCancel(pin) {
			clear(pin)
			return nil, errors.WithStack(ErrPINCancelled)
		}
		if !ValidPINLength(len(pin)) {
			clear(pin)
			fmt.Fprintln(c.out, "PIN length must be 6, 7, or 8")
			continue
		}
		return pin, nil
	}
}

func (c *PromptCollector) readLine() ([]byte, error) {
	if c.term >= 0 {
		b, err := term.ReadPassword(c.term)
		fmt.Fprintln(c.out)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return b, nil
	}

	// read byte by byte, so no copy of the PIN is left in a buffer
	var b [1]byte
	pin := make([]byte, 0, 16)
	for {
		n, err := c.in.Read(b[:])
		if n == 1 {
			if b[0] == '\n' {
				break
			}
			pin = appendByte(pin, b[0])
		}
		if err == io.EOF && len(pin) > 0 {
			break
		}
		if err != nil {
			clear(pin)
			return nil, errors.WithStack(err)
		}
	}
	b[0] = 0

	if l := len(pin); l > 0 && pin[l-1] == '\r' {
		pin[l-1] = 0
		pin = pin[:l-1]
	}
	return pin, nil
}

// appendByte appends to the PIN, clearing the old array when it grows
func appendByte(pin []byte, b byte) []byte {
	if len(pin) == cap(pin) {
		grown := make([]byte, len(pin), 2*cap(pin)+1)
		copy(grown, pin)
		clear(pin)
		pin = grown
	}
	return append(pin, b)
}
