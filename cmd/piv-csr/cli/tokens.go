package cli

import (
	"crypto"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/pivcsr/certutil"
	"github.com/effective-security/pivcsr/piv"
	"github.com/effective-security/pivcsr/x/print"
	"github.com/effective-security/xlog"
)

// TokensCmd prints attached tokens and the keys in signing slots
type TokensCmd struct {
	NoKeys bool `help:"do not list the keys"`
	JSON   bool `name:"json" help:"print in JSON format"`
}

// TokenKeys describes the token and its keys
type TokenKeys struct {
	piv.TokenInfo
	Keys []SlotKey `json:"keys,omitempty" yaml:"keys,omitempty"`
}

// SlotKey describes the key in PIV slot
type SlotKey struct {
	Slot string            `json:"slot" yaml:"slot"`
	Name string            `json:"name" yaml:"name"`
	Key  *certutil.KeyInfo `json:"key,omitempty" yaml:"key,omitempty"`
}

// Run the command
func (a *TokensCmd) Run(ctx *Cli) error {
	tokens, err := ctx.TokenProvider()
	if err != nil {
		return err
	}

	list, err := tokens.Tokens()
	if err != nil {
		return errors.WithMessage(err, "unable to list tokens")
	}

	if !a.JSON && len(list) == 0 {
		print.Tokens(ctx.Writer(), list)
		return nil
	}

	res := make([]TokenKeys, 0, len(list))
	for i, token := range list {
		if !a.JSON {
			print.Tokens(ctx.Writer(), list[i:i+1])
		}
		tk := TokenKeys{TokenInfo: token}
		if !a.NoKeys {
			tk.Keys, err = a.listKeys(ctx, tokens, token)
			if err != nil {
				return err
			}
		}
		res = append(res, tk)
	}

	if a.JSON {
		return ctx.WriteJSON(res)
	}
	return nil
}

func (a *TokensCmd) listKeys(ctx *Cli, tokens piv.Provider, token piv.TokenInfo) ([]SlotKey, error) {
	session, err := tokens.OpenSession(token, ctx.KeyCollector())
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to open session with %s", token.Serial)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.KV(xlog.WARNING, "reason", "close", "token", token.Serial, "err", cerr.Error())
		}
	}()

	w := ctx.Writer()
	if !a.JSON {
		fmt.Fprintln(w, "  Keys:")
	}

	var keys []SlotKey
	for _, slot := range piv.SigningSlots() {
		pub, err := session.PublicKey(slot)
		if err != nil {
			return nil, errors.WithMessagef(err, "unable to read slot %s", slot)
		}
		if pub == nil {
			continue
		}
		if !a.JSON {
			fmt.Fprint(w, "    ")
			print.SlotKey(w, slot, pub)
		}
		keys = append(keys, newSlotKey(slot, pub))
	}
	return keys, nil
}

func newSlotKey(slot piv.Slot, pub crypto.PublicKey) SlotKey {
	sk := SlotKey{Slot: slot.String(), Name: slot.Name()}
	if pub == nil {
		return sk
	}
	ki, err := certutil.NewKeyInfo(pub)
	if err != nil {
		// listed without key info
		logger.KV(xlog.DEBUG, "reason", "key_info", "slot", slot.String(), "err", err.Error())
		return sk
	}
	sk.Key = ki
	return sk
}

// SlotsCmd prints signing-capable PIV slots
type SlotsCmd struct {
	JSON bool `name:"json" help:"print in JSON format"`
}

// Run the command
func (a *SlotsCmd) Run(ctx *Cli) error {
	slots := piv.SigningSlots()
	if a.JSON {
		list := make([]SlotKey, 0, len(slots))
		for _, slot := range slots {
			list = append(list, newSlotKey(slot, nil))
		}
		return ctx.WriteJSON(list)
	}

	w := ctx.Writer()
	for _, slot := range slots {
		fmt.Fprintf(w, "%s  %s\n", slot, slot.Name())
	}
	return nil
}
