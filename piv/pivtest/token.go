// Package pivtest provides an in-memory PIV token for tests
package pivtest

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"math/big"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/pivcsr/piv"
)

// DefaultPINRetries is the PIN retry counter of a new token
const DefaultPINRetries = 3

// Token is an in-memory PIV token.
// Keys are kept in software, the raw RSA transform is done with math/big.
type Token struct {
	lock sync.Mutex

	Info piv.TokenInfo
	// PIN is required for signing if not empty
	PIN string
	// Retries is the PIN retry counter
	Retries int
	// FailSign is returned by SignRaw if set
	FailSign error

	keys map[piv.Slot]crypto.Signer

	// Counters of the operations
	Opened    int
	Closed    int
	Generated int
	Signed    int
	Logins    int
}

// NewToken returns a token without keys
func NewToken(serial string) *Token {
	return &Token{
		Info: piv.TokenInfo{
			Label:        "YubiKey PIV #" + serial,
			Manufacturer: "Yubico (www.yubico.com)",
			Model:        "YubiKey YK5",
			Serial:       serial,
		},
		Retries: DefaultPINRetries,
		keys:    map[piv.Slot]crypto.Signer{},
	}
}

// WithPIN sets the PIN required for signing
func (t *Token) WithPIN(pin string) *Token {
	t.PIN = pin
	return t
}

// SetKey stores the key in the slot
func (t *Token) SetKey(slot piv.Slot, key crypto.Signer) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.keys[slot] = key
}

// GenerateKey generates RSA key in the slot
func (t *Token) GenerateKey(slot piv.Slot, bits int) (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	t.SetKey(slot, key)
	return key, nil
}

// Key returns the key in the slot
func (t *Token) Key(slot piv.Slot) crypto.Signer {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.keys[slot]
}

// Provider is in-memory piv.Provider
type Provider struct {
	Attached []*Token
	// ListErr is returned by Tokens if set
	ListErr error
	Closed  int
}

// NewProvider returns provider with the tokens attached
func NewProvider(tokens ...*Token) *Provider {
	return &Provider{Attached: tokens}
}

// Tokens implements piv.Provider
func (p *Provider) Tokens() ([]piv.TokenInfo, error) {
	if p.ListErr != nil {
		return nil, p.ListErr
	}
	list := make([]piv.TokenInfo, 0, len(p.Attached))
	for i, t := range p.Attached {
		info := t.Info
		info.SlotID = uint(i)
		list = append(list, info)
	}
	return list, nil
}

// OpenSession implements piv.Provider
func (p *Provider) OpenSession(token piv.TokenInfo, collector piv.KeyCollector) (piv.Session, error) {
	if int(token.SlotID) >= len(p.Attached) {
		return nil, errors.Errorf("token not found: %d", token.SlotID)
	}
	t := p.Attached[token.SlotID]

	t.lock.Lock()
	t.Opened++
	t.lock.Unlock()

	return &Session{token: t, collector: collector}, nil
}

// Close implements piv.Provider
func (p *Provider) Close() error {
	p.Closed++
	return nil
}

// Session is in-memory piv.Session
type Session struct {
	token     *Token
	collector piv.KeyCollector
	loggedIn  bool
	closed    bool
}

// PublicKey implements piv.Session
func (s *Session) PublicKey(slot piv.Slot) (crypto.PublicKey, error) {
	if s.closed {
		return nil, errors.New("session closed")
	}
	key := s.token.Key(slot)
	if key == nil {
		return nil, nil
	}
	return key.Public(), nil
}

// GenerateRSAKey implements piv.Session
func (s *Session) GenerateRSAKey(slot piv.Slot, bits int) (*rsa.PublicKey, error) {
	if s.closed {
		return nil, errors.New("session closed")
	}
	key, err := s.token.GenerateKey(slot, bits)
	if err != nil {
		return nil, err
	}

	s.token.lock.Lock()
	s.token.Generated++
	s.token.lock.Unlock()

	return &key.PublicKey, nil
}

// SignRaw implements piv.Session
func (s *Session) SignRaw(slot piv.Slot, block []byte) ([]byte, error) {
	if s.closed {
		return nil, errors.New("session closed")
	}
	if s.token.FailSign != nil {
		return nil, s.token.FailSign
	}

	key, ok := s.token.Key(slot).(*rsa.PrivateKey)
	if !ok {
		return nil, errors.Errorf("no RSA key in slot %s", slot)
	}
	if len(block) != key.Size() {
		return nil, errors.Errorf("invalid block size: %d", len(block))
	}

	if s.token.PIN != "" && !s.loggedIn {
		if s.collector == nil {
			return nil, errors.New("PIN is required")
		}
		if err := piv.VerifyPIN(s.collector, s.login); err != nil {
			return nil, err
		}
	}

	m := new(big.Int).SetBytes(block)
	if m.Cmp(key.N) >= 0 {
		return nil, errors.New("block is out of range")
	}
	sig := new(big.Int).Exp(m, key.D, key.N)

	s.token.lock.Lock()
	s.token.Signed++
	s.token.lock.Unlock()

	return sig.FillBytes(make([]byte, key.Size())), nil
}

func (s *Session) login(pin []byte) error {
	t := s.token
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.Retries == 0 {
		return piv.ErrPINLocked
	}
	t.Logins++
	if string(pin) != t.PIN {
		t.Retries--
		return &piv.WrongPINError{RetriesRemaining: t.Retries}
	}
	t.Retries = DefaultPINRetries
	s.loggedIn = true
	return nil
}

// Close implements piv.Session
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.collector != nil {
		_, _ = piv.Dispatch(s.collector, piv.ReleaseRequest{})
	}

	s.token.lock.Lock()
	s.token.Closed++
	s.token.lock.Unlock()
	return nil
}
