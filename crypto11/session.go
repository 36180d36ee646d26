package crypto11

import (
	"crypto"
	"crypto/rsa"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/pivcsr/metricskey"
	"github.com/effective-security/pivcsr/piv"
	"github.com/effective-security/xlog"
	"github.com/miekg/pkcs11"
)

// rsaPublicExponent is 65537
var rsaPublicExponent = []byte{0x01, 0x00, 0x01}

// Session is PKCS#11 session with PIV token
type Session struct {
	lib       *PKCS11Lib
	token     piv.TokenInfo
	handle    pkcs11.SessionHandle
	collector piv.KeyCollector

	lock     sync.Mutex
	loggedIn bool
	closed   bool
}

// Ensure compiles
var _ piv.Session = (*Session)(nil)

// PublicKey returns the public key in the slot, or nil if the slot is empty
func (s *Session) PublicKey(slot piv.Slot) (crypto.PublicKey, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	id, err := KeyID(slot)
	if err != nil {
		return nil, err
	}
	obj, err := s.findObject(pkcs11.CKO_PUBLIC_KEY, id)
	if err != nil {
		return nil, err
	}
	if obj == 0 {
		logger.KV(xlog.DEBUG, "reason", "no_key", "slot", slot)
		return nil, nil
	}

	pub, err := s.publicKey(obj)
	if err != nil {
		return nil, errors.WithMessagef(err, "slot %s", slot)
	}
	return pub, nil
}

// GenerateRSAKey generates RSA key pair in the slot
func (s *Session) GenerateRSAKey(slot piv.Slot, bits int) (*rsa.PublicKey, error) {
	defer metricskey.PerfCryptoOperation.MeasureSince(time.Now(), ProviderName, "genkey_rsa")

	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	id, err := KeyID(slot)
	if err != nil {
		return nil, err
	}

	if err = s.loginSO(); err != nil {
		return nil, err
	}
	defer s.logout()

	s.destroyKeyPair(id)

	pubTemplate := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PUBLIC_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_RSA),
		pkcs11.NewAttribute(pkcs11.CKA_ID, []byte{id}),
		pkcs11.NewAttribute(pkcs11.CKA_MODULUS_BITS, bits),
		pkcs11.NewAttribute(pkcs11.CKA_PUBLIC_EXPONENT, rsaPublicExponent),
	}
	privTemplate := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_RSA),
		pkcs11.NewAttribute(pkcs11.CKA_ID, []byte{id}),
		pkcs11.NewAttribute(pkcs11.CKA_SIGN, true),
	}
	mech := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS_KEY_PAIR_GEN, nil)}

	pubHandle, _, err := s.lib.Ctx.GenerateKeyPair(s.handle, mech, pubTemplate, privTemplate)
	if err != nil {
		return nil, errors.WithMessagef(err, "GenerateKeyPair in slot %s", slot)
	}

	pub, err := s.publicKey(pubHandle)
	if err != nil {
		return nil, errors.WithMessagef(err, "slot %s", slot)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.Errorf("unexpected key type in slot %s", slot)
	}

	logger.KV(xlog.INFO, "status", "generated", "slot", slot, "size", rsaPub.N.BitLen(), "token", s.token.Serial)
	return rsaPub, nil
}

// SignRaw performs RSA private-key transform of the padded block
func (s *Session) SignRaw(slot piv.Slot, block []byte) ([]byte, error) {
	defer metricskey.PerfCryptoOperation.MeasureSince(time.Now(), ProviderName, "sign")

	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	id, err := KeyID(slot)
	if err != nil {
		return nil, err
	}

	key, err := s.findObject(pkcs11.CKO_PRIVATE_KEY, id)
	if err != nil {
		return nil, err
	}
	if key == 0 && !s.loggedIn {
		// private objects may be visible only after login
		if err = s.login(); err != nil {
			return nil, err
		}
		if key, err = s.findObject(pkcs11.CKO_PRIVATE_KEY, id); err != nil {
			return nil, err
		}
	}
	if key == 0 {
		return nil, errors.Errorf("private key not found in slot %s", slot)
	}

	for attempt := 0; ; attempt++ {
		sig, err := s.sign(key, block)
		if err == nil {
			return sig, nil
		}
		if attempt > 0 || !isError(err, pkcs11.CKR_USER_NOT_LOGGED_IN) {
			return nil, err
		}
		if err = s.login(); err != nil {
			return nil, err
		}
	}
}

// Close releases the session
func (s *Session) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.collector != nil {
		if _, err := piv.Dispatch(s.collector, piv.ReleaseRequest{}); err != nil {
			logger.KV(xlog.WARNING, "reason", "release", "err", err.Error())
		}
	}
	s.logout()

	if err := s.lib.Ctx.CloseSession(s.handle); err != nil {
		return errors.WithMessage(err, "CloseSession")
	}
	return nil
}

func (s *Session) checkOpen() error {
	if s.closed {
		return errors.New("session is closed")
	}
	return nil
}

func (s *Session) sign(key pkcs11.ObjectHandle, block []byte) ([]byte, error) {
	mech := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_RSA_X_509, nil)}
	if err := s.lib.Ctx.SignInit(s.handle, mech, key); err != nil {
		return nil, errors.WithMessage(err, "SignInit")
	}
	// 9c key requires PIN for each signature
	if s.alwaysAuthenticate(key) {
		if err := s.verifyPIN(pkcs11.CKU_CONTEXT_SPECIFIC); err != nil {
			return nil, err
		}
	}
	sig, err := s.lib.Ctx.Sign(s.handle, block)
	if err != nil {
		return nil, errors.WithMessage(err, "Sign")
	}
	return sig, nil
}

// login runs PIN entry with the collector until the token accepts the PIN
func (s *Session) login() error {
	return s.verifyPIN(pkcs11.CKU_USER)
}

// alwaysAuthenticate returns true if the key requires
// context specific login for each operation
func (s *Session) alwaysAuthenticate(key pkcs11.ObjectHandle) bool {
	attrs, err := s.lib.Ctx.GetAttributeValue(s.handle, key, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_ALWAYS_AUTHENTICATE, nil),
	})
	if err != nil || len(attrs) == 0 {
		return false
	}
	return BytesToUlong(attrs[0].Value) != 0
}

func (s *Session) verifyPIN(userType uint) error {
	if s.collector == nil {
		return errors.New("PIN is required, but key collector is not provided")
	}

	return piv.VerifyPIN(s.collector, func(pin []byte) error {
		err := s.lib.Ctx.Login(s.handle, userType, string(pin))
		switch {
		case err == nil, isError(err, pkcs11.CKR_USER_ALREADY_LOGGED_IN):
			if userType == pkcs11.CKU_USER {
				s.loggedIn = true
			}
			logger.KV(xlog.DEBUG, "status", "logged_in", "user_type", userType, "token", s.token.Serial)
			return nil
		case isError(err, pkcs11.CKR_PIN_INCORRECT), isError(err, pkcs11.CKR_PIN_LEN_RANGE):
			return &piv.WrongPINError{RetriesRemaining: s.lib.retriesRemaining(s.token.SlotID)}
		case isError(err, pkcs11.CKR_PIN_LOCKED):
			return errors.WithStack(piv.ErrPINLocked)
		}
		return errors.WithMessage(err, "Login")
	})
}

func (s *Session) loginSO() error {
	if s.loggedIn {
		s.logout()
	}
	err := s.lib.Ctx.Login(s.handle, pkcs11.CKU_SO, s.lib.Cfg.ManagementKey())
	if err != nil && !isError(err, pkcs11.CKR_USER_ALREADY_LOGGED_IN) {
		return errors.WithMessage(err, "unable to authenticate with management key")
	}
	s.loggedIn = true
	return nil
}

func (s *Session) logout() {
	if !s.loggedIn {
		return
	}
	s.loggedIn = false
	if err := s.lib.Ctx.Logout(s.handle); err != nil && !isError(err, pkcs11.CKR_USER_NOT_LOGGED_IN) {
		logger.KV(xlog.WARNING, "reason", "logout", "err", err.Error())
	}
}

// findObject returns handle of the object, or 0 if not found
func (s *Session) findObject(class uint, id byte) (pkcs11.ObjectHandle, error) {
	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, class),
		pkcs11.NewAttribute(pkcs11.CKA_ID, []byte{id}),
	}
	if err := s.lib.Ctx.FindObjectsInit(s.handle, template); err != nil {
		return 0, errors.WithMessage(err, "FindObjectsInit")
	}
	defer func() {
		_ = s.lib.Ctx.FindObjectsFinal(s.handle)
	}()

	handles, _, err := s.lib.Ctx.FindObjects(s.handle, 1)
	if err != nil {
		return 0, errors.WithMessage(err, "FindObjects")
	}
	if len(handles) == 0 {
		return 0, nil
	}
	return handles[0], nil
}

// destroyKeyPair removes existing key objects,
// the failures are logged as the token replaces the key on generation
func (s *Session) destroyKeyPair(id byte) {
	for _, class := range []uint{pkcs11.CKO_PRIVATE_KEY, pkcs11.CKO_PUBLIC_KEY} {
		obj, err := s.findObject(class, id)
		if err != nil || obj == 0 {
			continue
		}
		if err = s.lib.Ctx.DestroyObject(s.handle, obj); err != nil {
			logger.KV(xlog.DEBUG, "reason", "destroy", "id", id, "class", class, "err", err.Error())
			continue
		}
		logger.KV(xlog.DEBUG, "status", "destroyed", "id", id, "class", class)
	}
}
