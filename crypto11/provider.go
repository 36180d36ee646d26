package crypto11

import (
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/pivcsr/cryptoprov"
	"github.com/effective-security/pivcsr/piv"
	"github.com/effective-security/xlog"
	"github.com/miekg/pkcs11"
)

// ProviderName is the name used in metrics
const ProviderName = "crypto11"

// Ctx is the subset of PKCS#11 API used by the provider,
// implemented by *pkcs11.Ctx
type Ctx interface {
	Finalize() error
	Destroy()
	GetSlotList(tokenPresent bool) ([]uint, error)
	GetSlotInfo(slotID uint) (pkcs11.SlotInfo, error)
	GetTokenInfo(slotID uint) (pkcs11.TokenInfo, error)
	OpenSession(slotID uint, flags uint) (pkcs11.SessionHandle, error)
	CloseSession(sh pkcs11.SessionHandle) error
	Login(sh pkcs11.SessionHandle, userType uint, pin string) error
	Logout(sh pkcs11.SessionHandle) error
	FindObjectsInit(sh pkcs11.SessionHandle, temp []*pkcs11.Attribute) error
	FindObjects(sh pkcs11.SessionHandle, limit int) ([]pkcs11.ObjectHandle, bool, error)
	FindObjectsFinal(sh pkcs11.SessionHandle) error
	GetAttributeValue(sh pkcs11.SessionHandle, o pkcs11.ObjectHandle, a []*pkcs11.Attribute) ([]*pkcs11.Attribute, error)
	GenerateKeyPair(sh pkcs11.SessionHandle, m []*pkcs11.Mechanism, public, private []*pkcs11.Attribute) (pkcs11.ObjectHandle, pkcs11.ObjectHandle, error)
	DestroyObject(sh pkcs11.SessionHandle, oh pkcs11.ObjectHandle) error
	SignInit(sh pkcs11.SessionHandle, m []*pkcs11.Mechanism, o pkcs11.ObjectHandle) error
	Sign(sh pkcs11.SessionHandle, message []byte) ([]byte, error)
}

// PKCS11Lib is a loaded PKCS#11 module
type PKCS11Lib struct {
	Ctx Ctx
	Cfg cryptoprov.TokenConfig

	lock   sync.Mutex
	closed bool
}

// Ensure compiles
var _ piv.Provider = (*PKCS11Lib)(nil)
var _ Ctx = (*pkcs11.Ctx)(nil)

// LoadProvider provides loader for crypto11 provider
func LoadProvider(cfg cryptoprov.TokenConfig) (piv.Provider, error) {
	p, err := Init(cfg)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return p, nil
}

// Init loads and initializes the PKCS#11 module
func Init(cfg cryptoprov.TokenConfig) (*PKCS11Lib, error) {
	if cfg.Path() == "" {
		return nil, errors.New("PKCS#11 module path is not specified")
	}

	ctx := pkcs11.New(cfg.Path())
	if ctx == nil {
		return nil, errors.Errorf("unable to load PKCS#11 module: %s", cfg.Path())
	}

	err := ctx.Initialize()
	if err != nil && !isError(err, pkcs11.CKR_CRYPTOKI_ALREADY_INITIALIZED) {
		ctx.Destroy()
		return nil, errors.WithMessagef(err, "unable to initialize PKCS#11 module: %s", cfg.Path())
	}

	logger.KV(xlog.DEBUG, "module", cfg.Path(), "manufacturer", cfg.Manufacturer())

	return New(ctx, cfg), nil
}

// New returns provider for already initialized module
func New(ctx Ctx, cfg cryptoprov.TokenConfig) *PKCS11Lib {
	return &PKCS11Lib{
		Ctx: ctx,
		Cfg: cfg,
	}
}

// Close finalizes the module
func (p11lib *PKCS11Lib) Close() error {
	p11lib.lock.Lock()
	defer p11lib.lock.Unlock()

	if p11lib.closed {
		return nil
	}
	p11lib.closed = true

	err := p11lib.Ctx.Finalize()
	p11lib.Ctx.Destroy()
	if err != nil {
		return errors.WithMessage(err, "unable to finalize PKCS#11 module")
	}
	return nil
}

// Tokens returns the attached tokens, matching configured label and serial
func (p11lib *PKCS11Lib) Tokens() ([]piv.TokenInfo, error) {
	list, err := p11lib.TokensInfo()
	if err != nil {
		return nil, err
	}

	serial := p11lib.Cfg.TokenSerial()
	label := p11lib.Cfg.TokenLabel()

	res := make([]piv.TokenInfo, 0, len(list))
	for _, ti := range list {
		if serial != "" && ti.Serial != serial {
			continue
		}
		if label != "" && ti.Label != label {
			continue
		}
		res = append(res, ti)
	}

	logger.KV(xlog.DEBUG, "tokens", len(list), "matched", len(res))
	return res, nil
}

// TokensInfo returns list of all attached tokens
func (p11lib *PKCS11Lib) TokensInfo() ([]piv.TokenInfo, error) {
	list := []piv.TokenInfo{}
	slots, err := p11lib.Ctx.GetSlotList(true)
	if err != nil {
		return nil, errors.WithMessage(err, "GetSlotList")
	}

	logger.Tracef("slots=%d", len(slots))

	for _, slotID := range slots {
		si, err := p11lib.Ctx.GetSlotInfo(slotID)
		if err != nil {
			return nil, errors.WithMessagef(err, "GetSlotInfo: %d", slotID)
		}
		ti, err := p11lib.Ctx.GetTokenInfo(slotID)
		if err != nil {
			logger.Errorf(
				"reason=GetTokenInfo, slotID=%d, ManufacturerID=%q, SlotDescription=%q, err=[%+v]",
				slotID,
				si.ManufacturerID,
				si.SlotDescription,
				err,
			)
		} else if ti.SerialNumber != "" || ti.Label != "" {
			list = append(list, piv.TokenInfo{
				SlotID:       slotID,
				Description:  strings.TrimSpace(si.SlotDescription),
				Label:        strings.TrimSpace(ti.Label),
				Manufacturer: strings.TrimSpace(ti.ManufacturerID),
				Model:        strings.TrimSpace(ti.Model),
				Serial:       strings.TrimSpace(ti.SerialNumber),
			})
		}
	}
	return list, nil
}

// OpenSession opens RW session with the token
func (p11lib *PKCS11Lib) OpenSession(token piv.TokenInfo, collector piv.KeyCollector) (piv.Session, error) {
	sh, err := p11lib.Ctx.OpenSession(token.SlotID, pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
	if err != nil {
		return nil, errors.WithMessagef(err, "OpenSession on slot %d", token.SlotID)
	}

	logger.KV(xlog.DEBUG, "token", token.Serial, "slot_id", token.SlotID)

	return &Session{
		lib:       p11lib,
		token:     token,
		handle:    sh,
		collector: collector,
	}, nil
}

// retriesRemaining returns PIN retries left as reported by token flags,
// or -1 if unknown
func (p11lib *PKCS11Lib) retriesRemaining(slotID uint) int {
	ti, err := p11lib.Ctx.GetTokenInfo(slotID)
	if err != nil {
		return -1
	}
	switch {
	case ti.Flags&pkcs11.CKF_USER_PIN_LOCKED != 0:
		return 0
	case ti.Flags&pkcs11.CKF_USER_PIN_FINAL_TRY != 0:
		return 1
	}
	return -1
}
