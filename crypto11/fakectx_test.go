package crypto11

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/asn1"
	"math/big"
	"sync"

	"github.com/miekg/pkcs11"
)

const (
	testUserPIN = "123456"
	testSOPIN   = "010203040506070801020304050607080102030405060708"
)

type fakeObject struct {
	class   uint
	id      byte
	keyType uint
	rsaKey  *rsa.PrivateKey
	ecKey   *ecdsa.PublicKey
	// alwaysAuth requires CKU_CONTEXT_SPECIFIC login after each SignInit
	alwaysAuth bool
}

type fakeToken struct {
	info    pkcs11.TokenInfo
	desc    string
	retries int
	infoErr error
}

// fakeCtx emulates ykcs11 module with private objects hidden until login
type fakeCtx struct {
	lock sync.Mutex

	tokens  []*fakeToken
	objects map[pkcs11.ObjectHandle]*fakeObject
	next    pkcs11.ObjectHandle

	// loggedIn is CKU_USER, CKU_SO or -1
	loggedIn int
	// signLogin requires CKU_USER for every SignInit
	signLogin bool
	// hidePrivate hides private keys until CKU_USER login
	hidePrivate bool
	// contextAuth is set by CKU_CONTEXT_SPECIFIC login for the active SignInit
	contextAuth bool

	found      []pkcs11.ObjectHandle
	signKey    *fakeObject
	signErr    error
	genErr     error
	listErr    error
	finalized  int
	destroyed  int
	sessions   int
	closed     int
	logins     []string
	loginTypes []uint
	logouts    int
	destroyObj int
}

func newFakeCtx(serials ...string) *fakeCtx {
	f := &fakeCtx{
		objects:  map[pkcs11.ObjectHandle]*fakeObject{},
		next:     100,
		loggedIn: -1,
	}
	for _, serial := range serials {
		f.tokens = append(f.tokens, &fakeToken{
			info: pkcs11.TokenInfo{
				Label:          "YubiKey PIV #" + serial + "   ",
				ManufacturerID: "Yubico (www.yubico.com)",
				Model:          "YubiKey YK5",
				SerialNumber:   serial,
			},
			desc:    "Yubico YubiKey OTP+FIDO+CCID " + serial,
			retries: 3,
		})
	}
	return f
}

func (f *fakeCtx) addRSAKey(id byte, bits int) *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		panic(err)
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	f.putKeyPair(id, key)
	return key
}

func (f *fakeCtx) addECKey(id byte, pub *ecdsa.PublicKey) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.next++
	f.objects[f.next] = &fakeObject{class: pkcs11.CKO_PUBLIC_KEY, id: id, keyType: pkcs11.CKK_EC, ecKey: pub}
}

// setAlwaysAuthenticate marks private key with the id as CKA_ALWAYS_AUTHENTICATE
func (f *fakeCtx) setAlwaysAuthenticate(id byte) {
	f.lock.Lock()
	defer f.lock.Unlock()
	for _, obj := range f.objects {
		if obj.class == pkcs11.CKO_PRIVATE_KEY && obj.id == id {
			obj.alwaysAuth = true
		}
	}
}

func (f *fakeCtx) putKeyPair(id byte, key *rsa.PrivateKey) (pkcs11.ObjectHandle, pkcs11.ObjectHandle) {
	f.next++
	pub := f.next
	f.objects[pub] = &fakeObject{class: pkcs11.CKO_PUBLIC_KEY, id: id, keyType: pkcs11.CKK_RSA, rsaKey: key}
	f.next++
	priv := f.next
	f.objects[priv] = &fakeObject{class: pkcs11.CKO_PRIVATE_KEY, id: id, keyType: pkcs11.CKK_RSA, rsaKey: key}
	return pub, priv
}

func (f *fakeCtx) Finalize() error {
	f.finalized++
	return nil
}

func (f *fakeCtx) Destroy() {
	f.destroyed++
}

func (f *fakeCtx) GetSlotList(_ bool) ([]uint, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	list := make([]uint, len(f.tokens))
	for i := range f.tokens {
		list[i] = uint(i)
	}
	return list, nil
}

func (f *fakeCtx) GetSlotInfo(slotID uint) (pkcs11.SlotInfo, error) {
	if int(slotID) >= len(f.tokens) {
		return pkcs11.SlotInfo{}, pkcs11.Error(pkcs11.CKR_SLOT_ID_INVALID)
	}
	return pkcs11.SlotInfo{
		SlotDescription: f.tokens[slotID].desc,
		ManufacturerID:  "Yubico (www.yubico.com)",
	}, nil
}

func (f *fakeCtx) GetTokenInfo(slotID uint) (pkcs11.TokenInfo, error) {
	if int(slotID) >= len(f.tokens) {
		return pkcs11.TokenInfo{}, pkcs11.Error(pkcs11.CKR_SLOT_ID_INVALID)
	}
	t := f.tokens[slotID]
	if t.infoErr != nil {
		return pkcs11.TokenInfo{}, t.infoErr
	}
	info := t.info
	switch t.retries {
	case 0:
		info.Flags |= pkcs11.CKF_USER_PIN_LOCKED
	case 1:
		info.Flags |= pkcs11.CKF_USER_PIN_FINAL_TRY
	}
	return info, nil
}

func (f *fakeCtx) OpenSession(slotID uint, _ uint) (pkcs11.SessionHandle, error) {
	if int(slotID) >= len(f.tokens) {
		return 0, pkcs11.Error(pkcs11.CKR_SLOT_ID_INVALID)
	}
	f.sessions++
	return pkcs11.SessionHandle(slotID + 1), nil
}

func (f *fakeCtx) CloseSession(_ pkcs11.SessionHandle) error {
	f.closed++
	return nil
}

func (f *fakeCtx) Login(sh pkcs11.SessionHandle, userType uint, pin string) error {
	f.logins = append(f.logins, pin)
	f.loginTypes = append(f.loginTypes, userType)

	if userType == pkcs11.CKU_CONTEXT_SPECIFIC {
		if f.loggedIn != int(pkcs11.CKU_USER) || f.signKey == nil {
			return pkcs11.Error(pkcs11.CKR_OPERATION_NOT_INITIALIZED)
		}
		if err := f.checkPIN(sh, pin); err != nil {
			return err
		}
		f.contextAuth = true
		return nil
	}

	if f.loggedIn >= 0 {
		return pkcs11.Error(pkcs11.CKR_USER_ALREADY_LOGGED_IN)
	}

	if userType == pkcs11.CKU_SO {
		if pin != testSOPIN {
			return pkcs11.Error(pkcs11.CKR_PIN_INCORRECT)
		}
		f.loggedIn = int(userType)
		return nil
	}

	if err := f.checkPIN(sh, pin); err != nil {
		return err
	}
	f.loggedIn = int(userType)
	return nil
}

func (f *fakeCtx) checkPIN(sh pkcs11.SessionHandle, pin string) error {
	t := f.tokens[sh-1]
	if t.retries == 0 {
		return pkcs11.Error(pkcs11.CKR_PIN_LOCKED)
	}
	if len(pin) < 6 || len(pin) > 8 {
		return pkcs11.Error(pkcs11.CKR_PIN_LEN_RANGE)
	}
	if pin != testUserPIN {
		t.retries--
		return pkcs11.Error(pkcs11.CKR_PIN_INCORRECT)
	}
	t.retries = 3
	return nil
}

func (f *fakeCtx) Logout(_ pkcs11.SessionHandle) error {
	if f.loggedIn < 0 {
		return pkcs11.Error(pkcs11.CKR_USER_NOT_LOGGED_IN)
	}
	f.logouts++
	f.loggedIn = -1
	return nil
}

func (f *fakeCtx) FindObjectsInit(_ pkcs11.SessionHandle, temp []*pkcs11.Attribute) error {
	f.found = nil

	var class uint
	var id []byte
	for _, a := range temp {
		switch a.Type {
		case pkcs11.CKA_CLASS:
			class = BytesToUlong(a.Value)
		case pkcs11.CKA_ID:
			id = a.Value
		}
	}

	for h := pkcs11.ObjectHandle(0); h <= f.next; h++ {
		obj, ok := f.objects[h]
		if !ok || obj.class != class || len(id) != 1 || obj.id != id[0] {
			continue
		}
		if obj.class == pkcs11.CKO_PRIVATE_KEY && f.hidePrivate && f.loggedIn != int(pkcs11.CKU_USER) {
			continue
		}
		f.found = append(f.found, h)
	}
	return nil
}

func (f *fakeCtx) FindObjects(_ pkcs11.SessionHandle, limit int) ([]pkcs11.ObjectHandle, bool, error) {
	if len(f.found) > limit {
		return f.found[:limit], true, nil
	}
	return f.found, false, nil
}

func (f *fakeCtx) FindObjectsFinal(_ pkcs11.SessionHandle) error {
	f.found = nil
	return nil
}

func (f *fakeCtx) GetAttributeValue(_ pkcs11.SessionHandle, o pkcs11.ObjectHandle, a []*pkcs11.Attribute) ([]*pkcs11.Attribute, error) {
	obj, ok := f.objects[o]
	if !ok {
		return nil, pkcs11.Error(pkcs11.CKR_OBJECT_HANDLE_INVALID)
	}

	res := make([]*pkcs11.Attribute, 0, len(a))
	for _, attr := range a {
		switch attr.Type {
		case pkcs11.CKA_KEY_TYPE:
			res = append(res, pkcs11.NewAttribute(attr.Type, obj.keyType))
		case pkcs11.CKA_ALWAYS_AUTHENTICATE:
			res = append(res, pkcs11.NewAttribute(attr.Type, obj.alwaysAuth))
		case pkcs11.CKA_MODULUS:
			res = append(res, pkcs11.NewAttribute(attr.Type, obj.rsaKey.N.Bytes()))
		case pkcs11.CKA_PUBLIC_EXPONENT:
			res = append(res, pkcs11.NewAttribute(attr.Type, big.NewInt(int64(obj.rsaKey.E)).Bytes()))
		case pkcs11.CKA_EC_PARAMS:
			oid := oidNamedCurveP256
			if obj.ecKey.Curve.Params().BitSize == 384 {
				oid = oidNamedCurveP384
			}
			der, _ := asn1.Marshal(oid)
			res = append(res, pkcs11.NewAttribute(attr.Type, der))
		case pkcs11.CKA_EC_POINT:
			ecdhKey, err := obj.ecKey.ECDH()
			if err != nil {
				return nil, err
			}
			der, _ := asn1.Marshal(ecdhKey.Bytes())
			res = append(res, pkcs11.NewAttribute(attr.Type, der))
		default:
			return nil, pkcs11.Error(pkcs11.CKR_ATTRIBUTE_TYPE_INVALID)
		}
	}
	return res, nil
}

func (f *fakeCtx) GenerateKeyPair(_ pkcs11.SessionHandle, _ []*pkcs11.Mechanism, public, private []*pkcs11.Attribute) (pkcs11.ObjectHandle, pkcs11.ObjectHandle, error) {
	if f.genErr != nil {
		return 0, 0, f.genErr
	}
	if f.loggedIn != int(pkcs11.CKU_SO) {
		return 0, 0, pkcs11.Error(pkcs11.CKR_USER_NOT_LOGGED_IN)
	}

	var id []byte
	var bits uint
	for _, a := range public {
		switch a.Type {
		case pkcs11.CKA_ID:
			id = a.Value
		case pkcs11.CKA_MODULUS_BITS:
			bits = BytesToUlong(a.Value)
		}
	}
	if len(id) != 1 || bits == 0 || len(private) == 0 {
		return 0, 0, pkcs11.Error(pkcs11.CKR_TEMPLATE_INCOMPLETE)
	}

	key, err := rsa.GenerateKey(rand.Reader, int(bits))
	if err != nil {
		return 0, 0, err
	}
	pub, priv := f.putKeyPair(id[0], key)
	return pub, priv, nil
}

func (f *fakeCtx) DestroyObject(_ pkcs11.SessionHandle, oh pkcs11.ObjectHandle) error {
	if _, ok := f.objects[oh]; !ok {
		return pkcs11.Error(pkcs11.CKR_OBJECT_HANDLE_INVALID)
	}
	f.destroyObj++
	delete(f.objects, oh)
	return nil
}

func (f *fakeCtx) SignInit(_ pkcs11.SessionHandle, m []*pkcs11.Mechanism, o pkcs11.ObjectHandle) error {
	if len(m) != 1 || m[0].Mechanism != pkcs11.CKM_RSA_X_509 {
		return pkcs11.Error(pkcs11.CKR_MECHANISM_INVALID)
	}
	obj, ok := f.objects[o]
	if !ok || obj.class != pkcs11.CKO_PRIVATE_KEY {
		return pkcs11.Error(pkcs11.CKR_KEY_HANDLE_INVALID)
	}
	if (f.signLogin || obj.alwaysAuth) && f.loggedIn != int(pkcs11.CKU_USER) {
		return pkcs11.Error(pkcs11.CKR_USER_NOT_LOGGED_IN)
	}
	f.signKey = obj
	f.contextAuth = false
	return nil
}

func (f *fakeCtx) Sign(_ pkcs11.SessionHandle, message []byte) ([]byte, error) {
	if f.signErr != nil {
		return nil, f.signErr
	}
	if f.signKey == nil {
		return nil, pkcs11.Error(pkcs11.CKR_OPERATION_NOT_INITIALIZED)
	}
	if f.signKey.alwaysAuth && !f.contextAuth {
		return nil, pkcs11.Error(pkcs11.CKR_USER_NOT_LOGGED_IN)
	}
	key := f.signKey.rsaKey
	f.signKey = nil
	f.contextAuth = false

	if len(message) != key.Size() {
		return nil, pkcs11.Error(pkcs11.CKR_DATA_LEN_RANGE)
	}
	m := new(big.Int).SetBytes(message)
	if m.Cmp(key.N) >= 0 {
		return nil, pkcs11.Error(pkcs11.CKR_DATA_INVALID)
	}
	return new(big.Int).Exp(m, key.D, key.N).FillBytes(make([]byte, key.Size())), nil
}

// testConfig implements cryptoprov.TokenConfig
type testConfig struct {
	serial string
	label  string
	mgmt   string
}

func (c testConfig) Manufacturer() string { return "Yubico" }
func (c testConfig) Path() string { return "/usr/lib/libykcs11.so" }
func (c testConfig) TokenSerial() string { return c.serial }
func (c testConfig) TokenLabel() string { return c.label }
func (c testConfig) ManagementKey() string {
	if c.mgmt != "" {
		return c.mgmt
	}
	return testSOPIN
}
