package cli

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/pivcsr/piv"
	"github.com/effective-security/pivcsr/piv/pivtest"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type tokensSuite struct {
	testSuite
}

func TestTokensSuite(t *testing.T) {
	suite.Run(t, new(tokensSuite))
}

func (s *tokensSuite) TestList() {
	t1 := s.attach(pivtest.NewToken("1001"))
	_, err := t1.GenerateKey(piv.SlotKeyManagement, 1024)
	s.Require().NoError(err)
	eckey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	s.Require().NoError(err)
	t1.SetKey(piv.SlotAuthentication, eckey)

	t2 := s.attach(pivtest.NewToken("1002"))

	cmd := TokensCmd{}
	err = cmd.Run(s.ctl)
	s.Require().NoError(err)
	s.HasText(
		"Slot: 0\n",
		"  Token serial: 1001\n",
		"Slot: 1\n",
		"  Token serial: 1002\n",
		"  Keys:\n",
		"    9d  Key Management               RSA-1024 ",
		"    9a  PIV Authentication           ECDSA-256 ",
	)
	s.HasNoText("9c  ", "9e  ")
	s.Equal(1, t1.Closed)
	s.Equal(1, t2.Closed)

	s.Out.Reset()
	cmd.NoKeys = true
	err = cmd.Run(s.ctl)
	s.Require().NoError(err)
	s.HasText("  Token serial: 1001\n")
	s.HasNoText("Keys:")
	s.Equal(1, t1.Opened)
}

func (s *tokensSuite) TestNone() {
	err := new(TokensCmd).Run(s.ctl)
	s.Require().NoError(err)
	s.Equal("no tokens attached\n", s.Out.String())

	s.Out.Reset()
	err = (&TokensCmd{JSON: true}).Run(s.ctl)
	s.Require().NoError(err)
	s.Equal("[]\n", s.Out.String())
}

func (s *tokensSuite) TestJSON() {
	token := s.attach(pivtest.NewToken("1001"))
	_, err := token.GenerateKey(piv.SlotSignature, 1024)
	s.Require().NoError(err)

	cmd := TokensCmd{JSON: true}
	err = cmd.Run(s.ctl)
	s.Require().NoError(err)

	var res []TokenKeys
	s.Require().NoError(json.Unmarshal(s.Out.Bytes(), &res))
	s.Require().Len(res, 1)
	s.Equal("1001", res[0].Serial)
	s.Require().Len(res[0].Keys, 1)
	s.Equal("9c", res[0].Keys[0].Slot)
	s.Equal("Digital Signature", res[0].Keys[0].Name)
	s.Require().NotNil(res[0].Keys[0].Key)
	s.Equal("RSA", res[0].Keys[0].Key.Type)
	s.Equal(1024, res[0].Keys[0].Key.KeySize)
}

func (s *tokensSuite) TestErrors() {
	s.tokens.ListErr = errors.New("pcsc unavailable")
	err := new(TokensCmd).Run(s.ctl)
	s.EqualError(err, "unable to list tokens: pcsc unavailable")

	mocked := &mockedProvider{}
	mocked.On("Tokens").Return([]piv.TokenInfo{{Serial: "1"}}, nil)
	mocked.On("OpenSession", mock.Anything, mock.Anything).Return(nil, errors.New("device busy"))
	mocked.On("Close").Return(nil)
	s.ctl.WithTokenProvider(mocked)

	err = new(TokensCmd).Run(s.ctl)
	s.EqualError(err, "unable to open session with 1: device busy")

	// keys are not read with --no-keys
	err = (&TokensCmd{NoKeys: true}).Run(s.ctl)
	s.NoError(err)
	mocked.AssertNumberOfCalls(s.T(), "OpenSession", 1)
}

func (s *tokensSuite) TestSlots() {
	err := new(SlotsCmd).Run(s.ctl)
	s.Require().NoError(err)
	s.HasText(
		"82  Retired Key Management 1\n",
		"95  Retired Key Management 20\n",
		"9a  PIV Authentication\n",
		"9c  Digital Signature\n",
		"9d  Key Management\n",
		"9e  Card Authentication\n",
	)
	s.HasNoText("f9")

	s.Out.Reset()
	err = (&SlotsCmd{JSON: true}).Run(s.ctl)
	s.Require().NoError(err)

	var res []SlotKey
	s.Require().NoError(json.Unmarshal(s.Out.Bytes(), &res))
	s.Len(res, 24)
	s.Equal("82", res[0].Slot)
	s.Nil(res[0].Key)
}

func (s *tokensSuite) TestSlotKey() {
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	s.Require().NoError(err)
	sk := newSlotKey(piv.SlotSignature, k.Public())
	s.Equal("9c", sk.Slot)
	s.Equal("Digital Signature", sk.Name)
	s.Require().NotNil(sk.Key)
	s.Equal("ECDSA", sk.Key.Type)
	s.Equal(256, sk.Key.KeySize)

	edPub, _, err := ed25519.GenerateKey(rand.Reader)
	s.Require().NoError(err)
	sk = newSlotKey(piv.SlotSignature, edPub)
	s.Equal("9c", sk.Slot)
	s.Nil(sk.Key)

	js, err := json.Marshal(sk)
	s.Require().NoError(err)
	s.Equal(`{"slot":"9c","name":"Digital Signature"}`, string(js))
}

type mockedProvider struct {
	mock.Mock
}

func (m *mockedProvider) Tokens() ([]piv.TokenInfo, error) {
	args := m.Called()
	list, _ := args.Get(0).([]piv.TokenInfo)
	return list, args.Error(1)
}

func (m *mockedProvider) OpenSession(token piv.TokenInfo, collector piv.KeyCollector) (piv.Session, error) {
	args := m.Called(token, collector)
	session, _ := args.Get(0).(piv.Session)
	return session, args.Error(1)
}

func (m *mockedProvider) Close() error {
	args := m.Called()
	return args.Error(0)
}
