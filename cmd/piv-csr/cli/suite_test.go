package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/effective-security/pivcsr/piv/pivtest"
	"github.com/effective-security/x/ctl"
	"github.com/effective-security/x/guid"
	"github.com/stretchr/testify/suite"
)

type testSuite struct {
	suite.Suite

	ctl *Cli
	// Out is the outpub buffer
	Out bytes.Buffer
	// Err is the buffer for prompts
	Err bytes.Buffer

	tokens *pivtest.Provider
}

func (s *testSuite) SetupTest() {
	s.Out.Reset()
	s.Err.Reset()

	s.tokens = pivtest.NewProvider()
	s.ctl = &Cli{}
	s.ctl.WithErrWriter(&s.Err).
		WithWriter(&s.Out).
		WithReader(strings.NewReader("")).
		WithTokenProvider(s.tokens)

	parser, err := kong.New(s.ctl,
		kong.Name("piv-csr"),
		kong.Description("CLI tool to create certificate request with the key on PIV token"),
		kong.Writers(&s.Out, &s.Out),
		ctl.BoolPtrMapper,
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{})
	if err != nil {
		s.FailNow("unexpected error constructing Kong: %+v", err)
	}

	_, err = parser.Parse([]string{"--log-level=error"})
	if err != nil {
		s.FailNow("unexpected error parsing: %+v", err)
	}
}

func (s *testSuite) TearDownTest() {
	_ = s.ctl.Close()
}

// attach adds token to the provider
func (s *testSuite) attach(token *pivtest.Token) *pivtest.Token {
	s.tokens.Attached = append(s.tokens.Attached, token)
	return token
}

// HasText is a helper method to assert that the out stream contains the supplied
// text somewhere
func (s *testSuite) HasText(texts ...string) {
	outStr := s.Out.String()
	for _, t := range texts {
		s.Contains(outStr, t)
	}
}

// HasNoText is a helper method to assert that the out stream does not contain the supplied
// text
func (s *testSuite) HasNoText(texts ...string) {
	outStr := s.Out.String()
	for _, t := range texts {
		s.NotContains(outStr, t)
	}
}

// fileSuite provides temporary folder for output files
type fileSuite struct {
	testSuite
	tmpdir string
}

func (s *fileSuite) SetupTest() {
	s.testSuite.SetupTest()
	s.tmpdir = filepath.Join(os.TempDir(), "piv-csr-test", guid.MustCreate())
	s.Require().NoError(os.MkdirAll(s.tmpdir, 0755))
}

func (s *fileSuite) TearDownTest() {
	s.testSuite.TearDownTest()
	_ = os.RemoveAll(s.tmpdir)
}
