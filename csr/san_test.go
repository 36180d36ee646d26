package csr_test

import (
	"encoding/hex"
	"testing"

	"github.com/effective-security/pivcsr/csr"
	"github.com/effective-security/pivcsr/oid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectAltNamesEmpty(t *testing.T) {
	assert.True(t, csr.SubjectAltNames{}.Empty())
	assert.True(t, csr.SubjectAltNames{DNS: []string{}}.Empty())
	assert.False(t, csr.SubjectAltNames{DNS: []string{"a"}}.Empty())
	assert.False(t, csr.SubjectAltNames{Emails: []string{"a@b"}}.Empty())
	assert.False(t, csr.SubjectAltNames{IPs: []string{"1.1.1.1"}}.Empty())
	assert.False(t, csr.SubjectAltNames{URIs: []string{"spiffe://a"}}.Empty())
	assert.False(t, csr.SubjectAltNames{UPNs: []string{"u@x"}}.Empty())
}

func TestSubjectAltNamesMarshal(t *testing.T) {
	tcases := []struct {
		name string
		san  csr.SubjectAltNames
		exp  string
	}{
		{
			name: "dns",
			san:  csr.SubjectAltNames{DNS: []string{"a"}},
			exp:  "3003820161",
		},
		{
			name: "email",
			san:  csr.SubjectAltNames{Emails: []string{"a@b"}},
			exp:  "3005810361" + "4062",
		},
		{
			name: "ipv4",
			san:  csr.SubjectAltNames{IPs: []string{"10.0.0.1"}},
			exp:  "300687040a000001",
		},
		{
			name: "uri",
			san:  csr.SubjectAltNames{URIs: []string{"a:b"}},
			exp:  "3005860361" + "3a62",
		},
		{
			name: "upn",
			san:  csr.SubjectAltNames{UPNs: []string{"u@x"}},
			exp:  "3015a013060a2b060104018237140203a0050c03754078",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			der, err := tc.san.Marshal()
			require.NoError(t, err)
			assert.Equal(t, tc.exp, hex.EncodeToString(der))
		})
	}
}

func TestSubjectAltNamesRoundTrip(t *testing.T) {
	san := csr.SubjectAltNames{
		DNS:    []string{"localhost", "*.example.com", "bücher.example"},
		Emails: []string{"admin@example.com"},
		IPs:    []string{"127.0.0.1", "2001:db8::1"},
		URIs:   []string{"spiffe://example.com/workload", "https://example.com/path?q=1"},
		UPNs:   []string{"user@corp.example.com", "пользователь@example.com"},
	}
	require.NoError(t, san.Validate())

	der, err := san.Marshal()
	require.NoError(t, err)

	parsed, err := csr.ParseSubjectAltNames(der)
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost", "*.example.com", "xn--bcher-kva.example"}, parsed.DNS)
	assert.Equal(t, san.Emails, parsed.Emails)
	assert.Equal(t, san.IPs, parsed.IPs)
	assert.Equal(t, san.URIs, parsed.URIs)
	assert.Equal(t, san.UPNs, parsed.UPNs)

	ext, err := san.Extension(true)
	require.NoError(t, err)
	assert.True(t, ext.Critical)
	assert.True(t, oid.ExtensionSubjectAltName.Equal(ext.Id))
	assert.Equal(t, der, ext.Value)

	ext, err = san.Extension(false)
	require.NoError(t, err)
	assert.False(t, ext.Critical)

	found, err := csr.FindSubjectAltNames(nil)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestSubjectAltNamesValidate(t *testing.T) {
	tcases := []struct {
		san csr.SubjectAltNames
		err string
	}{
		{san: csr.SubjectAltNames{DNS: []string{""}}, err: "SAN DNS must not be empty"},
		{san: csr.SubjectAltNames{DNS: []string{"a b.com"}}, err: `SAN DNS is not valid domain name: "a b.com"`},
		{san: csr.SubjectAltNames{Emails: []string{"user"}}, err: `SAN email is not valid: "user"`},
		{san: csr.SubjectAltNames{Emails: []string{"User <user@example.com>"}}, err: `SAN email is not valid: "User <user@example.com>"`},
		{san: csr.SubjectAltNames{Emails: []string{"юзер@example.com"}}, err: `SAN email must be ASCII: "юзер@example.com"`},
		{san: csr.SubjectAltNames{IPs: []string{"localhost"}}, err: `SAN IP is not valid: "localhost"`},
		{san: csr.SubjectAltNames{URIs: []string{"/relative/path"}}, err: `SAN URI must be absolute: "/relative/path"`},
		{san: csr.SubjectAltNames{URIs: []string{"https://пример.рф"}}, err: `SAN URI must be ASCII: "https://пример.рф"`},
		{san: csr.SubjectAltNames{UPNs: []string{" "}}, err: "SAN UPN must not be empty"},
	}

	for _, tc := range tcases {
		assert.EqualError(t, tc.san.Validate(), tc.err)
		_, err := tc.san.Marshal()
		assert.EqualError(t, err, tc.err)
	}
}

func TestParseSubjectAltNamesErrors(t *testing.T) {
	tcases := []struct {
		der string
		err string
	}{
		{der: "", err: "invalid SAN: malformed GeneralNames"},
		{der: "30038201", err: "invalid SAN: malformed GeneralNames"},
		{der: "300382016100", err: "invalid SAN: malformed GeneralNames"},
		{der: "30028701", err: "invalid SAN: malformed GeneralName"},
		{der: "3004870201", err: "invalid SAN: malformed GeneralNames"},
		{der: "30048702" + "0102", err: "invalid SAN: IP address of 2 bytes"},
		{der: "3004a0020500", err: "invalid SAN: malformed otherName"},
		{der: "300ea00c060a2b060104018237140203", err: "invalid SAN: malformed UPN"},
	}

	for _, tc := range tcases {
		der, err := hex.DecodeString(tc.der)
		require.NoError(t, err)
		_, err = csr.ParseSubjectAltNames(der)
		assert.EqualError(t, err, tc.err, tc.der)
	}

	// other names of unknown type and registeredID are skipped
	der, err := hex.DecodeString("3016a00c06032a0304a0050c0378407888032a0304" + "820161")
	require.NoError(t, err)
	san, err := csr.ParseSubjectAltNames(der)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, san.DNS)
	assert.Empty(t, san.UPNs)
}
