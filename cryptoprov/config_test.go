package cryptoprov_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/effective-security/pivcsr/cryptoprov"
	"github.com/effective-security/x/guid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTokenConfig(t *testing.T) {
	_, err := cryptoprov.LoadTokenConfig("testdata/not_found.yaml")
	assert.EqualError(t, err, "open testdata/not_found.yaml: no such file or directory")

	cfg, err := cryptoprov.LoadTokenConfig("testdata/ykcs11.yaml")
	require.NoError(t, err)
	assert.Equal(t, "Yubico", cfg.Manufacturer())
	assert.Equal(t, "/usr/lib/x86_64-linux-gnu/libykcs11.so", cfg.Path())
	assert.Equal(t, "12345678", cfg.TokenSerial())
	assert.Empty(t, cfg.TokenLabel())
	assert.Equal(t, "0102030405060708010203040506070801020304050607aa", cfg.ManagementKey())
	assert.NoError(t, cfg.Validate())

	cfg, err = cryptoprov.LoadTokenConfig("testdata/ykcs11.json")
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/lib/libykcs11.dylib", cfg.Path())
	assert.Equal(t, "YubiKey PIV #12345678", cfg.TokenLabel())
	// defaults
	assert.Equal(t, cryptoprov.DefaultManagementKey, cfg.ManagementKey())

	_, err = cryptoprov.LoadTokenConfig("testdata/missing_key.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration: testdata/missing_key.yaml: unable to load management key")
}

func TestLoadTokenConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	for _, ext := range []string{".json", ".yaml"} {
		file := filepath.Join(dir, guid.MustCreate()+ext)
		require.NoError(t, os.WriteFile(file, []byte("{not valid"), 0644))
		_, err := cryptoprov.LoadTokenConfig(file)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode file: "+file)
	}
}

func TestConfig_Merge(t *testing.T) {
	cfg := cryptoprov.DefaultConfig()
	assert.Equal(t, cryptoprov.DefaultManufacturer, cfg.Manufacturer())
	assert.Equal(t, cryptoprov.DefaultModulePath(), cfg.Path())

	require.NoError(t, cfg.Merge(nil))
	require.NoError(t, cfg.Merge(&cryptoprov.Config{
		Dir:    "/opt/lib/libykcs11.so",
		Serial: "42",
	}))
	assert.Equal(t, "/opt/lib/libykcs11.so", cfg.Path())
	assert.Equal(t, "42", cfg.TokenSerial())
	assert.Equal(t, cryptoprov.DefaultManufacturer, cfg.Manufacturer())
	assert.Equal(t, cryptoprov.DefaultManagementKey, cfg.ManagementKey())
}

func TestConfig_Validate(t *testing.T) {
	tcases := []struct {
		cfg cryptoprov.Config
		err string
	}{
		{cryptoprov.Config{Dir: "lib.so", MgmtKey: cryptoprov.DefaultManagementKey}, ""},
		{cryptoprov.Config{Dir: "lib.so", MgmtKey: "00112233445566778899aabbccddeeff"}, ""},
		{cryptoprov.Config{MgmtKey: cryptoprov.DefaultManagementKey}, "PKCS#11 module path is not specified"},
		{cryptoprov.Config{Dir: "lib.so", MgmtKey: "xyz"}, "management key must be hex encoded"},
		{cryptoprov.Config{Dir: "lib.so", MgmtKey: "0102"}, "management key must be 16, 24 or 32 bytes, got 2"},
		{cryptoprov.Config{Dir: "lib.so", MgmtKey: "file:key.txt"}, "management key file is not resolved: key.txt"},
	}
	for _, tc := range tcases {
		err := tc.cfg.Validate()
		if tc.err == "" {
			assert.NoError(t, err)
		} else {
			assert.EqualError(t, err, tc.err)
		}
	}
}

func TestConfig_ResolveManagementKey(t *testing.T) {
	cfg := &cryptoprov.Config{MgmtKey: "file:mgmt.key"}
	require.NoError(t, cfg.ResolveManagementKey("testdata"))
	assert.Equal(t, "0102030405060708010203040506070801020304050607aa", cfg.ManagementKey())

	// resolved value is kept
	require.NoError(t, cfg.ResolveManagementKey("testdata"))
	assert.Equal(t, "0102030405060708010203040506070801020304050607aa", cfg.ManagementKey())

	cfg = &cryptoprov.Config{MgmtKey: "file:" + guid.MustCreate()}
	assert.Error(t, cfg.ResolveManagementKey(t.TempDir()))
}
