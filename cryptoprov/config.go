package cryptoprov

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jinzhu/copier"
	"gopkg.in/yaml.v3"
)

// DefaultManufacturer is the manufacturer of the default PKCS#11 module
const DefaultManufacturer = "Yubico"

// DefaultManagementKey is the factory default PIV management key
const DefaultManagementKey = "010203040506070801020304050607080102030405060708"

// TokenConfig holds PKCS#11 configuration information.
//
// A token may be identified either by serial number or label.  If
// both are specified then both must match.
type TokenConfig interface {
	// Manufacturer name of the manufacturer
	Manufacturer() string

	// Full path to PKCS#11 library
	Path() string

	// Token serial number
	TokenSerial() string

	// Token label
	TokenLabel() string

	// ManagementKey is hex encoded PIV management key, used to generate keys.
	// If it's prefixed with `file:`, then it will be loaded from the file.
	ManagementKey() string
}

// Config implements TokenConfig
type Config struct {
	Man     string `json:"Manufacturer"  yaml:"manufacturer"`
	Dir     string `json:"Path"          yaml:"path"`
	Serial  string `json:"TokenSerial"   yaml:"token_serial"`
	Label   string `json:"TokenLabel"    yaml:"token_label"`
	MgmtKey string `json:"ManagementKey" yaml:"management_key"`
}

// DefaultConfig returns configuration of Yubico PKCS#11 module
func DefaultConfig() *Config {
	return &Config{
		Man:     DefaultManufacturer,
		Dir:     DefaultModulePath(),
		MgmtKey: DefaultManagementKey,
	}
}

// DefaultModulePath returns the default location of ykcs11 module
func DefaultModulePath() string {
	switch runtime.GOOS {
	case "darwin":
		return "/usr/local/lib/libykcs11.dylib"
	case "windows":
		return "libykcs11.dll"
	}
	return "libykcs11.so"
}

// Manufacturer name of the manufacturer
func (c *Config) Manufacturer() string {
	return c.Man
}

// Path to PKCS#11 library
func (c *Config) Path() string {
	return c.Dir
}

// TokenSerial number
func (c *Config) TokenSerial() string {
	return c.Serial
}

// TokenLabel of the token
func (c *Config) TokenLabel() string {
	return c.Label
}

// ManagementKey is hex encoded PIV management key
func (c *Config) ManagementKey() string {
	return c.MgmtKey
}

// Merge overrides values with non-empty values from other
func (c *Config) Merge(other *Config) error {
	if other == nil {
		return nil
	}
	err := copier.CopyWithOption(c, other, copier.Option{IgnoreEmpty: true})
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Validate returns error if the configuration is invalid
func (c *Config) Validate() error {
	if c.Dir == "" {
		return errors.New("PKCS#11 module path is not specified")
	}
	if strings.HasPrefix(c.MgmtKey, "file:") {
		return errors.Errorf("management key file is not resolved: %s", c.MgmtKey[5:])
	}
	key, err := hex.DecodeString(c.MgmtKey)
	if err != nil {
		return errors.New("management key must be hex encoded")
	}
	switch len(key) {
	case 16, 24, 32:
	default:
		return errors.Errorf("management key must be 16, 24 or 32 bytes, got %d", len(key))
	}
	return nil
}

// ResolveManagementKey loads management key from file,
// if it's prefixed with `file:`
func (c *Config) ResolveManagementKey(baseDir string) error {
	if !strings.HasPrefix(c.MgmtKey, "file:") {
		return nil
	}
	keyfile := c.MgmtKey[5:]

	// try to resolve key file
	cwd, _ := os.Getwd()
	folders := []string{
		"",
		cwd,
		baseDir,
	}

	for _, folder := range folders {
		if resolved, err := resolve(keyfile, folder); err == nil {
			keyfile = resolved
			break
		}
		logger.Warningf("reason=resolve, keyfile=%q, basedir=%q", keyfile, folder)
	}

	kb, err := os.ReadFile(keyfile)
	if err != nil {
		return errors.WithMessagef(err, "unable to load management key")
	}
	c.MgmtKey = strings.TrimSpace(string(kb))
	return nil
}

// LoadTokenConfig loads PKCS#11 token configuration,
// the values not specified in the file are set to defaults
func LoadTokenConfig(filename string) (*Config, error) {
	cfr, err := os.Open(filename)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer cfr.Close()
	tokenConfig := new(Config)

	if strings.HasSuffix(filename, ".json") {
		err = json.NewDecoder(cfr).Decode(tokenConfig)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to decode file: %s", filename)
		}
	} else {
		err = yaml.NewDecoder(cfr).Decode(tokenConfig)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to decode file: %s", filename)
		}
	}

	err = tokenConfig.ResolveManagementKey(filepath.Dir(filename))
	if err != nil {
		return nil, errors.WithMessagef(err, "configuration: %s", filename)
	}

	cfg := DefaultConfig()
	if err = cfg.Merge(tokenConfig); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolve returns absolute file name relative to baseDir,
// or NewNotFound error.
func resolve(file string, baseDir string) (resolved string, err error) {
	if file == "" {
		return file, nil
	}
	if filepath.IsAbs(file) {
		resolved = file
	} else if baseDir != "" {
		resolved = filepath.Join(baseDir, file)
	}
	if _, err := os.Stat(resolved); os.IsNotExist(err) {
		return resolved, errors.WithMessagef(err, "not found: %v", resolved)
	}
	return resolved, nil
}
