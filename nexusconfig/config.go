// Package nexusconfig is the on-disk configuration surface for a nexus
// process: the validator set, cache sizing, and storage location. Grounded
// on helper/swarm/config.go's naoina/toml loading convention (a
// package-level toml.Config with a pass-through field-name mapper, a
// default-seeded struct decoded over with tomlSettings.NewDecoder, and a
// MissingField reporter instead of toml's default silent-discard).
package nexusconfig

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"unicode"

	"github.com/naoina/toml"

	"github.com/5uwifi/nexuschain/common"
)

var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		link := ""
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", check nexusconfig.Config for available fields")
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// ValidatorEntry names one validator's address by its canonical name,
// hashed with common.AddressFromName to recover the Address the rotation
// table uses.
type ValidatorEntry struct {
	Name string
}

// Config is the nexus process's full on-disk configuration.
type Config struct {
	// DataDir is where the nexus's root candb.Database lives. Empty means
	// run against an in-memory database.
	DataDir string `toml:",omitempty"`

	// CacheSizeMB selects the backend: negative selects the volatile
	// in-memory backend outright, zero takes the backend's default,
	// positive sizes the on-disk backend's block cache.
	CacheSizeMB int `toml:",omitempty"`

	// Handles bounds the number of open file descriptors the on-disk
	// backend may hold, per candb.NewLevelDatabase's contract.
	Handles int `toml:",omitempty"`

	// Validators is the ordered validator list backing component H's
	// round-robin rotation. Order is significant: it is the rotation
	// sequence.
	Validators []ValidatorEntry

	// RotationWindow is reserved for a future recency-exclusion window;
	// rotation itself is the pure deterministic formula in
	// consensus/epoch and does not currently consult this field.
	RotationWindow int `toml:",omitempty"`
}

// DefaultConfig is the configuration a nexus starts from before any file
// or environment override is applied.
func DefaultConfig() *Config {
	return &Config{
		CacheSizeMB:    16,
		Handles:        16,
		RotationWindow: 1,
	}
}

// ValidatorAddresses resolves every configured validator's canonical name
// into its Address, in configured order.
func (c *Config) ValidatorAddresses() []common.Address {
	out := make([]common.Address, len(c.Validators))
	for i, v := range c.Validators {
		out[i] = common.AddressFromName(v.Name)
	}
	return out
}

// LoadFile decodes a TOML configuration file over DefaultConfig's values:
// entries absent from the file keep their default.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(f).Decode(cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(path + ", " + err.Error())
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteFile serializes cfg as TOML to path, the inverse of LoadFile.
func WriteFile(path string, cfg *Config) error {
	out, err := tomlSettings.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0644)
}
