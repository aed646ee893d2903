package extension

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	escrow "github.com/xraph/escrow"
	"github.com/xraph/escrow/signature"
)

// Store driver names accepted by Config.StoreDriver.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config holds the Escrow extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.escrow" or "escrow" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// RefundLockDuration is how long a refund stays locked before
	// ProcessRefunds may release it (default: 2h).
	RefundLockDuration time.Duration `json:"refund_lock_duration" mapstructure:"refund_lock_duration" yaml:"refund_lock_duration"`

	// DomainName is the EIP-712 domain name used to verify delivery claims.
	DomainName string `json:"domain_name" mapstructure:"domain_name" yaml:"domain_name"`

	// DomainVersion is the EIP-712 domain version.
	DomainVersion string `json:"domain_version" mapstructure:"domain_version" yaml:"domain_version"`

	// ChainID is the EIP-712 domain chain id (default: 1).
	ChainID uint64 `json:"chain_id" mapstructure:"chain_id" yaml:"chain_id"`

	// VerifyingContract is the hex address bound into the EIP-712 domain.
	VerifyingContract string `json:"verifying_contract" mapstructure:"verifying_contract" yaml:"verifying_contract"`

	// StoreDriver selects the backend built around a grove.DB passed with
	// WithGroveDB: one of "sqlite", "postgres" or "mongo". Without a grove.DB
	// the in-memory store is used.
	StoreDriver string `json:"store_driver" mapstructure:"store_driver" yaml:"store_driver"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	d := signature.DefaultDomain()
	return Config{
		RefundLockDuration: 2 * time.Hour,
		DomainName:         d.Name,
		DomainVersion:      d.Version,
		ChainID:            d.ChainID,
		StoreDriver:        DriverMemory,
	}
}

// Domain returns the signing domain described by the config.
func (c Config) Domain() (signature.Domain, error) {
	d := signature.Domain{
		Name:    c.DomainName,
		Version: c.DomainVersion,
		ChainID: c.ChainID,
	}
	if c.VerifyingContract != "" {
		if !common.IsHexAddress(c.VerifyingContract) {
			return d, escrow.ValidationError{
				Field:   "verifying_contract",
				Message: fmt.Sprintf("%q is not a hex address", c.VerifyingContract),
			}
		}
		d.VerifyingContract = common.HexToAddress(c.VerifyingContract)
	}
	return d, nil
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.RefundLockDuration < 0 {
		return escrow.ValidationError{
			Field:   "refund_lock_duration",
			Message: fmt.Sprintf("must not be negative, got %s", c.RefundLockDuration),
		}
	}
	switch c.StoreDriver {
	case "", DriverMemory, DriverSQLite, DriverPostgres, DriverMongo:
	default:
		return escrow.ValidationError{
			Field:   "store_driver",
			Message: fmt.Sprintf("unknown driver %q", c.StoreDriver),
		}
	}
	_, err := c.Domain()
	return err
}

// LoadConfigFile reads a standalone YAML file holding an escrow config block.
// Both a bare block and one nested under an "escrow" key are accepted.
// Zero-valued fields are filled with defaults.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return Config{}, fmt.Errorf("escrow: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML config bytes. See LoadConfigFile.
func ParseConfig(data []byte) (Config, error) {
	var wrapped struct {
		Escrow *Config `yaml:"escrow"`
	}
	if err := yaml.Unmarshal(data, &wrapped); err != nil {
		return Config{}, fmt.Errorf("escrow: parse config: %w", err)
	}

	var cfg Config
	if wrapped.Escrow != nil {
		cfg = *wrapped.Escrow
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("escrow: parse config: %w", err)
	}

	cfg = mergeWithDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.RefundLockDuration == 0 {
		cfg.RefundLockDuration = defaults.RefundLockDuration
	}
	if cfg.DomainName == "" {
		cfg.DomainName = defaults.DomainName
	}
	if cfg.DomainVersion == "" {
		cfg.DomainVersion = defaults.DomainVersion
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = defaults.ChainID
	}
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = defaults.StoreDriver
	}
	return cfg
}
