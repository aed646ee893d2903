package extension

import (
	"time"

	"github.com/xraph/grove"

	escrow "github.com/xraph/escrow"
	"github.com/xraph/escrow/plugin"
	"github.com/xraph/escrow/store"
)

// Option configures the Escrow Forge extension.
type Option func(*Extension)

// WithStore sets the store for the escrow engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDB sets the grove database the store backend is built on.
// Config.StoreDriver picks the backend matching the grove driver.
func WithGroveDB(db *grove.DB) Option {
	return func(e *Extension) {
		e.groveDB = db
	}
}

// WithEscrowOption passes an escrow.Option through to the underlying engine.
func WithEscrowOption(opt escrow.Option) Option {
	return func(e *Extension) {
		e.escrowOpts = append(e.escrowOpts, opt)
	}
}

// WithPlugin registers an escrow plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.escrowOpts = append(e.escrowOpts, escrow.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithRefundLockDuration sets how long refunds stay locked.
func WithRefundLockDuration(d time.Duration) Option {
	return func(e *Extension) { e.config.RefundLockDuration = d }
}

// WithChainID sets the EIP-712 domain chain id.
func WithChainID(chainID uint64) Option {
	return func(e *Extension) { e.config.ChainID = chainID }
}

// WithVerifyingContract sets the EIP-712 domain verifying contract address.
func WithVerifyingContract(addr string) Option {
	return func(e *Extension) { e.config.VerifyingContract = addr }
}

// WithStoreDriver selects the grove-backed store: "sqlite", "postgres" or "mongo".
func WithStoreDriver(driver string) Option {
	return func(e *Extension) { e.config.StoreDriver = driver }
}
