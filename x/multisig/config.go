package multisig

import (
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/iov-one/quorum/errors"
)

// Config holds the engine settings.
type Config struct {
	// DefaultTTL is assigned to accounts registered without a
	// transaction TTL.
	DefaultTTL time.Duration `env:"MSIG_DEFAULT_TTL" envDefault:"1h"`
	// SubQuorumExpiry decides how long partial approvals of nested
	// accounts are counted.
	SubQuorumExpiry ExpiryPolicy `env:"MSIG_SUBQUORUM_EXPIRY" envDefault:"inherit"`
	// SweepInterval is how often RunSweeper evicts stale proposals.
	SweepInterval time.Duration `env:"MSIG_SWEEP_INTERVAL" envDefault:"1m"`
	// TerminalRetention is how long settled proposals are kept.
	TerminalRetention time.Duration `env:"MSIG_TERMINAL_RETENTION" envDefault:"24h"`
	// MaxDepth limits the number of levels of an account hierarchy.
	MaxDepth int `env:"MSIG_MAX_DEPTH" envDefault:"8"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:        DefaultTransactionTTL,
		SubQuorumExpiry:   ExpiryInherit,
		SweepInterval:     time.Minute,
		TerminalRetention: 24 * time.Hour,
		MaxDepth:          DefaultMaxDepth,
	}
}

// LoadConfig reads the configuration from the process environment.
func LoadConfig() (Config, error) {
	return loadConfig()
}

// LoadConfigFrom reads the configuration from given variables instead of
// the process environment.
func LoadConfigFrom(environ map[string]string) (Config, error) {
	return loadConfig(env.Options{Environment: environ})
}

func loadConfig(opts ...env.Options) (Config, error) {
	var c Config
	if err := env.Parse(&c, opts...); err != nil {
		return c, errors.Wrap(errors.ErrInput, err.Error())
	}
	return c, c.Validate()
}

// Validate returns an error if the configuration cannot be used.
func (c Config) Validate() error {
	if c.DefaultTTL < time.Second {
		return errors.Wrap(errors.ErrInput, "default ttl must be at least one second")
	}
	if err := c.SubQuorumExpiry.Validate(); err != nil {
		return errors.Wrap(err, "subquorum expiry")
	}
	if c.SweepInterval <= 0 {
		return errors.Wrap(errors.ErrInput, "sweep interval must be positive")
	}
	if c.TerminalRetention < 0 {
		return errors.Wrap(errors.ErrInput, "terminal retention must not be negative")
	}
	if c.MaxDepth < 1 {
		return errors.Wrap(errors.ErrInput, "max depth must be at least 1")
	}
	return nil
}
