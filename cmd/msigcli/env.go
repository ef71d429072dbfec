package main

import (
	"github.com/caarlos0/env/v6"
	"github.com/iov-one/quorum/errors"
)

// config is the environment of every command.
type config struct {
	// Home is the directory where the state database is kept.
	Home string `env:"MSIG_HOME" envDefault:"$HOME/.msig" envExpand:"true"`
	// Key is the default private key file.
	Key string `env:"MSIG_PRIV_KEY" envDefault:"$HOME/.msig.priv.key" envExpand:"true"`
	// LogLevel is one of debug, info, error or none.
	LogLevel string `env:"MSIG_LOG_LEVEL" envDefault:"error"`
	// Restricted makes the local ledger refuse everything that was not
	// granted explicitly.
	Restricted bool `env:"MSIG_RESTRICTED"`
}

func loadConfig() (config, error) {
	var c config
	if err := env.Parse(&c); err != nil {
		return c, errors.Wrap(errors.ErrInput, err.Error())
	}
	if c.Home == "" {
		return c, errors.Wrap(errors.ErrEmpty, "MSIG_HOME")
	}
	return c, nil
}
