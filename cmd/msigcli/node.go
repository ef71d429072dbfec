package main

import (
	"os"

	"github.com/benbjohnson/clock"
	"github.com/iov-one/quorum/errors"
	"github.com/iov-one/quorum/store"
	"github.com/iov-one/quorum/store/iavl"
	"github.com/iov-one/quorum/x/multisig"
	"github.com/tendermint/tendermint/libs/log"
)

// node is the local multisig state together with the engine operating on
// it. Changes are persisted only when commit is called.
type node struct {
	db     iavl.CommitStore
	ledger *multisig.LocalLedger
	engine *multisig.Engine
	logger log.Logger
}

func openNode(conf config) (*node, error) {
	logger, err := newLogger(conf.LogLevel)
	if err != nil {
		return nil, err
	}
	engineConf, err := multisig.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(conf.Home, 0700); err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "cannot create home directory: %s", err)
	}
	db, err := iavl.NewCommitStore(conf.Home, "msig")
	if err != nil {
		return nil, err
	}

	defaults := multisig.AllPermissions
	if conf.Restricted {
		defaults = multisig.Permissions{}
	}
	// The ledger and the engine must share the synchronized store.
	ss := store.NewSyncStore(db.Adapter())
	ledger := multisig.NewLocalLedger(ss, clock.New(), defaults)
	engine, err := multisig.NewEngine(ss, ledger, engineConf, multisig.WithLogger(logger))
	if err != nil {
		db.Close()
		return nil, err
	}
	return &node{
		db:     db,
		ledger: ledger,
		engine: engine,
		logger: logger,
	}, nil
}

// initialized returns true if any state was committed already.
func (n *node) initialized() (bool, error) {
	id, err := n.db.LatestVersion()
	if err != nil {
		return false, err
	}
	return id.Version > 0, nil
}

func (n *node) commit() error {
	id, err := n.db.Commit()
	if err != nil {
		return err
	}
	n.logger.Debug("state committed", "version", id.Version, "hash", id.Hash)
	return nil
}

func (n *node) Close() {
	n.db.Close()
}

// newLogger returns a logger writing to stderr that is filtered by level.
// Level "none" disables logging.
func newLogger(level string) (log.Logger, error) {
	if level == "none" {
		return log.NewNopLogger(), nil
	}
	opt, err := log.AllowLevel(level)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	return log.NewFilter(log.NewTMLogger(log.NewSyncWriter(os.Stderr)), opt), nil
}
