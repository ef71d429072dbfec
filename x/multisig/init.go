package multisig

import (
	"time"

	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/errors"
)

// Initializer fulfils the Initializer interface to load data from the genesis
// file
type Initializer struct {
	// MaxDepth and DefaultTTL are used to register the accounts. Zero
	// values mean the defaults.
	MaxDepth   int
	DefaultTTL time.Duration
}

var _ quorum.Initializer = (*Initializer)(nil)

// FromGenesis registers all accounts listed under the "multisig" key and
// stores all permission grants listed under the "permissions" key. Accounts
// are registered in order, so a nested account must be listed before the
// accounts that use it.
func (i *Initializer) FromGenesis(opts quorum.Options, params quorum.GenesisParams, kv quorum.KVStore) error {
	var accounts []struct {
		Address     quorum.Address `json:"address"`
		Signatories []Signatory    `json:"signatories"`
		Quorum      uint32         `json:"quorum"`
		// TransactionTTL uses the human readable form, for
		// example "1d 12h".
		TransactionTTL string `json:"transaction_ttl"`
	}
	if err := opts.ReadOptions("multisig", &accounts); err != nil {
		return err
	}

	registry := NewRegistry(i.MaxDepth, i.DefaultTTL)
	for n, a := range accounts {
		acc := Account{
			Address:     a.Address,
			Signatories: a.Signatories,
			Quorum:      a.Quorum,
		}
		if a.TransactionTTL != "" {
			ttl, err := quorum.ParseDuration(a.TransactionTTL)
			if err != nil {
				return errors.Wrapf(err, "account #%d ttl", n)
			}
			acc.TransactionTTL = ttl
		}
		if _, err := registry.Register(kv, params.Time, &acc); err != nil {
			return errors.Wrapf(err, "cannot register #%d account", n)
		}
	}

	var grants []Grant
	if err := opts.ReadOptions("permissions", &grants); err != nil {
		return err
	}
	bucket := NewGrantBucket()
	for n, g := range grants {
		g := g
		if err := bucket.Put(kv, g.Address, &g); err != nil {
			return errors.Wrapf(err, "cannot save #%d grant", n)
		}
	}
	return nil
}
