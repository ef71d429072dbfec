package quorum

import (
	"encoding/json"
	"io/ioutil"

	"github.com/iov-one/quorum/errors"
)

// Genesis is the initial state of a store. Each extension reads its own
// section of the options.
type Genesis struct {
	Time       UnixTime `json:"genesis_time"`
	AppOptions Options  `json:"app_options"`
}

// LoadGenesis reads a genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	var g Genesis
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "cannot parse genesis: %s", err)
	}
	return &g, nil
}

// Options are the app options
// Each extension can look up it's key and parse the json as desired
type Options map[string]json.RawMessage

// ReadOptions reads the values stored under a given key,
// and parses the json into the given obj.
// Returns an error if it cannot parse.
// Noop and no error if key is missing
func (o Options) ReadOptions(key string, obj interface{}) error {
	msg := o[key]
	if len(msg) == 0 {
		return nil
	}
	if err := json.Unmarshal(msg, obj); err != nil {
		return errors.Wrapf(errors.ErrInput, "%s: %s", key, err)
	}
	return nil
}

// GenesisParams are the values of the genesis file that are not extension
// specific.
type GenesisParams struct {
	Time UnixTime
}

// Initializer implementations are used to initialize
// extensions from genesis file contents
type Initializer interface {
	FromGenesis(Options, GenesisParams, KVStore) error
}

// ChainInitializers lets you initialize many extensions with one function
func ChainInitializers(inits ...Initializer) Initializer {
	return chainInitializer(inits)
}

type chainInitializer []Initializer

// FromGenesis will pass opts to all Initializers in the list,
// aborting at the first error.
func (c chainInitializer) FromGenesis(opts Options, params GenesisParams, kv KVStore) error {
	for _, i := range c {
		if err := i.FromGenesis(opts, params, kv); err != nil {
			return err
		}
	}
	return nil
}
