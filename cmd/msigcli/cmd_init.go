package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/x/multisig"
)

func cmdInit(input io.Reader, output io.Writer, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Initialize the state from a genesis file.

Accounts listed under the "multisig" key of the app options are registered in
order, so a nested account must be listed before the accounts using it.
Permission grants are read from the "permissions" key. This command fails if
the state was initialized already.
`)
		fl.PrintDefaults()
	}
	var (
		genesisFl = fl.String("genesis", "genesis.json", "Path to the genesis file.")
	)
	fl.Parse(args)

	genesis, err := quorum.LoadGenesis(*genesisFl)
	if err != nil {
		return err
	}

	n, err := openNode(conf)
	if err != nil {
		return err
	}
	defer n.Close()

	if ok, err := n.initialized(); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("state in %q is already initialized", conf.Home)
	}

	params := quorum.GenesisParams{Time: genesis.Time}
	if params.Time == 0 {
		params.Time = quorum.AsUnixTime(time.Now())
	}
	engineConf := n.engine.Config()
	initializer := quorum.ChainInitializers(&multisig.Initializer{
		MaxDepth:   engineConf.MaxDepth,
		DefaultTTL: engineConf.DefaultTTL,
	})

	cache := n.engine.Store().CacheWrap()
	if err := initializer.FromGenesis(genesis.AppOptions, params, cache); err != nil {
		cache.Discard()
		return err
	}
	if err := cache.Write(); err != nil {
		return err
	}
	return n.commit()
}
