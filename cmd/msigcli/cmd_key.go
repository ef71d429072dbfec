package main

import (
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/crypto"
	"golang.org/x/crypto/ed25519"
)

func cmdKeygen(input io.Reader, output io.Writer, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Generate a new private key and print the address it controls.

When successful a new file with binary content containing private key is
created. This command fails if the private key file already exists.
`)
		fl.PrintDefaults()
	}
	var (
		keyPathFl = fl.String("key", conf.Key,
			"Path to the private key file. You can use MSIG_PRIV_KEY environment variable to set it.")
	)
	fl.Parse(args)

	if _, err := os.Stat(*keyPathFl); !os.IsNotExist(err) {
		// Do not allow to overwrite already existing private key. User
		// must manually delete it first to ensure we do not delete
		// such crucial data by an accident (bad command usage).
		return fmt.Errorf("private key file %q already exists, delete this file and try again", *keyPathFl)
	}

	priv := crypto.GenPrivKeyEd25519()

	fd, err := os.OpenFile(*keyPathFl, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("cannot create private key file: %s", err)
	}
	defer fd.Close()

	if _, err := fd.Write(priv); err != nil {
		return fmt.Errorf("cannot write private key: %s", err)
	}
	if err := fd.Close(); err != nil {
		return fmt.Errorf("cannot close private key file: %s", err)
	}
	_, err = fmt.Fprintln(output, priv.PublicKey().Address())
	return err
}

func cmdKeyaddr(input io.Reader, output io.Writer, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Print out a hex-address associated with your private key.
`)
		fl.PrintDefaults()
	}
	var (
		keyPathFl = fl.String("key", conf.Key,
			"Path to the private key file. You can use MSIG_PRIV_KEY environment variable to set it.")
		bechFl = fl.Bool("bech32", false, "Print the bech32 form of the address.")
	)
	fl.Parse(args)

	addr, err := keyAddress(*keyPathFl)
	if err != nil {
		return err
	}
	if *bechFl {
		_, err = fmt.Fprintln(output, addr.Bech32())
		return err
	}
	_, err = fmt.Fprintln(output, addr)
	return err
}

// keyAddress returns the address of the private key stored in given file.
func keyAddress(path string) (quorum.Address, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read private key file: %s", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key length: %d", len(raw))
	}
	return crypto.PrivateKey(raw).PublicKey().Address(), nil
}
