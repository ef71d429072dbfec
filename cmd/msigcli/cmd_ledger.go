package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/iov-one/quorum/x/multisig"
)

func cmdGrant(input io.Reader, output io.Writer, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Set permissions of an address in the local ledger. Permissions not granted are
revoked. Addresses without a grant have all permissions, unless
MSIG_RESTRICTED is set.
`)
		fl.PrintDefaults()
	}
	var (
		addressFl  = flAddress(fl, "address", "", "Address the permissions are granted to.")
		registerFl = fl.Bool("register", false, "Allow registering multisig accounts.")
		proposeFl  = fl.Bool("propose", false, "Allow creating proposals.")
		executeFl  = fl.Bool("execute", false, "Allow executing instructions as this account.")
	)
	fl.Parse(args)

	if len(*addressFl) == 0 {
		flagDie("address is required")
	}

	n, err := openNode(conf)
	if err != nil {
		return err
	}
	defer n.Close()

	perms := multisig.Permissions{
		CanRegisterMultisig: *registerFl,
		CanProposeMultisig:  *proposeFl,
		CanExecute:          *executeFl,
	}
	if err := n.ledger.Grant(*addressFl, perms); err != nil {
		return err
	}
	if err := n.commit(); err != nil {
		return err
	}
	return writeJSON(output, multisig.Grant{Address: *addressFl, Permissions: perms})
}

func cmdJournal(input io.Reader, output io.Writer, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Print all instruction sets executed by the local ledger, oldest first. Each
entry is written in JSON format in a separate line.
`)
		fl.PrintDefaults()
	}
	fl.Parse(args)

	n, err := openNode(conf)
	if err != nil {
		return err
	}
	defer n.Close()

	entries, err := n.ledger.Journal()
	if err != nil {
		return err
	}
	for _, e := range entries {
		view := struct {
			multisig.JournalEntry
			InstructionsHash string `json:"instructions_hash"`
		}{
			JournalEntry:     e,
			InstructionsHash: multisig.FormatHash(e.InstructionsHash),
		}
		// Compact form, one entry per line.
		if err := json.NewEncoder(output).Encode(view); err != nil {
			return err
		}
	}
	return nil
}
