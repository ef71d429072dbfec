package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/x/multisig"
)

// flagDie terminates the program when an invalid flag value was given. It is
// a variable so that tests can observe it.
var flagDie = func(description string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, description, args...)
	fmt.Fprintln(os.Stderr)
	os.Exit(2)
}

// flAddress returns a value that is being initialized with given default value
// and optionally overwritten by a command line argument if provided. This
// function follows Go's flag package convention.
// If given value cannot be deserialized to required type, process is
// terminated.
func flAddress(fl *flag.FlagSet, name, defaultVal, usage string) *quorum.Address {
	var a quorum.Address
	if defaultVal != "" {
		var err error
		a, err = quorum.ParseAddress(defaultVal)
		if err != nil {
			flagDie("Cannot parse %q address flag value. %s", name, err)
		}
	}
	fl.Var(&a, name, usage)
	return &a
}

// flHash returns an instructions hash value. Hex encoding is expected.
func flHash(fl *flag.FlagSet, name, usage string) *flaghash {
	var h flaghash
	fl.Var(&h, name, usage)
	return &h
}

type flaghash []byte

func (h flaghash) String() string {
	return multisig.FormatHash(h)
}

func (h *flaghash) Set(raw string) error {
	val, err := multisig.ParseHash(raw)
	if err != nil {
		return err
	}
	*h = val
	return nil
}

// flHex returns a hex encoded binary value.
func flHex(fl *flag.FlagSet, name, defaultVal, usage string) *flagbytes {
	var b flagbytes
	if defaultVal != "" {
		if err := b.Set(defaultVal); err != nil {
			flagDie("Cannot parse %q hex encoded flag value. %s", name, err)
		}
	}
	fl.Var(&b, name, usage)
	return &b
}

type flagbytes []byte

func (b flagbytes) String() string {
	return hex.EncodeToString(b)
}

func (b *flagbytes) Set(raw string) error {
	val, err := hex.DecodeString(raw)
	if err != nil {
		return err
	}
	*b = val
	return nil
}

// flDuration returns a duration value that accepts the human readable
// format, for example "1d 12h".
func flDuration(fl *flag.FlagSet, name, defaultVal, usage string) *flagduration {
	var d flagduration
	if defaultVal != "" {
		if err := d.Set(defaultVal); err != nil {
			flagDie("Cannot parse %q duration flag value. %s", name, err)
		}
	}
	fl.Var(&d, name, usage)
	return &d
}

type flagduration time.Duration

func (d flagduration) String() string {
	return quorum.FormatDuration(time.Duration(d))
}

func (d *flagduration) Set(raw string) error {
	val, err := quorum.ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = flagduration(val)
	return nil
}

// flAddresses returns a comma separated list of addresses.
func flAddresses(fl *flag.FlagSet, name, usage string) *flagaddresses {
	var a flagaddresses
	fl.Var(&a, name, usage)
	return &a
}

type flagaddresses []quorum.Address

func (a flagaddresses) String() string {
	s := make([]string, len(a))
	for i, addr := range a {
		s[i] = addr.String()
	}
	return strings.Join(s, ",")
}

func (a *flagaddresses) Set(raw string) error {
	var res flagaddresses
	for _, chunk := range strings.Split(raw, ",") {
		addr, err := quorum.ParseAddress(strings.TrimSpace(chunk))
		if err != nil {
			return err
		}
		res = append(res, addr)
	}
	*a = res
	return nil
}

// flWeights returns a comma separated list of signatory weights.
func flWeights(fl *flag.FlagSet, name, usage string) *flagweights {
	var w flagweights
	fl.Var(&w, name, usage)
	return &w
}

type flagweights []multisig.Weight

func (w flagweights) String() string {
	s := make([]string, len(w))
	for i, weight := range w {
		s[i] = strconv.Itoa(int(weight))
	}
	return strings.Join(s, ",")
}

func (w *flagweights) Set(raw string) error {
	var res flagweights
	for _, chunk := range strings.Split(raw, ",") {
		n, err := strconv.ParseUint(strings.TrimSpace(chunk), 10, 8)
		if err != nil {
			return fmt.Errorf("invalid weight %q: %s", chunk, err)
		}
		weight := multisig.Weight(n)
		if err := weight.Validate(); err != nil {
			return err
		}
		res = append(res, weight)
	}
	*w = res
	return nil
}
