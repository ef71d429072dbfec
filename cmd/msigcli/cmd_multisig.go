package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/iov-one/quorum/errors"
	"github.com/iov-one/quorum/x/multisig"
)

func cmdRegister(input io.Reader, output io.Writer, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Register a new multisig account. Signatories and their weights are given as
two comma separated lists of the same length, with at least two entries. A
signatory can be another multisig account, registered earlier.

The registered account is printed in JSON format.
`)
		fl.PrintDefaults()
	}
	var (
		keyPathFl     = fl.String("key", conf.Key, "Path to the private key file of the registrant.")
		accountFl     = flAddress(fl, "account", "", "Address of the new multisig account.")
		signatoriesFl = flAddresses(fl, "signatories", "Comma separated signatory addresses.")
		weightsFl     = flWeights(fl, "weights", "Comma separated signatory weights, each between 1 and 255.")
		quorumFl      = fl.Uint("quorum", 1, "Weight required to execute a proposal.")
		ttlFl         = flDuration(fl, "ttl", "", `Default lifetime of a proposal, for example "1d 12h". Defaults to MSIG_DEFAULT_TTL.`)
	)
	fl.Parse(args)

	if len(*accountFl) == 0 {
		flagDie("account address is required")
	}
	if len(*signatoriesFl) < 2 {
		flagDie("at least two signatories are required")
	}
	if len(*signatoriesFl) != len(*weightsFl) {
		flagDie("got %d signatories and %d weights", len(*signatoriesFl), len(*weightsFl))
	}
	if *quorumFl == 0 || *quorumFl > math.MaxUint16 {
		flagDie("quorum must be between 1 and %d", math.MaxUint16)
	}

	registrant, err := keyAddress(*keyPathFl)
	if err != nil {
		return err
	}
	acc := multisig.Account{
		Address:        *accountFl,
		Quorum:         uint32(*quorumFl),
		TransactionTTL: time.Duration(*ttlFl),
	}
	for i, addr := range *signatoriesFl {
		acc.Signatories = append(acc.Signatories, multisig.Signatory{
			Address: addr,
			Weight:  (*weightsFl)[i],
		})
	}

	n, err := openNode(conf)
	if err != nil {
		return err
	}
	defer n.Close()

	registered, err := n.engine.Register(context.Background(), registrant, &acc)
	if err != nil {
		return err
	}
	if err := n.commit(); err != nil {
		return err
	}
	return writeJSON(output, registered)
}

func cmdPropose(input io.Reader, output io.Writer, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Read a JSON array of instructions from the input and propose them on behalf of
a multisig account. The proposer approves the proposal right away.

The instructions hash identifying the proposal is printed. If the proposer
alone reaches the quorum, the instructions are executed.
`)
		fl.PrintDefaults()
	}
	var (
		keyPathFl = fl.String("key", conf.Key, "Path to the private key file of the proposer.")
		accountFl = flAddress(fl, "account", "", "Address of the multisig account.")
		ttlFl     = flDuration(fl, "ttl", "", `Lifetime of the proposal, for example "12h". Defaults to the account TTL.`)
	)
	fl.Parse(args)

	if len(*accountFl) == 0 {
		flagDie("account address is required")
	}

	var instructions []multisig.Instruction
	if err := json.NewDecoder(input).Decode(&instructions); err != nil {
		return fmt.Errorf("cannot decode instructions: %s", err)
	}
	proposer, err := keyAddress(*keyPathFl)
	if err != nil {
		return err
	}

	n, err := openNode(conf)
	if err != nil {
		return err
	}
	defer n.Close()

	hash, res, err := n.engine.Propose(context.Background(), *accountFl, proposer, instructions, time.Duration(*ttlFl))
	if err := commitAfter(n, err); err != nil {
		return err
	}
	n.logger.Info("proposed", "hash", multisig.FormatHash(hash), "result", res)
	_, err = fmt.Fprintln(output, multisig.FormatHash(hash))
	return err
}

func cmdApprove(input io.Reader, output io.Writer, args []string) error {
	return approveOrRetry(input, output, args, false)
}

func cmdRetry(input io.Reader, output io.Writer, args []string) error {
	return approveOrRetry(input, output, args, true)
}

func approveOrRetry(input io.Reader, output io.Writer, args []string, retry bool) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		if retry {
			fmt.Fprint(flag.CommandLine.Output(), `
Evaluate the quorum of a pending proposal again and execute its instructions
if the quorum is met. Use it after the ledger refused an execution.
`)
		} else {
			fmt.Fprint(flag.CommandLine.Output(), `
Approve a pending proposal. A member of a nested multisig account approves the
root proposal directly, the approval is counted along the approval path.

The approval result is printed, for example "StillPending(1/3)".
`)
		}
		fl.PrintDefaults()
	}
	var (
		keyPathFl = fl.String("key", conf.Key, "Path to the private key file of the signatory.")
		accountFl = flAddress(fl, "account", "", "Address of the multisig account.")
		hashFl    = flHash(fl, "hash", "Instructions hash of the proposal.")
	)
	fl.Parse(args)

	if len(*accountFl) == 0 {
		flagDie("account address is required")
	}
	if len(*hashFl) == 0 {
		flagDie("instructions hash is required")
	}

	caller, err := keyAddress(*keyPathFl)
	if err != nil {
		return err
	}

	n, err := openNode(conf)
	if err != nil {
		return err
	}
	defer n.Close()

	var res multisig.ApprovalResult
	if retry {
		res, err = n.engine.Retry(context.Background(), *accountFl, *hashFl, caller)
	} else {
		res, err = n.engine.Approve(context.Background(), *accountFl, *hashFl, caller)
	}
	if err := commitAfter(n, err); err != nil {
		return err
	}
	_, err = fmt.Fprintln(output, res)
	return err
}

// commitAfter persists the state after an engine operation. Failed
// executions and evictions of expired proposals change the state even though
// the operation returns an error, so the state is committed in all cases.
func commitAfter(n *node, opErr error) error {
	if err := n.commit(); err != nil {
		return err
	}
	return opErr
}

func cmdShow(input io.Reader, output io.Writer, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Print a single proposal in JSON format.
`)
		fl.PrintDefaults()
	}
	var (
		accountFl = flAddress(fl, "account", "", "Address of the multisig account.")
		hashFl    = flHash(fl, "hash", "Instructions hash of the proposal.")
	)
	fl.Parse(args)

	if len(*accountFl) == 0 {
		flagDie("account address is required")
	}
	if len(*hashFl) == 0 {
		flagDie("instructions hash is required")
	}

	n, err := openNode(conf)
	if err != nil {
		return err
	}
	defer n.Close()

	p, err := n.engine.GetProposal(context.Background(), *accountFl, *hashFl)
	if err != nil {
		return err
	}
	view := struct {
		*multisig.Proposal
		InstructionsHash string `json:"instructions_hash"`
	}{
		Proposal:         p,
		InstructionsHash: multisig.FormatHash(p.InstructionsHash),
	}
	return writeJSON(output, view)
}

func cmdList(input io.Reader, output io.Writer, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
List proposals of all multisig accounts the viewer is a direct or nested
signatory of. Each proposal comes with the approval path leading from the
viewer to the account, for example

  "1 joined [2/2] 5C1A..." "2 -> [2/3] 1D5A..."

When a limit is given and more proposals are available, the "next" attribute
of the result can be passed with the -after flag to continue listing.
`)
		fl.PrintDefaults()
	}
	var (
		keyPathFl = fl.String("key", conf.Key, "Path to the private key file of the viewer.")
		viewerFl  = flAddress(fl, "viewer", "", "Address of the viewer. Overrides the private key.")
		accountFl = flAddress(fl, "account", "", "List only proposals of this account.")
		settledFl = fl.Bool("settled", false, "Include executed, failed and expired proposals.")
		afterFl   = flHex(fl, "after", "", "Continue listing after this cursor.")
		limitFl   = fl.Int("limit", 0, "Maximum number of proposals. Zero means no limit.")
	)
	fl.Parse(args)

	viewer := *viewerFl
	if len(viewer) == 0 {
		viewer, err = keyAddress(*keyPathFl)
		if err != nil {
			return err
		}
	}

	n, err := openNode(conf)
	if err != nil {
		return err
	}
	defer n.Close()

	it, err := n.engine.List(context.Background(), multisig.ListQuery{
		Viewer:         viewer,
		Account:        *accountFl,
		Cursor:         *afterFl,
		IncludeSettled: *settledFl,
	})
	if err != nil {
		return err
	}
	defer it.Release()

	var res listResult
	res.Proposals = make([]*multisig.ProposalSummary, 0)
	for *limitFl == 0 || len(res.Proposals) < *limitFl {
		s, err := it.Next()
		if errors.ErrIteratorDone.Is(err) {
			return writeJSON(output, res)
		}
		if err != nil {
			return err
		}
		res.Proposals = append(res.Proposals, s)
	}
	// Limit reached. The cursor is returned only if anything is left.
	if _, err := it.Next(); err == nil {
		res.Next = fmt.Sprintf("%X", cursorOf(res.Proposals))
	} else if !errors.ErrIteratorDone.Is(err) {
		return err
	}
	return writeJSON(output, res)
}

type listResult struct {
	Proposals []*multisig.ProposalSummary `json:"proposals"`
	Next      string                      `json:"next,omitempty"`
}

// cursorOf returns the cursor pointing at the last listed proposal.
func cursorOf(summaries []*multisig.ProposalSummary) []byte {
	last := summaries[len(summaries)-1]
	return append(append([]byte(nil), last.Account...), last.InstructionsHash...)
}

func cmdSweep(input io.Reader, output io.Writer, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Remove expired proposals and proposals settled longer than
MSIG_TERMINAL_RETENTION ago. The number of removed proposals is printed.
`)
		fl.PrintDefaults()
	}
	fl.Parse(args)

	n, err := openNode(conf)
	if err != nil {
		return err
	}
	defer n.Close()

	evicted, err := n.engine.Sweep(context.Background())
	if err := commitAfter(n, err); err != nil {
		return err
	}
	_, err = fmt.Fprintln(output, evicted)
	return err
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
