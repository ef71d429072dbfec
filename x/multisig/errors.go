package multisig

import (
	"github.com/iov-one/quorum/errors"
)

// multisig takes 1030-1049
var (
	// ErrInvalidQuorum is returned when the quorum is zero or greater
	// than the total weight of all signatories.
	ErrInvalidQuorum = errors.Register(1030, "invalid quorum")

	// ErrDuplicateSignatory is returned when an account lists the same
	// signatory more than once.
	ErrDuplicateSignatory = errors.Register(1031, "duplicate signatory")

	// ErrUnauthorizedRegistrant is returned when the ledger does not
	// allow the caller to register multisig accounts.
	ErrUnauthorizedRegistrant = errors.Register(1032, "unauthorized registrant")

	// ErrNotASignatory is returned when an address is neither a direct
	// nor a transitive signatory of an account.
	ErrNotASignatory = errors.Register(1033, "not a signatory")

	// ErrDuplicateProposal is returned when a proposal with the same
	// instructions is already pending for an account.
	ErrDuplicateProposal = errors.Register(1034, "duplicate proposal")

	// ErrAlreadyApproved is returned when an approver approves the same
	// proposal twice.
	ErrAlreadyApproved = errors.Register(1035, "already approved")

	// ErrPermissionDenied is returned by the ledger when the multisig
	// account lacks the permission to execute the instructions.
	ErrPermissionDenied = errors.Register(1036, "permission denied")

	// ErrExecution is returned when the ledger failed to execute the
	// instructions for any reason other than missing permission.
	ErrExecution = errors.Register(1037, "execution failed")

	// ErrCyclicSignatoryGraph is returned when an account would be,
	// directly or transitively, its own signatory.
	ErrCyclicSignatoryGraph = errors.RegisterWithParent(1038, "cyclic signatory graph", ErrInvalidQuorum)
)
