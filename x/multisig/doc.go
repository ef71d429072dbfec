/*
Package multisig implements weighted multi signature accounts with a
proposal and approval workflow.

A multisig Account lists signatories, each with a Weight, and a quorum.
Any signatory may propose a sequence of instructions. The proposer is the
first approver and other signatories add their approvals until the sum of
the weights of all approvers reaches the quorum. The instructions are then
handed to the Ledger for execution.

Accounts can be signatories of other accounts. A nested account contributes
its weight to the parent only once its own quorum is met by the approvals
collected for the proposal. Members of a nested account approve the root
proposal directly and their approval flows upward through the hierarchy.

Every proposal lives for a limited time. An expired proposal can no longer
be approved nor executed and is evicted on the next access or by the
periodic sweep.

If the ledger refuses the execution because the account lacks a
permission, the proposal returns to the pending state with all approvals
intact, so that it can be retried once the permission is granted.

The Engine ties everything together and is safe for concurrent use.
*/
package multisig
