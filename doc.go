/*
Package quorum defines all common interfaces to tie together
the various subpackages of the multisig engine, as well as
implementations of some of the simpler components (when
interfaces would be too much overhead).

The storage abstraction (KVStore, Iterator, CacheWrap) is
shared by the store and orm packages. Accounts are identified
by an Address, a digest of the owner's public key. Time is
declared by the ledger with seconds precision and represented
as UnixTime.

The multisig extension lives in x/multisig.
*/
package quorum
