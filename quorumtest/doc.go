/*
Package quorumtest provides helpers for testing the multisig engine and
the storage packages: random keys and addresses, a mock clock and a
store instance backed by the same engine the command line client uses.
*/
package quorumtest
