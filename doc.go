/*
Package quartz holds the shared primitives of the authorization engine:
member identities, capability sets, second-precision time types and the
transaction envelope signed by backends and submitted to the ledger.

The moving parts live in the subpackages: engine drives the quorum
proposal lifecycle, signer defines the pluggable signing backend
contract, gateway abstracts the ledger, store provides the key-value
persistence underneath.
*/
package quartz
