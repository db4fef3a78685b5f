/*
Package engine implements quorum controlled authorization of custody
operations.

A sealed Registry fixes the authorized parties, their capabilities and
the approval threshold. Members submit candidate actions as proposals,
vote on them, and once the threshold is reached an executor turns the
approved payload into a signed ledger transaction. Signing happens
through a pluggable backend session and submission through a ledger
gateway, the engine guarantees that an approved proposal is executed at
most once even under concurrent executors and across failed submission
attempts.
*/
package engine
