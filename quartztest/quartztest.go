/*
Package quartztest provides mocks and helpers for testing code built on
the authorization engine: a deterministic identity generator, an
in-memory signing backend and an in-memory ledger gateway.
*/
package quartztest

import (
	"fmt"

	"github.com/quartzvault/quartz"
)

// SequenceID returns a deterministic identity. The same n always maps to
// the same identity and distinct n never collide.
func SequenceID(n uint64) quartz.Identity {
	return quartz.NewIdentity([]byte(fmt.Sprintf("seq-id-%d", n)))
}
