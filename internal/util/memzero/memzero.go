// Package memzero wipes key material that is no longer needed.
package memzero

import "crypto/subtle"

// Zero overwrites b in place. Going through subtle.ConstantTimeCopy keeps
// the compiler from eliding the write as a dead store.
func Zero(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
}
