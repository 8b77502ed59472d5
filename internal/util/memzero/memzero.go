package memzero

import "crypto/subtle"

// Zero clears b so key material doesn't linger in memory after a
// Session is torn down.
func Zero(b []byte) {
	if len(b) == 0 {
		return
	}
	zero := make([]byte, len(b))
	subtle.ConstantTimeCopy(1, b, zero)
}
