// Package random provides cryptographically secure randomization for
// DNS query identifiers, to prevent an off-path attacker from guessing
// a transaction ID and injecting a forged answer.
package random

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// TransactionID generates a cryptographically random 16-bit transaction
// ID. Never use math/rand here: a predictable ID is a critical security
// flaw (Kaminsky-style cache poisoning).
func TransactionID() uint16 {
	var buf [2]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return binary.BigEndian.Uint16(buf[:])
}
