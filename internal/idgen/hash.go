// Package idgen generates short hash-based identifiers for templates,
// instances and nodes.
package idgen

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// DefaultLength is the number of base36 characters after the prefix.
const DefaultLength = 10

// Entity prefixes
const (
	PrefixTemplate     = "tpl"
	PrefixTemplateNode = "tn"
	PrefixInstance     = "wf"
	PrefixNode         = "nd"
)

// HashID derives a deterministic id from content, timestamp and nonce.
// length is clamped to [4, 16].
func HashID(prefix, content string, timestamp time.Time, length, nonce int) string {
	if length < 4 {
		length = 4
	}
	if length > 16 {
		length = 16
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", content, timestamp.UnixNano(), nonce)))
	encoded := new(big.Int).SetBytes(sum[:]).Text(36)
	if len(encoded) < length {
		encoded = strings.Repeat("0", length-len(encoded)) + encoded
	}
	return prefix + "-" + encoded[len(encoded)-length:]
}

// New returns a fresh id for the given prefix. Each call mixes in random
// bytes so bulk creation of identical titles in the same nanosecond still
// yields distinct ids.
func New(prefix string, content ...string) string {
	var salt [8]byte
	_, _ = rand.Read(salt[:])
	nonce := int(new(big.Int).SetBytes(salt[:4]).Int64())
	return HashID(prefix, strings.Join(content, "|")+fmt.Sprintf("|%x", salt), time.Now(), DefaultLength, nonce)
}
