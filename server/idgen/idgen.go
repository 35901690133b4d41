// Package idgen generates short, sortable session identifiers.
package idgen

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/binary"
	"strings"
	"sync/atomic"
	"time"
)

var (
	sequence atomic.Uint32
	encoding = base32.NewEncoding("ABCDEFGHIJKLMNOPQRSTUVWXYZ234567").WithPadding(base32.NoPadding)
)

// New returns a 16 character lowercase base32 identifier built from
// 4 bytes of unix seconds, 2 bytes of a process-wide sequence and 4 random bytes.
// Identifiers created in the same second sort by creation order modulo the sequence wrap.
func New() string {
	var id [10]byte
	binary.BigEndian.PutUint32(id[0:4], uint32(time.Now().Unix()))
	binary.BigEndian.PutUint16(id[4:6], uint16(sequence.Add(1)))
	if _, err := rand.Read(id[6:10]); err != nil {
		binary.BigEndian.PutUint32(id[6:10], uint32(time.Now().UnixNano()))
	}
	return strings.ToLower(encoding.EncodeToString(id[:]))
}
