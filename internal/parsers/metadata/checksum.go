package metadata

import (
	"encoding/binary"

	"github.com/deploymenttheory/go-ataraid/internal/types"
)

// ChecksumInspector verifies the additive checksum of a Promise descriptor
type ChecksumInspector struct {
	Payload []byte // full raw descriptor including the checksum word
}

func NewChecksumInspector(payload []byte) *ChecksumInspector {
	return &ChecksumInspector{Payload: payload}
}

// Checksum returns the stored checksum word
func (c *ChecksumInspector) Checksum() uint32 {
	return binary.LittleEndian.Uint32(c.Payload[types.PromiseOffChecksum:])
}

// VerifyChecksum recomputes the sum and compares it with the stored word
func (c *ChecksumInspector) VerifyChecksum() bool {
	if len(c.Payload) < types.PromiseConfSize {
		return false
	}
	return promiseChecksum(c.Payload) == c.Checksum()
}

// promiseChecksum adds the first 511 little-endian 32-bit words, wrapping at 2^32
func promiseChecksum(data []byte) uint32 {
	var sum uint32
	for i := 0; i < types.PromiseChecksumWords; i++ {
		sum += binary.LittleEndian.Uint32(data[i*4 : i*4+4])
	}
	return sum
}
