// File: internal/interfaces/block_device.go
package interfaces

import (
	"io"

	"github.com/deploymenttheory/go-ataraid/internal/types"
)

// CompletionFunc receives the outcome of a submitted transfer. n is the number
// of bytes moved.
type CompletionFunc func(n int, err error)

// BlockSubmitter is the block-I/O primitive of the transport layer. Submit
// must not block on the transfer; done is called exactly once, possibly from
// another goroutine and possibly before Submit returns.
type BlockSubmitter interface {
	// Submit transfers len(buf) bytes (a whole number of sectors) at lba
	Submit(dir types.Direction, lba uint64, buf []byte, done CompletionFunc)
}

// BlockDeviceInfo provides information about a block device
type BlockDeviceInfo interface {
	// Name returns a stable identifier, usually the system path
	Name() string

	// Sectors returns the capacity in sectors
	Sectors() uint64
}

// BlockDevice is a member disk as seen by the RAID engine
type BlockDevice interface {
	BlockSubmitter
	BlockDeviceInfo
}

// ClosableBlockDevice is a BlockDevice that owns an operating system resource
type ClosableBlockDevice interface {
	BlockDevice
	io.Closer
}

// BlockDeviceStats contains per-device transfer statistics
type BlockDeviceStats struct {
	// Number of completed read requests
	Reads uint64

	// Number of completed write requests
	Writes uint64

	// Sectors read
	SectorsRead uint64

	// Sectors written
	SectorsWritten uint64

	// Requests that completed with an error
	Errors uint64
}

// StatsProvider is implemented by devices that count their transfers
type StatsProvider interface {
	Stats() BlockDeviceStats
}
