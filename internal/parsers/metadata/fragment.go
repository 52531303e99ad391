// Package metadata decodes and encodes the vendor array descriptors found on
// member disks. A decoded descriptor is a Fragment: one member's view of the
// array it belongs to.
package metadata

import (
	"github.com/deploymenttheory/go-ataraid/internal/types"
)

// Fragment is the topology-agnostic content of one member's descriptor
type Fragment struct {
	Format Format

	// Tag identifies the array across its members
	Tag uint64
	// Generation orders conflicting descriptors; HighPoint has none and decodes as 0
	Generation uint32

	Topology types.Topology
	// Width is the number of stripe columns (mirror pairs for mirrored layouts)
	Width      uint8
	TotalDisks uint8
	// DiskIndex is the slot of the member this descriptor was read from
	DiskIndex uint8

	InterleaveShift uint8
	TotalSectors    uint64
	// DataOffset is the first data sector on the member
	DataOffset uint64
	// DiskSectors is the member's usable data size (Promise only)
	DiskSectors uint64
	// RebuildLBA is the persisted rebuild cursor
	RebuildLBA uint64

	Cylinders       uint16
	Heads           uint8
	SectorsPerTrack uint8

	// Flags is the member's own status
	Flags types.MemberFlags
	// DiskID is the member's serial tag (Promise only)
	DiskID      uint64
	ArrayNumber uint8
	State       types.ArrayState

	// Members is the per-slot status table (Promise only)
	Members []MemberRecord
	// Name is the array label (HighPoint only)
	Name string
}

// MemberRecord is one entry of a descriptor's member table
type MemberRecord struct {
	Flags  types.MemberFlags
	DiskID uint64
}

// Interleave returns the stripe unit in sectors
func (f *Fragment) Interleave() uint64 {
	return uint64(1) << f.InterleaveShift
}
