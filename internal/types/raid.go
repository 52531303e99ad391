// Package types holds the data structures and constants shared by the
// metadata codec, the array registry and the RAID engine.
package types

import (
	"fmt"
	"strings"
)

// SectorSize is the size of one addressable unit on every member device.
const SectorSize = 512

// NoRebuild is the rebuild window sentinel meaning no rebuild is in progress.
const NoRebuild = ^uint64(0)

// Topology describes how an array lays data out over its members.
type Topology int

const (
	// TopologyStriped is RAID0: data interleaved over Width members.
	TopologyStriped Topology = iota
	// TopologyMirrored is RAID1: one member mirrored onto a second.
	TopologyMirrored
	// TopologyStripedMirrored is RAID0+1: a striped set mirrored onto a second striped set.
	TopologyStripedMirrored
	// TopologySpanned is a linear concatenation of members (JBOD).
	TopologySpanned
)

// String returns the conventional name of the topology
func (t Topology) String() string {
	switch t {
	case TopologyStriped:
		return "RAID0"
	case TopologyMirrored:
		return "RAID1"
	case TopologyStripedMirrored:
		return "RAID0+1"
	case TopologySpanned:
		return "SPAN"
	default:
		return fmt.Sprintf("Topology(%d)", int(t))
	}
}

// Mirrored reports whether the topology keeps a second copy of every sector.
func (t Topology) Mirrored() bool {
	return t == TopologyMirrored || t == TopologyStripedMirrored
}

// Striped reports whether the topology interleaves data over its members.
func (t Topology) Striped() bool {
	return t == TopologyStriped || t == TopologyStripedMirrored
}

// ParseTopology accepts the names printed by String plus a few common aliases.
func ParseTopology(s string) (Topology, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "raid0", "stripe", "striped":
		return TopologyStriped, nil
	case "raid1", "mirror", "mirrored":
		return TopologyMirrored, nil
	case "raid0+1", "raid01", "raid10", "stripe-mirror":
		return TopologyStripedMirrored, nil
	case "span", "spanned", "jbod", "concat":
		return TopologySpanned, nil
	}
	return 0, fmt.Errorf("unknown topology %q", s)
}

// MemberFlags is the per-slot status bitmask.
type MemberFlags uint8

const (
	// MemberPresent means a backing device is attached to the slot.
	MemberPresent MemberFlags = 1 << iota
	// MemberAssigned means the slot is part of the array definition.
	MemberAssigned
	// MemberOnline means the slot holds in-sync data and serves I/O.
	MemberOnline
	// MemberSpare means the slot holds a device that is not yet in sync.
	MemberSpare
)

// Has reports whether all bits in f are set.
func (m MemberFlags) Has(f MemberFlags) bool {
	return m&f == f
}

func (m MemberFlags) String() string {
	if m == 0 {
		return "absent"
	}
	var parts []string
	if m.Has(MemberPresent) {
		parts = append(parts, "present")
	}
	if m.Has(MemberAssigned) {
		parts = append(parts, "assigned")
	}
	if m.Has(MemberOnline) {
		parts = append(parts, "online")
	}
	if m.Has(MemberSpare) {
		parts = append(parts, "spare")
	}
	return strings.Join(parts, ",")
}

// ArrayState is the array-level health computed by the membership state machine.
type ArrayState int

const (
	StateReady ArrayState = iota
	StateDegraded
	StateBroken
)

func (s ArrayState) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateDegraded:
		return "DEGRADED"
	case StateBroken:
		return "BROKEN"
	default:
		return fmt.Sprintf("ArrayState(%d)", int(s))
	}
}

// MemberEvent is an input to the membership state machine.
type MemberEvent int

const (
	EventWentOffline MemberEvent = iota
	EventWentOnline
	EventInserted
	EventRemoved
)

func (e MemberEvent) String() string {
	switch e {
	case EventWentOffline:
		return "went-offline"
	case EventWentOnline:
		return "went-online"
	case EventInserted:
		return "inserted"
	case EventRemoved:
		return "removed"
	default:
		return fmt.Sprintf("MemberEvent(%d)", int(e))
	}
}

// Direction selects the transfer direction of a block request.
type Direction int

const (
	Read Direction = iota
	Write
)

func (d Direction) String() string {
	if d == Write {
		return "write"
	}
	return "read"
}

// IsPowerOfTwo reports whether v is a non-zero power of two.
func IsPowerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}

// Log2 returns the base-2 logarithm of a power of two.
func Log2(v uint64) uint8 {
	var shift uint8
	for v > 1 {
		v >>= 1
		shift++
	}
	return shift
}
