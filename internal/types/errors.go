package types

import (
	"errors"
	"fmt"
)

// Sentinel reasons carried by the typed errors below.
var (
	ErrBadMagic     = errors.New("bad magic")
	ErrBadChecksum  = errors.New("checksum mismatch")
	ErrTruncated    = errors.New("truncated metadata block")
	ErrNotDefined   = errors.New("metadata does not define an array")
	ErrUnsupported  = errors.New("unsupported array layout")
	ErrOutOfRange   = errors.New("request beyond end of array")
	ErrNoLeg        = errors.New("no usable member for request")
	ErrArrayBroken  = errors.New("array is broken")
	ErrNotFound     = errors.New("array not found")
	ErrRebuildBusy  = errors.New("rebuild already in progress")
	ErrNotDegraded  = errors.New("array is not degraded")
	ErrNoSpare      = errors.New("no usable spare")
	ErrUnaligned    = errors.New("buffer is not a whole number of sectors")
	ErrMemberAbsent = errors.New("member device is absent")
)

// CodecError reports a metadata block that could not be decoded. It only means
// the member carries no valid fragment.
type CodecError struct {
	Format string
	Err    error
}

func (e *CodecError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("metadata: %v", e.Err)
	}
	return fmt.Sprintf("%s metadata: %v", e.Format, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }

// MemberIOError reports a failed transfer on one member disk.
type MemberIOError struct {
	Member int
	Device string
	LBA    uint64
	Dir    Direction
	Err    error
}

func (e *MemberIOError) Error() string {
	return fmt.Sprintf("member %d (%s): %s at lba %d: %v", e.Member, e.Device, e.Dir, e.LBA, e.Err)
}

func (e *MemberIOError) Unwrap() error { return e.Err }

// CapacityError reports members whose sizes cannot satisfy the array layout.
type CapacityError struct {
	Device   string
	Have     uint64
	Required uint64
	Reason   string
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("capacity: %s: %s (have %d sectors, need %d)", e.Device, e.Reason, e.Have, e.Required)
}

// TopologyError reports a member count or parameter invalid for a topology.
type TopologyError struct {
	Topology Topology
	Members  int
	Reason   string
}

func (e *TopologyError) Error() string {
	return fmt.Sprintf("topology %s with %d members: %s", e.Topology, e.Members, e.Reason)
}
