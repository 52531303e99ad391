package metadata

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-ataraid/internal/types"
)

// IsPromise reports whether data starts with the Promise identification string
func IsPromise(data []byte) bool {
	magic := []byte(types.PromiseMagic)
	return len(data) >= len(magic) && bytes.Equal(data[:len(magic)], magic)
}

// DecodePromise parses a Promise FastTrak descriptor
func DecodePromise(data []byte) (*Fragment, error) {
	if len(data) < types.PromiseConfSize {
		return nil, codecErr(FormatPromise, fmt.Errorf("%w: %d bytes", types.ErrTruncated, len(data)))
	}
	if !IsPromise(data) {
		return nil, codecErr(FormatPromise, types.ErrBadMagic)
	}

	inspector := NewChecksumInspector(data)
	if !inspector.VerifyChecksum() {
		return nil, codecErr(FormatPromise, fmt.Errorf("%w: stored 0x%08x, computed 0x%08x",
			types.ErrBadChecksum, inspector.Checksum(), promiseChecksum(data)))
	}

	le := binary.LittleEndian
	ownFlags := le.Uint32(data[types.PromiseOffFlags:])
	if ownFlags&types.PromiseFlagValid == 0 {
		return nil, codecErr(FormatPromise, types.ErrNotDefined)
	}

	f := &Fragment{
		Format:          FormatPromise,
		Tag:             le.Uint64(data[types.PromiseOffArrayTag:]),
		Generation:      uint32(le.Uint16(data[types.PromiseOffGeneration:])),
		Width:           data[types.PromiseOffArrayWidth],
		TotalDisks:      data[types.PromiseOffTotalDisks],
		DiskIndex:       data[types.PromiseOffDiskNumber],
		InterleaveShift: data[types.PromiseOffStripeShift],
		TotalSectors:    uint64(le.Uint32(data[types.PromiseOffTotalSectors:])),
		DataOffset:      uint64(le.Uint32(data[types.PromiseOffDiskOffset:])),
		DiskSectors:     uint64(le.Uint32(data[types.PromiseOffDiskSectors:])),
		RebuildLBA:      uint64(le.Uint32(data[types.PromiseOffRebuildLBA:])),
		Cylinders:       le.Uint16(data[types.PromiseOffCylinders:]),
		Heads:           data[types.PromiseOffHeads],
		SectorsPerTrack: data[types.PromiseOffSectors],
		Flags:           promiseToMemberFlags(uint8(ownFlags)),
		DiskID:          le.Uint64(data[types.PromiseOffRaidDiskID:]),
		ArrayNumber:     data[types.PromiseOffArrayNumber],
		State:           promiseState(data[types.PromiseOffStatus]),
	}

	topology, err := promiseTopology(data[types.PromiseOffType], f.Width)
	if err != nil {
		return nil, codecErr(FormatPromise, err)
	}
	f.Topology = topology

	if err := checkShape(f, types.PromiseMaxDisks); err != nil {
		return nil, codecErr(FormatPromise, err)
	}

	f.Members = make([]MemberRecord, f.TotalDisks)
	for i := range f.Members {
		entry := data[types.PromiseOffDiskTable+i*types.PromiseDiskEntrySize:]
		f.Members[i] = MemberRecord{
			Flags:  promiseToMemberFlags(entry[0]),
			DiskID: le.Uint64(entry[4:12]),
		}
	}

	return f, nil
}

func promiseTopology(t uint8, width uint8) (types.Topology, error) {
	switch t {
	case types.PromiseTypeRAID0:
		return types.TopologyStriped, nil
	case types.PromiseTypeRAID1:
		if width > 1 {
			return types.TopologyStripedMirrored, nil
		}
		return types.TopologyMirrored, nil
	case types.PromiseTypeSpan:
		return types.TopologySpanned, nil
	default:
		return 0, fmt.Errorf("%w: promise type 0x%02x", types.ErrUnsupported, t)
	}
}

func promiseState(status uint8) types.ArrayState {
	switch {
	case status&types.PromiseStatusFunctional == 0:
		return types.StateBroken
	case status&types.PromiseStatusDegraded != 0:
		return types.StateDegraded
	default:
		return types.StateReady
	}
}

func promiseToMemberFlags(b uint8) types.MemberFlags {
	var m types.MemberFlags
	if b&types.PromiseFlagValid != 0 {
		m |= types.MemberPresent
	}
	if b&types.PromiseFlagAssigned != 0 {
		m |= types.MemberAssigned
	}
	if b&types.PromiseFlagOnline != 0 {
		m |= types.MemberOnline
	}
	if b&types.PromiseFlagSpare != 0 {
		m |= types.MemberSpare
	}
	return m
}

// checkShape validates the width/disk count invariants shared by both formats
func checkShape(f *Fragment, maxDisks int) error {
	if f.Width == 0 {
		return fmt.Errorf("%w: zero width", types.ErrNotDefined)
	}
	want := int(f.Width)
	if f.Topology.Mirrored() {
		want *= 2
	}
	if int(f.TotalDisks) != want {
		return fmt.Errorf("%w: %s width %d with %d disks", types.ErrUnsupported, f.Topology, f.Width, f.TotalDisks)
	}
	if int(f.TotalDisks) > maxDisks || int(f.DiskIndex) >= maxDisks {
		return fmt.Errorf("%w: disk %d of %d exceeds table of %d", types.ErrUnsupported, f.DiskIndex, f.TotalDisks, maxDisks)
	}
	if f.Topology.Striped() && f.InterleaveShift > 24 {
		return fmt.Errorf("%w: stripe shift %d", types.ErrUnsupported, f.InterleaveShift)
	}
	return nil
}

func codecErr(format Format, err error) error {
	name := ""
	if format != 0 {
		name = format.String()
	}
	return &types.CodecError{Format: name, Err: err}
}
