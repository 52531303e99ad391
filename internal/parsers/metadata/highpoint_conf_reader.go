package metadata

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-ataraid/internal/types"
)

// IsHighPoint reports whether data carries either HighPoint magic value
func IsHighPoint(data []byte) bool {
	if len(data) < types.HighPointOffMagic+4 {
		return false
	}
	magic := binary.LittleEndian.Uint32(data[types.HighPointOffMagic:])
	return magic == types.HighPointMagicOK || magic == types.HighPointMagicBad
}

// DecodeHighPoint parses a HighPoint HPT37x descriptor. The format has no
// generation counter and no member table: the fragment only describes the
// member it was read from.
func DecodeHighPoint(data []byte) (*Fragment, error) {
	if len(data) < types.HighPointConfSize {
		return nil, codecErr(FormatHighPoint, fmt.Errorf("%w: %d bytes", types.ErrTruncated, len(data)))
	}

	le := binary.LittleEndian
	var flags types.MemberFlags
	switch le.Uint32(data[types.HighPointOffMagic:]) {
	case types.HighPointMagicOK:
		flags = types.MemberPresent | types.MemberAssigned | types.MemberOnline
	case types.HighPointMagicBad:
		flags = types.MemberPresent | types.MemberAssigned | types.MemberSpare
	default:
		return nil, codecErr(FormatHighPoint, types.ErrBadMagic)
	}

	order := data[types.HighPointOffOrder]
	if order&types.HighPointOrderOK == 0 {
		// leftover from an array that was deleted without wiping
		return nil, codecErr(FormatHighPoint, types.ErrNotDefined)
	}

	f := &Fragment{
		Format:          FormatHighPoint,
		Tag:             uint64(le.Uint32(data[types.HighPointOffArrayTag:])),
		Width:           data[types.HighPointOffRaidDisks],
		InterleaveShift: data[types.HighPointOffRaid0Shift],
		TotalSectors:    uint64(le.Uint32(data[types.HighPointOffTotalSectors:])),
		DataOffset:      types.HighPointReservedSectors,
		RebuildLBA:      uint64(le.Uint32(data[types.HighPointOffRebuildLBA:])),
		Flags:           flags,
		State:           types.StateReady,
		Name:            string(bytes.TrimRight(data[types.HighPointOffName1:types.HighPointOffName1+types.HighPointNameLen], "\x00 ")),
	}

	diskNumber := data[types.HighPointOffDiskNumber]
	switch t := data[types.HighPointOffType]; t {
	case types.HighPointTypeRAID0:
		f.Topology = types.TopologyStriped
		f.DiskIndex = diskNumber
	case types.HighPointTypeRAID1:
		f.Topology = types.TopologyMirrored
		f.DiskIndex = diskNumber
	case types.HighPointTypeRAID01RAID0:
		f.Topology = types.TopologyStripedMirrored
		f.DiskIndex = diskNumber
	case types.HighPointTypeRAID01RAID1:
		f.Topology = types.TopologyStripedMirrored
		f.DiskIndex = diskNumber + f.Width
	case types.HighPointTypeSpan:
		f.Topology = types.TopologySpanned
		f.DiskIndex = diskNumber
	default:
		return nil, codecErr(FormatHighPoint, fmt.Errorf("%w: highpoint type 0x%02x", types.ErrUnsupported, t))
	}

	f.TotalDisks = f.Width
	if f.Topology.Mirrored() {
		f.TotalDisks = f.Width * 2
	}
	if f.Topology == types.TopologyStripedMirrored && order&types.HighPointOrderMirror == 0 {
		return nil, codecErr(FormatHighPoint, fmt.Errorf("%w: raid0+1 member without mirror order", types.ErrUnsupported))
	}
	if err := checkShape(f, types.HighPointMaxDisks); err != nil {
		return nil, codecErr(FormatHighPoint, err)
	}
	if f.DiskIndex >= f.TotalDisks {
		return nil, codecErr(FormatHighPoint, fmt.Errorf("%w: disk %d of %d", types.ErrUnsupported, f.DiskIndex, f.TotalDisks))
	}

	return f, nil
}
