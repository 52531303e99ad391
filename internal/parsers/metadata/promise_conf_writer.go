package metadata

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/deploymenttheory/go-ataraid/internal/types"
)

// EncodePromise serializes a fragment into a Promise FastTrak descriptor
func EncodePromise(f *Fragment) ([]byte, error) {
	if err := checkShape(f, types.PromiseMaxDisks); err != nil {
		return nil, codecErr(FormatPromise, err)
	}
	if len(f.Members) > types.PromiseMaxDisks {
		return nil, codecErr(FormatPromise, fmt.Errorf("%w: %d member records", types.ErrUnsupported, len(f.Members)))
	}
	for name, v := range map[string]uint64{
		"total sectors": f.TotalSectors,
		"disk sectors":  f.DiskSectors,
		"data offset":   f.DataOffset,
		"rebuild lba":   f.RebuildLBA,
	} {
		if v > math.MaxUint32 {
			return nil, codecErr(FormatPromise, fmt.Errorf("%w: %s %d exceeds 32 bits", types.ErrUnsupported, name, v))
		}
	}

	var ptype uint8
	switch f.Topology {
	case types.TopologyStriped:
		ptype = types.PromiseTypeRAID0
	case types.TopologyMirrored, types.TopologyStripedMirrored:
		ptype = types.PromiseTypeRAID1
	case types.TopologySpanned:
		ptype = types.PromiseTypeSpan
	}

	data := make([]byte, types.PromiseConfSize)
	le := binary.LittleEndian

	copy(data[types.PromiseOffMagic:], types.PromiseMagic)
	le.PutUint64(data[types.PromiseOffDiskID:], f.DiskID)

	le.PutUint32(data[types.PromiseOffFlags:], uint32(memberToPromiseFlags(f.Flags)))
	data[types.PromiseOffDiskNumber] = f.DiskIndex
	le.PutUint64(data[types.PromiseOffRaidDiskID:], f.DiskID)
	le.PutUint32(data[types.PromiseOffDiskOffset:], uint32(f.DataOffset))
	le.PutUint32(data[types.PromiseOffDiskSectors:], uint32(f.DiskSectors))
	le.PutUint32(data[types.PromiseOffRebuildLBA:], uint32(f.RebuildLBA))
	le.PutUint16(data[types.PromiseOffGeneration:], uint16(f.Generation))
	data[types.PromiseOffStatus] = promiseStatus(f.State)
	data[types.PromiseOffType] = ptype
	data[types.PromiseOffTotalDisks] = f.TotalDisks
	data[types.PromiseOffStripeShift] = f.InterleaveShift
	data[types.PromiseOffArrayWidth] = f.Width
	data[types.PromiseOffArrayNumber] = f.ArrayNumber
	le.PutUint32(data[types.PromiseOffTotalSectors:], uint32(f.TotalSectors))
	le.PutUint16(data[types.PromiseOffCylinders:], f.Cylinders)
	data[types.PromiseOffHeads] = f.Heads
	data[types.PromiseOffSectors] = f.SectorsPerTrack
	le.PutUint64(data[types.PromiseOffArrayTag:], f.Tag)

	for i, m := range f.Members {
		entry := data[types.PromiseOffDiskTable+i*types.PromiseDiskEntrySize:]
		entry[0] = memberToPromiseFlags(m.Flags)
		le.PutUint64(entry[4:12], m.DiskID)
	}

	le.PutUint32(data[types.PromiseOffChecksum:], promiseChecksum(data))
	return data, nil
}

func promiseStatus(state types.ArrayState) uint8 {
	status := uint8(types.PromiseStatusValid | types.PromiseStatusOnline | types.PromiseStatusInited | types.PromiseStatusReady)
	switch state {
	case types.StateReady:
		status |= types.PromiseStatusFunctional
	case types.StateDegraded:
		status |= types.PromiseStatusFunctional | types.PromiseStatusDegraded
	case types.StateBroken:
		status &^= types.PromiseStatusReady
	}
	return status
}

func memberToPromiseFlags(m types.MemberFlags) uint8 {
	var b uint8
	if m.Has(types.MemberPresent) {
		b |= types.PromiseFlagValid
	}
	if m.Has(types.MemberAssigned) {
		b |= types.PromiseFlagAssigned
	}
	if m.Has(types.MemberOnline) {
		b |= types.PromiseFlagOnline | types.PromiseFlagReady
	}
	if m.Has(types.MemberSpare) {
		b |= types.PromiseFlagSpare
	}
	if m.Has(types.MemberAssigned) && !m.Has(types.MemberOnline) && !m.Has(types.MemberSpare) {
		b |= types.PromiseFlagDown
	}
	return b
}
