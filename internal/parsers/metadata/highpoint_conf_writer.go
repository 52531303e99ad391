package metadata

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/deploymenttheory/go-ataraid/internal/types"
)

// EncodeHighPoint serializes a fragment into a HighPoint HPT37x descriptor.
// Members that are neither online nor healthy are stamped with the bad magic.
func EncodeHighPoint(f *Fragment) ([]byte, error) {
	if err := checkShape(f, types.HighPointMaxDisks); err != nil {
		return nil, codecErr(FormatHighPoint, err)
	}
	if f.DiskIndex >= f.TotalDisks {
		return nil, codecErr(FormatHighPoint, fmt.Errorf("%w: disk %d of %d", types.ErrUnsupported, f.DiskIndex, f.TotalDisks))
	}
	if f.TotalSectors > math.MaxUint32 || f.RebuildLBA > math.MaxUint32 {
		return nil, codecErr(FormatHighPoint, fmt.Errorf("%w: sector count exceeds 32 bits", types.ErrUnsupported))
	}

	data := make([]byte, types.HighPointConfSize)
	le := binary.LittleEndian

	magic := uint32(types.HighPointMagicOK)
	if !f.Flags.Has(types.MemberOnline) {
		magic = types.HighPointMagicBad
	}
	le.PutUint32(data[types.HighPointOffMagic:], magic)
	le.PutUint32(data[types.HighPointOffArrayTag:], uint32(f.Tag))

	order := uint8(types.HighPointOrderOK)
	diskNumber := f.DiskIndex
	var htype uint8
	switch f.Topology {
	case types.TopologyStriped:
		htype = types.HighPointTypeRAID0
		order |= types.HighPointOrderStripe
	case types.TopologyMirrored:
		htype = types.HighPointTypeRAID1
		order |= types.HighPointOrderMirror
	case types.TopologyStripedMirrored:
		order |= types.HighPointOrderStripe | types.HighPointOrderMirror
		le.PutUint32(data[types.HighPointOffMirrorTag:], uint32(f.Tag))
		htype = types.HighPointTypeRAID01RAID0
		if f.DiskIndex >= f.Width {
			htype = types.HighPointTypeRAID01RAID1
			diskNumber = f.DiskIndex - f.Width
		}
	case types.TopologySpanned:
		htype = types.HighPointTypeSpan
	}

	le.PutUint32(data[types.HighPointOffOrder:], uint32(order))
	data[types.HighPointOffRaidDisks] = f.Width
	data[types.HighPointOffRaid0Shift] = f.InterleaveShift
	data[types.HighPointOffType] = htype
	data[types.HighPointOffDiskNumber] = diskNumber
	le.PutUint32(data[types.HighPointOffTotalSectors:], uint32(f.TotalSectors))
	le.PutUint32(data[types.HighPointOffRebuildLBA:], uint32(f.RebuildLBA))

	name := f.Name
	if len(name) > types.HighPointNameLen {
		name = name[:types.HighPointNameLen]
	}
	copy(data[types.HighPointOffName1:], name)

	return data, nil
}
