package types

// HighPoint HPT37x array descriptor.
//
// One sector at a fixed LBA near the start of every member; data starts after
// the reserved area. Little-endian fields.

const (
	// HighPointMagicOK marks a descriptor that belongs to a healthy member.
	HighPointMagicOK = 0x5a7816f0
	// HighPointMagicBad marks a member that dropped out of its array.
	HighPointMagicBad = 0x5a7816fd

	// HighPointConfLBA is the sector holding the descriptor.
	HighPointConfLBA = 9
	// HighPointReservedSectors is the number of sectors in front of the data region.
	HighPointReservedSectors = HighPointConfLBA + 1
	// HighPointConfSize is the size of the descriptor in bytes.
	HighPointConfSize = SectorSize
	// HighPointNameLen is the length of each array name field.
	HighPointNameLen = 15
)

// Field offsets within the descriptor.
const (
	HighPointOffMagic        = 32
	HighPointOffArrayTag     = 36
	HighPointOffMirrorTag    = 40
	HighPointOffOrder        = 44
	HighPointOffRaidDisks    = 48
	HighPointOffRaid0Shift   = 49
	HighPointOffType         = 50
	HighPointOffDiskNumber   = 51
	HighPointOffTotalSectors = 52
	HighPointOffDiskMode     = 56
	HighPointOffBootMode     = 60
	HighPointOffBootDisk     = 64
	HighPointOffErrorLog     = 68
	HighPointErrorLogEntries = 32
	HighPointErrorLogSize    = 12
	HighPointOffRebuildLBA   = 468
	HighPointOffName1        = 473
	HighPointOffName2        = 489
)

// Order bits. Mirror and stripe are independent; RAID0+1 sets both.
const (
	HighPointOrderMirror = 0x01
	HighPointOrderStripe = 0x02
	HighPointOrderOK     = 0x04
)

// Array types.
const (
	HighPointTypeRAID0       = 0x00
	HighPointTypeRAID1       = 0x01
	HighPointTypeRAID01RAID0 = 0x02
	HighPointTypeSpan        = 0x03
	HighPointTypeRAID3       = 0x04
	HighPointTypeRAID5       = 0x05
	HighPointTypeSingleDisk  = 0x06
	HighPointTypeRAID01RAID1 = 0x07
)

// HighPointMaxDisks bounds the member count accepted by the codec.
const HighPointMaxDisks = 8
