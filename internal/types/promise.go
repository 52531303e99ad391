package types

// Promise FastTrak array descriptor.
//
// The descriptor is 2048 bytes (four sectors) written near the end of every
// member. All multi-byte fields are little-endian and unaligned. The last
// 32-bit word holds the additive checksum of the 511 words before it.

const (
	// PromiseMagic is the identification string at offset 0.
	PromiseMagic = "Promise Technology, Inc."

	// PromiseConfSize is the size of the descriptor in bytes.
	PromiseConfSize = 2048
	// PromiseConfSectors is the size of the descriptor in sectors.
	PromiseConfSectors = PromiseConfSize / SectorSize
	// PromiseChecksumWords is the number of words covered by the checksum.
	PromiseChecksumWords = 511
	// PromiseMaxDisks is the size of the per-array disk table.
	PromiseMaxDisks = 8

	// Geometry used to place the descriptor: first sector of the last track
	// of the last full cylinder.
	PromiseHeads           = 255
	PromiseSectorsPerTrack = 63
)

// Field offsets within the descriptor.
const (
	PromiseOffMagic        = 0
	PromiseOffDiskID       = 28
	PromiseOffRaid         = 512
	PromiseOffFlags        = PromiseOffRaid + 0
	PromiseOffDiskNumber   = PromiseOffRaid + 5
	PromiseOffChannel      = PromiseOffRaid + 6
	PromiseOffDevice       = PromiseOffRaid + 7
	PromiseOffRaidDiskID   = PromiseOffRaid + 8
	PromiseOffDiskOffset   = PromiseOffRaid + 16
	PromiseOffDiskSectors  = PromiseOffRaid + 20
	PromiseOffRebuildLBA   = PromiseOffRaid + 24
	PromiseOffGeneration   = PromiseOffRaid + 28
	PromiseOffStatus       = PromiseOffRaid + 30
	PromiseOffType         = PromiseOffRaid + 31
	PromiseOffTotalDisks   = PromiseOffRaid + 32
	PromiseOffStripeShift  = PromiseOffRaid + 33
	PromiseOffArrayWidth   = PromiseOffRaid + 34
	PromiseOffArrayNumber  = PromiseOffRaid + 35
	PromiseOffTotalSectors = PromiseOffRaid + 36
	PromiseOffCylinders    = PromiseOffRaid + 40
	PromiseOffHeads        = PromiseOffRaid + 42
	PromiseOffSectors      = PromiseOffRaid + 43
	PromiseOffArrayTag     = PromiseOffRaid + 44
	PromiseOffDiskTable    = PromiseOffRaid + 52
	PromiseDiskEntrySize   = 12
	PromiseOffChecksum     = PromiseConfSize - 4
)

// Disk flags (raid.flags and the low byte in each disk table entry).
const (
	PromiseFlagValid     = 0x01
	PromiseFlagOnline    = 0x02
	PromiseFlagAssigned  = 0x04
	PromiseFlagSpare     = 0x08
	PromiseFlagDuplicate = 0x10
	PromiseFlagRedir     = 0x20
	PromiseFlagDown      = 0x40
	PromiseFlagReady     = 0x80
)

// Array status bits.
const (
	PromiseStatusValid      = 0x01
	PromiseStatusOnline     = 0x02
	PromiseStatusInited     = 0x04
	PromiseStatusReady      = 0x08
	PromiseStatusDegraded   = 0x10
	PromiseStatusMarked     = 0x20
	PromiseStatusFunctional = 0x80
)

// Array types.
const (
	PromiseTypeRAID0 = 0x00
	PromiseTypeRAID1 = 0x01
	PromiseTypeRAID3 = 0x02
	PromiseTypeRAID5 = 0x04
	PromiseTypeSpan  = 0x08
)
