package metadata

import (
	"fmt"
	"strings"

	"github.com/deploymenttheory/go-ataraid/internal/types"
)

// Format identifies a vendor metadata family
type Format int

const (
	// FormatPromise is the Promise FastTrak descriptor (vendor A)
	FormatPromise Format = iota + 1
	// FormatHighPoint is the HighPoint HPT37x descriptor (vendor B)
	FormatHighPoint
)

// Formats lists every supported family in detection order
var Formats = []Format{FormatPromise, FormatHighPoint}

func (f Format) String() string {
	switch f {
	case FormatPromise:
		return "promise"
	case FormatHighPoint:
		return "highpoint"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat maps a configuration or flag value to a Format
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "promise", "fasttrak", "pdc":
		return FormatPromise, nil
	case "highpoint", "hpt", "hpt37x":
		return FormatHighPoint, nil
	}
	return 0, fmt.Errorf("unknown metadata format %q", s)
}

// BlockSize returns the size in bytes of the on-disk descriptor
func (f Format) BlockSize() int {
	if f == FormatHighPoint {
		return types.HighPointConfSize
	}
	return types.PromiseConfSize
}

// BlockSectors returns the size in sectors of the on-disk descriptor
func (f Format) BlockSectors() uint64 {
	return uint64(f.BlockSize() / types.SectorSize)
}

// MetadataLBA returns the sector holding the descriptor on a member of the
// given capacity
func (f Format) MetadataLBA(capacity uint64) (uint64, error) {
	switch f {
	case FormatHighPoint:
		if capacity <= types.HighPointReservedSectors {
			return 0, fmt.Errorf("device of %d sectors too small for %s metadata", capacity, f)
		}
		return types.HighPointConfLBA, nil
	case FormatPromise:
		cylinder := uint64(types.PromiseHeads * types.PromiseSectorsPerTrack)
		if capacity >= 2*cylinder {
			return (capacity/cylinder)*cylinder - types.PromiseSectorsPerTrack, nil
		}
		// devices below two cylinders keep the descriptor in their last sectors
		if capacity <= 2*types.PromiseConfSectors {
			return 0, fmt.Errorf("device of %d sectors too small for %s metadata", capacity, f)
		}
		return capacity - types.PromiseConfSectors, nil
	default:
		return 0, fmt.Errorf("unknown metadata format %d", int(f))
	}
}

// DataOffset returns the number of sectors reserved in front of the data region
func (f Format) DataOffset() uint64 {
	if f == FormatHighPoint {
		return types.HighPointReservedSectors
	}
	return 0
}

// UsableSectors returns the number of data sectors a member of the given
// capacity contributes
func (f Format) UsableSectors(capacity uint64) (uint64, error) {
	lba, err := f.MetadataLBA(capacity)
	if err != nil {
		return 0, err
	}
	if f == FormatHighPoint {
		return capacity - types.HighPointReservedSectors, nil
	}
	// Promise data runs from sector 0 up to the descriptor
	return lba, nil
}

// NextGeneration returns the generation that follows g. Promise stores a
// 16-bit counter, so the in-memory value wraps with it.
func (f Format) NextGeneration(g uint32) uint32 {
	if f == FormatPromise {
		return uint32(uint16(g + 1))
	}
	return g + 1
}

// NewerGeneration reports whether generation g was written after other.
// Promise counters compare in serial-number order so a wrap to 0 still
// counts as newer than 65535.
func (f Format) NewerGeneration(g, other uint32) bool {
	if f == FormatPromise {
		return int16(uint16(g)-uint16(other)) > 0
	}
	return g > other
}
