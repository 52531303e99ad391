package raid

import (
	"fmt"

	"github.com/deploymenttheory/go-ataraid/internal/types"
)

// Geometry is the part of an array's layout the translator needs
type Geometry struct {
	Topology types.Topology
	// Width is the number of stripe columns, or the member count of a span
	Width int
	// Interleave is the stripe unit in sectors
	Interleave   uint64
	TotalSectors uint64
	// MemberSectors lists the usable sectors of each spanned member
	MemberSectors []uint64
}

// Chunk is the piece of a logical request that lands on one primary member.
// Mirrored topologies duplicate it onto slot Member+Width.
type Chunk struct {
	Member int
	// LBA is relative to the start of the member's data region
	LBA uint64
	// Offset is the chunk's position in the request in sectors
	Offset uint64
	Count  uint64
}

// Translate maps [lba, lba+length) onto member chunks. The chunks are returned
// in request order, cover the range exactly and never cross a stripe unit or
// member boundary.
func Translate(g Geometry, lba, length uint64) ([]Chunk, error) {
	if lba > g.TotalSectors || length > g.TotalSectors-lba {
		return nil, fmt.Errorf("%w: %d+%d of %d sectors", types.ErrOutOfRange, lba, length, g.TotalSectors)
	}
	if length == 0 {
		return nil, nil
	}

	switch g.Topology {
	case types.TopologyMirrored:
		return []Chunk{{Member: 0, LBA: lba, Count: length}}, nil
	case types.TopologyStriped, types.TopologyStripedMirrored:
		return translateStriped(g, lba, length)
	case types.TopologySpanned:
		return translateSpanned(g, lba, length)
	default:
		return nil, fmt.Errorf("%w: %s", types.ErrUnsupported, g.Topology)
	}
}

func translateStriped(g Geometry, lba, length uint64) ([]Chunk, error) {
	if g.Width <= 0 || !types.IsPowerOfTwo(g.Interleave) {
		return nil, fmt.Errorf("%w: width %d interleave %d", types.ErrUnsupported, g.Width, g.Interleave)
	}
	width := uint64(g.Width)
	row := g.Interleave * width
	full := (g.TotalSectors / row) * row
	tailUnit := (g.TotalSectors - full) / width

	var chunks []Chunk
	pos, end := lba, lba+length
	for pos < end {
		var c Chunk
		var limit uint64
		if pos < full {
			stripe := pos / g.Interleave
			within := pos % g.Interleave
			c.Member = int(stripe % width)
			c.LBA = (stripe/width)*g.Interleave + within
			limit = pos - within + g.Interleave
		} else {
			// the partial last row is laid out as one run per member
			member := width - 1
			if tailUnit > 0 && (pos-full)/tailUnit < width-1 {
				member = (pos - full) / tailUnit
			}
			c.Member = int(member)
			c.LBA = full/width + (pos - full - member*tailUnit)
			limit = g.TotalSectors
			if member < width-1 {
				limit = full + (member+1)*tailUnit
			}
		}
		if limit > end {
			limit = end
		}
		c.Offset = pos - lba
		c.Count = limit - pos
		chunks = append(chunks, c)
		pos = limit
	}
	return chunks, nil
}

func translateSpanned(g Geometry, lba, length uint64) ([]Chunk, error) {
	var chunks []Chunk
	pos, end := lba, lba+length
	var base uint64
	for m, size := range g.MemberSectors {
		if pos >= end {
			break
		}
		if pos >= base+size {
			base += size
			continue
		}
		limit := base + size
		if limit > end {
			limit = end
		}
		chunks = append(chunks, Chunk{Member: m, LBA: pos - base, Offset: pos - lba, Count: limit - pos})
		pos = limit
		base += size
	}
	if pos < end {
		return nil, fmt.Errorf("%w: span members hold %d sectors", types.ErrOutOfRange, base)
	}
	return chunks, nil
}

// MemberExtent returns the number of data sectors the layout places on the
// given primary member
func MemberExtent(g Geometry, member int) uint64 {
	switch g.Topology {
	case types.TopologyMirrored:
		return g.TotalSectors
	case types.TopologyStriped, types.TopologyStripedMirrored:
		if g.Width <= 0 || g.Interleave == 0 {
			return 0
		}
		width := uint64(g.Width)
		row := g.Interleave * width
		full := (g.TotalSectors / row) * row
		tail := g.TotalSectors - full
		extent := full/width + tail/width
		if member == g.Width-1 {
			extent += tail % width
		}
		return extent
	case types.TopologySpanned:
		if member < len(g.MemberSectors) {
			return g.MemberSectors[member]
		}
	}
	return 0
}
