package registry

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/deploymenttheory/go-ataraid/internal/interfaces"
	"github.com/deploymenttheory/go-ataraid/internal/logger"
	"github.com/deploymenttheory/go-ataraid/internal/parsers/metadata"
	"github.com/deploymenttheory/go-ataraid/internal/raid"
	"github.com/deploymenttheory/go-ataraid/internal/types"
)

// CreateSpec describes a new array
type CreateSpec struct {
	Format   metadata.Format
	Topology types.Topology
	// Interleave is the stripe unit in sectors, ignored for unstriped layouts
	Interleave uint64
	Name       string
	Devices    []interfaces.BlockDevice
}

// Create validates spec, writes fresh metadata to every member and registers
// the array. Nothing is registered if any member cannot be written.
func (r *Registry) Create(ctx context.Context, spec CreateSpec) (*raid.Array, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	layout, usable, err := planLayout(spec)
	if err != nil {
		return nil, err
	}

	id := r.reserve()
	layout.ArrayNumber = uint8(id)
	a := raid.New(id, layout, 1, r.opts)
	for slot, dev := range spec.Devices {
		var diskID uint64
		if spec.Format == metadata.FormatPromise {
			diskID = newTag()
		}
		flags := types.MemberPresent | types.MemberAssigned | types.MemberOnline
		if err := a.Attach(slot, dev, flags, usable[slot], diskID); err != nil {
			return nil, err
		}
	}
	a.Recompute()

	if err := a.WriteMetadata(); err != nil {
		return nil, fmt.Errorf("write metadata: %w", err)
	}
	if err := r.install(a); err != nil {
		return nil, err
	}

	logger.Info("array created", "id", id, "format", layout.Format.String(), "topology", layout.Topology.String(),
		"members", len(spec.Devices), "sectors", layout.TotalSectors, "interleave", layout.Interleave)
	return a, nil
}

// Delete wipes the metadata of every member and forgets the array
func (r *Registry) Delete(ctx context.Context, id int) error {
	a, err := r.Get(id)
	if err != nil {
		return err
	}
	if err := a.Wipe(ctx); err != nil {
		return err
	}
	return r.Remove(id)
}

// planLayout checks member count, interleave and capacities and computes the
// array size. It returns the usable sectors of every member.
func planLayout(spec CreateSpec) (raid.Layout, []uint64, error) {
	n := len(spec.Devices)
	topoErr := func(reason string) error {
		return &types.TopologyError{Topology: spec.Topology, Members: n, Reason: reason}
	}

	switch spec.Format {
	case metadata.FormatPromise, metadata.FormatHighPoint:
	default:
		return raid.Layout{}, nil, fmt.Errorf("%w: metadata format %d", types.ErrUnsupported, int(spec.Format))
	}

	width := n
	switch spec.Topology {
	case types.TopologyStriped, types.TopologySpanned:
		if n < 2 {
			return raid.Layout{}, nil, topoErr("needs at least 2 members")
		}
	case types.TopologyMirrored:
		if n != 2 {
			return raid.Layout{}, nil, topoErr("a mirror has exactly 2 members, use RAID0+1 for more")
		}
		width = 1
	case types.TopologyStripedMirrored:
		if n < 4 || n%2 != 0 {
			return raid.Layout{}, nil, topoErr("needs an even number of at least 4 members")
		}
		width = n / 2
	default:
		return raid.Layout{}, nil, topoErr("unknown topology")
	}
	if n > raid.MaxSlots {
		return raid.Layout{}, nil, topoErr(fmt.Sprintf("at most %d members", raid.MaxSlots))
	}
	if spec.Topology.Striped() && (!types.IsPowerOfTwo(spec.Interleave) || spec.Interleave > 1<<24) {
		return raid.Layout{}, nil, topoErr(fmt.Sprintf("interleave %d is not a power of two", spec.Interleave))
	}

	names := make(map[string]bool, n)
	usable := make([]uint64, n)
	for i, dev := range spec.Devices {
		if names[dev.Name()] {
			return raid.Layout{}, nil, topoErr(fmt.Sprintf("device %s listed twice", dev.Name()))
		}
		names[dev.Name()] = true

		u, err := spec.Format.UsableSectors(dev.Sectors())
		if err != nil {
			return raid.Layout{}, nil, &types.CapacityError{Device: dev.Name(), Have: dev.Sectors(), Reason: err.Error()}
		}
		usable[i] = u
		if spec.Topology != types.TopologySpanned && u != usable[0] {
			return raid.Layout{}, nil, &types.CapacityError{
				Device: dev.Name(), Have: u, Required: usable[0], Reason: "member sizes differ",
			}
		}
	}

	var total uint64
	switch spec.Topology {
	case types.TopologySpanned:
		for _, u := range usable {
			total += u
		}
	default:
		total = uint64(width) * usable[0]
	}
	if total > math.MaxUint32 {
		return raid.Layout{}, nil, &types.CapacityError{
			Device: spec.Devices[0].Name(), Have: total, Required: math.MaxUint32,
			Reason: "array size exceeds what the metadata can describe",
		}
	}

	interleave := spec.Interleave
	if !spec.Topology.Striped() {
		interleave = 1
	}

	tag := newTag()
	if spec.Format == metadata.FormatHighPoint {
		tag &= math.MaxUint32
	}

	cylinder := uint64(types.PromiseHeads * types.PromiseSectorsPerTrack)
	cylinders := total / cylinder
	if cylinders > math.MaxUint16 {
		cylinders = math.MaxUint16
	}

	return raid.Layout{
		Format:          spec.Format,
		Tag:             tag,
		Topology:        spec.Topology,
		Width:           width,
		Interleave:      interleave,
		TotalSectors:    total,
		Offset:          spec.Format.DataOffset(),
		Cylinders:       uint16(cylinders),
		Heads:           types.PromiseHeads,
		SectorsPerTrack: types.PromiseSectorsPerTrack,
		Name:            spec.Name,
	}, usable, nil
}

// newTag derives a 64-bit identity from a random UUID
func newTag() uint64 {
	id := uuid.New()
	return binary.LittleEndian.Uint64(id[:8]) ^ binary.LittleEndian.Uint64(id[8:])
}
