package raid

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/deploymenttheory/go-ataraid/internal/device"
	"github.com/deploymenttheory/go-ataraid/internal/interfaces"
	"github.com/deploymenttheory/go-ataraid/internal/logger"
	"github.com/deploymenttheory/go-ataraid/internal/parsers/metadata"
	"github.com/deploymenttheory/go-ataraid/internal/types"
)

// metadataWrite is one encoded descriptor bound for one member
type metadataWrite struct {
	slot  int
	dev   interfaces.BlockDevice
	block []byte
	err   error
}

// fragmentLocked describes slot idx from the live array state
func (a *Array) fragmentLocked(idx int) *metadata.Fragment {
	l := a.layout
	s := a.slots[idx]
	f := &metadata.Fragment{
		Format:          l.Format,
		Tag:             l.Tag,
		Generation:      a.generation,
		Topology:        l.Topology,
		Width:           uint8(l.Width),
		TotalDisks:      uint8(l.TotalDisks()),
		DiskIndex:       uint8(idx),
		InterleaveShift: types.Log2(l.Interleave),
		TotalSectors:    l.TotalSectors,
		DataOffset:      l.Offset,
		RebuildLBA:      a.rebuildCursorLocked(),
		Cylinders:       l.Cylinders,
		Heads:           l.Heads,
		SectorsPerTrack: l.SectorsPerTrack,
		Flags:           s.Flags,
		DiskID:          s.DiskID,
		ArrayNumber:     l.ArrayNumber,
		State:           a.state,
		Name:            l.Name,
	}
	if l.Format == metadata.FormatPromise {
		f.DiskSectors = s.Sectors
		if l.Topology != types.TopologySpanned {
			f.DiskSectors = MemberExtent(a.geometryLocked(), idx%l.Width)
		}
		f.Members = make([]metadata.MemberRecord, l.TotalDisks())
		for i := range f.Members {
			if m := a.slotAt(i); m != nil {
				f.Members[i] = metadata.MemberRecord{Flags: m.Flags, DiskID: m.DiskID}
			}
		}
	}
	return f
}

// EncodeMember serializes the descriptor of slot idx as it would be written now
func (a *Array) EncodeMember(idx int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.slotAt(idx) == nil {
		return nil, fmt.Errorf("%w: slot %d", types.ErrMemberAbsent, idx)
	}
	return metadata.EncodeFragment(a.fragmentLocked(idx))
}

// metadataPlan is the set of descriptors one state change writes. seq orders
// plans in the order they were built under the array lock.
type metadataPlan struct {
	seq    uint64
	format metadata.Format
	writes []metadataWrite
}

// metadataPlanLocked encodes a descriptor for every present member. Encoding
// failures travel with the plan so they are reported next to I/O failures.
func (a *Array) metadataPlanLocked() metadataPlan {
	a.planSeq++
	plan := metadataPlan{seq: a.planSeq, format: a.layout.Format}
	for i, s := range a.slots {
		if !s.present() {
			continue
		}
		if a.layout.Format == metadata.FormatHighPoint && i >= a.layout.TotalDisks() {
			// HighPoint descriptors have no slot for hot spares
			continue
		}
		s.Generation = a.generation
		block, err := metadata.EncodeFragment(a.fragmentLocked(i))
		plan.writes = append(plan.writes, metadataWrite{slot: i, dev: s.Device, block: block, err: err})
	}
	return plan
}

// writeMetadataPlan writes each planned descriptor to its metadata sector.
// It must run without the array lock held.
func writeMetadataPlan(plan metadataPlan) error {
	var errs []error
	for _, w := range plan.writes {
		if w.err != nil {
			errs = append(errs, fmt.Errorf("slot %d: %w", w.slot, w.err))
			continue
		}
		if err := writeBlock(plan.format, w.dev, w.block); err != nil {
			errs = append(errs, fmt.Errorf("slot %d (%s): %w", w.slot, w.dev.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// commitPlan writes plan unless a later plan already reached the disks.
// Writebacks run one at a time so an older state never lands after a newer one.
func (a *Array) commitPlan(plan metadataPlan) (bool, error) {
	a.wbMu.Lock()
	defer a.wbMu.Unlock()
	if plan.seq <= a.committed {
		return false, nil
	}
	a.committed = plan.seq
	return true, writeMetadataPlan(plan)
}

func writeBlock(format metadata.Format, dev interfaces.BlockDevice, block []byte) error {
	lba, err := format.MetadataLBA(dev.Sectors())
	if err != nil {
		return err
	}
	return device.Transfer(dev, types.Write, lba, block)
}

// writeback writes the plan and logs failures; the in-memory state stays
// authoritative either way
func (a *Array) writeback(plan metadataPlan, reason string) {
	name := a.Name()
	written, err := a.commitPlan(plan)
	switch {
	case err != nil:
		logger.Warn("metadata writeback failed", "array", name, "reason", reason, "error", err)
	case !written:
		logger.Debug("metadata writeback superseded", "array", name, "reason", reason, "plan", plan.seq)
	default:
		logger.Debug("metadata written", "array", name, "reason", reason, "members", len(plan.writes))
	}
}

// WriteMetadata writes the current descriptor to every present member and
// returns any failure
func (a *Array) WriteMetadata() error {
	a.mu.Lock()
	plan := a.metadataPlanLocked()
	a.mu.Unlock()
	_, err := a.commitPlan(plan)
	return err
}

// Wipe overwrites the descriptor of every present member with zeroes, so the
// members are no longer discovered as part of the array
func (a *Array) Wipe(ctx context.Context) error {
	a.mu.Lock()
	if a.rebuildingLocked() {
		a.mu.Unlock()
		return types.ErrRebuildBusy
	}
	format := a.layout.Format
	var devs []interfaces.BlockDevice
	for _, s := range a.slots {
		if s.present() {
			devs = append(devs, s.Device)
		}
	}
	a.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, dev := range devs {
		dev := dev
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := writeBlock(format, dev, make([]byte, format.BlockSize())); err != nil {
				return fmt.Errorf("wipe %s: %w", dev.Name(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("array metadata wiped", "array", a.Name(), "members", len(devs))
	return nil
}
