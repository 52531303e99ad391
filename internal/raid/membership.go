package raid

import (
	"fmt"

	"github.com/deploymenttheory/go-ataraid/internal/interfaces"
	"github.com/deploymenttheory/go-ataraid/internal/logger"
	"github.com/deploymenttheory/go-ataraid/internal/parsers/metadata"
	"github.com/deploymenttheory/go-ataraid/internal/types"
)

// computeStateLocked evaluates the recompute rule and reports whether the
// result differs from the current state
func (a *Array) computeStateLocked() (types.ArrayState, bool) {
	next := types.StateReady
	switch a.layout.Topology {
	case types.TopologyStriped, types.TopologySpanned:
		for i := 0; i < a.layout.TotalDisks(); i++ {
			if !a.slotAt(i).online() {
				next = types.StateBroken
				break
			}
		}
	case types.TopologyMirrored, types.TopologyStripedMirrored:
		for m := 0; m < a.layout.Width; m++ {
			online := 0
			for _, leg := range a.legsLocked(m) {
				if a.slotAt(leg).online() {
					online++
				}
			}
			if online == 0 {
				next = types.StateBroken
				break
			}
			if online == 1 {
				next = types.StateDegraded
			}
		}
	}
	if a.layout.Width == 0 {
		next = types.StateBroken
	}
	return next, next != a.state
}

// OnMemberEvent applies a membership event to slot and recomputes the array
// state. Any change bumps the generation and writes metadata back to every
// present member; writeback failures are logged only.
func (a *Array) OnMemberEvent(slot int, ev types.MemberEvent, dev interfaces.BlockDevice) error {
	a.mu.Lock()
	changed, err := a.applyEventLocked(slot, ev, dev)
	if err != nil {
		a.mu.Unlock()
		return err
	}

	prev := a.state
	next, stateChanged := a.computeStateLocked()
	if stateChanged {
		a.state = next
		a.logState(prev, next, ev.String())
	}
	if !changed && !stateChanged {
		a.mu.Unlock()
		return nil
	}

	a.generation = a.layout.Format.NextGeneration(a.generation)
	plan := a.metadataPlanLocked()
	a.broadcastLocked()
	a.mu.Unlock()

	a.writeback(plan, ev.String())
	return nil
}

func (a *Array) applyEventLocked(idx int, ev types.MemberEvent, dev interfaces.BlockDevice) (bool, error) {
	s, err := a.slotLocked(idx, ev == types.EventInserted)
	if err != nil {
		return false, err
	}
	before := *s
	hotSpare := idx >= a.layout.TotalDisks()

	switch ev {
	case types.EventWentOffline:
		if s.Device == nil && dev == nil {
			return false, fmt.Errorf("%w: slot %d", types.ErrMemberAbsent, idx)
		}
		s.Flags &^= types.MemberOnline | types.MemberSpare
		if hotSpare {
			s.Flags &^= types.MemberAssigned
		}
		s.Synced = 0

	case types.EventWentOnline:
		if dev != nil {
			s.Device = dev
		}
		if s.Device == nil {
			return false, fmt.Errorf("%w: slot %d", types.ErrMemberAbsent, idx)
		}
		if hotSpare {
			s.Flags = types.MemberPresent | types.MemberAssigned | types.MemberSpare
			break
		}
		s.Flags = types.MemberPresent | types.MemberAssigned | types.MemberOnline
		s.Synced = 0

	case types.EventInserted:
		if dev == nil {
			return false, fmt.Errorf("%w: insert into slot %d without a device", types.ErrMemberAbsent, idx)
		}
		if s.Device != nil && s.Device != dev && s.Flags.Has(types.MemberOnline) {
			return false, fmt.Errorf("slot %d already holds online member %s", idx, s.Device.Name())
		}
		usable, err := a.layout.Format.UsableSectors(dev.Sectors())
		if err != nil {
			return false, &types.CapacityError{Device: dev.Name(), Have: dev.Sectors(), Reason: err.Error()}
		}
		s.Device = dev
		s.Sectors = usable
		s.Synced = 0
		s.LastLBA = 0
		s.Generation = a.generation
		if a.layout.Topology.Mirrored() || hotSpare {
			// only a completed rebuild puts a mirror leg back online
			s.Flags = types.MemberPresent | types.MemberAssigned | types.MemberSpare
		} else {
			s.Flags = types.MemberPresent | types.MemberAssigned | types.MemberOnline
		}

	case types.EventRemoved:
		s.Device = nil
		s.Flags &^= types.MemberPresent | types.MemberOnline | types.MemberSpare
		if hotSpare {
			s.Flags = 0
		}
		s.Synced = 0

	default:
		return false, fmt.Errorf("unknown member event %d", int(ev))
	}

	changed := before.Flags != s.Flags || before.Device != s.Device
	if changed {
		fields := append(a.logFields(), "slot", idx, "event", ev.String(), "flags", s.Flags.String())
		if s.Device != nil {
			fields = append(fields, "device", s.Device.Name())
		}
		logger.Info("member status changed", fields...)
	}
	return changed, nil
}

// MergeFragment folds one decoded member descriptor into the array. A newer
// generation replaces the definition; any generation updates the slot the
// descriptor was read from. Merging is idempotent and does not write metadata.
func (a *Array) MergeFragment(f *metadata.Fragment, dev interfaces.BlockDevice) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if f.Format != a.layout.Format || f.Tag != a.layout.Tag {
		return fmt.Errorf("fragment %s/%x does not belong to array %s", f.Format, f.Tag, a.nameLocked())
	}
	if a.layout.Format.NewerGeneration(f.Generation, a.generation) {
		a.layout = LayoutFromFragment(f)
		a.generation = f.Generation
	}

	s, err := a.slotLocked(int(f.DiskIndex), true)
	if err != nil {
		return err
	}

	usable := f.DiskSectors
	if usable == 0 {
		if usable, err = f.Format.UsableSectors(dev.Sectors()); err != nil {
			return &types.CapacityError{Device: dev.Name(), Have: dev.Sectors(), Reason: err.Error()}
		}
	}

	s.Device = dev
	s.Sectors = usable
	s.Generation = f.Generation
	s.DiskID = f.DiskID
	if f.Flags.Has(types.MemberOnline) {
		s.Flags = types.MemberPresent | types.MemberAssigned | types.MemberOnline
		s.Synced = 0
	} else {
		s.Flags = types.MemberPresent | types.MemberAssigned | types.MemberSpare
		s.Synced = f.RebuildLBA
	}

	a.reconcileLocked()
	a.state, _ = a.computeStateLocked()
	return nil
}

// reconcileLocked demotes mirror legs described by an older generation than
// the array: their data missed writes the newer members saw
func (a *Array) reconcileLocked() {
	if !a.layout.Topology.Mirrored() {
		return
	}
	for i := 0; i < a.layout.TotalDisks() && i < len(a.slots); i++ {
		s := a.slots[i]
		if !s.present() || !a.layout.Format.NewerGeneration(a.generation, s.Generation) {
			continue
		}
		if s.online() {
			logger.Warn("demoting stale mirror leg", append(a.logFields(),
				"slot", i, "device", s.Device.Name(), "leg_generation", s.Generation)...)
			s.Flags = (s.Flags &^ types.MemberOnline) | types.MemberSpare
		}
		// a cursor written by an older generation says nothing about current data
		s.Synced = 0
	}
}
