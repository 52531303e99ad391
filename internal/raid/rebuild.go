package raid

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/deploymenttheory/go-ataraid/internal/device"
	"github.com/deploymenttheory/go-ataraid/internal/interfaces"
	"github.com/deploymenttheory/go-ataraid/internal/logger"
	"github.com/deploymenttheory/go-ataraid/internal/types"
)

// RebuildState is the life cycle of one rebuild attempt
type RebuildState int

const (
	RebuildIdle RebuildState = iota
	RebuildActive
	RebuildComplete
	RebuildFailed
)

func (s RebuildState) String() string {
	switch s {
	case RebuildIdle:
		return "idle"
	case RebuildActive:
		return "active"
	case RebuildComplete:
		return "complete"
	case RebuildFailed:
		return "failed"
	default:
		return fmt.Sprintf("RebuildState(%d)", int(s))
	}
}

var errTargetLost = errors.New("rebuild target left the array")

// rebuildPair copies primary member data from an online leg onto a spare leg
type rebuildPair struct {
	member int
	source int
	target int
}

// Rebuilder resynchronizes the spare legs of a degraded mirrored array
type Rebuilder struct {
	array *Array
	pairs []rebuildPair
	start uint64

	mu      sync.Mutex
	state   RebuildState
	err     error
	windows int
	done    chan struct{}
}

// State returns the current life cycle state
func (r *Rebuilder) State() RebuildState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the failure of a Failed rebuild
func (r *Rebuilder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Done is closed when the rebuild has completed or failed
func (r *Rebuilder) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the rebuild ends and returns its failure, if any
func (r *Rebuilder) Wait() error {
	<-r.done
	return r.Err()
}

// Windows returns the number of windows copied so far
func (r *Rebuilder) Windows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.windows
}

func (r *Rebuilder) finish(state RebuildState, err error) {
	r.mu.Lock()
	r.state = state
	r.err = err
	r.mu.Unlock()
	close(r.done)
}

// Rebuild runs a rebuild to the end
func (a *Array) Rebuild(ctx context.Context) error {
	r, err := a.StartRebuild(ctx)
	if err != nil {
		return err
	}
	return r.Wait()
}

// StartRebuild validates the preconditions and starts copying in the
// background. Hot spares are moved into the slot of a missing leg first.
func (a *Array) StartRebuild(ctx context.Context) (*Rebuilder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rebuild != nil {
		return nil, types.ErrRebuildBusy
	}
	switch a.state {
	case types.StateBroken:
		return nil, fmt.Errorf("%w: %s", types.ErrArrayBroken, a.nameLocked())
	case types.StateReady:
		return nil, types.ErrNotDegraded
	}

	pairs := a.planRebuildLocked()
	if len(pairs) == 0 {
		return nil, types.ErrNoSpare
	}

	start := types.NoRebuild
	for _, p := range pairs {
		if s := a.slots[p.target]; s.Synced < start {
			start = s.Synced
		}
	}

	r := &Rebuilder{array: a, pairs: pairs, start: start, state: RebuildActive, done: make(chan struct{})}
	a.rebuild = r
	logger.Info("rebuild started", append(a.logFields(), "pairs", len(pairs), "from", start, "to", a.layout.TotalSectors)...)

	go r.run(ctx)
	return r, nil
}

// planRebuildLocked picks a spare for every pair with exactly one online leg
func (a *Array) planRebuildLocked() []rebuildPair {
	if !a.layout.Topology.Mirrored() {
		return nil
	}
	g := a.geometryLocked()

	var pairs []rebuildPair
	for m := 0; m < a.layout.Width; m++ {
		source, target := -1, -1
		for _, leg := range a.legsLocked(m) {
			if a.slotAt(leg).online() {
				source = leg
			} else {
				target = leg
			}
		}
		if source < 0 || target < 0 {
			continue
		}

		need := MemberExtent(g, m)
		if s := a.slotAt(target); s.spare() {
			if s.Sectors >= need {
				pairs = append(pairs, rebuildPair{member: m, source: source, target: target})
				continue
			}
			logger.Warn("spare too small, skipping", append(a.logFields(),
				"slot", target, "device", s.Device.Name(), "have", s.Sectors, "need", need)...)
		}

		if a.promoteHotSpareLocked(target, need) {
			pairs = append(pairs, rebuildPair{member: m, source: source, target: target})
		}
	}
	return pairs
}

// promoteHotSpareLocked moves the first large enough hot spare into slot target
func (a *Array) promoteHotSpareLocked(target int, need uint64) bool {
	for i := a.layout.TotalDisks(); i < len(a.slots); i++ {
		hs := a.slots[i]
		if !hs.spare() {
			continue
		}
		if hs.Sectors < need {
			logger.Warn("hot spare too small, skipping", append(a.logFields(),
				"slot", i, "device", hs.Device.Name(), "have", hs.Sectors, "need", need)...)
			continue
		}

		dst, err := a.slotLocked(target, true)
		if err != nil {
			return false
		}
		logger.Info("hot spare moved into array", append(a.logFields(),
			"from_slot", i, "to_slot", target, "device", hs.Device.Name())...)
		*dst = MemberSlot{
			Index:      target,
			Device:     hs.Device,
			Flags:      types.MemberPresent | types.MemberAssigned | types.MemberSpare,
			Sectors:    hs.Sectors,
			Generation: a.generation,
			DiskID:     hs.DiskID,
		}
		*hs = MemberSlot{Index: i}
		return true
	}
	return false
}

func (r *Rebuilder) run(ctx context.Context) {
	a := r.array
	total := a.Sectors()
	window := a.opts.RebuildWindow
	if window == 0 {
		window = DefaultOptions().RebuildWindow
	}

	var err error
	for lockStart := r.start; lockStart < total; {
		if err = ctx.Err(); err != nil {
			break
		}
		lockEnd := lockStart + window
		if lockEnd > total || lockEnd < lockStart {
			lockEnd = total
		}

		if err = a.moveWindow(ctx, r.pairs, lockStart, lockEnd); err != nil {
			break
		}
		if err = r.copyWindow(lockStart, lockEnd); err != nil {
			break
		}

		r.mu.Lock()
		r.windows++
		windows := r.windows
		r.mu.Unlock()

		lockStart = lockEnd
		if a.opts.CheckpointWindows > 0 && windows%a.opts.CheckpointWindows == 0 && lockStart < total {
			a.checkpointRebuild(r.pairs, lockStart)
		}
	}

	if err != nil {
		a.abortRebuild(r, err)
		return
	}
	a.completeRebuild(r)
}

// moveWindow marks everything below start as synchronized, moves the window to
// [start, end), wakes blocked writers and waits for in-flight writes inside
// the new window to drain
func (a *Array) moveWindow(ctx context.Context, pairs []rebuildPair, start, end uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, p := range pairs {
		t := a.slotAt(p.target)
		if !t.spare() {
			return fmt.Errorf("%w: slot %d", errTargetLost, p.target)
		}
		if t.Synced < start {
			t.Synced = start
		}
	}
	a.lockStart, a.lockEnd = start, end
	a.broadcastLocked()

	for a.inflightOverlapsLocked(start, end) {
		wake := a.notify
		a.mu.Unlock()
		select {
		case <-ctx.Done():
			a.mu.Lock()
			return ctx.Err()
		case <-wake:
		}
		a.mu.Lock()
	}
	return nil
}

type copyLeg struct {
	rebuildPair
	src    interfaces.BlockDevice
	dst    interfaces.BlockDevice
	synced uint64
}

// copyWindow copies [start, end) from the online legs onto their spares
func (r *Rebuilder) copyWindow(start, end uint64) error {
	a := r.array

	a.mu.Lock()
	g := a.geometryLocked()
	offset := a.layout.Offset
	legs := make([]copyLeg, 0, len(r.pairs))
	for _, p := range r.pairs {
		src, dst := a.slotAt(p.source), a.slotAt(p.target)
		if !src.online() || !dst.spare() {
			a.mu.Unlock()
			return fmt.Errorf("%w: pair %d", errTargetLost, p.member)
		}
		legs = append(legs, copyLeg{rebuildPair: p, src: src.Device, dst: dst.Device, synced: dst.Synced})
	}
	a.mu.Unlock()

	chunks, err := Translate(g, start, end-start)
	if err != nil {
		return err
	}
	for _, c := range chunks {
		for _, leg := range legs {
			if leg.member != c.Member || start+c.Offset+c.Count <= leg.synced {
				continue
			}
			buf := make([]byte, c.Count*types.SectorSize)
			lba := offset + c.LBA
			if err := device.Transfer(leg.src, types.Read, lba, buf); err != nil {
				return &types.MemberIOError{Member: leg.source, Device: leg.src.Name(), LBA: lba, Dir: types.Read, Err: err}
			}
			if err := device.Transfer(leg.dst, types.Write, lba, buf); err != nil {
				return &types.MemberIOError{Member: leg.target, Device: leg.dst.Name(), LBA: lba, Dir: types.Write, Err: err}
			}
		}
	}
	return nil
}

// checkpointRebuild persists the cursor so an interrupted rebuild resumes at it
func (a *Array) checkpointRebuild(pairs []rebuildPair, cursor uint64) {
	a.mu.Lock()
	for _, p := range pairs {
		if t := a.slotAt(p.target); t.spare() && t.Synced < cursor {
			t.Synced = cursor
		}
	}
	plan := a.metadataPlanLocked()
	a.mu.Unlock()

	logger.Debug("rebuild checkpoint", "array", a.Name(), "cursor", cursor)
	a.writeback(plan, "rebuild checkpoint")
}

// abortRebuild leaves the array degraded with its spares still Spare and
// persists how far they got
func (a *Array) abortRebuild(r *Rebuilder, err error) {
	a.mu.Lock()
	a.lockStart, a.lockEnd = types.NoRebuild, types.NoRebuild
	a.rebuild = nil
	a.broadcastLocked()
	cursor := a.rebuildCursorLocked()
	fields := append(a.logFields(), "cursor", cursor, "error", err)
	plan := a.metadataPlanLocked()
	a.mu.Unlock()

	logger.Error("rebuild failed", fields...)
	a.writeback(plan, "rebuild failed")
	r.finish(RebuildFailed, err)
}

// completeRebuild puts the synchronized spares online
func (a *Array) completeRebuild(r *Rebuilder) {
	a.mu.Lock()
	for _, p := range r.pairs {
		t := a.slotAt(p.target)
		if !t.spare() {
			continue
		}
		t.Flags = types.MemberPresent | types.MemberAssigned | types.MemberOnline
		t.Synced = 0
		t.LastLBA = 0
	}
	a.lockStart, a.lockEnd = types.NoRebuild, types.NoRebuild
	a.rebuild = nil

	prev := a.state
	next, changed := a.computeStateLocked()
	if changed {
		a.state = next
		a.logState(prev, next, "rebuild complete")
	}
	a.generation = a.layout.Format.NextGeneration(a.generation)
	fields := a.logFields()
	plan := a.metadataPlanLocked()
	a.broadcastLocked()
	a.mu.Unlock()

	a.writeback(plan, "rebuild complete")
	logger.Info("rebuild complete", fields...)
	r.finish(RebuildComplete, nil)
}

// RebuildProgress returns how much of the array is in sync, in percent
func (a *Array) RebuildProgress() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.progressLocked()
}

func (a *Array) progressLocked() int {
	total := a.layout.TotalSectors
	if total == 0 {
		return 0
	}
	var cursor uint64
	switch {
	case a.rebuild != nil && a.lockStart != types.NoRebuild:
		cursor = a.lockStart
	case a.rebuild != nil:
		cursor = a.rebuild.start
	case a.state == types.StateReady:
		return 100
	default:
		cursor = a.rebuildCursorLocked()
	}
	return int(cursor * 100 / total)
}

func (a *Array) rebuildingLocked() bool {
	return a.rebuild != nil
}
