// Package raid implements the virtual array: address translation, request
// splitting and completion joining, the membership state machine, metadata
// writeback and the mirror rebuild engine.
package raid

import (
	"fmt"
	"sync"

	"github.com/deploymenttheory/go-ataraid/internal/config"
	"github.com/deploymenttheory/go-ataraid/internal/interfaces"
	"github.com/deploymenttheory/go-ataraid/internal/logger"
	"github.com/deploymenttheory/go-ataraid/internal/parsers/metadata"
	"github.com/deploymenttheory/go-ataraid/internal/types"
)

// MaxSlots bounds the slot table, hot spares included
const MaxSlots = 8

// Options holds the engine tunables of one array
type Options struct {
	// Proximity is the distance in sectors under which a mirror leg keeps
	// serving sequential reads
	Proximity uint64
	// RebuildWindow is the number of sectors copied per rebuild step
	RebuildWindow uint64
	// CheckpointWindows is the number of rebuild steps between cursor writebacks
	CheckpointWindows int
}

// OptionsFromConfig extracts the array tunables from the loaded configuration
func OptionsFromConfig(cfg config.RAIDConfig) Options {
	return Options{
		Proximity:         cfg.Proximity,
		RebuildWindow:     cfg.RebuildWindow,
		CheckpointWindows: cfg.CheckpointWindows,
	}
}

// DefaultOptions returns the tunables of config.Default
func DefaultOptions() Options {
	return OptionsFromConfig(config.Default().RAID)
}

// Layout is the persistent definition of an array
type Layout struct {
	Format   metadata.Format
	Tag      uint64
	Topology types.Topology
	// Width is the number of stripe columns; mirrored layouts hold 2*Width members
	Width int
	// Interleave is the stripe unit in sectors
	Interleave   uint64
	TotalSectors uint64
	// Offset is the number of sectors in front of the data region on every member
	Offset uint64

	// geometry hints, advisory only
	Cylinders       uint16
	Heads           uint8
	SectorsPerTrack uint8

	ArrayNumber uint8
	Name        string
}

// TotalDisks returns the number of members the layout is built from
func (l Layout) TotalDisks() int {
	if l.Topology.Mirrored() {
		return l.Width * 2
	}
	return l.Width
}

// LayoutFromFragment extracts the array definition carried by a fragment
func LayoutFromFragment(f *metadata.Fragment) Layout {
	return Layout{
		Format:          f.Format,
		Tag:             f.Tag,
		Topology:        f.Topology,
		Width:           int(f.Width),
		Interleave:      f.Interleave(),
		TotalSectors:    f.TotalSectors,
		Offset:          f.DataOffset,
		Cylinders:       f.Cylinders,
		Heads:           f.Heads,
		SectorsPerTrack: f.SectorsPerTrack,
		ArrayNumber:     f.ArrayNumber,
		Name:            f.Name,
	}
}

// MemberSlot is one position in the slot table. Slots [0,Width) are the
// primary legs, [Width,2*Width) their mirrors and anything past TotalDisks a
// hot spare.
type MemberSlot struct {
	Index  int
	Device interfaces.BlockDevice
	Flags  types.MemberFlags
	// Sectors is the usable data size of the device
	Sectors uint64
	// LastLBA is where the previous read on this leg ended
	LastLBA uint64
	// Generation is the generation of the fragment that last described the slot
	Generation uint32
	DiskID     uint64
	// Synced is the end of the region a Spare already holds in sync
	Synced uint64
}

func (s *MemberSlot) online() bool {
	return s != nil && s.Device != nil && s.Flags.Has(types.MemberOnline)
}

func (s *MemberSlot) present() bool {
	return s != nil && s.Device != nil && s.Flags.Has(types.MemberPresent)
}

func (s *MemberSlot) spare() bool {
	return s.present() && s.Flags.Has(types.MemberSpare)
}

// Array is a virtual block device assembled from member slots
type Array struct {
	id   int
	opts Options

	mu         sync.Mutex
	layout     Layout
	generation uint32
	state      types.ArrayState
	slots      []*MemberSlot

	// rebuild window, both NoRebuild when idle
	lockStart uint64
	lockEnd   uint64
	rebuild   *Rebuilder

	// notify is closed and replaced whenever the window moves or a write ends
	notify    chan struct{}
	inflight  map[uint64]extent
	nextWrite uint64

	// planSeq numbers metadata plans under mu; committed is the last plan
	// written, guarded by wbMu. wbMu is never taken with mu held.
	planSeq   uint64
	wbMu      sync.Mutex
	committed uint64
}

type extent struct {
	start, end uint64
}

func (e extent) overlaps(start, end uint64) bool {
	return e.start < end && start < e.end
}

// New creates an array with an empty slot table
func New(id int, layout Layout, generation uint32, opts Options) *Array {
	a := &Array{
		id:         id,
		opts:       opts,
		layout:     layout,
		generation: generation,
		lockStart:  types.NoRebuild,
		lockEnd:    types.NoRebuild,
		notify:     make(chan struct{}),
		inflight:   make(map[uint64]extent),
	}
	a.state, _ = a.computeStateLocked()
	return a
}

// ID returns the registry index of the array
func (a *Array) ID() int {
	return a.id
}

// Layout returns a copy of the array definition
func (a *Array) Layout() Layout {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.layout
}

// Generation returns the current metadata generation
func (a *Array) Generation() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.generation
}

// State returns the current array health
func (a *Array) State() types.ArrayState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Sectors returns the logical size of the array
func (a *Array) Sectors() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.layout.TotalSectors
}

// Name returns a label for logs
func (a *Array) Name() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nameLocked()
}

func (a *Array) nameLocked() string {
	if a.layout.Name != "" {
		return a.layout.Name
	}
	return fmt.Sprintf("ar%d", a.id)
}

// Attach binds dev to slot, growing the slot table when needed
func (a *Array) Attach(slot int, dev interfaces.BlockDevice, flags types.MemberFlags, sectors, diskID uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, err := a.slotLocked(slot, true)
	if err != nil {
		return err
	}
	s.Device = dev
	s.Flags = flags
	s.Sectors = sectors
	s.DiskID = diskID
	s.Generation = a.generation
	s.Synced = 0
	return nil
}

// Recompute refreshes the array state from the slot flags without touching
// the generation
func (a *Array) Recompute() types.ArrayState {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state, _ = a.computeStateLocked()
	return a.state
}

func (a *Array) slotLocked(idx int, grow bool) (*MemberSlot, error) {
	if idx < 0 || idx >= MaxSlots {
		return nil, fmt.Errorf("slot %d outside table of %d", idx, MaxSlots)
	}
	if idx >= len(a.slots) {
		if !grow {
			return nil, fmt.Errorf("%w: slot %d", types.ErrMemberAbsent, idx)
		}
		for i := len(a.slots); i <= idx; i++ {
			a.slots = append(a.slots, &MemberSlot{Index: i})
		}
	}
	return a.slots[idx], nil
}

func (a *Array) slotAt(idx int) *MemberSlot {
	if idx < 0 || idx >= len(a.slots) {
		return nil
	}
	return a.slots[idx]
}

// geometryLocked builds the translator input from the layout and slot sizes
func (a *Array) geometryLocked() Geometry {
	g := Geometry{
		Topology:     a.layout.Topology,
		Width:        a.layout.Width,
		Interleave:   a.layout.Interleave,
		TotalSectors: a.layout.TotalSectors,
	}
	if g.Topology == types.TopologySpanned {
		g.MemberSectors = make([]uint64, a.layout.Width)
		for i := range g.MemberSectors {
			if s := a.slotAt(i); s != nil {
				g.MemberSectors[i] = s.Sectors
			}
		}
	}
	return g
}

// legsLocked returns the slots holding copies of primary member m
func (a *Array) legsLocked(m int) []int {
	if a.layout.Topology.Mirrored() {
		return []int{m, m + a.layout.Width}
	}
	return []int{m}
}

// rebuildCursorLocked is the lowest sync point of any Spare leg, the value
// persisted in metadata
func (a *Array) rebuildCursorLocked() uint64 {
	cursor := types.NoRebuild
	for i := 0; i < a.layout.TotalDisks() && i < len(a.slots); i++ {
		if s := a.slots[i]; s.spare() && s.Synced < cursor {
			cursor = s.Synced
		}
	}
	if cursor == types.NoRebuild {
		return 0
	}
	return cursor
}

// broadcastLocked wakes every goroutine waiting on the window or in-flight set
func (a *Array) broadcastLocked() {
	close(a.notify)
	a.notify = make(chan struct{})
}

// MemberStatus is a snapshot of one slot
type MemberStatus struct {
	Slot       int               `json:"slot" yaml:"slot"`
	Device     string            `json:"device" yaml:"device"`
	Flags      types.MemberFlags `json:"-" yaml:"-"`
	Status     string            `json:"status" yaml:"status"`
	Sectors    uint64            `json:"sectors" yaml:"sectors"`
	Generation uint32            `json:"generation" yaml:"generation"`
	Synced     uint64            `json:"synced,omitempty" yaml:"synced,omitempty"`
	HotSpare   bool              `json:"hot_spare,omitempty" yaml:"hot_spare,omitempty"`
	// IO holds the device's transfer counters when it keeps any
	IO *interfaces.BlockDeviceStats `json:"io,omitempty" yaml:"io,omitempty"`
}

// Status is a snapshot of an array for the management surface
type Status struct {
	ID           int              `json:"id" yaml:"id"`
	Name         string           `json:"name" yaml:"name"`
	Format       string           `json:"format" yaml:"format"`
	Tag          uint64           `json:"tag" yaml:"tag"`
	Topology     types.Topology   `json:"-" yaml:"-"`
	TopologyName string           `json:"topology" yaml:"topology"`
	Width        int              `json:"width" yaml:"width"`
	TotalDisks   int              `json:"total_disks" yaml:"total_disks"`
	Interleave   uint64           `json:"interleave" yaml:"interleave"`
	TotalSectors uint64           `json:"total_sectors" yaml:"total_sectors"`
	State        types.ArrayState `json:"-" yaml:"-"`
	StateName    string           `json:"state" yaml:"state"`
	Generation   uint32           `json:"generation" yaml:"generation"`
	Rebuilding   bool             `json:"rebuilding" yaml:"rebuilding"`
	Progress     int              `json:"rebuild_progress" yaml:"rebuild_progress"`
	Members      []MemberStatus   `json:"members" yaml:"members"`
}

// Status returns a consistent snapshot of the array
func (a *Array) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := Status{
		ID:           a.id,
		Name:         a.nameLocked(),
		Format:       a.layout.Format.String(),
		Tag:          a.layout.Tag,
		Topology:     a.layout.Topology,
		TopologyName: a.layout.Topology.String(),
		Width:        a.layout.Width,
		TotalDisks:   a.layout.TotalDisks(),
		Interleave:   a.layout.Interleave,
		TotalSectors: a.layout.TotalSectors,
		State:        a.state,
		StateName:    a.state.String(),
		Generation:   a.generation,
		Rebuilding:   a.rebuildingLocked(),
		Progress:     a.progressLocked(),
	}
	for _, s := range a.slots {
		ms := MemberStatus{
			Slot:       s.Index,
			Flags:      s.Flags,
			Status:     s.Flags.String(),
			Sectors:    s.Sectors,
			Generation: s.Generation,
			HotSpare:   s.Index >= a.layout.TotalDisks(),
		}
		if s.Device != nil {
			ms.Device = s.Device.Name()
			if sp, ok := s.Device.(interfaces.StatsProvider); ok {
				counters := sp.Stats()
				ms.IO = &counters
			}
		}
		if s.Flags.Has(types.MemberSpare) {
			ms.Synced = s.Synced
		}
		st.Members = append(st.Members, ms)
	}
	return st
}

func (a *Array) logFields() []interface{} {
	return []interface{}{"array", a.nameLocked(), "topology", a.layout.Topology.String(), "generation", a.generation}
}

func (a *Array) logState(prev, next types.ArrayState, reason string) {
	fields := append(a.logFields(), "from", prev.String(), "to", next.String(), "reason", reason)
	switch next {
	case types.StateBroken:
		logger.Error("array broken", fields...)
	case types.StateDegraded:
		logger.Warn("array degraded", fields...)
	default:
		logger.Info("array state changed", fields...)
	}
}
