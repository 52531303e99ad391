package device

import (
	"fmt"
	"sync"

	"github.com/deploymenttheory/go-ataraid/internal/interfaces"
	"github.com/deploymenttheory/go-ataraid/internal/types"
)

// Fault makes matching requests fail
type Fault struct {
	Dir types.Direction
	// LBA is the first sector the fault covers
	LBA uint64
	// Count is the number of sectors covered; zero covers the rest of the device
	Count uint64
	// Once removes the fault after the first hit
	Once bool
	Err  error
}

func (f Fault) matches(dir types.Direction, lba, count uint64) bool {
	if f.Dir != dir {
		return false
	}
	end := lba + count
	if f.Count == 0 {
		return end > f.LBA
	}
	return lba < f.LBA+f.Count && f.LBA < end
}

// Submission records one request seen by a MemoryDevice
type Submission struct {
	Dir   types.Direction
	LBA   uint64
	Count uint64
}

// MemoryDevice is a RAM backed member device with fault injection and
// per-sector write accounting
type MemoryDevice struct {
	name    string
	sectors uint64

	mu          sync.Mutex
	data        []byte
	writeCounts []uint32
	faults      []Fault
	failAll     error
	log         []Submission
	async       bool
	gate        chan struct{}

	stats *statsCounter
	wg    sync.WaitGroup
}

// NewMemoryDevice creates a zero filled device of the given size
func NewMemoryDevice(name string, sectors uint64) *MemoryDevice {
	return &MemoryDevice{
		name:        name,
		sectors:     sectors,
		data:        make([]byte, sectors*types.SectorSize),
		writeCounts: make([]uint32, sectors),
		stats:       &statsCounter{},
	}
}

func (m *MemoryDevice) Name() string    { return m.name }
func (m *MemoryDevice) Sectors() uint64 { return m.sectors }

// SetAsync makes completions run on their own goroutine
func (m *MemoryDevice) SetAsync(async bool) {
	m.mu.Lock()
	m.async = async
	m.mu.Unlock()
}

// SetGate holds every asynchronous completion until gate is closed. A nil
// gate releases future requests immediately.
func (m *MemoryDevice) SetGate(gate chan struct{}) {
	m.mu.Lock()
	m.gate = gate
	m.mu.Unlock()
}

// InjectFault adds a fault rule
func (m *MemoryDevice) InjectFault(f Fault) {
	m.mu.Lock()
	m.faults = append(m.faults, f)
	m.mu.Unlock()
}

// ClearFaults removes all fault rules and the device-wide failure
func (m *MemoryDevice) ClearFaults() {
	m.mu.Lock()
	m.faults = nil
	m.failAll = nil
	m.mu.Unlock()
}

// FailAll makes every request fail with err until ClearFaults
func (m *MemoryDevice) FailAll(err error) {
	m.mu.Lock()
	m.failAll = err
	m.mu.Unlock()
}

// Submit implements interfaces.BlockSubmitter
func (m *MemoryDevice) Submit(dir types.Direction, lba uint64, buf []byte, done interfaces.CompletionFunc) {
	if err := checkRange(m.sectors, lba, buf); err != nil {
		m.stats.record(dir, 0, err)
		done(0, err)
		return
	}
	count := uint64(len(buf) / types.SectorSize)

	m.mu.Lock()
	m.log = append(m.log, Submission{Dir: dir, LBA: lba, Count: count})
	async, gate := m.async, m.gate
	m.mu.Unlock()

	run := func() {
		n, err := m.transfer(dir, lba, count, buf)
		m.stats.record(dir, n, err)
		done(n, err)
	}

	if !async {
		run()
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if gate != nil {
			<-gate
		}
		run()
	}()
}

func (m *MemoryDevice) transfer(dir types.Direction, lba, count uint64, buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAll != nil {
		return 0, m.failAll
	}
	for i, f := range m.faults {
		if !f.matches(dir, lba, count) {
			continue
		}
		if f.Once {
			m.faults = append(m.faults[:i:i], m.faults[i+1:]...)
		}
		err := f.Err
		if err == nil {
			err = fmt.Errorf("%s: injected %s fault at lba %d", m.name, dir, lba)
		}
		return 0, err
	}

	off := lba * types.SectorSize
	if dir == types.Write {
		copy(m.data[off:], buf)
		for s := lba; s < lba+count; s++ {
			m.writeCounts[s]++
		}
	} else {
		copy(buf, m.data[off:off+uint64(len(buf))])
	}
	return len(buf), nil
}

// Wait blocks until every asynchronous completion has run
func (m *MemoryDevice) Wait() {
	m.wg.Wait()
}

// WriteCount returns how many times sector lba was written
func (m *MemoryDevice) WriteCount(lba uint64) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeCounts[lba]
}

// Submissions returns the requests seen since the last ResetLog
func (m *MemoryDevice) Submissions() []Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Submission, len(m.log))
	copy(out, m.log)
	return out
}

// ResetLog clears the submission log and the write counters
func (m *MemoryDevice) ResetLog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = nil
	for i := range m.writeCounts {
		m.writeCounts[i] = 0
	}
}

// Bytes returns a copy of count sectors starting at lba
func (m *MemoryDevice) Bytes(lba, count uint64) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, count*types.SectorSize)
	copy(out, m.data[lba*types.SectorSize:])
	return out
}

// Fill writes pattern directly into the backing store without accounting
func (m *MemoryDevice) Fill(lba uint64, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy(m.data[lba*types.SectorSize:], data)
}

// Stats returns a snapshot of the transfer counters
func (m *MemoryDevice) Stats() interfaces.BlockDeviceStats {
	return m.stats.snapshot()
}
