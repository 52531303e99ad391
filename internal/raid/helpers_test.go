package raid

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-ataraid/internal/device"
	"github.com/deploymenttheory/go-ataraid/internal/parsers/metadata"
	"github.com/deploymenttheory/go-ataraid/internal/types"
)

const online = types.MemberPresent | types.MemberAssigned | types.MemberOnline

func newDevices(n int, sectors uint64) []*device.MemoryDevice {
	devs := make([]*device.MemoryDevice, n)
	for i := range devs {
		devs[i] = device.NewMemoryDevice(string(rune('a'+i)), sectors)
	}
	return devs
}

// buildArray assembles an array over devs with every member online
func buildArray(t *testing.T, format metadata.Format, topology types.Topology, width int, interleave, total uint64, opts Options, devs []*device.MemoryDevice) *Array {
	t.Helper()
	layout := Layout{
		Format:          format,
		Tag:             0x5eed,
		Topology:        topology,
		Width:           width,
		Interleave:      interleave,
		TotalSectors:    total,
		Offset:          format.DataOffset(),
		Heads:           types.PromiseHeads,
		SectorsPerTrack: types.PromiseSectorsPerTrack,
		Name:            "test",
	}
	a := New(0, layout, 1, opts)
	for i, d := range devs {
		usable, err := format.UsableSectors(d.Sectors())
		require.NoError(t, err)
		require.NoError(t, a.Attach(i, d, online, usable, uint64(i+1)))
	}
	a.Recompute()
	return a
}

// buildMirror is the 2-disk, 1000-sector mirror most tests start from
func buildMirror(t *testing.T, opts Options) (*Array, []*device.MemoryDevice) {
	t.Helper()
	devs := newDevices(2, 1100)
	a := buildArray(t, metadata.FormatPromise, types.TopologyMirrored, 1, 1, 1000, opts, devs)
	require.Equal(t, types.StateReady, a.State())
	return a, devs
}

func pattern(sectors uint64, seed byte) []byte {
	buf := make([]byte, sectors*types.SectorSize)
	for i := range buf {
		buf[i] = seed + byte(i/types.SectorSize)
	}
	return buf
}

func writes(d *device.MemoryDevice) []device.Submission {
	var out []device.Submission
	for _, s := range d.Submissions() {
		if s.Dir == types.Write {
			out = append(out, s)
		}
	}
	return out
}

func reads(d *device.MemoryDevice) []device.Submission {
	var out []device.Submission
	for _, s := range d.Submissions() {
		if s.Dir == types.Read {
			out = append(out, s)
		}
	}
	return out
}

func slotFlags(a *Array, idx int) types.MemberFlags {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s := a.slotAt(idx); s != nil {
		return s.Flags
	}
	return 0
}

func readMetadata(t *testing.T, d *device.MemoryDevice, format metadata.Format) (*metadata.Fragment, error) {
	t.Helper()
	lba, err := format.MetadataLBA(d.Sectors())
	require.NoError(t, err)
	return metadata.DecodeAs(format, d.Bytes(lba, format.BlockSectors()))
}

func sameBytes(a, b []byte) bool {
	return bytes.Equal(a, b)
}
