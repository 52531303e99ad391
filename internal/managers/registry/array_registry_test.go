package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-ataraid/internal/device"
	"github.com/deploymenttheory/go-ataraid/internal/interfaces"
	"github.com/deploymenttheory/go-ataraid/internal/parsers/metadata"
	"github.com/deploymenttheory/go-ataraid/internal/raid"
	"github.com/deploymenttheory/go-ataraid/internal/types"
)

func memoryDevices(sizes ...uint64) ([]*device.MemoryDevice, []interfaces.BlockDevice) {
	mems := make([]*device.MemoryDevice, len(sizes))
	devs := make([]interfaces.BlockDevice, len(sizes))
	for i, n := range sizes {
		mems[i] = device.NewMemoryDevice(string(rune('a'+i)), n)
		devs[i] = mems[i]
	}
	return mems, devs
}

// shape drops the parts of a status that legitimately differ between the
// creating registry and one that rediscovers the array
func shape(st raid.Status) raid.Status {
	st.ID = 0
	st.Name = ""
	for i := range st.Members {
		st.Members[i].Generation = 0
		st.Members[i].IO = nil
	}
	return st
}

func TestCreateThenDiscover(t *testing.T) {
	ctx := context.Background()
	_, devs := memoryDevices(1100, 1100, 1100)

	created, err := New().Create(ctx, CreateSpec{
		Format:     metadata.FormatPromise,
		Topology:   types.TopologyStriped,
		Interleave: 16,
		Name:       "data",
		Devices:    devs,
	})
	require.NoError(t, err)
	assert.Equal(t, types.StateReady, created.State())
	assert.Equal(t, uint64(3*1096), created.Sectors())

	r := New()
	ids, err := r.Discover(ctx, devs)
	require.NoError(t, err)
	require.Equal(t, []int{0}, ids)

	found, err := r.Get(0)
	require.NoError(t, err)
	assert.Equal(t, shape(created.Status()), shape(found.Status()))
	assert.Equal(t, created.Layout().Tag, found.Layout().Tag)
}

func TestDiscoverIsIdempotent(t *testing.T) {
	ctx := context.Background()
	_, devs := memoryDevices(1100, 1100)
	_, err := New().Create(ctx, CreateSpec{Format: metadata.FormatPromise, Topology: types.TopologyMirrored, Devices: devs})
	require.NoError(t, err)

	r := New()
	_, err = r.Discover(ctx, devs)
	require.NoError(t, err)
	a, err := r.Get(0)
	require.NoError(t, err)
	before := a.Status()

	ids, err := r.Discover(ctx, devs)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, ids)
	assert.Len(t, r.List(), 1)
	assert.Equal(t, shape(before), shape(a.Status()))
	assert.Equal(t, before.Generation, a.Generation())
}

func TestDiscoverSkipsForeignDevices(t *testing.T) {
	ctx := context.Background()
	mems, devs := memoryDevices(1100, 1100, 1100, 1100)
	_, err := New().Create(ctx, CreateSpec{Format: metadata.FormatPromise, Topology: types.TopologySpanned, Devices: devs[:2]})
	require.NoError(t, err)
	mems[3].FailAll(assert.AnError)

	r := New()
	ids, err := r.Discover(ctx, devs)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, ids)

	a, err := r.Get(0)
	require.NoError(t, err)
	assert.Equal(t, types.StateReady, a.State())
	assert.Equal(t, []string{"a", "b"}, deviceNames(a))
}

func TestDiscoverSeparatesArrays(t *testing.T) {
	ctx := context.Background()
	_, devs := memoryDevices(1100, 1100, 500, 500)
	_, err := New().Create(ctx, CreateSpec{Format: metadata.FormatPromise, Topology: types.TopologyMirrored, Devices: devs[:2]})
	require.NoError(t, err)
	_, err = New().Create(ctx, CreateSpec{Format: metadata.FormatHighPoint, Topology: types.TopologyStriped, Interleave: 8, Devices: devs[2:]})
	require.NoError(t, err)

	r := New()
	ids, err := r.Discover(ctx, []interfaces.BlockDevice{devs[3], devs[0], devs[2], devs[1]})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, ids)

	formats := map[string]bool{}
	for _, a := range r.List() {
		assert.Equal(t, types.StateReady, a.State())
		formats[a.Layout().Format.String()] = true
	}
	assert.Equal(t, map[string]bool{"promise": true, "highpoint": true}, formats)
}

func TestHighPointRaid01RoundTrip(t *testing.T) {
	ctx := context.Background()
	_, devs := memoryDevices(500, 500, 500, 500)
	created, err := New().Create(ctx, CreateSpec{
		Format:     metadata.FormatHighPoint,
		Topology:   types.TopologyStripedMirrored,
		Interleave: 8,
		Name:       "mirrorstripe",
		Devices:    devs,
	})
	require.NoError(t, err)

	r := New()
	_, err = r.Discover(ctx, devs)
	require.NoError(t, err)
	found, err := r.Get(0)
	require.NoError(t, err)

	l := found.Layout()
	assert.Equal(t, types.TopologyStripedMirrored, l.Topology)
	assert.Equal(t, 2, l.Width)
	assert.Equal(t, uint64(8), l.Interleave)
	assert.Equal(t, uint64(2*490), l.TotalSectors)
	assert.Equal(t, "mirrorstripe", found.Name())
	assert.Equal(t, types.StateReady, found.State())
	assert.Equal(t, []string{"a", "b", "c", "d"}, deviceNames(found))
	assert.Equal(t, created.Layout().Tag, l.Tag)
}

func TestStaleLegOnRediscovery(t *testing.T) {
	ctx := context.Background()
	mems, devs := memoryDevices(1100, 1100)
	a, err := New().Create(ctx, CreateSpec{Format: metadata.FormatPromise, Topology: types.TopologyMirrored, Devices: devs})
	require.NoError(t, err)

	data := make([]byte, 64*types.SectorSize)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, a.WriteAt(ctx, data, 0))

	// leg b drops out and misses the generation bump
	mems[1].FailAll(assert.AnError)
	require.NoError(t, a.OnMemberEvent(1, types.EventWentOffline, nil))
	mems[1].ClearFaults()

	r := New()
	_, err = r.Discover(ctx, devs)
	require.NoError(t, err)
	found, err := r.Get(0)
	require.NoError(t, err)

	assert.Equal(t, types.StateDegraded, found.State())
	assert.Equal(t, uint32(2), found.Generation())
	st := found.Status()
	require.Len(t, st.Members, 2)
	assert.True(t, st.Members[1].Flags.Has(types.MemberSpare))

	require.NoError(t, found.Rebuild(ctx))
	assert.Equal(t, types.StateReady, found.State())
	assert.Equal(t, mems[0].Bytes(0, 64), mems[1].Bytes(0, 64))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	_, devs := memoryDevices(1100, 1100)
	r := New()

	a, err := r.Create(ctx, CreateSpec{Format: metadata.FormatPromise, Topology: types.TopologyMirrored, Devices: devs})
	require.NoError(t, err)
	require.Equal(t, 0, a.ID())

	require.NoError(t, r.Delete(ctx, 0))
	_, err = r.Get(0)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.ErrorIs(t, r.Delete(ctx, 0), types.ErrNotFound)
	assert.Empty(t, r.List())

	for _, d := range devs {
		_, err := Probe(d)
		assert.ErrorIs(t, err, types.ErrBadMagic)
	}

	ids, err := New().Discover(ctx, devs)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// IDs are never handed out twice
	b, err := r.Create(ctx, CreateSpec{Format: metadata.FormatPromise, Topology: types.TopologyMirrored, Devices: devs})
	require.NoError(t, err)
	assert.Equal(t, 1, b.ID())
}

func TestCreateFailsWhenMetadataCannotBeWritten(t *testing.T) {
	mems, devs := memoryDevices(1100, 1100)
	mems[1].FailAll(assert.AnError)
	r := New()

	_, err := r.Create(context.Background(), CreateSpec{Format: metadata.FormatPromise, Topology: types.TopologyStriped, Interleave: 16, Devices: devs})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, r.List())
}

func TestMergeRejectsMissingInput(t *testing.T) {
	_, err := New().Merge(nil, device.NewMemoryDevice("a", 10))
	assert.Error(t, err)
}

func TestSaltIsPartOfTheKey(t *testing.T) {
	plain, salted := New(), New(WithSalt("hpt"))
	assert.NotEqual(t, plain.key(metadata.FormatHighPoint, 7), salted.key(metadata.FormatHighPoint, 7))
	assert.Equal(t, salted.key(metadata.FormatHighPoint, 7), salted.key(metadata.FormatHighPoint, 7))
}

func deviceNames(a *raid.Array) []string {
	var names []string
	for _, m := range a.Status().Members {
		names = append(names, m.Device)
	}
	return names
}
