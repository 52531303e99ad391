package raid

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-ataraid/internal/device"
	"github.com/deploymenttheory/go-ataraid/internal/parsers/metadata"
	"github.com/deploymenttheory/go-ataraid/internal/types"
)

func TestEncodeMemberDescribesLayout(t *testing.T) {
	devs := newDevices(3, 1100)
	a := buildArray(t, metadata.FormatPromise, types.TopologyStriped, 3, 16, 3000, DefaultOptions(), devs)

	raw, err := a.EncodeMember(1)
	require.NoError(t, err)
	f, err := metadata.DecodeAs(metadata.FormatPromise, raw)
	require.NoError(t, err)

	want := a.Layout()
	want.Name = "" // Promise descriptors carry no label
	assert.Equal(t, want, LayoutFromFragment(f))
	assert.Equal(t, uint8(1), f.DiskIndex)
	assert.Equal(t, uint64(2), f.DiskID)
	assert.Equal(t, uint64(1000), f.DiskSectors)
	assert.Equal(t, a.Generation(), f.Generation)

	_, err = a.EncodeMember(6)
	assert.ErrorIs(t, err, types.ErrMemberAbsent)
}

func TestWriteMetadataReportsEveryMember(t *testing.T) {
	a, devs := buildMirror(t, DefaultOptions())
	devs[1].FailAll(assert.AnError)

	err := a.WriteMetadata()
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "slot 1 (b)")

	f, err := readMetadata(t, devs[0], metadata.FormatPromise)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), f.DiskIndex)
}

func TestHighPointSkipsHotSpares(t *testing.T) {
	devs := newDevices(2, 500)
	a := buildArray(t, metadata.FormatHighPoint, types.TopologyMirrored, 1, 1, 490, DefaultOptions(), devs)
	hot := device.NewMemoryDevice("hot", 500)

	require.NoError(t, a.OnMemberEvent(2, types.EventInserted, hot))

	for i, d := range devs {
		f, err := readMetadata(t, d, metadata.FormatHighPoint)
		require.NoError(t, err)
		assert.Equal(t, uint8(i), f.DiskIndex)
		assert.Equal(t, "test", f.Name)
		assert.Equal(t, uint64(0x5eed), f.Tag)
	}
	assert.Empty(t, writes(hot))
	_, err := readMetadata(t, hot, metadata.FormatHighPoint)
	assert.ErrorIs(t, err, types.ErrBadMagic)
}

func TestWipe(t *testing.T) {
	ctx := context.Background()
	a, devs := buildMirror(t, DefaultOptions())
	require.NoError(t, a.WriteMetadata())

	require.NoError(t, a.Wipe(ctx))
	for _, d := range devs {
		_, err := readMetadata(t, d, metadata.FormatPromise)
		assert.ErrorIs(t, err, types.ErrBadMagic)
	}
}

func TestWipeRefusedDuringRebuild(t *testing.T) {
	a, _, spare, _ := degradedMirror(t, DefaultOptions())
	gate := make(chan struct{})
	spare.SetAsync(true)
	spare.SetGate(gate)

	r, err := a.StartRebuild(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, a.Wipe(context.Background()), types.ErrRebuildBusy)

	close(gate)
	require.NoError(t, r.Wait())
}

func TestCommitPlanKeepsNewestDescriptor(t *testing.T) {
	tests := []struct {
		name    string
		order   []int
		written []bool
	}{
		{"in order", []int{0, 1}, []bool{true, true}},
		{"older plan arrives late", []int{1, 0}, []bool{true, false}},
		{"same plan twice", []int{1, 1}, []bool{true, false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, devs := buildMirror(t, DefaultOptions())

			a.mu.Lock()
			a.generation = 5
			older := a.metadataPlanLocked()
			a.generation = 6
			newer := a.metadataPlanLocked()
			a.mu.Unlock()
			plans := []metadataPlan{older, newer}

			for i, idx := range tt.order {
				written, err := a.commitPlan(plans[idx])
				require.NoError(t, err)
				assert.Equal(t, tt.written[i], written, "commit %d", i)
			}

			for _, d := range devs {
				f, err := readMetadata(t, d, metadata.FormatPromise)
				require.NoError(t, err)
				assert.Equal(t, uint32(6), f.Generation, d.Name())
			}
		})
	}
}

func TestConcurrentEventsLeaveNewestGenerationOnDisk(t *testing.T) {
	a, devs := buildMirror(t, DefaultOptions())
	require.NoError(t, a.WriteMetadata())

	gate := make(chan struct{})
	devs[0].ResetLog()
	devs[0].SetAsync(true)
	devs[0].SetGate(gate)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, a.OnMemberEvent(1, types.EventWentOffline, nil))
	}()

	// the offline descriptor is stuck on dev0 before the removal is applied
	require.Eventually(t, func() bool { return len(writes(devs[0])) == 1 }, time.Second, time.Millisecond)
	devs[0].SetGate(nil)

	go func() {
		defer wg.Done()
		assert.NoError(t, a.OnMemberEvent(1, types.EventRemoved, nil))
	}()
	require.Eventually(t, func() bool { return a.Generation() == 3 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	close(gate)
	wg.Wait()
	devs[0].Wait()

	f, err := readMetadata(t, devs[0], metadata.FormatPromise)
	require.NoError(t, err)
	assert.Equal(t, a.Generation(), f.Generation)
	assert.False(t, f.Members[1].Flags.Has(types.MemberPresent))
}
