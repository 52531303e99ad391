package raid

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-ataraid/internal/device"
	"github.com/deploymenttheory/go-ataraid/internal/parsers/metadata"
	"github.com/deploymenttheory/go-ataraid/internal/types"
)

func TestMirrorWriteFollowsLegState(t *testing.T) {
	ctx := context.Background()
	a, devs := buildMirror(t, DefaultOptions())
	legA, legB := devs[0], devs[1]

	require.NoError(t, a.OnMemberEvent(1, types.EventWentOffline, nil))
	require.Equal(t, types.StateDegraded, a.State())

	legA.ResetLog()
	legB.ResetLog()
	require.NoError(t, a.WriteAt(ctx, pattern(100, 1), 100))

	assert.Equal(t, []device.Submission{{Dir: types.Write, LBA: 100, Count: 100}}, writes(legA))
	assert.Empty(t, writes(legB))

	require.NoError(t, a.OnMemberEvent(1, types.EventWentOnline, nil))
	require.Equal(t, types.StateReady, a.State())

	legA.ResetLog()
	legB.ResetLog()
	require.NoError(t, a.WriteAt(ctx, pattern(100, 1), 100))

	assert.Equal(t, []device.Submission{{Dir: types.Write, LBA: 100, Count: 100}}, writes(legA))
	assert.Equal(t, []device.Submission{{Dir: types.Write, LBA: 100, Count: 100}}, writes(legB))
}

func TestMirrorReadProximity(t *testing.T) {
	ctx := context.Background()
	opts := DefaultOptions()
	opts.Proximity = 16
	a, devs := buildMirror(t, opts)
	legA, legB := devs[0], devs[1]
	legA.ResetLog()
	legB.ResetLog()

	buf := make([]byte, 8*types.SectorSize)
	require.NoError(t, a.ReadAt(ctx, buf, 0))
	require.NoError(t, a.ReadAt(ctx, buf, 800))
	// leg A now sits at 808 and leg B at 0, so a read at 8 stays near leg B
	require.NoError(t, a.ReadAt(ctx, buf, 8))
	// and a read continuing at 808 goes back to leg A
	require.NoError(t, a.ReadAt(ctx, buf, 808))

	assert.Equal(t, []device.Submission{
		{Dir: types.Read, LBA: 0, Count: 8},
		{Dir: types.Read, LBA: 800, Count: 8},
		{Dir: types.Read, LBA: 808, Count: 8},
	}, reads(legA))
	assert.Equal(t, []device.Submission{{Dir: types.Read, LBA: 8, Count: 8}}, reads(legB))
}

func TestMirrorReadFailsOver(t *testing.T) {
	ctx := context.Background()
	a, devs := buildMirror(t, DefaultOptions())

	want := pattern(4, 0x40)
	devs[1].Fill(100, want)
	devs[0].FailAll(errors.New("medium error"))

	got := make([]byte, len(want))
	require.NoError(t, a.ReadAt(ctx, got, 100))
	assert.Equal(t, want, got)

	assert.False(t, slotFlags(a, 0).Has(types.MemberOnline))
	assert.Equal(t, types.StateDegraded, a.State())

	// the offline leg is never chosen again
	devs[0].ResetLog()
	require.NoError(t, a.ReadAt(ctx, got, 100))
	assert.Empty(t, reads(devs[0]))
}

func TestMirrorWriteSurvivesOneLeg(t *testing.T) {
	ctx := context.Background()
	a, devs := buildMirror(t, DefaultOptions())
	devs[1].FailAll(errors.New("write fault"))

	data := pattern(10, 7)
	require.NoError(t, a.WriteAt(ctx, data, 50))

	assert.Equal(t, data, devs[0].Bytes(50, 10))
	assert.Equal(t, types.StateDegraded, a.State())
	assert.False(t, slotFlags(a, 1).Has(types.MemberOnline))
}

func TestMirrorWriteFailsOnEveryLeg(t *testing.T) {
	ctx := context.Background()
	a, devs := buildMirror(t, DefaultOptions())
	devs[0].FailAll(errors.New("dead"))
	devs[1].FailAll(errors.New("dead"))

	err := a.WriteAt(ctx, pattern(1, 0), 0)
	require.Error(t, err)

	var ioErr *types.MemberIOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, types.Write, ioErr.Dir)
	assert.Equal(t, types.StateBroken, a.State())

	_, err = a.Submit(ctx, types.Read, 0, make([]byte, types.SectorSize))
	assert.ErrorIs(t, err, types.ErrArrayBroken)
}

func TestStripedRoundTrip(t *testing.T) {
	ctx := context.Background()
	devs := newDevices(3, 500)
	usable, err := metadata.FormatHighPoint.UsableSectors(500)
	require.NoError(t, err)
	total := 3 * usable

	a := buildArray(t, metadata.FormatHighPoint, types.TopologyStriped, 3, 8, total, DefaultOptions(), devs)

	data := pattern(total, 3)
	require.NoError(t, a.WriteAt(ctx, data, 0))

	got := make([]byte, len(data))
	require.NoError(t, a.ReadAt(ctx, got, 0))
	assert.True(t, sameBytes(data, got))

	// array sector 8 is the first sector of member 1's data region
	assert.Equal(t, data[8*types.SectorSize:9*types.SectorSize], devs[1].Bytes(types.HighPointReservedSectors, 1))
}

func TestStripedMemberErrorBreaksArray(t *testing.T) {
	ctx := context.Background()
	devs := newDevices(2, 1100)
	a := buildArray(t, metadata.FormatPromise, types.TopologyStriped, 2, 16, 2000, DefaultOptions(), devs)
	devs[1].FailAll(errors.New("unreadable"))

	err := a.ReadAt(ctx, make([]byte, 32*types.SectorSize), 0)
	require.Error(t, err)

	var ioErr *types.MemberIOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, 1, ioErr.Member)
	assert.Equal(t, "b", ioErr.Device)
	assert.Equal(t, types.StateBroken, a.State())

	_, err = a.Submit(ctx, types.Write, 0, make([]byte, types.SectorSize))
	assert.ErrorIs(t, err, types.ErrArrayBroken)
}

func TestSpanRoundTrip(t *testing.T) {
	ctx := context.Background()
	devs := []*device.MemoryDevice{
		device.NewMemoryDevice("a", 110),
		device.NewMemoryDevice("b", 60),
		device.NewMemoryDevice("c", 210),
	}
	// HighPoint keeps 10 sectors in front: 100 + 50 + 200
	a := buildArray(t, metadata.FormatHighPoint, types.TopologySpanned, 3, 1, 350, DefaultOptions(), devs)

	data := pattern(80, 9)
	require.NoError(t, a.WriteAt(ctx, data, 90))

	assert.Equal(t, data[:10*types.SectorSize], devs[0].Bytes(100, 10))
	assert.Equal(t, data[10*types.SectorSize:60*types.SectorSize], devs[1].Bytes(10, 50))
	assert.Equal(t, data[60*types.SectorSize:], devs[2].Bytes(10, 20))
}

func TestSpareTakesWritesBelowItsSyncPoint(t *testing.T) {
	tests := []struct {
		name  string
		lba   uint64
		count uint64
		want  []device.Submission
	}{
		{"below sync point", 100, 10, []device.Submission{{Dir: types.Write, LBA: 100, Count: 10}}},
		{"above sync point", 600, 10, nil},
		{"ends at sync point", 502, 10, []device.Submission{{Dir: types.Write, LBA: 502, Count: 10}}},
		{"straddles sync point", 400, 200, []device.Submission{{Dir: types.Write, LBA: 400, Count: 200}}},
		{"starts at sync point", 512, 10, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			a, devs := buildMirror(t, DefaultOptions())
			spare := device.NewMemoryDevice("spare", 1100)

			require.NoError(t, a.OnMemberEvent(1, types.EventRemoved, nil))
			require.NoError(t, a.OnMemberEvent(1, types.EventInserted, spare))
			require.True(t, slotFlags(a, 1).Has(types.MemberSpare))

			a.mu.Lock()
			a.slots[1].Synced = 512
			a.mu.Unlock()

			devs[0].ResetLog()
			spare.ResetLog()
			require.NoError(t, a.WriteAt(ctx, pattern(tt.count, 1), tt.lba))

			assert.Len(t, writes(devs[0]), 1)
			assert.Equal(t, tt.want, writes(spare))
		})
	}
}

func TestSubmitRejects(t *testing.T) {
	ctx := context.Background()
	a, _ := buildMirror(t, DefaultOptions())

	_, err := a.Submit(ctx, types.Write, 0, make([]byte, 100))
	assert.ErrorIs(t, err, types.ErrUnaligned)

	_, err = a.Submit(ctx, types.Read, 999, make([]byte, 2*types.SectorSize))
	assert.ErrorIs(t, err, types.ErrOutOfRange)

	req, err := a.Submit(ctx, types.Read, 0, nil)
	require.NoError(t, err)
	assert.NoError(t, req.Wait())
}

func TestAsyncCompletionJoinsLegs(t *testing.T) {
	ctx := context.Background()
	a, devs := buildMirror(t, DefaultOptions())
	gate := make(chan struct{})
	for _, d := range devs {
		d.SetAsync(true)
		d.SetGate(gate)
	}

	req, err := a.Submit(ctx, types.Write, 10, pattern(4, 2))
	require.NoError(t, err)

	select {
	case <-req.Done():
		t.Fatal("request completed before its legs")
	default:
	}

	close(gate)
	require.NoError(t, req.Wait())
	for _, d := range devs {
		d.Wait()
		assert.Equal(t, pattern(4, 2), d.Bytes(10, 4))
	}
}
