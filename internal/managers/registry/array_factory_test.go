package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-ataraid/internal/interfaces"
	"github.com/deploymenttheory/go-ataraid/internal/parsers/metadata"
	"github.com/deploymenttheory/go-ataraid/internal/types"
)

func TestCreateRejects(t *testing.T) {
	_, two := memoryDevices(1100, 1100)
	_, three := memoryDevices(1100, 1100, 1100)
	_, nine := memoryDevices(1100, 1100, 1100, 1100, 1100, 1100, 1100, 1100, 1100)
	_, uneven := memoryDevices(1100, 900)
	_, tiny := memoryDevices(1100, 2)

	tests := []struct {
		name     string
		spec     CreateSpec
		topology bool
		capacity bool
	}{
		{"single striped member", CreateSpec{Format: metadata.FormatPromise, Topology: types.TopologyStriped, Interleave: 16, Devices: two[:1]}, true, false},
		{"three way mirror", CreateSpec{Format: metadata.FormatPromise, Topology: types.TopologyMirrored, Devices: three}, true, false},
		{"odd raid01", CreateSpec{Format: metadata.FormatPromise, Topology: types.TopologyStripedMirrored, Interleave: 16, Devices: three}, true, false},
		{"interleave not a power of two", CreateSpec{Format: metadata.FormatPromise, Topology: types.TopologyStriped, Interleave: 12, Devices: two}, true, false},
		{"zero interleave", CreateSpec{Format: metadata.FormatHighPoint, Topology: types.TopologyStriped, Devices: two}, true, false},
		{"too many members", CreateSpec{Format: metadata.FormatPromise, Topology: types.TopologySpanned, Devices: nine}, true, false},
		{"device listed twice", CreateSpec{Format: metadata.FormatPromise, Topology: types.TopologySpanned, Devices: []interfaces.BlockDevice{two[0], two[0]}}, true, false},
		{"members differ in size", CreateSpec{Format: metadata.FormatPromise, Topology: types.TopologyStriped, Interleave: 16, Devices: uneven}, false, true},
		{"member too small for metadata", CreateSpec{Format: metadata.FormatPromise, Topology: types.TopologySpanned, Devices: tiny}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			_, err := r.Create(context.Background(), tt.spec)
			require.Error(t, err)

			var topoErr *types.TopologyError
			var capErr *types.CapacityError
			assert.Equal(t, tt.topology, errors.As(err, &topoErr), "topology error: %v", err)
			assert.Equal(t, tt.capacity, errors.As(err, &capErr), "capacity error: %v", err)
			assert.Empty(t, r.List())
		})
	}
}

func TestCreateUnknownFormat(t *testing.T) {
	_, devs := memoryDevices(1100, 1100)
	_, err := New().Create(context.Background(), CreateSpec{Format: metadata.Format(9), Topology: types.TopologySpanned, Devices: devs})
	assert.ErrorIs(t, err, types.ErrUnsupported)
}

func TestCreateHonoursCancelledContext(t *testing.T) {
	_, devs := memoryDevices(1100, 1100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Create(ctx, CreateSpec{Format: metadata.FormatPromise, Topology: types.TopologyMirrored, Devices: devs})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPlanLayout(t *testing.T) {
	_, four := memoryDevices(1100, 1100, 1100, 1100)
	_, span := memoryDevices(1100, 600, 2000)

	tests := []struct {
		name       string
		spec       CreateSpec
		width      int
		interleave uint64
		total      uint64
	}{
		{"striped", CreateSpec{Format: metadata.FormatPromise, Topology: types.TopologyStriped, Interleave: 64, Devices: four}, 4, 64, 4 * 1096},
		{"mirror", CreateSpec{Format: metadata.FormatPromise, Topology: types.TopologyMirrored, Interleave: 64, Devices: four[:2]}, 1, 1, 1096},
		{"raid01", CreateSpec{Format: metadata.FormatHighPoint, Topology: types.TopologyStripedMirrored, Interleave: 32, Devices: four}, 2, 32, 2 * 1090},
		{"span of unequal members", CreateSpec{Format: metadata.FormatPromise, Topology: types.TopologySpanned, Devices: span}, 3, 1, 1096 + 596 + 1996},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layout, usable, err := planLayout(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.width, layout.Width)
			assert.Equal(t, tt.interleave, layout.Interleave)
			assert.Equal(t, tt.total, layout.TotalSectors)
			assert.Len(t, usable, len(tt.spec.Devices))
			assert.Equal(t, tt.spec.Format.DataOffset(), layout.Offset)
			assert.NotZero(t, layout.Tag)
			if tt.spec.Format == metadata.FormatHighPoint {
				assert.LessOrEqual(t, layout.Tag, uint64(1<<32-1))
			}
		})
	}
}

func TestNewTagIsRandom(t *testing.T) {
	seen := make(map[uint64]bool)
	for i := 0; i < 64; i++ {
		tag := newTag()
		assert.False(t, seen[tag], "tag %x repeated", tag)
		seen[tag] = true
	}
}
