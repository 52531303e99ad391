package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-ataraid/internal/types"
)

func TestArrayTarget(t *testing.T) {
	all := ArrayTarget{ArrayID: -1, Devices: []string{"a", "b"}}
	require.NoError(t, all.Validate())
	assert.True(t, all.All())
	assert.Equal(t, "All arrays on 2 devices", all.String())

	one := ArrayTarget{ArrayID: 2, Devices: []string{"a"}}
	assert.False(t, one.All())
	assert.Equal(t, "Array 2", one.String())

	assert.Error(t, (&ArrayTarget{}).Validate())
	assert.ErrorContains(t, (&ArrayTarget{Devices: []string{"a", "a"}}).Validate(), "listed twice")
}

func TestProgressUpdate(t *testing.T) {
	p := ProgressUpdate{Completed: 25, Total: 100, ElapsedTime: 5 * time.Second}
	assert.Equal(t, 25, p.Percent())
	assert.Equal(t, 5.0, p.Rate())
	assert.Equal(t, 15*time.Second, p.ETA())

	empty := ProgressUpdate{}
	assert.Equal(t, 0, empty.Percent())
	assert.Equal(t, 0.0, empty.Rate())
	assert.Equal(t, time.Duration(0), empty.ETA())
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", fmt.Errorf("lookup: %w", types.ErrNotFound), ErrCodeArrayNotFound},
		{"broken", types.ErrArrayBroken, ErrCodeArrayBroken},
		{"busy", types.ErrRebuildBusy, ErrCodeBusy},
		{"timeout", context.DeadlineExceeded, ErrCodeTimeout},
		{"permission", &os.PathError{Op: "open", Path: "/dev/sda", Err: os.ErrPermission}, ErrCodePermission},
		{"topology", &types.TopologyError{}, ErrCodeInvalidInput},
		{"capacity", &types.CapacityError{}, ErrCodeInvalidInput},
		{"not degraded", types.ErrNotDegraded, ErrCodeInvalidInput},
		{"no spare", types.ErrNoSpare, ErrCodeInvalidInput},
		{"codec", &types.CodecError{Err: types.ErrBadMagic}, ErrCodeNoMetadata},
		{"member io", &types.MemberIOError{Member: 1, Err: errors.New("eio")}, ErrCodeDeviceAccess},
		{"missing device", &os.PathError{Op: "open", Path: "x", Err: os.ErrNotExist}, ErrCodeDeviceAccess},
		{"other", errors.New("boom"), ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError("x", nil))

	err := WrapError("rebuild failed", types.ErrRebuildBusy)
	var common *CommonError
	require.ErrorAs(t, err, &common)
	assert.Equal(t, ErrCodeBusy, common.Code)
	assert.ErrorIs(t, err, types.ErrRebuildBusy)
	assert.Equal(t, "rebuild failed: rebuild already in progress", err.Error())

	assert.Same(t, err, WrapError("again", err))
	assert.Equal(t, "bare", NewError(ErrCodeInternal, "bare", nil).Error())
}

func TestContextOutput(t *testing.T) {
	var out bytes.Buffer
	ctx := NewContext()
	ctx.ErrOut = &out

	ctx.Log("hidden")
	ctx.Verbose = true
	ctx.Log("shown")
	ctx.Warn("careful")
	ctx.Quiet = true
	ctx.Log("quiet")
	ctx.Warn("quiet")
	assert.Equal(t, "shown\nWarning: careful\n", out.String())

	var got []int
	ctx.Progress("ignored", 1)
	ctx.SetProgress(func(_ string, percent int) { got = append(got, percent) })
	ctx.Progress("step", 50)
	assert.Equal(t, []int{50}, got)

	ctx.Out = nil
	assert.Equal(t, os.Stdout, ctx.Writer())
}

func TestContextTimeout(t *testing.T) {
	ctx := NewContext()
	ctx.Verbose = true

	scoped, cancel := ctx.WithTimeout(time.Millisecond)
	defer cancel()
	assert.True(t, scoped.Verbose)
	<-scoped.Done()
	assert.ErrorIs(t, scoped.Err(), context.DeadlineExceeded)
	assert.NoError(t, ctx.Err())
}
