package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/deploymenttheory/go-ataraid/internal/types"
)

// ArrayTarget represents array selection across commands
type ArrayTarget struct {
	// ArrayID selects one array; negative means every discovered array
	ArrayID int
	Devices []string
}

// Validate ensures the array target is valid
func (at *ArrayTarget) Validate() error {
	if len(at.Devices) == 0 {
		return errors.New("at least one member device is required")
	}
	seen := make(map[string]bool, len(at.Devices))
	for _, d := range at.Devices {
		if d == "" {
			return errors.New("device path cannot be empty")
		}
		if seen[d] {
			return fmt.Errorf("device %s listed twice", d)
		}
		seen[d] = true
	}
	return nil
}

// All reports whether every discovered array is selected
func (at *ArrayTarget) All() bool {
	return at.ArrayID < 0
}

// String returns a string representation of the array target
func (at *ArrayTarget) String() string {
	if at.All() {
		return fmt.Sprintf("All arrays on %d devices", len(at.Devices))
	}
	return fmt.Sprintf("Array %d", at.ArrayID)
}

// ProgressUpdate represents progress information
type ProgressUpdate struct {
	Message     string
	Completed   int64
	Total       int64
	StartedAt   time.Time
	ElapsedTime time.Duration
}

// Percent calculates completion percentage
func (p *ProgressUpdate) Percent() int {
	if p.Total == 0 {
		return 0
	}
	return int((p.Completed * 100) / p.Total)
}

// Rate calculates items per second
func (p *ProgressUpdate) Rate() float64 {
	if p.ElapsedTime == 0 {
		return 0
	}
	return float64(p.Completed) / p.ElapsedTime.Seconds()
}

// ETA estimates time to completion
func (p *ProgressUpdate) ETA() time.Duration {
	if p.Completed == 0 || p.Total == 0 {
		return 0
	}
	rate := p.Rate()
	if rate == 0 {
		return 0
	}
	remaining := p.Total - p.Completed
	return time.Duration(float64(remaining)/rate) * time.Second
}

// CommonError represents application-level errors
type CommonError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CommonError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CommonError) Unwrap() error {
	return e.Cause
}

// Common error codes
const (
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeDeviceAccess   = "DEVICE_ACCESS"
	ErrCodeArrayNotFound  = "ARRAY_NOT_FOUND"
	ErrCodeArrayBroken    = "ARRAY_BROKEN"
	ErrCodeNoMetadata     = "NO_METADATA"
	ErrCodeBusy           = "BUSY"
	ErrCodePermission     = "PERMISSION_DENIED"
	ErrCodeTimeout        = "TIMEOUT"
	ErrCodeInternal       = "INTERNAL"
	ErrCodeNotImplemented = "NOT_IMPLEMENTED"
)

// NewError creates a new CommonError
func NewError(code, message string, cause error) *CommonError {
	return &CommonError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapError maps an engine error onto a CommonError. Errors that already are
// CommonErrors pass through unchanged.
func WrapError(message string, err error) error {
	if err == nil {
		return nil
	}
	var common *CommonError
	if errors.As(err, &common) {
		return err
	}
	return NewError(ErrorCode(err), message, err)
}

// ErrorCode classifies an error for CLI output
func ErrorCode(err error) string {
	var (
		topoErr  *types.TopologyError
		capErr   *types.CapacityError
		ioErr    *types.MemberIOError
		codecErr *types.CodecError
	)
	switch {
	case errors.Is(err, types.ErrNotFound):
		return ErrCodeArrayNotFound
	case errors.Is(err, types.ErrArrayBroken):
		return ErrCodeArrayBroken
	case errors.Is(err, types.ErrRebuildBusy):
		return ErrCodeBusy
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case errors.Is(err, os.ErrPermission):
		return ErrCodePermission
	case errors.As(err, &topoErr), errors.As(err, &capErr),
		errors.Is(err, types.ErrNotDegraded), errors.Is(err, types.ErrNoSpare):
		return ErrCodeInvalidInput
	case errors.As(err, &codecErr):
		return ErrCodeNoMetadata
	case errors.As(err, &ioErr), errors.Is(err, os.ErrNotExist):
		return ErrCodeDeviceAccess
	default:
		return ErrCodeInternal
	}
}
