package metadata

import (
	"fmt"

	"github.com/deploymenttheory/go-ataraid/internal/types"
)

// Decode detects the vendor family of a raw metadata block and parses it.
// Every failure is a *types.CodecError.
func Decode(raw []byte) (*Fragment, error) {
	switch {
	case IsPromise(raw):
		return DecodePromise(raw)
	case IsHighPoint(raw):
		return DecodeHighPoint(raw)
	case len(raw) < types.HighPointConfSize:
		return nil, codecErr(0, fmt.Errorf("%w: %d bytes", types.ErrTruncated, len(raw)))
	default:
		return nil, codecErr(0, types.ErrBadMagic)
	}
}

// DecodeAs parses a raw metadata block as the given family
func DecodeAs(format Format, raw []byte) (*Fragment, error) {
	switch format {
	case FormatPromise:
		return DecodePromise(raw)
	case FormatHighPoint:
		return DecodeHighPoint(raw)
	default:
		return nil, codecErr(format, types.ErrUnsupported)
	}
}

// EncodeFragment serializes a fragment in its own vendor family
func EncodeFragment(f *Fragment) ([]byte, error) {
	switch f.Format {
	case FormatPromise:
		return EncodePromise(f)
	case FormatHighPoint:
		return EncodeHighPoint(f)
	default:
		return nil, codecErr(f.Format, types.ErrUnsupported)
	}
}
