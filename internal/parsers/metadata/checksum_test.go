package metadata

import (
	"encoding/binary"
	"testing"

	"github.com/deploymenttheory/go-ataraid/internal/types"
)

func TestChecksumAndVerify(t *testing.T) {
	payload := make([]byte, types.PromiseConfSize)
	for i := 0; i < types.PromiseChecksumWords; i++ {
		binary.LittleEndian.PutUint32(payload[i*4:], uint32(i))
	}

	// 0 + 1 + ... + 510
	want := uint32(510 * 511 / 2)
	binary.LittleEndian.PutUint32(payload[types.PromiseOffChecksum:], want)

	inspector := NewChecksumInspector(payload)
	if got := inspector.Checksum(); got != want {
		t.Errorf("Checksum() = %d, expected %d", got, want)
	}
	if !inspector.VerifyChecksum() {
		t.Error("VerifyChecksum() = false, expected true")
	}

	payload[100] ^= 0xff
	if inspector.VerifyChecksum() {
		t.Error("VerifyChecksum() = true after corruption, expected false")
	}
}

func TestChecksumWraps(t *testing.T) {
	payload := make([]byte, types.PromiseConfSize)
	binary.LittleEndian.PutUint32(payload[0:], 0xffffffff)
	binary.LittleEndian.PutUint32(payload[4:], 2)

	if got := promiseChecksum(payload); got != 1 {
		t.Errorf("promiseChecksum() = %d, expected 1", got)
	}
}

func TestChecksumShortPayload(t *testing.T) {
	inspector := NewChecksumInspector(make([]byte, types.PromiseConfSize-1))
	if inspector.VerifyChecksum() {
		t.Error("VerifyChecksum() on short payload = true, expected false")
	}
}

func TestFormatGeometry(t *testing.T) {
	cylinder := uint64(types.PromiseHeads * types.PromiseSectorsPerTrack)

	tests := []struct {
		name     string
		format   Format
		capacity uint64
		lba      uint64
		usable   uint64
		wantErr  bool
	}{
		{"promise aligned", FormatPromise, 100 * cylinder, 100*cylinder - 63, 100*cylinder - 63, false},
		{"promise partial cylinder", FormatPromise, 100*cylinder + 5, 100*cylinder - 63, 100*cylinder - 63, false},
		{"promise tiny", FormatPromise, 1000, 996, 996, false},
		{"promise too small", FormatPromise, 8, 0, 0, true},
		{"highpoint", FormatHighPoint, 1000, 9, 990, false},
		{"highpoint too small", FormatHighPoint, 10, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lba, err := tt.format.MetadataLBA(tt.capacity)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("MetadataLBA(%d) expected error", tt.capacity)
				}
				return
			}
			if err != nil {
				t.Fatalf("MetadataLBA(%d) unexpected error: %v", tt.capacity, err)
			}
			if lba != tt.lba {
				t.Errorf("MetadataLBA(%d) = %d, expected %d", tt.capacity, lba, tt.lba)
			}
			usable, err := tt.format.UsableSectors(tt.capacity)
			if err != nil {
				t.Fatalf("UsableSectors(%d) unexpected error: %v", tt.capacity, err)
			}
			if usable != tt.usable {
				t.Errorf("UsableSectors(%d) = %d, expected %d", tt.capacity, usable, tt.usable)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"promise": FormatPromise, "HPT": FormatHighPoint, " highpoint ": FormatHighPoint} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %v, %v; expected %v", in, got, err, want)
		}
	}
	if _, err := ParseFormat("intel"); err == nil {
		t.Error("ParseFormat(intel) expected error")
	}
}
