package cmsisdap

import (
	"bytes"
	"testing"
)

func TestEncodeSWJSequenceLineReset(t *testing.T) {
	// 64-cycle SWD line reset as swd.Session.LineReset sends it: 7 bytes of
	// 0xFF then one 0x0F byte. The cycle count goes into the length byte and
	// the data follows verbatim; the 256->0 length-byte wrap is checked below.
	data := append(bytes.Repeat([]byte{0xFF}, 7), 0x0F)
	got, err := EncodeSWJSequence(64, data)
	if err != nil {
		t.Fatalf("EncodeSWJSequence() error = %v", err)
	}
	want := append([]byte{byte(CmdSWJSequence), 64}, data...)
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeSWJSequence() = % x, want % x", got, want)
	}
}

func TestEncodeSWJSequence256CyclesEncodesLengthAsZero(t *testing.T) {
	data := make([]byte, 32)
	got, err := EncodeSWJSequence(MaxSWJSequenceCycles, data)
	if err != nil {
		t.Fatalf("EncodeSWJSequence() error = %v", err)
	}
	if got[1] != 0 {
		t.Errorf("length byte = %d, want 0 for 256 cycles", got[1])
	}
}

func TestEncodeSWJSequenceBoundary(t *testing.T) {
	tests := []struct {
		name    string
		cycles  int
		data    []byte
		wantErr bool
	}{
		{"zero cycles", 0, nil, true},
		{"too many cycles", MaxSWJSequenceCycles + 1, make([]byte, 33), true},
		{"data length mismatch", 8, make([]byte, 2), true},
		{"one cycle", 1, make([]byte, 1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeSWJSequence(tt.cycles, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("EncodeSWJSequence() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncodeSWJClock(t *testing.T) {
	got := EncodeSWJClock(1_000_000)
	want := []byte{byte(CmdSWJClock), 0x40, 0x42, 0x0F, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeSWJClock() = % x, want % x", got, want)
	}
}

func TestEncodeDecodeSWJPins(t *testing.T) {
	got := EncodeSWJPins(PinNRESET, PinNRESET|PinSWCLKTCK, 100)
	want := []byte{byte(CmdSWJPins), PinNRESET, PinNRESET | PinSWCLKTCK, 100, 0, 0, 0}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeSWJPins() = % x, want % x", got, want)
	}

	pins, err := DecodeSWJPins([]byte{byte(CmdSWJPins), PinNRESET | PinTDO})
	if err != nil {
		t.Fatalf("DecodeSWJPins() error = %v", err)
	}
	if pins != PinNRESET|PinTDO {
		t.Errorf("DecodeSWJPins() = %#x, want %#x", pins, PinNRESET|PinTDO)
	}

	if _, err := DecodeSWJPins([]byte{byte(CmdSWJPins)}); err == nil {
		t.Error("DecodeSWJPins(short response) expected error")
	}
}
