package cmsisdap

import (
	"bytes"
	"testing"
)

func TestEncodeSWDSequenceDPIDRProbe(t *testing.T) {
	// spec.md end-to-end scenario 1: 1D 01 08 A5.
	subs := []SWDSubSequence{{Cycles: 8, In: false, Out: []byte{0xA5}}}
	got, err := EncodeSWDSequence(subs)
	if err != nil {
		t.Fatalf("EncodeSWDSequence() error = %v", err)
	}
	want := []byte{0x1D, 0x01, 0x08, 0xA5}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeSWDSequence() = % x, want % x", got, want)
	}
	if !IsDPIDRReadRequest(got) {
		t.Error("IsDPIDRReadRequest() = false, want true")
	}
}

func TestEncodeSWDSequence64CyclesEncodesAsZero(t *testing.T) {
	subs := []SWDSubSequence{{Cycles: 64, In: true}}
	got, err := EncodeSWDSequence(subs)
	if err != nil {
		t.Fatalf("EncodeSWDSequence() error = %v", err)
	}
	// control byte: direction bit set, cycle count 64 wraps to 0.
	want := []byte{0x1D, 0x01, 0x80}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeSWDSequence() = % x, want % x", got, want)
	}
}

func TestEncodeSWDSequenceBoundary(t *testing.T) {
	if _, err := EncodeSWDSequence(nil); err == nil {
		t.Error("EncodeSWDSequence(nil) expected error")
	}
	six := make([]SWDSubSequence, MaxSWDSubSequences+1)
	for i := range six {
		six[i] = SWDSubSequence{Cycles: 1, In: true}
	}
	if _, err := EncodeSWDSequence(six); err == nil {
		t.Error("EncodeSWDSequence(6 sub-sequences) expected error")
	}
}

func TestCorrectBrokenSequence(t *testing.T) {
	// Known-good DPIDR 0x2BA01477, transmitted LSB-first then shifted left by
	// one bit (each byte's top bit moves into bit0 of the next byte) the way
	// the BROKEN_SWD_SEQUENCE quirk does it on the wire.
	good := []byte{0x77, 0x14, 0xA0, 0x2B, 0x01}
	shifted := shiftLeftOneBit(good)

	resp := append([]byte{0x00, byte(CmdSWDSequence)}, shifted...)
	subs := []SWDSubSequence{{Cycles: 33, In: true}}

	CorrectBrokenSequence(resp, subs)

	if !bytes.Equal(resp[2:], good) {
		t.Errorf("CorrectBrokenSequence() = % x, want % x", resp[2:], good)
	}
}

func TestHasBrokenSequenceTelltale(t *testing.T) {
	tests := []struct {
		name string
		resp []byte
		want bool
	}{
		{"telltale present", []byte{0x00, 0x03, 0xee, 0x01}, true},
		{"telltale absent", []byte{0x00, 0x01, 0x02}, false},
		{"too short", []byte{0x00}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasBrokenSequenceTelltale(tt.resp); got != tt.want {
				t.Errorf("HasBrokenSequenceTelltale() = %v, want %v", got, tt.want)
			}
		})
	}
}

// shiftLeftOneBit simulates the BROKEN_SWD_SEQUENCE wire corruption: each
// byte is shifted left by one bit with its low bit fed from the top bit of
// the preceding byte, the exact forward operation CorrectBrokenSequence's
// backwards walk reverses.
func shiftLeftOneBit(data []byte) []byte {
	out := make([]byte, len(data))
	var carry byte
	for i := 0; i < len(data); i++ {
		out[i] = (data[i] << 1) | carry
		carry = (data[i] >> 7) & 1
	}
	return out
}
