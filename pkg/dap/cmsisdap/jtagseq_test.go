package cmsisdap

import (
	"bytes"
	"testing"
)

func TestEncodeJTAGSequenceSingle(t *testing.T) {
	seqs := []JTAGSequence{NewJTAGSequence(8, false, true, []byte{0xA5})}
	got, err := EncodeJTAGSequence(seqs)
	if err != nil {
		t.Fatalf("EncodeJTAGSequence() error = %v", err)
	}
	want := []byte{byte(CmdJTAGSequence), 0x01, jtagSeqTDO | 8, 0xA5}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeJTAGSequence() = % x, want % x", got, want)
	}
}

func TestEncodeJTAGSequence64CyclesEncodesAsZero(t *testing.T) {
	seqs := []JTAGSequence{NewJTAGSequence(64, false, false, make([]byte, 8))}
	got, err := EncodeJTAGSequence(seqs)
	if err != nil {
		t.Fatalf("EncodeJTAGSequence() error = %v", err)
	}
	if got[2]&jtagSeqTCKMask != 0 {
		t.Errorf("info byte cycle bits = %#x, want 0 for 64 cycles", got[2]&jtagSeqTCKMask)
	}
}

func TestDecodeJTAGSequence(t *testing.T) {
	seqs := []JTAGSequence{
		NewJTAGSequence(8, false, false, []byte{0x00}),
		NewJTAGSequence(8, true, true, []byte{0x00}),
	}
	resp := []byte{byte(CmdJTAGSequence), StatusOK, 0x5A}
	tdos, err := DecodeJTAGSequence(resp, seqs)
	if err != nil {
		t.Fatalf("DecodeJTAGSequence() error = %v", err)
	}
	if len(tdos) != 1 || !bytes.Equal(tdos[0], []byte{0x5A}) {
		t.Errorf("DecodeJTAGSequence() = %v, want [[0x5A]]", tdos)
	}
}

func TestEncodeFinalTMSSequencesSplitsLastBit(t *testing.T) {
	// 9 bits of TDI: 0x00 (8 clear bits) then a final set bit exiting with
	// TMS=1. Low byte holds bits 0-7, bit 8 lives in the second byte's bit 0.
	tdi := []byte{0x00, 0x01}
	seqs := EncodeFinalTMSSequences(9, tdi, false)
	if len(seqs) != 2 {
		t.Fatalf("EncodeFinalTMSSequences() returned %d sub-sequences, want 2", len(seqs))
	}
	if seqs[0].Cycles != 8 || seqs[0].TMS {
		t.Errorf("first sub-sequence = %+v, want 8 cycles, TMS=false", seqs[0])
	}
	if !bytes.Equal(seqs[0].TDI, []byte{0x00}) {
		t.Errorf("first sub-sequence TDI = % x, want [00]", seqs[0].TDI)
	}
	if seqs[1].Cycles != 1 || !seqs[1].TMS {
		t.Errorf("second sub-sequence = %+v, want 1 cycle, TMS=true", seqs[1])
	}
	if !bytes.Equal(seqs[1].TDI, []byte{0x01}) {
		t.Errorf("second sub-sequence TDI = % x, want [01]", seqs[1].TDI)
	}

	if _, err := EncodeJTAGSequence(seqs); err != nil {
		t.Errorf("EncodeJTAGSequence(split sequences) error = %v", err)
	}
}

func TestEncodeFinalTMSSequencesSingleCycleCollapses(t *testing.T) {
	seqs := EncodeFinalTMSSequences(1, []byte{0x01}, false)
	if len(seqs) != 1 || !seqs[0].TMS || seqs[0].Cycles != 1 {
		t.Errorf("EncodeFinalTMSSequences(1) = %+v, want single 1-cycle TMS=true sub-sequence", seqs)
	}
}

func TestEncodeJTAGConfigure(t *testing.T) {
	got, err := EncodeJTAGConfigure([]byte{4, 5})
	if err != nil {
		t.Fatalf("EncodeJTAGConfigure() error = %v", err)
	}
	want := []byte{byte(CmdJTAGConfigure), 0x02, 0x04, 0x05}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeJTAGConfigure() = % x, want % x", got, want)
	}

	if _, err := EncodeJTAGConfigure(nil); err == nil {
		t.Error("EncodeJTAGConfigure(nil) expected error")
	}
}

func TestEncodeJTAGSequenceBoundary(t *testing.T) {
	if _, err := EncodeJTAGSequence(nil); err == nil {
		t.Error("EncodeJTAGSequence(nil) expected error")
	}
	bad := []JTAGSequence{NewJTAGSequence(8, false, false, []byte{0x00, 0x00})}
	if _, err := EncodeJTAGSequence(bad); err == nil {
		t.Error("EncodeJTAGSequence(wrong TDI length) expected error")
	}
}
