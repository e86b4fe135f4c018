package swd

import (
	"bytes"
	"context"
	"testing"

	"github.com/blackmagic-debug/blackmagic-sub009/pkg/dap/cmsisdap"
)

// fakeExchanger is a loopback CMSIS-DAP transport: SWD sequence OUT requests
// are accepted silently, and IN requests echo back bits previously queued
// with queueIn, letting a test script a round trip without real hardware.
type fakeExchanger struct {
	reqs    [][]byte
	inQueue [][]byte
}

func (f *fakeExchanger) queueIn(data []byte) {
	f.inQueue = append(f.inQueue, data)
}

func (f *fakeExchanger) Exchange(ctx context.Context, req []byte) ([]byte, error) {
	f.reqs = append(f.reqs, append([]byte(nil), req...))

	switch cmsisdap.Command(req[0]) {
	case cmsisdap.CmdSWDSequence:
		n := int(req[1])
		resp := []byte{req[0], cmsisdap.StatusOK}
		offset := 2
		for i := 0; i < n; i++ {
			ctl := req[offset]
			offset++
			cycles := int(ctl & 0x3F)
			if cycles == 0 {
				cycles = 64
			}
			nbytes := (cycles + 7) / 8
			if ctl&0x80 != 0 { // IN
				var data []byte
				if len(f.inQueue) > 0 {
					data = f.inQueue[0]
					f.inQueue = f.inQueue[1:]
				} else {
					data = make([]byte, nbytes)
				}
				resp = append(resp, data...)
			} else {
				offset += nbytes
			}
		}
		return resp, nil
	case cmsisdap.CmdSWJSequence:
		return []byte{req[0], cmsisdap.StatusOK}, nil
	default:
		return []byte{req[0], cmsisdap.StatusOK}, nil
	}
}

func newTestSession() (*Session, *fakeExchanger) {
	f := &fakeExchanger{}
	return &Session{x: f}, f
}

func TestSeqOutParityThenSeqInParityRoundTrip(t *testing.T) {
	s, f := newTestSession()
	ctx := context.Background()

	const value uint64 = 0x1A
	const n = 5

	if err := s.SeqOutParity(ctx, value, n); err != nil {
		t.Fatalf("SeqOutParity() error = %v", err)
	}

	p := evenParity(value, n)
	combined := (value & mask(n)) | (uint64(p) << uint(n))
	f.queueIn(packBits(combined, n+1))

	got, ok, err := s.SeqInParity(ctx, n)
	if err != nil {
		t.Fatalf("SeqInParity() error = %v", err)
	}
	if !ok {
		t.Error("SeqInParity() parityOK = false, want true")
	}
	if got != value {
		t.Errorf("SeqInParity() value = %#x, want %#x", got, value)
	}
}

func TestSeqInParityDetectsBadParity(t *testing.T) {
	s, f := newTestSession()
	ctx := context.Background()

	const value uint64 = 0x3
	const n = 4
	badParity := evenParity(value, n) ^ 1
	f.queueIn(packBits((value&mask(n))|(uint64(badParity)<<uint(n)), n+1))

	_, ok, err := s.SeqInParity(ctx, n)
	if err != nil {
		t.Fatalf("SeqInParity() error = %v", err)
	}
	if ok {
		t.Error("SeqInParity() parityOK = true, want false for corrupted parity bit")
	}
}

func TestLineResetWireExact(t *testing.T) {
	s, f := newTestSession()
	if err := s.LineReset(context.Background()); err != nil {
		t.Fatalf("LineReset() error = %v", err)
	}
	if len(f.reqs) != 1 {
		t.Fatalf("LineReset() issued %d requests, want 1", len(f.reqs))
	}
	want := append([]byte{byte(cmsisdap.CmdSWJSequence), 64, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x0F})
	if !bytes.Equal(f.reqs[0], want) {
		t.Errorf("LineReset() request = % x, want % x", f.reqs[0], want)
	}
}

func TestLowWriteNoCheckSubSequenceStructure(t *testing.T) {
	s, f := newTestSession()
	const packetRequest = 0x8B
	const value = uint32(0x12345678)

	if err := s.LowWriteNoCheck(context.Background(), packetRequest, value); err != nil {
		t.Fatalf("LowWriteNoCheck() error = %v", err)
	}
	if len(f.reqs) != 1 {
		t.Fatalf("LowWriteNoCheck() issued %d requests, want 1", len(f.reqs))
	}
	req := f.reqs[0]
	if req[0] != byte(cmsisdap.CmdSWDSequence) || req[1] != 4 {
		t.Fatalf("LowWriteNoCheck() header = % x, want cmd=1D count=4", req[:2])
	}
	// Sub-sequence 1: OUT 8 cycles, packet request byte.
	if req[2] != 8 || req[3] != packetRequest {
		t.Errorf("sub-sequence 1 = % x, want control=08 data=%#x", req[2:4], packetRequest)
	}
	// Sub-sequence 2: IN 4 cycles, no data bytes on the wire.
	if req[4] != (0x80 | 0x04) {
		t.Errorf("sub-sequence 2 control = %#x, want IN|4", req[4])
	}
	// Sub-sequence 3: OUT 1 cycle turnaround.
	if req[5] != 1 || req[6] != 0x00 {
		t.Errorf("sub-sequence 3 = % x, want control=01 data=00", req[5:7])
	}
	// Sub-sequence 4: OUT 33 bits of data+parity (5 bytes).
	if req[7] != 33 {
		t.Errorf("sub-sequence 4 control = %d, want 33", req[7])
	}
	if len(req) != 8+5 {
		t.Fatalf("LowWriteNoCheck() request length = %d, want %d", len(req), 8+5)
	}
}

// brokenSequenceExchanger corrupts the IN response immediately following the
// 8-cycle 0xA5 DPIDR packet-request OUT the way the BROKEN_SWD_SEQUENCE quirk
// does, so Session.in's auto-correction path can be exercised end to end.
type brokenSequenceExchanger struct{}

func (brokenSequenceExchanger) Exchange(ctx context.Context, req []byte) ([]byte, error) {
	if cmsisdap.IsDPIDRReadRequest(req) {
		return []byte{req[0], cmsisdap.StatusOK}, nil
	}

	const goodDPIDR uint64 = 0x2BA01477 // bit32 (parity) clear, satisfying the shift's top-bit-zero requirement
	good := packBits(goodDPIDR, 33)
	corrupted := make([]byte, len(good))
	var carry byte
	for i := range good {
		corrupted[i] = (good[i] << 1) | carry
		carry = (good[i] >> 7) & 1
	}
	return append([]byte{0x00, 0x03, 0xee}, corrupted[1:]...), nil
}

func TestBrokenSequenceQuirkLatchesOnDPIDRCorruption(t *testing.T) {
	s := &Session{x: brokenSequenceExchanger{}}
	ctx := context.Background()

	if s.BrokenSequenceQuirkLatched() {
		t.Fatal("BrokenSequenceQuirkLatched() = true before any IN sequence ran")
	}

	if err := s.SeqOut(ctx, 0xA5, 8); err != nil {
		t.Fatalf("SeqOut() error = %v", err)
	}

	// SeqIn(33) returns the full 33-bit payload (32 data bits + parity in
	// bit 32), matching how a DPIDR read's ack/data/parity window is drained.
	value, err := s.SeqIn(ctx, 33)
	if err != nil {
		t.Fatalf("SeqIn() error = %v", err)
	}
	if !s.BrokenSequenceQuirkLatched() {
		t.Error("BrokenSequenceQuirkLatched() = false after a corrupted DPIDR response")
	}
	if got := uint32(value); got != 0x2BA01477 {
		t.Errorf("SeqIn() recovered data = %#x, want %#x", got, 0x2BA01477)
	}
}

func TestBrokenSequenceQuirkDoesNotFireWithoutPrecedingDPIDRProbe(t *testing.T) {
	s := &Session{x: brokenSequenceExchanger{}}
	ctx := context.Background()

	// No preceding SeqOut(0xA5, 8): an IN of the same shape must not trigger
	// correction, since nothing established that this is a DPIDR probe. The
	// still-corrupted status byte then legitimately fails decoding.
	if _, err := s.SeqIn(ctx, 33); err == nil {
		t.Fatal("SeqIn() expected error decoding an uncorrected corrupted response")
	}
	if s.BrokenSequenceQuirkLatched() {
		t.Error("BrokenSequenceQuirkLatched() = true without a preceding DPIDR probe OUT")
	}
}
