package adiv5

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/blackmagic-debug/blackmagic-sub009/pkg/dap/cmsisdap"
)

func TestTmsRunToSequenceMergesRuns(t *testing.T) {
	seqs := tmsRunToSequence([]bool{false, true, false, false})
	if len(seqs) != 3 {
		t.Fatalf("tmsRunToSequence() returned %d sub-sequences, want 3", len(seqs))
	}
	if seqs[0].Cycles != 1 || seqs[0].TMS {
		t.Errorf("seq 0 = %+v, want 1 cycle TMS=false", seqs[0])
	}
	if seqs[1].Cycles != 1 || !seqs[1].TMS {
		t.Errorf("seq 1 = %+v, want 1 cycle TMS=true", seqs[1])
	}
	if seqs[2].Cycles != 2 || seqs[2].TMS {
		t.Errorf("seq 2 = %+v, want 2 cycles TMS=false", seqs[2])
	}
}

func TestTmsRunToSequenceSplitsAt64Cycles(t *testing.T) {
	run := make([]bool, 70)
	for i := range run {
		run[i] = true
	}
	seqs := tmsRunToSequence(run)
	if len(seqs) != 2 {
		t.Fatalf("tmsRunToSequence(70 bits) returned %d sub-sequences, want 2", len(seqs))
	}
	if seqs[0].Cycles != 64 || seqs[1].Cycles != 6 {
		t.Errorf("split = %d + %d cycles, want 64 + 6", seqs[0].Cycles, seqs[1].Cycles)
	}
}

// chainExchanger answers any DAP_JTAG_Sequence request with a fixed TDO
// payload; ScanJTAGChain's TMS-only sub-sequences never request capture, so
// only the trailing data-shift sub-sequence's bytes matter.
type chainExchanger struct {
	resp []byte
}

func (c chainExchanger) Exchange(ctx context.Context, req []byte) ([]byte, error) {
	return c.resp, nil
}

func TestScanJTAGChainTwoTAPs(t *testing.T) {
	const id0, id1 = uint32(0x2BA01477), uint32(0x4BA00477)
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:4], id0)
	binary.LittleEndian.PutUint32(data[4:8], id1)
	resp := append([]byte{byte(cmsisdap.CmdJTAGSequence), cmsisdap.StatusOK}, data...)

	codes, err := ScanJTAGChain(context.Background(), chainExchanger{resp: resp}, 2)
	if err != nil {
		t.Fatalf("ScanJTAGChain() error = %v", err)
	}
	if len(codes) != 2 {
		t.Fatalf("ScanJTAGChain() returned %d codes, want 2", len(codes))
	}
	if codes[0].Raw != id0 {
		t.Errorf("codes[0].Raw = %#x, want %#x", codes[0].Raw, id0)
	}
	if codes[1].Raw != id1 {
		t.Errorf("codes[1].Raw = %#x, want %#x", codes[1].Raw, id1)
	}
}

func TestScanJTAGChainRejectsZeroTAPs(t *testing.T) {
	if _, err := ScanJTAGChain(context.Background(), chainExchanger{}, 0); err == nil {
		t.Error("ScanJTAGChain(0) expected error")
	}
}
