package adiv5

import (
	"context"

	"github.com/cesanta/errors"

	"github.com/blackmagic-debug/blackmagic-sub009/pkg/dap/cmsisdap"
	"github.com/blackmagic-debug/blackmagic-sub009/pkg/idcode"
	"github.com/blackmagic-debug/blackmagic-sub009/pkg/tap"
)

// ScanJTAGChain resets the JTAG scan chain and shifts tapCount*32 bits out of
// DR (IDCODE is always captured in Shift-DR immediately after reset, per
// IEEE 1149.1), returning one parsed IDCODE per TAP in chain order.
//
// The TMS bit pattern driving the TAP controller is computed with the kept
// state-machine helper (pkg/tap) rather than hand-rolled, so the same
// shortest-path planner used by boundary-scan tooling also drives DP
// discovery here.
func ScanJTAGChain(ctx context.Context, x Exchanger, tapCount int) ([]idcode.IDCode, error) {
	if tapCount < 1 {
		return nil, errors.Errorf("adiv5: JTAG chain scan needs at least one TAP, got %d", tapCount)
	}

	sm := tap.NewStateMachine()
	resetSeq := sm.Reset()
	shiftSeq, err := sm.GoTo(tap.StateShiftDR)
	if err != nil {
		return nil, errors.Annotatef(err, "adiv5: computing path to Shift-DR")
	}

	var jseqs []cmsisdap.JTAGSequence
	jseqs = append(jseqs, tmsRunToSequence(resetSeq.TMS)...)
	jseqs = append(jseqs, tmsRunToSequence(shiftSeq.TMS)...)

	totalBits := tapCount * 32
	for totalBits > 0 {
		n := totalBits
		if n > 64 {
			n = 64
		}
		jseqs = append(jseqs, cmsisdap.NewJTAGSequence(n, false, true, make([]byte, (n+7)/8)))
		totalBits -= n
	}

	req, err := cmsisdap.EncodeJTAGSequence(jseqs)
	if err != nil {
		return nil, errors.Trace(err)
	}
	resp, err := x.Exchange(ctx, req)
	if err != nil {
		return nil, errors.Trace(err)
	}
	tdos, err := cmsisdap.DecodeJTAGSequence(resp, jseqs)
	if err != nil {
		return nil, errors.Trace(err)
	}

	bits := make([]byte, 0, tapCount*4)
	for _, t := range tdos {
		bits = append(bits, t...)
	}
	if len(bits) < tapCount*4 {
		return nil, errors.Errorf("adiv5: JTAG chain scan got %d bytes, wanted %d", len(bits), tapCount*4)
	}

	codes := make([]idcode.IDCode, tapCount)
	for i := 0; i < tapCount; i++ {
		raw := uint32(bits[i*4]) | uint32(bits[i*4+1])<<8 | uint32(bits[i*4+2])<<16 | uint32(bits[i*4+3])<<24
		codes[i] = idcode.ParseIDCode(raw)
	}
	return codes, nil
}

// tmsRunToSequence collapses a run of TMS bits into DAP_JTAG_Sequence
// sub-sequences, merging consecutive identical bits into one sub-sequence of
// up to 64 cycles.
func tmsRunToSequence(tms []bool) []cmsisdap.JTAGSequence {
	var out []cmsisdap.JTAGSequence
	i := 0
	for i < len(tms) {
		j := i + 1
		for j < len(tms) && j-i < 64 && tms[j] == tms[i] {
			j++
		}
		out = append(out, cmsisdap.NewJTAGSequence(j-i, tms[i], false, make([]byte, (j-i+7)/8)))
		i = j
	}
	return out
}
