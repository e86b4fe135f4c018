package cmsisdap

import "github.com/cesanta/errors"

// JTAG sub-sequence info byte bit layout (spec.md §4.2).
const (
	jtagSeqTCKMask = 0x3F // bits[5:0]: clock count, 0 means 64
	jtagSeqTMS     = 0x40 // bit 6: TMS value held for the sub-sequence
	jtagSeqTDO     = 0x80 // bit 7: capture TDO
)

// JTAGSequence is one DAP_JTAG_Sequence sub-sequence: a run of clocks at a
// fixed TMS value, optionally capturing TDO.
type JTAGSequence struct {
	Cycles     int // 1..64
	TMS        bool
	CaptureTDO bool
	TDI        []byte // ceil(Cycles/8) bytes, LSB-first
}

// NewJTAGSequence builds a sequence descriptor, accepting a cycle count of
// up to 64 (64 is encoded on the wire as 0).
func NewJTAGSequence(cycles int, tms, captureTDO bool, tdi []byte) JTAGSequence {
	return JTAGSequence{Cycles: cycles, TMS: tms, CaptureTDO: captureTDO, TDI: tdi}
}

func (s JTAGSequence) infoByte() (byte, error) {
	if s.Cycles < 1 || s.Cycles > 64 {
		return 0, errors.Errorf("cmsisdap: JTAG sub-sequence needs 1-64 cycles, got %d", s.Cycles)
	}
	b := byte(s.Cycles & jtagSeqTCKMask)
	if s.TMS {
		b |= jtagSeqTMS
	}
	if s.CaptureTDO {
		b |= jtagSeqTDO
	}
	return b, nil
}

func (s JTAGSequence) tdiBytes() int { return (s.Cycles + 7) / 8 }

func bitAt(data []byte, i int) bool {
	return data[i/8]&(1<<uint(i%8)) != 0
}

func packBitRun(data []byte, from, n int) []byte {
	out := make([]byte, (n+7)/8)
	for i := 0; i < n; i++ {
		if bitAt(data, from+i) {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// EncodeFinalTMSSequences splits an N-cycle TDI shift that must end with
// TMS=1 on its last cycle (the usual way to exit Shift-IR/Shift-DR on the
// final bit) into the sub-sequences DAP_JTAG_Sequence needs: (N-1 with
// TMS=0) followed by (1 with TMS=1), collapsing to a single TMS=1
// sub-sequence when N==1. tdi must hold exactly ceil(cycles/8) bytes,
// LSB-first.
func EncodeFinalTMSSequences(cycles int, tdi []byte, captureTDO bool) []JTAGSequence {
	if cycles <= 1 {
		return []JTAGSequence{NewJTAGSequence(cycles, true, captureTDO, tdi)}
	}
	return []JTAGSequence{
		NewJTAGSequence(cycles-1, false, captureTDO, packBitRun(tdi, 0, cycles-1)),
		NewJTAGSequence(1, true, captureTDO, packBitRun(tdi, cycles-1, 1)),
	}
}

// EncodeJTAGSequence builds a DAP_JTAG_Sequence request from 1..N
// sub-sequences.
func EncodeJTAGSequence(seqs []JTAGSequence) ([]byte, error) {
	if len(seqs) == 0 {
		return nil, errors.Errorf("cmsisdap: JTAG sequence needs at least one sub-sequence")
	}

	buf := []byte{byte(CmdJTAGSequence), byte(len(seqs))}
	for i, s := range seqs {
		info, err := s.infoByte()
		if err != nil {
			return nil, errors.Annotatef(err, "sub-sequence %d", i)
		}
		want := s.tdiBytes()
		if len(s.TDI) != want {
			return nil, errors.Errorf("cmsisdap: sub-sequence %d needs %d TDI bytes, got %d", i, want, len(s.TDI))
		}
		buf = append(buf, info)
		buf = append(buf, s.TDI...)
	}
	return buf, nil
}

// DecodeJTAGSequence parses a DAP_JTAG_Sequence response, returning one byte
// slice of captured TDO per sub-sequence that requested it.
func DecodeJTAGSequence(resp []byte, seqs []JTAGSequence) ([][]byte, error) {
	if len(resp) < 2 {
		return nil, errors.Errorf("cmsisdap: JTAG sequence response too short")
	}
	if resp[1] != StatusOK {
		return nil, errors.Errorf("cmsisdap: JTAG sequence failed with status 0x%02X", resp[1])
	}

	offset := 2
	var tdos [][]byte
	for i, s := range seqs {
		if !s.CaptureTDO {
			continue
		}
		n := s.tdiBytes()
		if offset+n > len(resp) {
			return nil, errors.Errorf("cmsisdap: JTAG sequence response missing TDO for sub-sequence %d", i)
		}
		tdos = append(tdos, resp[offset:offset+n])
		offset += n
	}
	return tdos, nil
}

// EncodeJTAGConfigure builds a DAP_JTAG_Configure request describing the IR
// length of every TAP in the scan chain, in chain order.
func EncodeJTAGConfigure(irLengths []byte) ([]byte, error) {
	if len(irLengths) == 0 || len(irLengths) > 255 {
		return nil, errors.Errorf("cmsisdap: JTAG configure needs 1-255 TAPs, got %d", len(irLengths))
	}
	buf := make([]byte, 2+len(irLengths))
	buf[0] = byte(CmdJTAGConfigure)
	buf[1] = byte(len(irLengths))
	copy(buf[2:], irLengths)
	return buf, nil
}
