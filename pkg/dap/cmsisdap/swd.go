package cmsisdap

import "github.com/cesanta/errors"

// MaxSWDSubSequences is the largest number of sub-sequences DAP_SWD_Sequence
// accepts in one command.
const MaxSWDSubSequences = 5

// SWD sub-sequence control byte bit layout.
const (
	swdSeqCycleMask = 0x3F // bits[5:0]: clock count, 0 means 64
	swdSeqDirIn     = 0x80 // bit 7: 1 = IN, 0 = OUT
)

// SWDSubSequence is one in/out leg of a DAP_SWD_Sequence command.
type SWDSubSequence struct {
	Cycles int    // 1..64
	In     bool   // true = capture from target, false = drive from host
	Out    []byte // LSB-first data to drive; ignored when In is true
}

func (s SWDSubSequence) controlByte() (byte, error) {
	if s.Cycles < 1 || s.Cycles > 64 {
		return 0, errors.Errorf("cmsisdap: SWD sub-sequence needs 1-64 cycles, got %d", s.Cycles)
	}
	b := byte(s.Cycles & swdSeqCycleMask) // 64 naturally wraps to 0
	if s.In {
		b |= swdSeqDirIn
	}
	return b, nil
}

func (s SWDSubSequence) outBytes() int {
	return (s.Cycles + 7) / 8
}

// EncodeSWDSequence builds a DAP_SWD_Sequence request from up to
// MaxSWDSubSequences sub-sequences.
func EncodeSWDSequence(subs []SWDSubSequence) ([]byte, error) {
	if len(subs) == 0 || len(subs) > MaxSWDSubSequences {
		return nil, errors.Errorf("cmsisdap: SWD sequence needs 1-%d sub-sequences, got %d", MaxSWDSubSequences, len(subs))
	}

	buf := []byte{byte(CmdSWDSequence), byte(len(subs))}
	for i, s := range subs {
		ctl, err := s.controlByte()
		if err != nil {
			return nil, errors.Annotatef(err, "sub-sequence %d", i)
		}
		buf = append(buf, ctl)
		if !s.In {
			want := s.outBytes()
			if len(s.Out) != want {
				return nil, errors.Errorf("cmsisdap: sub-sequence %d needs %d out bytes, got %d", i, want, len(s.Out))
			}
			buf = append(buf, s.Out...)
		}
	}
	return buf, nil
}

// DecodeSWDSequence parses a DAP_SWD_Sequence response, returning one byte
// slice per IN sub-sequence (in the same order as subs).
func DecodeSWDSequence(resp []byte, subs []SWDSubSequence) ([][]byte, error) {
	if len(resp) < 2 {
		return nil, errors.Errorf("cmsisdap: SWD sequence response too short")
	}
	if resp[1] != StatusOK {
		return nil, errors.Errorf("cmsisdap: SWD sequence failed with status 0x%02X", resp[1])
	}

	offset := 2
	var ins [][]byte
	for i, s := range subs {
		if !s.In {
			continue
		}
		n := s.outBytes()
		if offset+n > len(resp) {
			return nil, errors.Errorf("cmsisdap: SWD sequence response missing IN data for sub-sequence %d", i)
		}
		ins = append(ins, resp[offset:offset+n])
		offset += n
	}
	return ins, nil
}

// IsDPIDRReadRequest reports whether req is the wire form of an SWD IDR/DPIDR
// probe read (a single 8-cycle OUT packet-request sub-sequence carrying the
// byte 0xA5), used to recognise the BROKEN_SWD_SEQUENCE telltale.
func IsDPIDRReadRequest(req []byte) bool {
	return len(req) == 4 && req[0] == byte(CmdSWDSequence) && req[1] == 0x01 && req[2] == 0x08 && req[3] == 0xA5
}

// HasBrokenSequenceTelltale reports whether resp carries the BROKEN_SWD_SEQUENCE
// prefix (00 03 ee) that some adaptors emit when they bit-shift the response
// to a DPIDR read by one position.
func HasBrokenSequenceTelltale(resp []byte) bool {
	return len(resp) >= 3 && resp[0] == 0x00 && resp[1] == 0x03 && resp[2] == 0xee
}

// CorrectBrokenSequence repairs a DAP_SWD_Sequence response shifted by one
// bit by the BROKEN_SWD_SEQUENCE quirk. It walks each IN sub-sequence's bytes
// backwards, shifting every byte right by one bit and filling its MSb with
// the LSb of the byte after it (where the quirk's shift put that bit). The quirk
// also stomps the status byte with a fixed 0x03; since a detected-and-repaired
// transfer is by definition one that actually completed, restore it to OK.
func CorrectBrokenSequence(resp []byte, subs []SWDSubSequence) {
	if len(resp) >= 2 {
		resp[1] = StatusOK
	}
	offset := 2
	for _, s := range subs {
		if !s.In {
			continue
		}
		n := s.outBytes()
		if offset+n > len(resp) {
			return
		}
		window := resp[offset : offset+n]
		var carry byte
		for i := len(window) - 1; i >= 0; i-- {
			next := window[i] & 1
			window[i] = (window[i] >> 1) | (carry << 7)
			carry = next
		}
		offset += n
	}
}

// EncodeSWDConfigure builds a DAP_SWD_Configure request. cfg packs
// turnaround cycle count (bits[1:0], 0 = 1 cycle) and the data-phase-always
// flag (bit 2).
func EncodeSWDConfigure(cfg byte) []byte {
	return []byte{byte(CmdSWDConfigure), cfg}
}
