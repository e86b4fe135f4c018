package cmsisdap

import (
	"encoding/binary"

	"github.com/cesanta/errors"
)

// MaxSWJSequenceCycles is the largest cycle count DAP_SWJ_Sequence accepts.
const MaxSWJSequenceCycles = 256

// EncodeSWJSequence builds a raw out-only bit sequence (used directly for
// line resets/SWJ switching, and as a fallback transport for SWD sequences
// when the probe lacks DAP_SWD_Sequence). cycles counts clocks; data is
// LSB-first, ceil(cycles/8) bytes.
func EncodeSWJSequence(cycles int, data []byte) ([]byte, error) {
	if cycles < 1 || cycles > MaxSWJSequenceCycles {
		return nil, errors.Errorf("cmsisdap: SWJ sequence needs 1-%d cycles, got %d", MaxSWJSequenceCycles, cycles)
	}
	want := (cycles + 7) / 8
	if len(data) != want {
		return nil, errors.Errorf("cmsisdap: SWJ sequence needs %d data bytes for %d cycles, got %d", want, cycles, len(data))
	}
	// 256 cycles is encoded as 0 in the length byte.
	lenByte := byte(cycles)
	if cycles == 256 {
		lenByte = 0
	}
	buf := make([]byte, 0, 2+len(data))
	buf = append(buf, byte(CmdSWJSequence), lenByte)
	buf = append(buf, data...)
	return buf, nil
}

// EncodeSWJClock builds a DAP_SWJ_Clock request.
func EncodeSWJClock(hz uint32) []byte {
	buf := make([]byte, 5)
	buf[0] = byte(CmdSWJClock)
	binary.LittleEndian.PutUint32(buf[1:], hz)
	return buf
}

// Pin bit positions for DAP_SWJ_Pins.
const (
	PinSWCLKTCK = 1 << 0
	PinSWDIOTMS = 1 << 1
	PinTDI      = 1 << 2
	PinTDO      = 1 << 3
	PinNTRST    = 1 << 5
	PinNRESET   = 1 << 7
)

// EncodeSWJPins builds a DAP_SWJ_Pins request: drive the pins selected by
// mask to the corresponding bits of value, then sample after waitUs
// microseconds (0 samples immediately).
func EncodeSWJPins(value, mask byte, waitUs uint32) []byte {
	buf := make([]byte, 7)
	buf[0] = byte(CmdSWJPins)
	buf[1] = value
	buf[2] = mask
	binary.LittleEndian.PutUint32(buf[3:], waitUs)
	return buf
}

// DecodeSWJPins returns the sampled pin state.
func DecodeSWJPins(resp []byte) (byte, error) {
	if len(resp) < 2 {
		return 0, errors.Errorf("cmsisdap: SWJ pins response too short")
	}
	return resp[1], nil
}
