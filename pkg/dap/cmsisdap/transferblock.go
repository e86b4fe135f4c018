package cmsisdap

import (
	"encoding/binary"

	"github.com/cesanta/errors"
)

// MaxTransferBlockBeats is the largest beat count DAP_TransferBlock accepts
// in a single command.
const MaxTransferBlockBeats = 256

// TransferBlockRequestByte builds the single register-select byte shared by
// every beat of a DAP_TransferBlock command: one register, one direction.
func TransferBlockRequestByte(ap bool, read bool, addr byte) (byte, error) {
	if addr&^0x0C != 0 {
		return 0, errors.Errorf("cmsisdap: invalid register address 0x%x", addr)
	}
	b := addr & 0x0C
	if ap {
		b |= reqAP
	}
	if read {
		b |= reqRead
	}
	return b, nil
}

// EncodeTransferBlockRead builds a DAP_TransferBlock read request for up to
// MaxTransferBlockBeats beats of the same register.
func EncodeTransferBlockRead(dapIndex byte, ap bool, addr byte, beats int) ([]byte, error) {
	if beats <= 0 || beats > MaxTransferBlockBeats {
		return nil, errors.Errorf("cmsisdap: transfer block needs 1-%d beats, got %d", MaxTransferBlockBeats, beats)
	}
	reg, err := TransferBlockRequestByte(ap, true, addr)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 5)
	buf[0] = byte(CmdTransferBlock)
	buf[1] = dapIndex
	binary.LittleEndian.PutUint16(buf[2:], uint16(beats))
	buf[4] = reg
	return buf, nil
}

// EncodeTransferBlockWrite builds a DAP_TransferBlock write request carrying
// up to MaxTransferBlockBeats words.
func EncodeTransferBlockWrite(dapIndex byte, ap bool, addr byte, data []uint32) ([]byte, error) {
	if len(data) == 0 || len(data) > MaxTransferBlockBeats {
		return nil, errors.Errorf("cmsisdap: transfer block needs 1-%d beats, got %d", MaxTransferBlockBeats, len(data))
	}
	reg, err := TransferBlockRequestByte(ap, false, addr)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 5+4*len(data))
	buf[0] = byte(CmdTransferBlock)
	buf[1] = dapIndex
	binary.LittleEndian.PutUint16(buf[2:], uint16(len(data)))
	buf[4] = reg
	for i, w := range data {
		binary.LittleEndian.PutUint32(buf[5+4*i:], w)
	}
	return buf, nil
}

// TransferBlockResult is the decoded response to a DAP_TransferBlock.
// BlocksProcessed is always populated, even on a failing Ack, so the caller
// can copy the beats that were actually transferred before surfacing the
// fault (spec.md §4.3, §9 open question).
type TransferBlockResult struct {
	BlocksProcessed int
	Ack             Ack
	Data            []uint32
}

// DecodeTransferBlock parses a DAP_TransferBlock response. isRead controls
// whether trailing word data is expected.
func DecodeTransferBlock(resp []byte, isRead bool) (TransferBlockResult, error) {
	if len(resp) < 4 {
		return TransferBlockResult{}, errors.Errorf("cmsisdap: transfer block response too short")
	}
	result := TransferBlockResult{
		BlocksProcessed: int(binary.LittleEndian.Uint16(resp[1:3])),
		Ack:             Ack(resp[3]),
	}
	if !isRead {
		return result, nil
	}

	available := (len(resp) - 4) / 4
	n := result.BlocksProcessed
	if n > available {
		n = available
	}
	result.Data = make([]uint32, n)
	for i := 0; i < n; i++ {
		result.Data[i] = binary.LittleEndian.Uint32(resp[4+4*i:])
	}
	return result, nil
}
