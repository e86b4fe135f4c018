package cmsisdap

import (
	"encoding/binary"

	"github.com/cesanta/errors"
)

// MaxTransferRequests is the largest number of requests DAP_Transfer can
// pack into a single command.
const MaxTransferRequests = 12

// Ack is the 3-bit acknowledge value returned for each DAP_Transfer request,
// with bit 3 reserved for the protocol-error flag.
type Ack byte

const (
	AckOK          Ack = 1
	AckWait        Ack = 2
	AckFault       Ack = 4
	AckNoResponse  Ack = 7
	ackProtoErrBit Ack = 1 << 3
)

// ProtocolError reports whether the protocol-error bit accompanies the ack.
func (a Ack) ProtocolError() bool { return a&ackProtoErrBit != 0 }

// Value strips the protocol-error bit, returning the bare 3-bit ack code.
func (a Ack) Value() Ack { return a &^ ackProtoErrBit }

// Request bit layout for a single DAP_Transfer request byte (spec.md §3).
const (
	reqAP         = 1 << 0
	reqRead       = 1 << 1
	reqMatchValue = 1 << 4
	reqMatchMask  = 1 << 5
)

// TransferRequest is one atomic DP/AP access packed into a DAP_Transfer.
type TransferRequest struct {
	AP         bool   // bit 0: AP (true) vs DP (false)
	Read       bool   // bit 1: read (true) vs write (false)
	Addr       byte   // A[3:2] register address, must be a multiple of 4
	MatchValue bool   // bit 4: value is a read-match comparand
	MatchMask  bool   // bit 5: value sets the read-match mask
	Data       uint32 // write data / match value / match mask; unused on plain reads
}

func (r TransferRequest) hasDataPhase() bool {
	return !r.Read || r.MatchValue || r.MatchMask
}

func (r TransferRequest) encodeByte() (byte, error) {
	if r.Addr&^0x0C != 0 {
		return 0, errors.Errorf("cmsisdap: invalid register address 0x%x", r.Addr)
	}
	b := r.Addr & 0x0C
	if r.AP {
		b |= reqAP
	}
	if r.Read {
		b |= reqRead
	}
	if r.MatchValue {
		b |= reqMatchValue
	}
	if r.MatchMask {
		b |= reqMatchMask
	}
	return b, nil
}

// EncodeTransfer builds a DAP_Transfer request for up to MaxTransferRequests
// requests against the given DAP index (0 for SWD or a single-TAP JTAG
// chain).
func EncodeTransfer(dapIndex byte, reqs []TransferRequest) ([]byte, error) {
	if len(reqs) == 0 || len(reqs) > MaxTransferRequests {
		return nil, errors.Errorf("cmsisdap: transfer needs 1-%d requests, got %d", MaxTransferRequests, len(reqs))
	}

	buf := make([]byte, 0, 3+5*len(reqs))
	buf = append(buf, byte(CmdTransfer), dapIndex, byte(len(reqs)))

	for i, r := range reqs {
		b, err := r.encodeByte()
		if err != nil {
			return nil, errors.Annotatef(err, "request %d", i)
		}
		buf = append(buf, b)
		if r.hasDataPhase() {
			var data [4]byte
			binary.LittleEndian.PutUint32(data[:], r.Data)
			buf = append(buf, data[:]...)
		}
	}
	return buf, nil
}

// TransferResult is the decoded response to a DAP_Transfer.
type TransferResult struct {
	Processed int
	Ack       Ack
	Reads     []uint32 // one entry per request with Read && !MatchValue && !MatchMask
}

// DecodeTransfer parses a DAP_Transfer response. reqs must be the same
// slice passed to EncodeTransfer so the read-data count can be derived.
func DecodeTransfer(resp []byte, reqs []TransferRequest) (TransferResult, error) {
	if len(resp) < 3 {
		return TransferResult{}, errors.Errorf("cmsisdap: transfer response too short")
	}
	result := TransferResult{
		Processed: int(resp[1]),
		Ack:       Ack(resp[2]),
	}

	offset := 3
	for i := 0; i < result.Processed && i < len(reqs); i++ {
		r := reqs[i]
		if r.Read && !r.MatchValue && !r.MatchMask {
			if offset+4 > len(resp) {
				return result, errors.Errorf("cmsisdap: transfer response missing read data for request %d", i)
			}
			result.Reads = append(result.Reads, binary.LittleEndian.Uint32(resp[offset:]))
			offset += 4
		}
	}
	return result, nil
}
