// Package swd implements the four SWD bit-sequence primitives the ADIv5
// engine is built on (seq_out, seq_out_parity, seq_in, seq_in_parity), plus
// line reset and the unacknowledged TARGETSEL write used during recovery.
// The bit-sequence primitives and the no-check write use DAP_SWD_Sequence;
// line reset always uses DAP_SWJ_Sequence. Under the NO_SWD_SEQUENCE quirk
// only OUT sequences fall back to DAP_SWJ_Sequence: IN sequences and the
// no-check write return an error.
package swd

import (
	"context"
	"math/bits"

	"github.com/cesanta/errors"

	"github.com/blackmagic-debug/blackmagic-sub009/pkg/dap"
	"github.com/blackmagic-debug/blackmagic-sub009/pkg/dap/cmsisdap"
)

// Exchanger is the subset of *dap.Probe a Session needs: send one CMSIS-DAP
// command, get its response.
type Exchanger interface {
	Exchange(ctx context.Context, req []byte) ([]byte, error)
}

// Session drives the SWD line protocol for one probe. It is not safe for
// concurrent use, matching the single in-flight-transfer model of the
// engine above it.
type Session struct {
	x               Exchanger
	noSWDSequence   bool
	brokenSWDSeqHit bool
	dpidrProbeSent  bool // last out() call sent the 8-cycle 0xA5 DPIDR packet request
}

// NewSession builds a Session over a probe, configuring the NO_SWD_SEQUENCE
// fallback from the probe's quirk set.
func NewSession(p *dap.Probe) *Session {
	return &Session{x: p.Transport, noSWDSequence: p.Quirks.Has(dap.QuirkNoSWDSequence)}
}

// evenParity returns the even parity bit (XOR of every set bit) of v's low
// n bits.
func evenParity(v uint64, n int) byte {
	return byte(bits.OnesCount64(v&mask(n)) & 1)
}

func mask(n int) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(n)) - 1
}

func packBits(v uint64, n int) []byte {
	out := make([]byte, (n+7)/8)
	for i := range out {
		out[i] = byte(v >> uint(8*i))
	}
	return out
}

func unpackBits(data []byte, n int) uint64 {
	var v uint64
	for i, b := range data {
		v |= uint64(b) << uint(8*i)
	}
	return v & mask(n)
}

// SeqOut drives n bits (n <= 64) of bits, LSB-first, out onto SWDIO.
func (s *Session) SeqOut(ctx context.Context, value uint64, n int) error {
	return s.out(ctx, value, n)
}

// SeqOutParity drives n bits of value followed by their even-parity bit.
func (s *Session) SeqOutParity(ctx context.Context, value uint64, n int) error {
	if n > 63 {
		return errors.Errorf("swd: seq_out_parity needs n <= 63, got %d", n)
	}
	p := evenParity(value, n)
	combined := (value & mask(n)) | (uint64(p) << uint(n))
	return s.out(ctx, combined, n+1)
}

// SeqIn captures n bits (n <= 64) from SWDIO, LSB-first.
func (s *Session) SeqIn(ctx context.Context, n int) (uint64, error) {
	return s.in(ctx, n)
}

// SeqInParity captures n bits plus a trailing parity bit, reporting whether
// the received parity matched the computed parity of the data bits.
func (s *Session) SeqInParity(ctx context.Context, n int) (value uint64, parityOK bool, err error) {
	if n > 63 {
		return 0, false, errors.Errorf("swd: seq_in_parity needs n <= 63, got %d", n)
	}
	raw, err := s.in(ctx, n+1)
	if err != nil {
		return 0, false, err
	}
	value = raw & mask(n)
	received := byte((raw >> uint(n)) & 1)
	parityOK = (received ^ evenParity(value, n)) == 0
	return value, parityOK, nil
}

func (s *Session) out(ctx context.Context, value uint64, n int) error {
	if n < 1 || n > 64 {
		return errors.Errorf("swd: out sequence needs 1-64 bits, got %d", n)
	}
	data := packBits(value, n)

	if s.noSWDSequence {
		s.dpidrProbeSent = false
		req, err := cmsisdap.EncodeSWJSequence(n, swjPad(data, n))
		if err != nil {
			return errors.Trace(err)
		}
		_, err = s.x.Exchange(ctx, req)
		return errors.Trace(err)
	}

	sub := cmsisdap.SWDSubSequence{Cycles: n, In: false, Out: data}
	req, err := cmsisdap.EncodeSWDSequence([]cmsisdap.SWDSubSequence{sub})
	if err != nil {
		return errors.Trace(err)
	}
	s.dpidrProbeSent = cmsisdap.IsDPIDRReadRequest(req)
	resp, err := s.x.Exchange(ctx, req)
	if err != nil {
		return errors.Trace(err)
	}
	_, err = cmsisdap.DecodeSWDSequence(resp, []cmsisdap.SWDSubSequence{sub})
	return errors.Trace(err)
}

func (s *Session) in(ctx context.Context, n int) (uint64, error) {
	if n < 1 || n > 64 {
		return 0, errors.Errorf("swd: in sequence needs 1-64 bits, got %d", n)
	}
	if s.noSWDSequence {
		return 0, errors.Errorf("swd: probe lacks DAP_SWD_Sequence and cannot emulate an IN sequence with DAP_SWJ_Sequence")
	}

	probeFollowsDPIDRRequest := s.dpidrProbeSent
	s.dpidrProbeSent = false

	sub := cmsisdap.SWDSubSequence{Cycles: n, In: true}
	subs := []cmsisdap.SWDSubSequence{sub}
	req, err := cmsisdap.EncodeSWDSequence(subs)
	if err != nil {
		return 0, errors.Trace(err)
	}
	resp, err := s.x.Exchange(ctx, req)
	if err != nil {
		return 0, errors.Trace(err)
	}

	if probeFollowsDPIDRRequest && cmsisdap.HasBrokenSequenceTelltale(resp) {
		cmsisdap.CorrectBrokenSequence(resp, subs)
		s.brokenSWDSeqHit = true
	}

	ins, err := cmsisdap.DecodeSWDSequence(resp, subs)
	if err != nil {
		return 0, errors.Trace(err)
	}
	if len(ins) != 1 {
		return 0, errors.Errorf("swd: expected one IN sub-sequence result, got %d", len(ins))
	}
	return unpackBits(ins[0], n), nil
}

// BrokenSequenceQuirkLatched reports whether the BROKEN_SWD_SEQUENCE
// correction has fired at least once this session (spec.md §4.2).
func (s *Session) BrokenSequenceQuirkLatched() bool { return s.brokenSWDSeqHit }

func swjPad(data []byte, cycles int) []byte {
	want := (cycles + 7) / 8
	if len(data) == want {
		return data
	}
	out := make([]byte, want)
	copy(out, data)
	return out
}

// LineReset drives 50 high clocks followed by at least 2 low clocks: 56 bits
// of 0xFF then a final nibble of 0xF, 64 cycles via DAP_SWJ_Sequence.
func (s *Session) LineReset(ctx context.Context) error {
	data := append([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, 0x0F)
	req, err := cmsisdap.EncodeSWJSequence(64, data)
	if err != nil {
		return errors.Trace(err)
	}
	_, err = s.x.Exchange(ctx, req)
	return errors.Annotatef(err, "swd: line reset")
}

// LowWriteNoCheck performs a raw DP register write with no ack wait: an OUT
// 8-bit packet request, an IN 4-cycle turnaround+ack window (discarded), an
// OUT 1-bit turnaround, then OUT 33 bits of data+parity. Used only for
// TARGETSEL during line-reset recovery, since TARGETSEL is unacked by
// design.
func (s *Session) LowWriteNoCheck(ctx context.Context, packetRequest byte, value uint32) error {
	if s.noSWDSequence {
		return errors.Errorf("swd: probe lacks DAP_SWD_Sequence, cannot emulate the ack-window IN phase of a no-check write")
	}
	parity := evenParity(uint64(value), 32)
	dataParity := uint64(value) | (uint64(parity) << 32)

	subs := []cmsisdap.SWDSubSequence{
		{Cycles: 8, In: false, Out: []byte{packetRequest}},
		{Cycles: 4, In: true},
		{Cycles: 1, In: false, Out: []byte{0x00}},
		{Cycles: 33, In: false, Out: packBits(dataParity, 33)},
	}
	req, err := cmsisdap.EncodeSWDSequence(subs)
	if err != nil {
		return errors.Trace(err)
	}
	_, err = s.x.Exchange(ctx, req)
	return errors.Annotatef(err, "swd: TARGETSEL low-level write")
}
