package adiv5

import (
	"context"

	"github.com/cesanta/errors"
	"github.com/sirupsen/logrus"

	"github.com/blackmagic-debug/blackmagic-sub009/pkg/dap/cmsisdap"
	"github.com/blackmagic-debug/blackmagic-sub009/pkg/dap/swd"
)

// Exchanger is the subset of *dap.Probe the engine needs to submit framed
// CMSIS-DAP commands.
type Exchanger interface {
	Exchange(ctx context.Context, req []byte) ([]byte, error)
}

// Quirks is the subset of a probe's quirk bitmap the engine reacts to.
type Quirks interface {
	Has(bit int) bool
}

// Index of the BAD_SWD_NO_RESP_DATA_PHASE quirk bit; it must equal
// pkg/dap.QuirkBadSWDNoRespDataPhase.
const quirkBadSWDNoRespDataPhase = 1

// DP is a single ADIv5 Debug Port session: one physical link (SWD or JTAG),
// one identity, one sticky fault slot.
type DP struct {
	x       Exchanger
	quirks  Quirks
	log     *logrus.Entry
	swd     *swd.Session // nil on JTAG
	DAPIdx  byte         // dap_index: JTAG scan-chain position, 0 on SWD
	Version Version
	Link    LinkKind
	IDCode  uint32
	TargetSel uint32 // DPv2+ re-selection value
	Fault   Fault
}

// NewSWDDP builds a DP over an SWD session.
func NewSWDDP(x Exchanger, quirks Quirks, session *swd.Session, version Version, log *logrus.Entry) *DP {
	return &DP{x: x, quirks: quirks, swd: session, Version: version, Link: LinkSWD, log: log}
}

// NewJTAGDP builds a DP over a JTAG scan chain position.
func NewJTAGDP(x Exchanger, quirks Quirks, dapIndex byte, version Version, log *logrus.Entry) *DP {
	return &DP{x: x, quirks: quirks, DAPIdx: dapIndex, Version: version, Link: LinkJTAG, log: log}
}

// lowAccess issues a single DAP_Transfer request with no retry and returns
// the raw ack plus any read data, per dp_low_access in spec.md §4.3.
func (dp *DP) lowAccess(ctx context.Context, ap bool, read bool, addr byte, value uint32) (uint32, cmsisdap.Ack, error) {
	req := cmsisdap.TransferRequest{AP: ap, Read: read, Addr: addr, Data: value}
	buf, err := cmsisdap.EncodeTransfer(dp.DAPIdx, []cmsisdap.TransferRequest{req})
	if err != nil {
		return 0, 0, errors.Trace(err)
	}
	resp, err := dp.x.Exchange(ctx, buf)
	if err != nil {
		return 0, 0, errors.Trace(err)
	}
	result, err := cmsisdap.DecodeTransfer(resp, []cmsisdap.TransferRequest{req})
	if err != nil {
		return 0, 0, errors.Trace(err)
	}

	if result.Processed == 1 && result.Ack.Value() == cmsisdap.AckOK {
		var v uint32
		if read && len(result.Reads) == 1 {
			v = result.Reads[0]
		}
		dp.Fault = FaultOK
		return v, result.Ack, nil
	}

	if err := dp.dispatchStatus(ctx, result.Ack); err != nil {
		return 0, result.Ack, err
	}
	return 0, result.Ack, nil
}

// dispatchStatus implements the non-OK branch of the transaction algorithm
// in spec.md §4.3 step 4.
func (dp *DP) dispatchStatus(ctx context.Context, ack cmsisdap.Ack) error {
	switch ack.Value() {
	case cmsisdap.AckOK:
		return nil
	case cmsisdap.AckWait:
		dp.Fault = FaultWait
		return nil
	case cmsisdap.AckFault:
		dp.Fault = FaultFault
		dp.log.Warn("AP/DP transfer returned FAULT")
		return nil
	case cmsisdap.AckNoResponse:
		dp.Fault = FaultNoResponse
		dp.log.Warn("AP/DP transfer got no response")
		if dp.Link == LinkSWD && dp.swd != nil && dp.quirks != nil && dp.quirks.Has(quirkBadSWDNoRespDataPhase) {
			if _, _, err := dp.swd.SeqInParity(ctx, 32); err != nil {
				dp.log.WithError(err).Warn("failed to absorb phantom data phase")
			}
		}
		return nil
	default:
		return &ProtocolError{Ack: byte(ack)}
	}
}

// performRecoverable wraps lowAccess with the retry-on-NO_RESPONSE policy
// from spec.md §4.3: one call to error(true) followed by exactly one retry,
// whose result is final. WAIT is not retried here: the adaptor's own
// DAP_TransferConfigure wait-retry count already governs in-firmware
// retries, and a WAIT ack reaching the driver means that budget was
// exhausted (spec.md §9).
func (dp *DP) performRecoverable(ctx context.Context, ap bool, read bool, addr byte, value uint32) (uint32, error) {
	v, _, err := dp.lowAccess(ctx, ap, read, addr, value)
	if err != nil {
		return 0, err
	}
	if dp.Fault == FaultNoResponse {
		if _, rerr := dp.Error(ctx, true); rerr != nil {
			return 0, errors.Annotatef(rerr, "adiv5: recovery after NO_RESPONSE failed")
		}
		v, _, err = dp.lowAccess(ctx, ap, read, addr, value)
		if err != nil {
			return 0, err
		}
	}
	return v, nil
}

// lowTransfer issues one DAP_Transfer carrying reqs verbatim and classifies
// the result, with no retry.
func (dp *DP) lowTransfer(ctx context.Context, reqs []cmsisdap.TransferRequest) (cmsisdap.TransferResult, error) {
	buf, err := cmsisdap.EncodeTransfer(dp.DAPIdx, reqs)
	if err != nil {
		return cmsisdap.TransferResult{}, errors.Trace(err)
	}
	resp, err := dp.x.Exchange(ctx, buf)
	if err != nil {
		return cmsisdap.TransferResult{}, errors.Trace(err)
	}
	result, err := cmsisdap.DecodeTransfer(resp, reqs)
	if err != nil {
		return cmsisdap.TransferResult{}, errors.Trace(err)
	}

	if result.Processed == len(reqs) && result.Ack.Value() == cmsisdap.AckOK {
		dp.Fault = FaultOK
		return result, nil
	}
	if err := dp.dispatchStatus(ctx, result.Ack); err != nil {
		return result, err
	}
	return result, nil
}

// Transfer issues a single DAP_Transfer carrying multiple sub-requests,
// recovering once on NO_RESPONSE exactly as performRecoverable does for a
// single access. The memory engine uses this to pack a register-bank setup
// (SELECT, CSW, TAR) and the data-phase access (DRW) into the one batched
// command spec.md §4.4 requires for a single-beat read or write, instead of
// four separate round trips.
func (dp *DP) Transfer(ctx context.Context, reqs []cmsisdap.TransferRequest) (cmsisdap.TransferResult, error) {
	result, err := dp.lowTransfer(ctx, reqs)
	if err != nil {
		return result, err
	}
	if dp.Fault == FaultNoResponse {
		if _, rerr := dp.Error(ctx, true); rerr != nil {
			return result, errors.Annotatef(rerr, "adiv5: recovery after NO_RESPONSE failed")
		}
		result, err = dp.lowTransfer(ctx, reqs)
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

// Read reads a 4-byte DP register, recovering once on NO_RESPONSE. A WAIT
// ack is not retried here; it is recorded in Fault.
func (dp *DP) Read(ctx context.Context, reg byte) (uint32, error) {
	return dp.performRecoverable(ctx, false, true, reg, 0)
}

// Write writes a DP register, recovering once on NO_RESPONSE. A WAIT ack is
// not retried here; it is recorded in Fault.
func (dp *DP) Write(ctx context.Context, reg byte, value uint32) error {
	_, err := dp.performRecoverable(ctx, false, false, reg, value)
	return err
}

// LowAccess exposes the no-retry single transfer for callers that need the
// raw ack (e.g. probing for a live target).
func (dp *DP) LowAccess(ctx context.Context, ap bool, read bool, addr byte, value uint32) (uint32, cmsisdap.Ack, error) {
	return dp.lowAccess(ctx, ap, read, addr, value)
}

// Abort issues a single DP write to the ABORT register.
func (dp *DP) Abort(ctx context.Context, mask uint32) error {
	return dp.Write(ctx, RegAbortOrIDCode, mask)
}

// Error clears sticky fault bits and, on SWD when the link needs it,
// performs line-reset + TARGETSEL + DPIDR re-selection before reading
// CTRL/STAT. It returns the sticky bits observed (spec.md §4.3 "Error
// clearing").
func (dp *DP) Error(ctx context.Context, recover bool) (uint32, error) {
	if dp.Link == LinkSWD {
		return dp.errorSWD(ctx, recover)
	}
	return dp.errorJTAG(ctx)
}

func (dp *DP) errorSWD(ctx context.Context, recover bool) (uint32, error) {
	if dp.Version >= DPv2 && (dp.Fault != FaultNone || recover) {
		if dp.swd == nil {
			return 0, errors.Errorf("adiv5: SWD recovery requested with no SWD session attached")
		}
		if err := dp.swd.LineReset(ctx); err != nil {
			return 0, errors.Trace(err)
		}
		// TARGETSEL is unacked: packet request for a DP write to 0x0C.
		const targetSelPacketRequest = 0x99 // start=1, APnDP=0, RnW=0, A[3:2]=0b11(0x0C), parity, stop=0, park=1 per SWD framing
		if err := dp.swd.LowWriteNoCheck(ctx, targetSelPacketRequest, dp.TargetSel); err != nil {
			return 0, errors.Trace(err)
		}
		if _, err := dp.Read(ctx, RegAbortOrIDCode); err != nil {
			return 0, errors.Annotatef(err, "adiv5: DPIDR re-select read failed")
		}
	}

	ctrlStat, err := dp.Read(ctx, RegCtrlStat)
	if err != nil {
		return 0, errors.Trace(err)
	}
	mask := stickyToAbortMask(ctrlStat)
	if mask != 0 {
		if err := dp.Abort(ctx, mask); err != nil {
			return 0, errors.Trace(err)
		}
	}
	dp.Fault = FaultNone
	return ctrlStat & (CtrlStatStickyOrun | CtrlStatStickyCmp | CtrlStatStickyErr | CtrlStatWDataErr), nil
}

func (dp *DP) errorJTAG(ctx context.Context) (uint32, error) {
	ctrlStat, err := dp.Read(ctx, RegCtrlStat)
	if err != nil {
		return 0, errors.Trace(err)
	}
	mask := stickyToAbortMask(ctrlStat)
	if mask != 0 {
		if err := dp.Abort(ctx, mask); err != nil {
			return 0, errors.Trace(err)
		}
	}
	dp.Fault = FaultNone
	return ctrlStat & 0x3F, nil
}
