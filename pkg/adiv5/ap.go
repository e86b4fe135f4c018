package adiv5

import (
	"context"

	"github.com/cesanta/errors"

	"github.com/blackmagic-debug/blackmagic-sub009/pkg/dap/cmsisdap"
)

// AP is a view into one Access Port belonging to a DP.
type AP struct {
	DP       *DP
	Apsel    byte // apsel, 8 bits in ADIv5
	CSWBase  uint32
	Base     uint32
	IDR      uint32
	CFG      uint32
	bankSel  uint32 // last SELECT value written, to skip redundant writes
	selValid bool
}

// NewAP attaches to apsel on dp without reading any of its registers yet;
// call Probe to populate CSW/BASE/IDR/CFG.
func NewAP(dp *DP, apsel byte) *AP {
	return &AP{DP: dp, Apsel: apsel}
}

// selectBank writes the DP SELECT register so addr's bank is addressed,
// skipping the write if the last selection already matches (spec.md §3:
// "every AP operation is preceded by writing the DP SELECT register").
func (ap *AP) selectBank(ctx context.Context, addr byte) error {
	sel := uint32(ap.Apsel)<<24 | uint32(addr&0xF0)
	if ap.selValid && ap.bankSel == sel {
		return nil
	}
	if err := ap.DP.Write(ctx, RegSelect, sel); err != nil {
		return errors.Annotatef(err, "adiv5: AP SELECT write")
	}
	ap.bankSel = sel
	ap.selValid = true
	return nil
}

// SelectBank0 unconditionally writes DP SELECT for this AP's bank 0 (CSW,
// TAR, DRW all live there), used by the memory engine's explicit AP setup
// sequence rather than the opportunistic cache in selectBank.
func (ap *AP) SelectBank0(ctx context.Context) error {
	sel := uint32(ap.Apsel) << 24
	if err := ap.DP.Write(ctx, RegSelect, sel); err != nil {
		return errors.Annotatef(err, "adiv5: AP SELECT write")
	}
	ap.bankSel = sel
	ap.selValid = true
	return nil
}

// NoteBank0Selected updates the bank cache to reflect that bank 0 has just
// been selected as part of a caller-issued batched transfer (e.g. the memory
// engine's combined SELECT+CSW+TAR+DRW request), so a later Read/Write
// against this AP's bank-0 registers can skip a redundant SELECT write.
func (ap *AP) NoteBank0Selected() {
	ap.bankSel = uint32(ap.Apsel) << 24
	ap.selValid = true
}

// ReadBlock issues a DAP_TransferBlock read of beats words from addr
// (normally RegDRW, with TAR already set up and auto-incrementing).
func (ap *AP) ReadBlock(ctx context.Context, addr byte, beats int) ([]uint32, error) {
	req, err := cmsisdap.EncodeTransferBlockRead(ap.DP.DAPIdx, true, addr&0x0C, beats)
	if err != nil {
		return nil, errors.Trace(err)
	}
	resp, err := ap.DP.x.Exchange(ctx, req)
	if err != nil {
		return nil, errors.Trace(err)
	}
	result, err := cmsisdap.DecodeTransferBlock(resp, true)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if result.Ack.Value() != cmsisdap.AckOK {
		if err := ap.DP.dispatchStatus(ctx, result.Ack); err != nil {
			return result.Data, err
		}
		return result.Data, errors.Errorf("adiv5: transfer block read ack 0x%x after %d/%d beats", result.Ack, result.BlocksProcessed, beats)
	}
	return result.Data, nil
}

// WriteBlock issues a DAP_TransferBlock write of words to addr.
func (ap *AP) WriteBlock(ctx context.Context, addr byte, words []uint32) error {
	req, err := cmsisdap.EncodeTransferBlockWrite(ap.DP.DAPIdx, true, addr&0x0C, words)
	if err != nil {
		return errors.Trace(err)
	}
	resp, err := ap.DP.x.Exchange(ctx, req)
	if err != nil {
		return errors.Trace(err)
	}
	result, err := cmsisdap.DecodeTransferBlock(resp, false)
	if err != nil {
		return errors.Trace(err)
	}
	if result.Ack.Value() != cmsisdap.AckOK {
		if err := ap.DP.dispatchStatus(ctx, result.Ack); err != nil {
			return err
		}
		return errors.Errorf("adiv5: transfer block write ack 0x%x after %d/%d beats", result.Ack, result.BlocksProcessed, len(words))
	}
	return nil
}

// Read reads addr within this AP's register space, selecting its bank
// first.
func (ap *AP) Read(ctx context.Context, addr byte) (uint32, error) {
	if err := ap.selectBank(ctx, addr); err != nil {
		return 0, err
	}
	return ap.DP.performRecoverable(ctx, true, true, addr&0x0C, 0)
}

// Write writes value to addr within this AP's register space, selecting its
// bank first.
func (ap *AP) Write(ctx context.Context, addr byte, value uint32) error {
	if err := ap.selectBank(ctx, addr); err != nil {
		return err
	}
	_, err := ap.DP.performRecoverable(ctx, true, false, addr&0x0C, value)
	return err
}

// Probe reads the AP's identification registers (IDR, BASE, CFG) and its
// current CSW, caching them on the AP.
func (ap *AP) Probe(ctx context.Context) error {
	csw, err := ap.Read(ctx, RegCSW)
	if err != nil {
		return errors.Annotatef(err, "adiv5: AP CSW read")
	}
	ap.CSWBase = csw

	cfg, err := ap.Read(ctx, 0xF4)
	if err != nil {
		return errors.Annotatef(err, "adiv5: AP CFG read")
	}
	ap.CFG = cfg

	base, err := ap.Read(ctx, 0xF8)
	if err != nil {
		return errors.Annotatef(err, "adiv5: AP BASE read")
	}
	ap.Base = base

	idr, err := ap.Read(ctx, 0xFC)
	if err != nil {
		return errors.Annotatef(err, "adiv5: AP IDR read")
	}
	ap.IDR = idr

	return nil
}
