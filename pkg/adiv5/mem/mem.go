// Package mem implements the ADIv5 Memory Engine: single and block reads and
// writes of target memory through an Access Port, handling sub-word packing,
// the AP's 1 KiB TAR wrap, and the post-write RDBUFF pipeline flush.
package mem

import (
	"context"

	"github.com/cesanta/errors"

	"github.com/blackmagic-debug/blackmagic-sub009/pkg/adiv5"
	"github.com/blackmagic-debug/blackmagic-sub009/pkg/dap/cmsisdap"
)

// Align identifies the transfer width of a memory access.
type Align int

const (
	Align8 Align = iota
	Align16
	Align32
	Align64
)

// Bytes returns the transfer width in bytes (1, 2, 4, or 8).
func (a Align) Bytes() int { return 1 << uint(a) }

// cswSize maps an Align to the CSW size field, capping at word size: the AP
// bus itself has no 64-bit transfer size, so Align64 maps to the word size
// (Write also narrows Align64 to Align32 before packing any data) (spec.md
// §4.4: "capped at 32-bit for word transfers").
func (a Align) cswSize() uint32 {
	if a >= Align32 {
		return adiv5.CSWSizeWord
	}
	if a == Align16 {
		return adiv5.CSWSizeHalf
	}
	return adiv5.CSWSizeByte
}

// MinAlign computes the largest alignment whose size divides both addr and
// len, capped at Align32.
func MinAlign(addr uint32, length int) Align {
	best := Align32
	for a := Align32; a >= Align8; a-- {
		size := uint32(a.Bytes())
		if addr%size == 0 && uint32(length)%size == 0 {
			best = a
			break
		}
	}
	return best
}

const (
	tarWrapSize     = 1024
	maxPayloadBytes = 1024 // conservative upper bound on a DAP_TransferBlock payload
	blockHeaderLen  = 5    // cmd, dap_index, cntLo, cntHi, reg
)

// unpackData extracts the len-byte (1, 2, or 4) lane from word selected by
// the low bits of srcAddr, placing it into dst.
func unpackData(dst []byte, srcAddr uint32, word uint32, align Align) {
	switch align {
	case Align8:
		shift := (srcAddr & 3) * 8
		dst[0] = byte(word >> shift)
	case Align16:
		shift := (srcAddr & 2) * 8
		dst[0] = byte(word >> shift)
		dst[1] = byte(word >> (shift + 8))
	default:
		dst[0] = byte(word)
		dst[1] = byte(word >> 8)
		dst[2] = byte(word >> 16)
		dst[3] = byte(word >> 24)
	}
}

// packData builds a 32-bit bus word from the align-sized lane taken from
// src, placed at the lane selected by the low bits of dstAddr.
func packData(src []byte, dstAddr uint32, align Align) uint32 {
	switch align {
	case Align8:
		shift := (dstAddr & 3) * 8
		return uint32(src[0]) << shift
	case Align16:
		shift := (dstAddr & 2) * 8
		return uint32(src[0])<<shift | uint32(src[1])<<(shift+8)
	default:
		return uint32(src[0]) | uint32(src[1])<<8 | uint32(src[2])<<16 | uint32(src[3])<<24
	}
}

// setupAP writes SELECT, CSW, and TAR so the AP is ready to access addr at
// the given alignment.
func setupAP(ctx context.Context, ap *adiv5.AP, addr uint32, align Align) error {
	if err := ap.SelectBank0(ctx); err != nil {
		return err
	}
	csw := ap.CSWBase | adiv5.CSWAddrIncSingle | align.cswSize()
	if err := ap.Write(ctx, adiv5.RegCSW, csw); err != nil {
		return errors.Annotatef(err, "mem: AP setup CSW")
	}
	if err := ap.Write(ctx, adiv5.RegTAR, addr); err != nil {
		return errors.Annotatef(err, "mem: AP setup TAR")
	}
	return nil
}

// Read reads len(dst) bytes of target memory starting at src into dst.
func Read(ctx context.Context, ap *adiv5.AP, dst []byte, src uint32) error {
	n := len(dst)
	if n == 0 {
		return nil
	}
	align := MinAlign(src, n)

	if align.Bytes() == n {
		return readSingleBeat(ctx, ap, dst, src, align)
	}
	return readBlock(ctx, ap, dst, src, align)
}

// Write writes src to target memory starting at dst, using the given
// alignment (normally MinAlign(dst, len(src))).
func Write(ctx context.Context, ap *adiv5.AP, dst uint32, src []byte, align Align) error {
	n := len(src)
	if n == 0 {
		return nil
	}
	// 64-bit data moves as 32-bit words: packData fills one word per beat.
	if align > Align32 {
		align = Align32
	}

	var err error
	if align.Bytes() == n {
		err = writeSingleBeat(ctx, ap, dst, src, align)
	} else {
		err = writeBlock(ctx, ap, dst, src, align)
	}
	if err != nil {
		return err
	}

	// RDBUFF flush: guarantee visibility before the next read (spec.md §4.4,
	// §5 ordering guarantee).
	if _, ferr := ap.DP.Read(ctx, adiv5.RegRDBUFFOrTS); ferr != nil {
		return errors.Annotatef(ferr, "mem: RDBUFF flush after write")
	}
	return nil
}

// setupAccessReqs builds the four sub-requests a single-beat access needs in
// one DAP_Transfer: SELECT (bank 0), CSW, TAR, and the DRW data phase
// (spec.md §4.4, §8 universal invariant: "exactly one DAP_Transfer with four
// sub-requests").
func setupAccessReqs(ap *adiv5.AP, addr uint32, csw uint32, read bool, writeValue uint32) []cmsisdap.TransferRequest {
	return []cmsisdap.TransferRequest{
		{AP: false, Read: false, Addr: adiv5.RegSelect, Data: uint32(ap.Apsel) << 24},
		{AP: true, Read: false, Addr: adiv5.RegCSW, Data: csw},
		{AP: true, Read: false, Addr: adiv5.RegTAR, Data: addr},
		{AP: true, Read: read, Addr: adiv5.RegDRW, Data: writeValue},
	}
}

func readSingleBeat(ctx context.Context, ap *adiv5.AP, dst []byte, src uint32, align Align) error {
	csw := ap.CSWBase | adiv5.CSWAddrIncSingle | align.cswSize()
	reqs := setupAccessReqs(ap, src, csw, true, 0)
	result, err := ap.DP.Transfer(ctx, reqs)
	if err != nil {
		ap.DP.Fault = adiv5.FaultFault
		return errors.Annotatef(err, "mem: single-beat read")
	}
	if result.Ack.Value() != cmsisdap.AckOK || len(result.Reads) != 1 {
		ap.DP.Fault = adiv5.FaultFault
		return errors.Errorf("mem: single-beat read ack 0x%x", result.Ack)
	}
	ap.NoteBank0Selected()
	unpackData(dst, src, result.Reads[0], align)
	return nil
}

func writeSingleBeat(ctx context.Context, ap *adiv5.AP, dst uint32, src []byte, align Align) error {
	csw := ap.CSWBase | adiv5.CSWAddrIncSingle | align.cswSize()
	word := packData(src, dst, align)
	reqs := setupAccessReqs(ap, dst, csw, false, word)
	result, err := ap.DP.Transfer(ctx, reqs)
	if err != nil {
		ap.DP.Fault = adiv5.FaultFault
		return errors.Annotatef(err, "mem: single-beat write")
	}
	if result.Ack.Value() != cmsisdap.AckOK {
		ap.DP.Fault = adiv5.FaultFault
		return errors.Errorf("mem: single-beat write ack 0x%x", result.Ack)
	}
	ap.NoteBank0Selected()
	return nil
}

func blocksPerTransfer(align Align) int {
	n := (maxPayloadBytes - blockHeaderLen) / 4
	if n > cmsisdap.MaxTransferBlockBeats {
		n = cmsisdap.MaxTransferBlockBeats
	}
	return n
}

func readBlock(ctx context.Context, ap *adiv5.AP, dst []byte, src uint32, align Align) error {
	total := len(dst)
	offset := 0
	width := align.Bytes()

	for offset < total {
		addr := src + uint32(offset)
		if offset == 0 || addr%tarWrapSize == 0 {
			if err := setupAP(ctx, ap, addr, align); err != nil {
				ap.DP.Fault = adiv5.FaultFault
				return err
			}
		}

		chunkRemaining := int(tarWrapSize-(addr&(tarWrapSize-1))) / width * width
		if rem := total - offset; rem < chunkRemaining {
			chunkRemaining = rem
		}

		for chunkRemaining > 0 {
			beats := blocksPerTransfer(align)
			beatBytes := beats * width
			if beatBytes > chunkRemaining {
				beatBytes = chunkRemaining
				beats = beatBytes / width
			}

			words, err := ap.ReadBlock(ctx, adiv5.RegDRW, beats)
			if err != nil {
				ap.DP.Fault = adiv5.FaultFault
				return errors.Annotatef(err, "mem: block read at offset %d", offset)
			}
			for i, w := range words {
				beatAddr := src + uint32(offset) + uint32(i*width)
				unpackData(dst[offset+i*width:offset+(i+1)*width], beatAddr, w, align)
			}

			offset += beatBytes
			chunkRemaining -= beatBytes
		}
	}
	return nil
}

func writeBlock(ctx context.Context, ap *adiv5.AP, dst uint32, src []byte, align Align) error {
	total := len(src)
	offset := 0
	width := align.Bytes()

	for offset < total {
		addr := dst + uint32(offset)
		if offset == 0 || addr%tarWrapSize == 0 {
			if err := setupAP(ctx, ap, addr, align); err != nil {
				ap.DP.Fault = adiv5.FaultFault
				return err
			}
		}

		chunkRemaining := int(tarWrapSize-(addr&(tarWrapSize-1))) / width * width
		if rem := total - offset; rem < chunkRemaining {
			chunkRemaining = rem
		}

		for chunkRemaining > 0 {
			beats := blocksPerTransfer(align)
			beatBytes := beats * width
			if beatBytes > chunkRemaining {
				beatBytes = chunkRemaining
				beats = beatBytes / width
			}

			words := make([]uint32, beats)
			for i := range words {
				beatAddr := dst + uint32(offset) + uint32(i*width)
				words[i] = packData(src[offset+i*width:offset+(i+1)*width], beatAddr, align)
			}

			if err := ap.WriteBlock(ctx, adiv5.RegDRW, words); err != nil {
				ap.DP.Fault = adiv5.FaultFault
				return errors.Annotatef(err, "mem: block write at offset %d", offset)
			}

			offset += beatBytes
			chunkRemaining -= beatBytes
		}
	}
	return nil
}
