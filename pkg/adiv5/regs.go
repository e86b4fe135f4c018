// Package adiv5 implements the ADIv5 transaction engine: Debug Port and
// Access Port register access over a CMSIS-DAP back-end, with sticky-fault
// recovery, WAIT fault recording (no driver-side retry), and DPv2+
// multi-drop re-selection.
package adiv5

// DP register addresses (word-aligned, A[3:2] as encoded in the DAP_Transfer
// request byte).
const (
	RegAbortOrIDCode byte = 0x00 // write: ABORT, read: IDCODE/DPIDR
	RegCtrlStat      byte = 0x04
	RegSelect        byte = 0x08
	RegRDBUFFOrTS    byte = 0x0C // read: RDBUFF, write (DPv2+): TARGETSEL (no-ack)
)

// AP register addresses, within the bank selected by DP SELECT.
const (
	RegCSW byte = 0x00
	RegTAR byte = 0x04
	RegDRW byte = 0x0C
)

// CSW bits used by the memory engine and AP setup.
const (
	CSWDbgSwEnable   uint32 = 1 << 31
	CSWMasterDebug   uint32 = 1 << 29
	CSWSPIDEN        uint32 = 1 << 23
	CSWHPROT1        uint32 = 1 << 25
	CSWTrInProg      uint32 = 1 << 7
	CSWDeviceEn      uint32 = 1 << 6
	CSWAddrIncSingle uint32 = 1 << 4

	CSWSizeByte uint32 = 0
	CSWSizeHalf uint32 = 1
	CSWSizeWord uint32 = 2
)

// CTRL/STAT sticky bits and their ABORT clear-mask counterparts (spec.md
// §6: "acks STICKYxxxCLR map 1:1 in ABORT (bits 1-4)").
const (
	CtrlStatStickyOrun uint32 = 1 << 1
	CtrlStatStickyCmp  uint32 = 1 << 4
	CtrlStatStickyErr  uint32 = 1 << 5
	CtrlStatWDataErr   uint32 = 1 << 7

	AbortOrunErrClr uint32 = 1 << 4
	AbortStkCmpClr  uint32 = 1 << 1
	AbortStkErrClr  uint32 = 1 << 2
	AbortWDErrClr   uint32 = 1 << 3
	AbortDAPAbort   uint32 = 1 << 0
)

// stickyToAbortMask builds the ABORT clear mask for whatever sticky bits are
// set in ctrlStat.
func stickyToAbortMask(ctrlStat uint32) uint32 {
	var mask uint32
	if ctrlStat&CtrlStatStickyOrun != 0 {
		mask |= AbortOrunErrClr
	}
	if ctrlStat&CtrlStatStickyCmp != 0 {
		mask |= AbortStkCmpClr
	}
	if ctrlStat&CtrlStatStickyErr != 0 {
		mask |= AbortStkErrClr
	}
	if ctrlStat&CtrlStatWDataErr != 0 {
		mask |= AbortWDErrClr
	}
	return mask
}

// LinkKind is the physical transport a DP runs over; error recovery differs
// between the two.
type LinkKind int

const (
	LinkSWD LinkKind = iota
	LinkJTAG
)

// Version is a DP protocol version, DPv0 (plain JTAG) through DPv3/ADIv6.
type Version int

const (
	DPv0 Version = iota
	DPv1
	DPv2
	DPv3
)
