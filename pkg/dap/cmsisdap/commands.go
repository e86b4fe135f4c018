// Package cmsisdap encodes and decodes the CMSIS-DAP command set used by the
// ADIv5 transaction engine: DAP_Transfer, DAP_TransferBlock, DAP_SWJ_*,
// DAP_SWD_*, DAP_JTAG_*, DAP_Info, DAP_Connect/Disconnect and DAP_HostStatus.
// Every Encode/Decode pair is bit-exact with the wire layout documented for
// the probe; nothing here talks to USB directly.
package cmsisdap

// Command identifies a CMSIS-DAP command byte.
type Command byte

// Command IDs used by the ADIv5 engine. Commands outside this set (queued
// commands, SWO trace, UART bridge) are not part of the core and are not
// defined here.
const (
	CmdInfo              Command = 0x00
	CmdHostStatus        Command = 0x01
	CmdConnect           Command = 0x02
	CmdDisconnect        Command = 0x03
	CmdTransferConfigure Command = 0x04
	CmdTransfer          Command = 0x05
	CmdTransferBlock     Command = 0x06
	CmdResetTarget       Command = 0x0A
	CmdSWJPins           Command = 0x10
	CmdSWJClock          Command = 0x11
	CmdSWJSequence       Command = 0x12
	CmdSWDConfigure      Command = 0x13
	CmdJTAGSequence      Command = 0x14
	CmdJTAGConfigure     Command = 0x15
	CmdSWDSequence       Command = 0x1D
)

// DAP_Info info IDs.
const (
	InfoVendorID           byte = 0x01
	InfoProductID          byte = 0x02
	InfoSerialNumber       byte = 0x03
	InfoFirmwareVersion    byte = 0x04
	InfoTargetDeviceVendor byte = 0x05
	InfoTargetDeviceName   byte = 0x06
	InfoCapabilities       byte = 0xF0
	InfoPacketCount        byte = 0xFE
	InfoPacketSize         byte = 0xFF
)

// DAP_Connect port selectors.
const (
	PortDefault byte = 0
	PortSWD     byte = 1
	PortJTAG    byte = 2
)

// Generic response status bytes shared by commands that only return
// success/failure (Disconnect, TransferConfigure, SWJClock, SWJSequence,
// SWDConfigure, JTAGConfigure, ResetTarget).
const (
	StatusOK    byte = 0x00
	StatusError byte = 0xFF
)

// HostStatus LED selectors.
const (
	HostStatusConnect byte = 0
	HostStatusRunning byte = 1
)
