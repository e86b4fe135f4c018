package cmsisdap

import (
	"encoding/binary"

	"github.com/cesanta/errors"
)

// EncodeConnect builds a DAP_Connect request for the given port.
func EncodeConnect(port byte) []byte {
	return []byte{byte(CmdConnect), port}
}

// DecodeConnect parses a DAP_Connect response, returning the port the probe
// actually connected to (which may differ from the request when PortDefault
// was used).
func DecodeConnect(resp []byte) (byte, error) {
	if len(resp) < 2 {
		return 0, errors.Errorf("cmsisdap: connect response too short")
	}
	if resp[1] == PortDefault {
		return 0, errors.Errorf("cmsisdap: connect failed")
	}
	return resp[1], nil
}

// EncodeDisconnect builds a DAP_Disconnect request.
func EncodeDisconnect() []byte {
	return []byte{byte(CmdDisconnect)}
}

// EncodeHostStatus builds a DAP_HostStatus request.
func EncodeHostStatus(statusType byte, active bool) []byte {
	v := byte(0)
	if active {
		v = 1
	}
	return []byte{byte(CmdHostStatus), statusType, v}
}

// EncodeTransferConfigure builds a DAP_TransferConfigure request. idle is
// the number of extra idle cycles after each transfer; waitRetry and
// matchRetry bound the adaptor's own WAIT/match retry loops (the driver
// never layers its own retry counter for WAIT on top of this, per the
// ADIv5 engine's recovery policy).
func EncodeTransferConfigure(idle byte, waitRetry, matchRetry uint16) []byte {
	cmd := make([]byte, 6)
	cmd[0] = byte(CmdTransferConfigure)
	cmd[1] = idle
	binary.LittleEndian.PutUint16(cmd[2:], waitRetry)
	binary.LittleEndian.PutUint16(cmd[4:], matchRetry)
	return cmd
}

// DecodeStatusOnly parses a response of the form [cmd, status] shared by
// Disconnect, HostStatus, TransferConfigure, SWJClock, SWJSequence,
// SWDConfigure, JTAGConfigure and ResetTarget.
func DecodeStatusOnly(resp []byte) error {
	if len(resp) < 2 {
		return errors.Errorf("cmsisdap: response too short")
	}
	if resp[1] != StatusOK {
		return errors.Errorf("cmsisdap: command 0x%02X failed with status 0x%02X", resp[0], resp[1])
	}
	return nil
}

// EncodeResetTarget builds a DAP_ResetTarget request.
func EncodeResetTarget() []byte {
	return []byte{byte(CmdResetTarget)}
}
