package cmsisdap

import (
	"github.com/cesanta/errors"
)

// EncodeInfo builds a DAP_Info request.
func EncodeInfo(infoID byte) []byte {
	return []byte{byte(CmdInfo), infoID}
}

// DecodeInfoString parses a DAP_Info response whose payload is a
// length-prefixed ASCII string (vendor, product, serial, firmware version,
// target vendor/name).
func DecodeInfoString(resp []byte) (string, error) {
	if len(resp) < 2 {
		return "", errors.Errorf("cmsisdap: info response too short")
	}
	if resp[0] != byte(CmdInfo) {
		return "", errors.Errorf("cmsisdap: unexpected command id 0x%02X in info response", resp[0])
	}
	length := int(resp[1])
	if len(resp) < 2+length {
		return "", errors.Errorf("cmsisdap: info response truncated (want %d bytes, got %d)", length, len(resp)-2)
	}
	// Firmware/serial strings are NUL-terminated per the spec; trim it.
	s := resp[2 : 2+length]
	if length > 0 && s[length-1] == 0 {
		s = s[:length-1]
	}
	return string(s), nil
}

// DecodeInfoUint32 parses a DAP_Info response carrying a little-endian
// integer payload of 1-4 bytes (e.g. CAPABILITIES as 1 or 2 bytes,
// PACKET_COUNT as 1 byte, PACKET_SIZE as 2 bytes).
func DecodeInfoUint32(resp []byte) (uint32, error) {
	if len(resp) < 2 {
		return 0, errors.Errorf("cmsisdap: info response too short")
	}
	length := int(resp[1])
	if length < 1 || length > 4 {
		return 0, errors.Errorf("cmsisdap: unexpected info payload length %d", length)
	}
	if len(resp) < 2+length {
		return 0, errors.Errorf("cmsisdap: info response truncated")
	}
	var v uint32
	for i := 0; i < length; i++ {
		v |= uint32(resp[2+i]) << (8 * uint(i))
	}
	return v, nil
}

// DecodeInfoUint16 parses a DAP_Info response carrying a little-endian u16
// payload (PACKET_SIZE, PACKET_COUNT is a single byte but PACKET_SIZE is
// always 2 bytes per the spec).
func DecodeInfoUint16(resp []byte) (uint16, error) {
	v, err := DecodeInfoUint32(resp)
	return uint16(v), err
}
