// Package dap drives a CMSIS-DAP probe over whatever transport it exposes
// (HID report or WinUSB/Bulk endpoints), and owns the bring-up sequence that
// turns a freshly opened device into a configured Probe: Disconnect, query
// Info, take the packet size DAP_Info reports (falling back to the
// transport's own), classify known adaptor quirks from the product string
// and firmware version, and leave Connect to the caller's chosen wire
// protocol.
package dap

import (
	"context"

	"github.com/cesanta/errors"
	"github.com/sirupsen/logrus"

	"github.com/blackmagic-debug/blackmagic-sub009/pkg/dap/cmsisdap"
)

// Transport exchanges one CMSIS-DAP command packet for one response packet.
// Implementations own framing to whatever the underlying link needs (HID
// report padding, Bulk ZLP quirks) but never interpret command bytes.
type Transport interface {
	// Exchange writes req and returns the probe's reply to that exact
	// command. The first byte of both req and the reply is the command ID.
	Exchange(ctx context.Context, req []byte) ([]byte, error)

	// PacketSize is the negotiated maximum packet size in bytes.
	PacketSize() int

	// Close releases the underlying device handle.
	Close() error
}

// Probe is a bring-up-complete CMSIS-DAP session: a transport plus the
// capability and quirk data read from it during Open.
type Probe struct {
	Transport Transport
	Info      Info
	Quirks    Quirks

	log *logrus.Entry
}

// Info holds the DAP_Info fields the engine needs to make decisions.
type Info struct {
	Vendor       string
	Product      string
	Serial       string
	Firmware     string
	PacketSize   int
	PacketCount  int
	Capabilities uint16
}

// Capability bits returned by DAP_Info(CAPABILITIES) (CMSIS-DAP spec).
const (
	CapSWD uint16 = 1 << iota
	CapJTAG
	CapSWOUART
	CapSWOManchester
	CapAtomicCommands
	CapTestDomainTimer
	CapSWOStreamingTrace
	CapUARTCommunicationPort
	CapUSBCOMPort
)

// Open performs the bring-up sequence: Disconnect (clear any stuck state
// left by a previous session), then DAP_Info reads for packet size,
// capabilities, and identification strings, then quirk classification by
// product string and firmware version. A transport with a SetPacketSize
// method is given the packet size read from DAP_Info.
func Open(ctx context.Context, t Transport, log *logrus.Logger) (*Probe, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	p := &Probe{Transport: t, log: log.WithField("component", "dap.Probe")}

	if _, err := p.do(ctx, cmsisdap.EncodeDisconnect()); err != nil {
		p.log.WithError(err).Warn("disconnect before bring-up failed, continuing")
	}

	info, err := p.readInfo(ctx)
	if err != nil {
		return nil, errors.Annotatef(err, "dap: bring-up failed")
	}
	p.Info = info
	if sizer, ok := t.(interface{ SetPacketSize(int) }); ok {
		sizer.SetPacketSize(info.PacketSize)
	}
	p.Quirks = classifyQuirks(info)
	p.log.WithFields(logrus.Fields{
		"vendor":       info.Vendor,
		"product":      info.Product,
		"firmware":     info.Firmware,
		"packet_size":  info.PacketSize,
		"capabilities": info.Capabilities,
		"quirks":       p.Quirks,
	}).Info("probe bring-up complete")
	return p, nil
}

func (p *Probe) do(ctx context.Context, req []byte) ([]byte, error) {
	resp, err := p.Transport.Exchange(ctx, req)
	if err != nil {
		return nil, errors.Annotatef(err, "dap: exchange of command 0x%02x", req[0])
	}
	if len(resp) == 0 || resp[0] != req[0] {
		return nil, errors.Errorf("dap: response command mismatch, sent 0x%02x", req[0])
	}
	return resp, nil
}

func (p *Probe) readInfo(ctx context.Context) (Info, error) {
	var info Info

	if resp, err := p.do(ctx, cmsisdap.EncodeInfo(cmsisdap.InfoPacketSize)); err == nil {
		if v, err := cmsisdap.DecodeInfoUint16(resp); err == nil {
			info.PacketSize = int(v)
		}
	}
	if info.PacketSize == 0 {
		info.PacketSize = p.Transport.PacketSize()
	}

	if resp, err := p.do(ctx, cmsisdap.EncodeInfo(cmsisdap.InfoPacketCount)); err == nil {
		if v, err := cmsisdap.DecodeInfoUint32(resp); err == nil {
			info.PacketCount = int(v)
		}
	}
	if resp, err := p.do(ctx, cmsisdap.EncodeInfo(cmsisdap.InfoCapabilities)); err == nil {
		if v, err := cmsisdap.DecodeInfoUint16(resp); err == nil {
			info.Capabilities = v
		}
	}
	if resp, err := p.do(ctx, cmsisdap.EncodeInfo(cmsisdap.InfoVendorID)); err == nil {
		info.Vendor, _ = cmsisdap.DecodeInfoString(resp)
	}
	if resp, err := p.do(ctx, cmsisdap.EncodeInfo(cmsisdap.InfoProductID)); err == nil {
		info.Product, _ = cmsisdap.DecodeInfoString(resp)
	}
	if resp, err := p.do(ctx, cmsisdap.EncodeInfo(cmsisdap.InfoSerialNumber)); err == nil {
		info.Serial, _ = cmsisdap.DecodeInfoString(resp)
	}
	if resp, err := p.do(ctx, cmsisdap.EncodeInfo(cmsisdap.InfoFirmwareVersion)); err == nil {
		info.Firmware, _ = cmsisdap.DecodeInfoString(resp)
	}

	return info, nil
}

// Close releases the underlying transport.
func (p *Probe) Close() error {
	return p.Transport.Close()
}

// Connect issues DAP_Connect for the requested port (PortSWD or PortJTAG)
// followed by DAP_TransferConfigure with the adaptor-default retry counts,
// returning the port the probe actually connected to.
func (p *Probe) Connect(ctx context.Context, port byte) (byte, error) {
	resp, err := p.do(ctx, cmsisdap.EncodeConnect(port))
	if err != nil {
		return 0, errors.Annotatef(err, "dap: connect")
	}
	got, err := cmsisdap.DecodeConnect(resp)
	if err != nil {
		return 0, errors.Trace(err)
	}

	if _, err := p.do(ctx, cmsisdap.EncodeTransferConfigure(0, 128, 0)); err != nil {
		return got, errors.Annotatef(err, "dap: transfer configure")
	}
	return got, nil
}

// Disconnect issues DAP_Disconnect, parking the adaptor.
func (p *Probe) Disconnect(ctx context.Context) error {
	_, err := p.do(ctx, cmsisdap.EncodeDisconnect())
	return errors.Annotatef(err, "dap: disconnect")
}

// Exchange implements the Exchanger interface the upper layers (swd, adiv5)
// consume, forwarding straight to the transport.
func (p *Probe) Exchange(ctx context.Context, req []byte) ([]byte, error) {
	return p.Transport.Exchange(ctx, req)
}
