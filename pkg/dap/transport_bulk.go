package dap

import (
	"context"

	"github.com/cesanta/errors"
	"github.com/google/gousb"
)

// BulkTransport drives a CMSIS-DAP v2 device over WinUSB/Bulk endpoints.
type BulkTransport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	intf *gousb.Interface
	done func()

	epOut *gousb.OutEndpoint
	epIn  *gousb.InEndpoint

	packetSize int
	extraZLP   bool
}

// OpenBulk opens the first device matching vid/pid and claims the given
// interface/alt-setting, binding the in/out bulk endpoints CMSIS-DAP v2
// exposes on it.
func OpenBulk(vid, pid uint16, ifaceNum, altSetting, epOutAddr, epInAddr int) (*BulkTransport, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, errors.Annotatef(err, "dap: USB open %04x:%04x", vid, pid)
	}
	if dev == nil {
		ctx.Close()
		return nil, errors.NotFoundf("USB device %04x:%04x", vid, pid)
	}

	if err := dev.SetAutoDetach(true); err != nil {
		// Best-effort: not supported on every platform.
		_ = err
	}

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, errors.Annotatef(err, "dap: USB config select")
	}
	intf, err := cfg.Interface(ifaceNum, altSetting)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, errors.Annotatef(err, "dap: USB interface claim")
	}

	epOut, err := intf.OutEndpoint(epOutAddr)
	if err != nil {
		intf.Close()
		dev.Close()
		ctx.Close()
		return nil, errors.Annotatef(err, "dap: USB OUT endpoint")
	}
	epIn, err := intf.InEndpoint(epInAddr)
	if err != nil {
		intf.Close()
		dev.Close()
		ctx.Close()
		return nil, errors.Annotatef(err, "dap: USB IN endpoint")
	}

	return &BulkTransport{
		ctx:        ctx,
		dev:        dev,
		intf:       intf,
		epOut:      epOut,
		epIn:       epIn,
		packetSize: epOut.Desc.MaxPacketSize,
	}, nil
}

// SetPacketSize updates the packet size once DAP_Info(PACKET_SIZE) is known.
func (t *BulkTransport) SetPacketSize(n int) { t.packetSize = n }

// SetExtraZLPRead enables the NEEDS_EXTRA_ZLP_READ workaround: issue a
// zero-length IN after any read that exactly filled packetSize bytes.
func (t *BulkTransport) SetExtraZLPRead(on bool) { t.extraZLP = on }

// bulkReadRetries bounds the number of stale/mismatched reports Exchange
// will discard before giving up (spec.md §4.1: "retry the IN up to three
// times when the command byte fails to match").
const bulkReadRetries = 3

// Exchange writes req on the bulk OUT endpoint and reads the reply from the
// bulk IN endpoint, absorbing the trailing ZLP some adaptors emit and
// re-reading when a stale report's command byte doesn't match the request.
func (t *BulkTransport) Exchange(ctx context.Context, req []byte) ([]byte, error) {
	if _, err := t.epOut.WriteContext(ctx, req); err != nil {
		return nil, errors.Annotatef(err, "dap: bulk OUT write")
	}

	buf := make([]byte, t.packetSize)
	for attempt := 0; attempt <= bulkReadRetries; attempt++ {
		n, err := t.epIn.ReadContext(ctx, buf)
		if err != nil {
			return nil, errors.Annotatef(err, "dap: bulk IN read")
		}

		if t.extraZLP && n == t.packetSize {
			zlp := make([]byte, t.packetSize)
			_, _ = t.epIn.ReadContext(ctx, zlp) // best-effort drain, quirk workaround
		}

		if n > 0 && buf[0] == req[0] {
			return buf[:n], nil
		}
	}
	return nil, errors.Errorf("dap: bulk response command mismatch after %d retries", bulkReadRetries)
}

// PacketSize returns the negotiated bulk transfer size.
func (t *BulkTransport) PacketSize() int { return t.packetSize }

// Close releases the USB interface, device, and context.
func (t *BulkTransport) Close() error {
	t.intf.Close()
	err := t.dev.Close()
	t.ctx.Close()
	return err
}
