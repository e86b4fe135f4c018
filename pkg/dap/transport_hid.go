package dap

import (
	"context"

	"github.com/cesanta/errors"
	"github.com/cesanta/hid"
)

// HIDTransport drives a CMSIS-DAP v1 device over a USB HID report endpoint.
// Every exchange is one report write followed by report reads until one
// echoes the command byte; the device itself enforces one command in flight
// at a time.
type HIDTransport struct {
	dev        hid.Device
	packetSize int
}

// OpenHID opens the first HID device matching vid/pid. The packet size
// starts at the conservative CMSIS-DAP default (64 bytes) and is refined by
// Probe.Open once DAP_Info(PACKET_SIZE) has been read.
func OpenHID(vid, pid uint16) (*HIDTransport, error) {
	devs, err := hid.Devices()
	if err != nil {
		return nil, errors.Annotatef(err, "dap: failed to enumerate HID devices")
	}
	for _, di := range devs {
		if di.VendorID != vid || di.ProductID != pid {
			continue
		}
		d, err := di.Open()
		if err != nil {
			return nil, errors.Annotatef(err, "dap: failed to open HID device %04x:%04x", vid, pid)
		}
		return &HIDTransport{dev: d, packetSize: 64}, nil
	}
	return nil, errors.NotFoundf("HID device %04x:%04x", vid, pid)
}

// hidReadRetries bounds the number of stale/mismatched reports Exchange will
// discard before giving up (spec.md §4.1: "retry the IN up to three times
// when the command byte fails to match").
const hidReadRetries = 3

// Exchange writes req as a HID output report (report ID 0, CMSIS-DAP doesn't
// use numbered reports) and waits for the matching input report, discarding
// any stale reports left over from a previous exchange.
func (t *HIDTransport) Exchange(ctx context.Context, req []byte) ([]byte, error) {
	pkt := make([]byte, 0, t.packetSize+1)
	pkt = append(pkt, 0) // report number, unused by CMSIS-DAP
	pkt = append(pkt, req...)
	// Pad to the full report size with 0xFF (spec.md §4.1): short HID writes
	// leave the adaptor's firmware waiting on bytes that never arrive.
	for len(pkt) < t.packetSize+1 {
		pkt = append(pkt, 0xFF)
	}

	if err := t.dev.Write(pkt); err != nil {
		return nil, errors.Annotatef(err, "dap: HID write failed")
	}

	for attempt := 0; attempt <= hidReadRetries; attempt++ {
		resp, err := t.readOne(ctx)
		if err != nil {
			return nil, err
		}
		if len(resp) > 0 && resp[0] == req[0] {
			return resp, nil
		}
	}
	return nil, errors.Errorf("dap: HID response command mismatch after %d retries", hidReadRetries)
}

func (t *HIDTransport) readOne(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, errors.Annotatef(ctx.Err(), "dap: HID exchange")
	case resp, ok := <-t.dev.ReadCh():
		if !ok {
			return nil, errors.Annotatef(t.dev.ReadError(), "dap: HID read failed")
		}
		return resp, nil
	}
}

// PacketSize returns the negotiated report size.
func (t *HIDTransport) PacketSize() int { return t.packetSize }

// SetPacketSize updates the packet size once DAP_Info(PACKET_SIZE) is known.
func (t *HIDTransport) SetPacketSize(n int) { t.packetSize = n }

// Close releases the HID device handle.
func (t *HIDTransport) Close() error {
	return t.dev.Close()
}
