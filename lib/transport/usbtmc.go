// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// USBTMC bulk message IDs.
const (
	msgDevDepOut      = 1
	msgRequestDevDep  = 2
	usbtmcHeaderSize  = 12
	usbtmcMaxTransfer = 1 << 20
	usbtmcClass       = 0xfe // application specific
	usbtmcSubClass    = 0x03
)

// usbtmcLink carries a byte stream over USBTMC bulk transfers: each Write is
// one DEV_DEP_MSG_OUT message and each Read that finds no buffered data
// requests one DEV_DEP_MSG_IN message.
type usbtmcLink struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	done func()
	intf *gousb.Interface

	epOut *gousb.OutEndpoint
	epIn  *gousb.InEndpoint

	tag      byte
	buf      []byte
	deadline time.Time
}

func openUSBTMC(vid, pid uint16, serial string) (*usbtmcLink, error) {
	ctx := gousb.NewContext()
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(vid) && desc.Product == gousb.ID(pid)
	})
	var dev *gousb.Device
	for _, d := range devs {
		if dev == nil && (serial == "" || serialMatches(d, serial)) {
			dev = d
			continue
		}
		d.Close()
	}
	if dev == nil {
		ctx.Close()
		if err != nil {
			return nil, fmt.Errorf("USB error: %w", err)
		}
		return nil, fmt.Errorf("device not found (VID:0x%04X PID:0x%04X serial %q)", vid, pid, serial)
	}
	// Not supported on every platform.
	_ = dev.SetAutoDetach(true)

	l := &usbtmcLink{ctx: ctx, dev: dev}
	if err := l.claimInterface(); err != nil {
		dev.Close()
		ctx.Close()
		return nil, err
	}
	return l, nil
}

func serialMatches(d *gousb.Device, serial string) bool {
	s, err := d.SerialNumber()
	return err == nil && s == serial
}

// claimInterface finds the USBTMC interface and its bulk endpoints.
func (l *usbtmcLink) claimInterface() error {
	cfgNum, err := l.dev.ActiveConfigNum()
	if err != nil {
		return fmt.Errorf("failed to get active config: %w", err)
	}
	cfg, err := l.dev.Config(cfgNum)
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}
	intfNum := -1
	for _, intf := range cfg.Desc.Interfaces {
		if len(intf.AltSettings) == 0 {
			continue
		}
		alt := intf.AltSettings[0]
		if alt.Class == gousb.Class(usbtmcClass) && alt.SubClass == gousb.Class(usbtmcSubClass) {
			intfNum = intf.Number
			break
		}
	}
	if intfNum < 0 {
		cfg.Close()
		return errors.New("no USBTMC interface")
	}
	intf, err := cfg.Interface(intfNum, 0)
	if err != nil {
		cfg.Close()
		return fmt.Errorf("failed to claim interface %d: %w", intfNum, err)
	}
	l.intf = intf
	l.done = func() {
		intf.Close()
		cfg.Close()
	}

	var outNum, inNum int
	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch ep.Direction {
		case gousb.EndpointDirectionOut:
			outNum = ep.Number
		case gousb.EndpointDirectionIn:
			inNum = ep.Number
		}
	}
	if outNum == 0 || inNum == 0 {
		l.done()
		return errors.New("bulk endpoints not found")
	}
	if l.epOut, err = intf.OutEndpoint(outNum); err != nil {
		l.done()
		return fmt.Errorf("failed to open OUT endpoint: %w", err)
	}
	if l.epIn, err = intf.InEndpoint(inNum); err != nil {
		l.done()
		return fmt.Errorf("failed to open IN endpoint: %w", err)
	}
	return nil
}

func (l *usbtmcLink) nextTag() byte {
	l.tag++
	if l.tag == 0 {
		l.tag = 1
	}
	return l.tag
}

// Write sends p as one complete device dependent message.
func (l *usbtmcLink) Write(p []byte) (int, error) {
	if _, err := l.epOut.Write(encodeDevDepOut(l.nextTag(), p)); err != nil {
		return 0, fmt.Errorf("USB write failed: %w", err)
	}
	return len(p), nil
}

// Read returns buffered message bytes, requesting a new message from the
// instrument when the buffer is empty.
func (l *usbtmcLink) Read(p []byte) (int, error) {
	if len(l.buf) == 0 {
		if err := l.fetch(); err != nil {
			return 0, err
		}
	}
	n := copy(p, l.buf)
	l.buf = l.buf[n:]
	return n, nil
}

func (l *usbtmcLink) SetReadDeadline(t time.Time) error {
	l.deadline = t
	return nil
}

func (l *usbtmcLink) fetch() error {
	ctx := context.Background()
	if !l.deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, l.deadline)
		defer cancel()
	}
	tag := l.nextTag()
	if _, err := l.epOut.WriteContext(ctx, encodeRequestIn(tag, usbtmcMaxTransfer)); err != nil {
		return l.usbError(ctx, err)
	}
	packet := make([]byte, l.epIn.Desc.MaxPacketSize*64)
	n, err := l.epIn.ReadContext(ctx, packet)
	if err != nil {
		return l.usbError(ctx, err)
	}
	data, size, err := decodeDevDepIn(tag, packet[:n])
	if err != nil {
		return err
	}
	for len(data) < size {
		n, err := l.epIn.ReadContext(ctx, packet)
		if err != nil {
			return l.usbError(ctx, err)
		}
		data = append(data, packet[:n]...)
	}
	l.buf = append(l.buf, data[:size]...)
	return nil
}

func (l *usbtmcLink) usbError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, gousb.TransferTimedOut) {
		return errReadTimeout
	}
	return fmt.Errorf("USB transfer failed: %w", err)
}

func (l *usbtmcLink) Close() error {
	if l.done != nil {
		l.done()
	}
	err := l.dev.Close()
	if cerr := l.ctx.Close(); err == nil {
		err = cerr
	}
	return err
}

// usbtmcHeader builds the 12-byte bulk header shared by all USBTMC messages.
func usbtmcHeader(msgID, tag byte, size uint32, attr byte) []byte {
	h := make([]byte, usbtmcHeaderSize)
	h[0] = msgID
	h[1] = tag
	h[2] = ^tag
	binary.LittleEndian.PutUint32(h[4:8], size)
	h[8] = attr
	return h
}

// encodeDevDepOut frames data as a DEV_DEP_MSG_OUT with EOM set, padded to a
// multiple of four bytes.
func encodeDevDepOut(tag byte, data []byte) []byte {
	msg := append(usbtmcHeader(msgDevDepOut, tag, uint32(len(data)), 0x01), data...)
	for len(msg)%4 != 0 {
		msg = append(msg, 0)
	}
	return msg
}

// encodeRequestIn asks the instrument for up to max bytes.
func encodeRequestIn(tag byte, max uint32) []byte {
	return usbtmcHeader(msgRequestDevDep, tag, max, 0)
}

// decodeDevDepIn checks the header of the first packet of a DEV_DEP_MSG_IN
// reply and returns the data it carries along with the declared size.
func decodeDevDepIn(tag byte, packet []byte) ([]byte, int, error) {
	if len(packet) < usbtmcHeaderSize {
		return nil, 0, fmt.Errorf("short USBTMC header: %d bytes", len(packet))
	}
	if packet[0] != msgRequestDevDep {
		return nil, 0, fmt.Errorf("unexpected USBTMC message id %d", packet[0])
	}
	if packet[1] != tag || packet[2] != ^tag {
		return nil, 0, fmt.Errorf("USBTMC tag mismatch: sent %d, got %d", tag, packet[1])
	}
	size := int(binary.LittleEndian.Uint32(packet[4:8]))
	return append([]byte(nil), packet[usbtmcHeaderSize:]...), size, nil
}
