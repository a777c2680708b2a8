// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package transport

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// SysRoot is where USB serial adapters are discovered on Linux.
const SysRoot = "/sys"

// FilterFn selects USB serial adapters.
type FilterFn func(*Usbtty) bool

// PrologixFilter matches the FTDI chip of Prologix GPIB-USB controllers.
func PrologixFilter(ut *Usbtty) bool {
	return strings.Contains(ut.Prod, "Prologix") ||
		(ut.IDv == "0403" && ut.IDp == "6001" && strings.HasPrefix(ut.Serial, "P"))
}

// ArduinoFilter matches Arduino boards, including AR488 GPIB adapters.
func ArduinoFilter(ut *Usbtty) bool {
	return strings.Contains(ut.Mfg, "Arduino")
}

// SerialFilter matches the adapter with the given USB serial number.
func SerialFilter(s string) FilterFn {
	return func(ut *Usbtty) bool { return ut.Serial == s }
}

// Find searches root for a USB serial device. If filter is not nil it is used
// to narrow choices down and the first match is chosen. The device path
// (e.g. /dev/ttyUSB0) is returned.
func Find(root string, filter FilterFn, log logrus.FieldLogger) (string, error) {
	ttys, err := AllUsbTtys(root, log)
	if err != nil {
		return "", err
	}
	if filter != nil {
		var match Usbttys
		for i := range ttys {
			if filter(&ttys[i]) {
				match = Usbttys{ttys[i]}
				break
			}
		}
		ttys = match
	}

	if len(ttys) == 0 {
		return "", fmt.Errorf("no matching ttys found")
	}
	if len(ttys) == 1 {
		return "/dev/" + ttys[0].Dev, nil
	}
	return "", fmt.Errorf("multiple ttys:\n%s", ttys)
}

// Usbtty describes one USB serial adapter.
type Usbtty struct {
	Dev, Path string
	IDp, IDv  string
	Mfg, Prod string
	Serial    string
}

func (u Usbtty) String() string {
	return fmt.Sprintf("dev %s path %s pid/vid %s/%s mfg/prod %s/%s serial %s", u.Dev, u.Path, u.IDp, u.IDv, u.Mfg, u.Prod, u.Serial)
}

// Usbttys is a list of adapters.
type Usbttys []Usbtty

func (uts Usbttys) String() string {
	s := make([]string, 0, len(uts))
	for _, ut := range uts {
		s = append(s, ut.String())
	}
	return strings.Join(s, "\n")
}

// AllUsbTtys finds ttys on USB devices by following the symlinks in
// <root>/class/tty, which look like
//
//	/sys/class/tty/ttyACM0 ->
//	/sys/devices/pci0000:00/0000:00:01.3/0000:02:00.0/usb1/1-10/1-10:1.0/tty/ttyACM0
func AllUsbTtys(root string, log logrus.FieldLogger) (Usbttys, error) {
	var devs Usbttys
	sct := filepath.Join(root, "class", "tty")
	entries, err := os.ReadDir(sct)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Type()&fs.ModeSymlink == 0 {
			continue
		}
		path := filepath.Join(sct, e.Name())
		abs, err := filepath.EvalSymlinks(path)
		if err != nil {
			log.WithError(err).WithField("path", path).Warn("skipping unresolvable tty")
			continue
		}
		if !strings.Contains(abs, "usb") {
			continue
		}
		// device points at the interface directory; the USB device with
		// its descriptor files is one level up.
		dev, err := filepath.EvalSymlinks(filepath.Join(abs, "device"))
		if err != nil {
			log.WithError(err).WithField("path", abs).Warn("usb tty without device link")
			continue
		}
		idP, idV, mfg, prod, serial, err := readUsbInfo(filepath.Dir(dev))
		if err != nil {
			log.WithError(err).WithField("path", abs).Warn("incomplete usb info")
		}
		devs = append(devs, Usbtty{
			Dev:    e.Name(),
			Path:   abs,
			IDp:    idP,
			IDv:    idV,
			Mfg:    mfg,
			Prod:   prod,
			Serial: serial,
		})
	}
	return devs, nil
}

// readUsbInfo reads product and vendor ids and the mfg/product/serial
// strings. It returns the last error encountered, ignoring missing files;
// errors do not prevent reading the remaining files.
func readUsbInfo(dev string) (idp, idv, mfg, prod, serial string, err error) {
	read := func(name string) string {
		b, rerr := os.ReadFile(filepath.Join(dev, name))
		if rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			err = rerr
		}
		return strings.TrimSpace(string(b))
	}
	idp = read("idProduct")
	idv = read("idVendor")
	mfg = read("manufacturer")
	prod = read("product")
	serial = read("serial")
	return idp, idv, mfg, prod, serial, err
}
