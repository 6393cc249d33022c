//go:build linux

package main

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// uinput ioctls (<linux/uinput.h>)
const (
	uiDevCreate  = 0x5501     // _IO('U', 1)
	uiDevDestroy = 0x5502     // _IO('U', 2)
	uiDevSetup   = 0x405c5503 // _IOW('U', 3, struct uinput_setup)
	uiSetEvBit   = 0x40045564 // _IOW('U', 100, int)
	uiSetKeyBit  = 0x40045565 // _IOW('U', 101, int)
	uiSetMscBit  = 0x40045568 // _IOW('U', 104, int)

	busVirtual = 0x06
)

// uinputSetup mirrors struct uinput_setup.
type uinputSetup struct {
	Bustype      uint16
	Vendor       uint16
	Product      uint16
	Version      uint16
	Name         [80]byte
	FFEffectsMax uint32
}

// uinputDevice is a virtual keyboard that re-emits the events of grabbed devices.
type uinputDevice struct {
	fd  int
	buf [inputEventSize]byte
}

// newUinputDevice creates a virtual device that can emit every key code.
func newUinputDevice(name string) (*uinputDevice, error) {
	fd, err := unix.Open("/dev/uinput", unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/uinput: %w", err)
	}

	fail := func(what string, err error) (*uinputDevice, error) {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("uinput %s: %w", what, err)
	}

	for _, ev := range []int{EV_SYN, EV_KEY, EV_MSC} {
		if err := unix.IoctlSetInt(fd, uiSetEvBit, ev); err != nil {
			return fail("set evbit", err)
		}
	}
	if err := unix.IoctlSetInt(fd, uiSetMscBit, MSC_SCAN); err != nil {
		return fail("set mscbit", err)
	}
	for code := 1; code <= KEY_MAX; code++ {
		if err := unix.IoctlSetInt(fd, uiSetKeyBit, code); err != nil {
			return fail("set keybit", err)
		}
	}

	setup := uinputSetup{Bustype: busVirtual, Vendor: 0x1, Product: 0x1, Version: 1}
	copy(setup.Name[:len(setup.Name)-1], name)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uiDevSetup, uintptr(unsafe.Pointer(&setup))); errno != 0 {
		return fail("dev setup", errno)
	}
	if err := unix.IoctlSetInt(fd, uiDevCreate, 0); err != nil {
		return fail("dev create", err)
	}

	return &uinputDevice{fd: fd}, nil
}

// WriteEvent forwards one event. Timestamps are left to the kernel.
func (u *uinputDevice) WriteEvent(ev inputEvent) error {
	switch ev.Type {
	case EV_SYN, EV_KEY, EV_MSC:
	default:
		return nil // not advertised by the virtual device
	}
	ev.Sec, ev.Usec = 0, 0
	ev.encode(u.buf[:])
	if _, err := unix.Write(u.fd, u.buf[:]); err != nil {
		return fmt.Errorf("uinput write: %w", err)
	}
	return nil
}

func (u *uinputDevice) Close() error {
	_ = unix.IoctlSetInt(u.fd, uiDevDestroy, 0)
	return unix.Close(u.fd)
}
