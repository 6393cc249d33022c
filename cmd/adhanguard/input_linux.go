//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// EVIOCGRAB = _IOW('E', 0x90, int)
const eviocgrab = 0x40044590

// epollTimeoutMS bounds how long the reader can go without noticing ctx.
const epollTimeoutMS = 250

// inputDevice is an opened (and possibly grabbed) evdev node.
type inputDevice struct {
	path    string
	fd      int
	grabbed bool
}

// openInputDevices opens every path and, if grab is set, takes exclusive
// ownership so no other reader sees the events first.
func openInputDevices(paths []string, grab bool, logger *slog.Logger) ([]*inputDevice, error) {
	devices := make([]*inputDevice, 0, len(paths))
	for _, p := range paths {
		fd, err := unix.Open(p, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		if err != nil {
			closeInputDevices(devices, logger)
			return nil, fmt.Errorf("open input device %s: %w", p, err)
		}
		dev := &inputDevice{path: p, fd: fd}
		devices = append(devices, dev)

		if grab {
			if err := unix.IoctlSetInt(fd, eviocgrab, 1); err != nil {
				closeInputDevices(devices, logger)
				return nil, fmt.Errorf("grab input device %s: %w", p, err)
			}
			dev.grabbed = true
		}
		logger.Info("input device opened", "device", p, "grabbed", dev.grabbed)
	}
	return devices, nil
}

func closeInputDevices(devices []*inputDevice, logger *slog.Logger) {
	for _, d := range devices {
		if d.grabbed {
			if err := unix.IoctlSetInt(d.fd, eviocgrab, 0); err != nil {
				logger.Warn("failed to release input grab", "device", d.path, "error", err)
			}
		}
		_ = unix.Close(d.fd)
	}
}

// readInputEvents multiplexes all devices with epoll and calls handle for every
// decoded event, in arrival order per device. It returns nil when ctx is canceled.
func readInputEvents(ctx context.Context, devices []*inputDevice, handle func(inputEvent)) error {
	if len(devices) == 0 {
		return errors.New("no input devices provided")
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	byFD := make(map[int32]*inputDevice, len(devices))
	for _, d := range devices {
		byFD[int32(d.fd)] = d
		event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(d.fd)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, d.fd, &event); err != nil {
			return fmt.Errorf("epoll_ctl_add %s: %w", d.path, err)
		}
	}

	epollEvents := make([]unix.EpollEvent, len(devices))
	buf := make([]byte, 64*inputEventSize)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		n, err := unix.EpollWait(epfd, epollEvents, epollTimeoutMS)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			d := byFD[epollEvents[i].Fd]
			if d == nil {
				continue
			}
			if epollEvents[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				return fmt.Errorf("device error/hangup: %s", d.path)
			}
			if err := drainDevice(d, buf, handle); err != nil {
				return err
			}
		}
	}
}

// drainDevice reads until the non-blocking fd reports EAGAIN.
func drainDevice(d *inputDevice, buf []byte, handle func(inputEvent)) error {
	for {
		n, err := unix.Read(d.fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				return nil
			}
			return fmt.Errorf("read from %s: %w", d.path, err)
		}
		if n == 0 {
			return fmt.Errorf("read from %s: %w", d.path, os.ErrClosed)
		}
		for off := 0; off+inputEventSize <= n; off += inputEventSize {
			ev, err := decodeInputEvent(buf[off : off+inputEventSize])
			if err != nil {
				continue
			}
			handle(ev)
		}
	}
}
