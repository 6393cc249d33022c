package main

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

const inputEventSize = 24

var errUnsupportedPlatform = errors.New("volume key input requires linux (evdev/uinput)")

func decodeInputEvent(b []byte) (inputEvent, error) {
	if len(b) < inputEventSize {
		return inputEvent{}, fmt.Errorf("short input event: %d bytes", len(b))
	}
	return inputEvent{
		Sec:   int64(binary.LittleEndian.Uint64(b[0:8])),
		Usec:  int64(binary.LittleEndian.Uint64(b[8:16])),
		Type:  binary.LittleEndian.Uint16(b[16:18]),
		Code:  binary.LittleEndian.Uint16(b[18:20]),
		Value: int32(binary.LittleEndian.Uint32(b[20:24])),
	}, nil
}

func (ev inputEvent) encode(b []byte) {
	binary.LittleEndian.PutUint64(b[0:8], uint64(ev.Sec))
	binary.LittleEndian.PutUint64(b[8:16], uint64(ev.Usec))
	binary.LittleEndian.PutUint16(b[16:18], ev.Type)
	binary.LittleEndian.PutUint16(b[18:20], ev.Code)
	binary.LittleEndian.PutUint32(b[20:24], uint32(ev.Value))
}

// eventSink receives the input events adhanguard does not consume.
type eventSink interface {
	WriteEvent(ev inputEvent) error
	Close() error
}

// discardSink is used when devices are not grabbed: the kernel events already
// reached the rest of the system, so there is nothing to forward.
type discardSink struct{}

func (discardSink) WriteEvent(inputEvent) error { return nil }
func (discardSink) Close() error                { return nil }
