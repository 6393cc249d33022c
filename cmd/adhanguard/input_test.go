package main

import (
	"testing"
)

func TestInputEvent_EncodeDecode(t *testing.T) {
	in := inputEvent{Sec: 1700000000, Usec: 123456, Type: EV_KEY, Code: KEY_VOLUMEUP, Value: evValueRepeat}

	var buf [inputEventSize]byte
	in.encode(buf[:])

	// type/code/value sit after the 16-byte timeval.
	if buf[16] != EV_KEY || buf[18] != KEY_VOLUMEUP || buf[20] != evValueRepeat {
		t.Fatalf("unexpected layout: % x", buf)
	}

	out, err := decodeInputEvent(buf[:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != in {
		t.Fatalf("decode = %+v, want %+v", out, in)
	}
}

func TestDecodeInputEvent_Short(t *testing.T) {
	if _, err := decodeInputEvent(make([]byte, inputEventSize-1)); err == nil {
		t.Fatal("expected error for short buffer")
	}
}

func TestDiscardSink(t *testing.T) {
	var s eventSink = discardSink{}
	if err := s.WriteEvent(inputEvent{Type: EV_KEY}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}
