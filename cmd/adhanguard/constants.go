package main

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_SYN = 0x00
	EV_KEY = 0x01
	EV_MSC = 0x04

	SYN_REPORT = 0x00
	MSC_SCAN   = 0x04

	KEY_MUTE       = 113
	KEY_VOLUMEDOWN = 114
	KEY_VOLUMEUP   = 115

	// Highest key code the passthrough device advertises (KEY_MAX).
	KEY_MAX = 0x2ff
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Defaults
const (
	defaultPollIntervalMS  = 100 // Level monitor period (ms)
	defaultQueryTimeoutMS  = 1000
	defaultNotifyTimeoutMS = 2000
	defaultReadTimeoutMS   = 500 // Default timeout for reading websocket responses (ms)

	// Top of the command backend level scale. CamillaDSP levels are 0.01 dB steps instead.
	defaultMaxLevel = 100

	defaultSocketPath = "/tmp/adhanguard.sock"
	defaultStatusPort = 3002
	defaultStatusPath = "/ws"
	defaultUinputName = "adhanguard-passthrough"
)
