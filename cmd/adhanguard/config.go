package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the adhanguard daemon.
//
// Defaults and validation live here so the rest of the code can assume a
// well-formed config. The file is the primary configuration surface; flags are
// small overrides on top of it.
type Config struct {
	// Volume key input
	Input InputConfig `yaml:"input"`

	// Where the output level is read from
	Audio AudioConfig `yaml:"audio"`

	// Level monitor timing
	Monitor MonitorConfig `yaml:"monitor"`

	// IPC used by the playback subsystem
	IPC IPCConfig `yaml:"ipc"`

	// Status websocket (stop notifications go out here)
	Status StatusConfig `yaml:"status"`

	// Optional stop hook
	Stop StopConfig `yaml:"stop"`

	Logging LoggingConfig `yaml:"logging"`
}

type InputConfig struct {
	Devices []string `yaml:"devices"`

	// Grab takes exclusive ownership of the devices and re-emits passthrough
	// events via uinput. Without it, volume keys cannot be consumed.
	Grab       bool   `yaml:"grab"`
	UinputName string `yaml:"uinput_name,omitempty"`
}

const (
	audioBackendCamillaDSP = "camilladsp"
	audioBackendCommand    = "command"
)

type AudioConfig struct {
	Backend  string `yaml:"backend"`   // "camilladsp" or "command"
	MaxLevel int    `yaml:"max_level"` // command backend only

	CamillaDSP CamillaDSPConfig `yaml:"camilladsp"`

	// Command prints the current level as an integer (a trailing % is allowed),
	// e.g. ["pamixer", "--get-volume"].
	Command []string `yaml:"command,omitempty"`
}

type CamillaDSPConfig struct {
	WsURL     string  `yaml:"ws_url"`
	TimeoutMS int     `yaml:"timeout_ms"`
	MinDB     float64 `yaml:"min_db"`
	MaxDB     float64 `yaml:"max_db"`
}

type MonitorConfig struct {
	PollIntervalMS int `yaml:"poll_interval_ms"`
	QueryTimeoutMS int `yaml:"query_timeout_ms"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type StatusConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

type StopConfig struct {
	// Command is run once per stop request, e.g. ["mpc", "stop"].
	Command         []string `yaml:"command,omitempty"`
	NotifyTimeoutMS int      `yaml:"notify_timeout_ms"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	return Config{
		Input: InputConfig{
			Devices:    []string{"/dev/input/event6"},
			Grab:       true,
			UinputName: defaultUinputName,
		},
		Audio: AudioConfig{
			Backend:  audioBackendCamillaDSP,
			MaxLevel: defaultMaxLevel,
			CamillaDSP: CamillaDSPConfig{
				WsURL:     "ws://127.0.0.1:1234",
				TimeoutMS: defaultReadTimeoutMS,
				MinDB:     -65.0,
				MaxDB:     0.0,
			},
		},
		Monitor: MonitorConfig{
			PollIntervalMS: defaultPollIntervalMS,
			QueryTimeoutMS: defaultQueryTimeoutMS,
		},
		IPC: IPCConfig{
			SocketPath: defaultSocketPath,
		},
		Status: StatusConfig{
			Port: defaultStatusPort,
			Path: defaultStatusPath,
		},
		Stop: StopConfig{
			NotifyTimeoutMS: defaultNotifyTimeoutMS,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
//
// Unknown fields are rejected (helps catch typos).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil // empty file
		}
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	if err := dec.Decode(new(yaml.Node)); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds values from command-line flags. A nil pointer means the
// flag was not set; a non-nil pointer is applied even if it holds a zero value.
type FlagOverrides struct {
	InputDevices *[]string
	InputGrab    *bool

	AudioBackend   *string
	AudioMaxLevel  *int
	AudioCommand   *[]string
	CamillaWsURL   *string
	CamillaTimeout *int
	CamillaMinDB   *float64
	CamillaMaxDB   *float64
	PollIntervalMS *int
	IPCSocketPath  *string
	StatusPort     *int
	StopCommand    *[]string
	LogLevel       *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.InputDevices != nil {
		cfg.Input.Devices = append([]string(nil), (*o.InputDevices)...)
	}
	if o.InputGrab != nil {
		cfg.Input.Grab = *o.InputGrab
	}
	if o.AudioBackend != nil {
		cfg.Audio.Backend = *o.AudioBackend
	}
	if o.AudioMaxLevel != nil {
		cfg.Audio.MaxLevel = *o.AudioMaxLevel
	}
	if o.AudioCommand != nil {
		cfg.Audio.Command = append([]string(nil), (*o.AudioCommand)...)
	}
	if o.CamillaWsURL != nil {
		cfg.Audio.CamillaDSP.WsURL = *o.CamillaWsURL
	}
	if o.CamillaTimeout != nil {
		cfg.Audio.CamillaDSP.TimeoutMS = *o.CamillaTimeout
	}
	if o.CamillaMinDB != nil {
		cfg.Audio.CamillaDSP.MinDB = *o.CamillaMinDB
	}
	if o.CamillaMaxDB != nil {
		cfg.Audio.CamillaDSP.MaxDB = *o.CamillaMaxDB
	}
	if o.PollIntervalMS != nil {
		cfg.Monitor.PollIntervalMS = *o.PollIntervalMS
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.StatusPort != nil {
		cfg.Status.Port = *o.StatusPort
	}
	if o.StopCommand != nil {
		cfg.Stop.Command = append([]string(nil), (*o.StopCommand)...)
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Input
	if len(c.Input.Devices) == 0 {
		return errors.New("input.devices must not be empty")
	}
	for i, dev := range c.Input.Devices {
		if dev == "" {
			return fmt.Errorf("input.devices[%d] is empty", i)
		}
	}
	if c.Input.Grab && c.Input.UinputName == "" {
		c.Input.UinputName = defaultUinputName
	}

	// Audio
	if c.Audio.MaxLevel <= 0 {
		return errors.New("audio.max_level must be > 0")
	}
	switch c.Audio.Backend {
	case audioBackendCamillaDSP:
		if c.Audio.CamillaDSP.WsURL == "" {
			return errors.New("audio.camilladsp.ws_url must not be empty")
		}
		if c.Audio.CamillaDSP.TimeoutMS <= 0 {
			return errors.New("audio.camilladsp.timeout_ms must be > 0")
		}
		if c.Audio.CamillaDSP.MinDB >= c.Audio.CamillaDSP.MaxDB {
			return errors.New("audio.camilladsp.min_db must be < audio.camilladsp.max_db")
		}
	case audioBackendCommand:
		if len(c.Audio.Command) == 0 || strings.TrimSpace(c.Audio.Command[0]) == "" {
			return errors.New("audio.command must name a program when audio.backend is \"command\"")
		}
	default:
		return fmt.Errorf("audio.backend must be %q or %q", audioBackendCamillaDSP, audioBackendCommand)
	}

	// Monitor
	if c.Monitor.PollIntervalMS < 10 || c.Monitor.PollIntervalMS > 10000 {
		return errors.New("monitor.poll_interval_ms must be between 10 and 10000")
	}
	if c.Monitor.QueryTimeoutMS <= 0 {
		return errors.New("monitor.query_timeout_ms must be > 0")
	}

	// IPC / status
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}
	if c.Status.Port <= 0 || c.Status.Port > 65535 {
		return errors.New("status.port must be between 1 and 65535")
	}
	if !strings.HasPrefix(c.Status.Path, "/") {
		return errors.New("status.path must start with /")
	}

	// Stop
	if c.Stop.NotifyTimeoutMS <= 0 {
		return errors.New("stop.notify_timeout_ms must be > 0")
	}

	// Logging
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Monitor.PollIntervalMS) * time.Millisecond
}

func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Monitor.QueryTimeoutMS) * time.Millisecond
}

func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Stop.NotifyTimeoutMS) * time.Millisecond
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
