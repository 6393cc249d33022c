package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// globalOptions are shared by every subcommand.
type globalOptions struct {
	configPath string
	socketPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var g globalOptions

	root := &cobra.Command{
		Use:           "adhanguard",
		Short:         "Stop adhan playback when the user touches the volume controls",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&g.socketPath, "socket", "", "IPC socket path (overrides ipc.socket_path)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level: error, warn, info, debug")

	root.AddCommand(newRunCmd(&g))
	root.AddCommand(newNotifyCmd(&g))
	root.AddCommand(newVolumeStateCmd(&g))
	root.AddCommand(newSessionCmd(&g))
	root.AddCommand(newListenCmd(&g))
	root.AddCommand(newVersionCmd())
	return root
}

// loadConfig builds the effective config: defaults, then file, then flags.
func loadConfig(g *globalOptions, o FlagOverrides) (Config, error) {
	cfg := DefaultConfig()
	if g.configPath != "" {
		fileCfg, err := LoadConfigFile(g.configPath)
		if err != nil {
			return Config{}, err
		}
		cfg = fileCfg
	}

	if g.socketPath != "" {
		o.IPCSocketPath = &g.socketPath
	}
	if g.logLevel != "" {
		o.LogLevel = &g.logLevel
	}
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newRunCmd(g *globalOptions) *cobra.Command {
	var (
		devices        []string
		grab           bool
		audioBackend   string
		maxLevel       int
		audioCommand   string
		camillaURL     string
		camillaTimeout int
		camillaMinDB   float64
		camillaMaxDB   float64
		pollMS         int
		statusPort     int
		stopCommand    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the adhanguard daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var o FlagOverrides
			f := cmd.Flags()
			if f.Changed("device") {
				o.InputDevices = &devices
			}
			if f.Changed("grab") {
				o.InputGrab = &grab
			}
			if f.Changed("audio-backend") {
				o.AudioBackend = &audioBackend
			}
			if f.Changed("max-level") {
				o.AudioMaxLevel = &maxLevel
			}
			if f.Changed("audio-command") {
				argv := strings.Fields(audioCommand)
				o.AudioCommand = &argv
			}
			if f.Changed("camilladsp-ws-url") {
				o.CamillaWsURL = &camillaURL
			}
			if f.Changed("camilladsp-ws-timeout-ms") {
				o.CamillaTimeout = &camillaTimeout
			}
			if f.Changed("camilladsp-min-db") {
				o.CamillaMinDB = &camillaMinDB
			}
			if f.Changed("camilladsp-max-db") {
				o.CamillaMaxDB = &camillaMaxDB
			}
			if f.Changed("poll-interval-ms") {
				o.PollIntervalMS = &pollMS
			}
			if f.Changed("status-port") {
				o.StatusPort = &statusPort
			}
			if f.Changed("stop-command") {
				argv := strings.Fields(stopCommand)
				o.StopCommand = &argv
			}

			cfg, err := loadConfig(g, o)
			if err != nil {
				return err
			}
			level, _ := parseLogLevel(cfg.Logging.Level) // checked by Validate
			logger := setupLogger(level)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runDaemon(ctx, cfg, logger)
		},
	}

	def := DefaultConfig()
	fl := cmd.Flags()
	fl.StringSliceVar(&devices, "device", def.Input.Devices, "input event device(s) carrying the volume keys")
	fl.BoolVar(&grab, "grab", def.Input.Grab, "grab the devices and pass other events through uinput")
	fl.StringVar(&audioBackend, "audio-backend", def.Audio.Backend, "output level source: camilladsp|command")
	fl.IntVar(&maxLevel, "max-level", def.Audio.MaxLevel, "top of the level scale printed by the audio command")
	fl.StringVar(&audioCommand, "audio-command", "", "command printing the current level (command backend)")
	fl.StringVar(&camillaURL, "camilladsp-ws-url", def.Audio.CamillaDSP.WsURL, "CamillaDSP websocket URL")
	fl.IntVar(&camillaTimeout, "camilladsp-ws-timeout-ms", def.Audio.CamillaDSP.TimeoutMS, "CamillaDSP response timeout (ms)")
	fl.Float64Var(&camillaMinDB, "camilladsp-min-db", def.Audio.CamillaDSP.MinDB, "fader dB mapped to level 0")
	fl.Float64Var(&camillaMaxDB, "camilladsp-max-db", def.Audio.CamillaDSP.MaxDB, "fader dB mapped to max level")
	fl.IntVar(&pollMS, "poll-interval-ms", def.Monitor.PollIntervalMS, "level monitor period (ms)")
	fl.IntVar(&statusPort, "status-port", def.Status.Port, "status websocket HTTP port")
	fl.StringVar(&stopCommand, "stop-command", "", "command to run on every stop request")
	return cmd
}

// sendEvent delivers one IPC event and returns the response data.
func sendEvent(g *globalOptions, ev Event) (json.RawMessage, error) {
	cfg, err := loadConfig(g, FlagOverrides{})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return SendIPCEvent(ctx, ExpandPath(cfg.IPC.SocketPath), ev)
}

func newNotifyCmd(g *globalOptions) *cobra.Command {
	notify := &cobra.Command{Use: "notify", Short: "Report playback state to the daemon"}

	var source, title string
	started := &cobra.Command{
		Use:   "playback-started",
		Short: "Adhan playback has begun; arm the volume guards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := sendEvent(g, PlaybackStarted{Source: source, Title: title})
			if err != nil {
				return err
			}
			return printJSON(cmd, data)
		},
	}
	started.Flags().StringVar(&source, "source", "", "who started playback (optional)")
	started.Flags().StringVar(&title, "title", "", "what is playing (optional)")

	stopped := &cobra.Command{
		Use:   "playback-stopped",
		Short: "Adhan playback has ended; disarm the volume guards",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			_, err := sendEvent(g, PlaybackStopped{Source: source})
			return err
		},
	}
	stopped.Flags().StringVar(&source, "source", "", "who stopped playback (optional)")

	stop := &cobra.Command{
		Use:   "stop",
		Short: "Request a stop of the current adhan, as if a volume key was pressed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := sendEvent(g, StopPlayback{})
			if err != nil {
				return err
			}
			return printJSON(cmd, data)
		},
	}

	notify.AddCommand(started, stopped, stop)
	return notify
}

func newVolumeStateCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "volume-state",
		Short: "Print the current and maximum output level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := sendEvent(g, VolumeStateQuery{})
			if err != nil {
				return err
			}
			return printJSON(cmd, data)
		},
	}
}

func newSessionCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Print the current playback session snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := sendEvent(g, SessionStateQuery{})
			if err != nil {
				return err
			}
			return printJSON(cmd, data)
		},
	}
}

func newListenCmd(g *globalOptions) *cobra.Command {
	var (
		url    string
		onStop string
	)
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Follow the daemon's status websocket and print each message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g, FlagOverrides{})
			if err != nil {
				return err
			}
			if url == "" {
				url = fmt.Sprintf("ws://127.0.0.1:%d%s", cfg.Status.Port, cfg.Status.Path)
			}
			level, _ := parseLogLevel(cfg.Logging.Level)
			logger := newLogger(cmd.ErrOrStderr(), level)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runListen(ctx, listenOptions{URL: url, OnStop: strings.Fields(onStop)}, cmd.OutOrStdout(), logger)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "status websocket URL (default from config)")
	cmd.Flags().StringVar(&onStop, "on-stop", "", "command to run on every stop_requested message")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "adhanguard v%s\n", version)
		},
	}
}

func printJSON(cmd *cobra.Command, data json.RawMessage) error {
	if len(data) == 0 {
		return nil
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
