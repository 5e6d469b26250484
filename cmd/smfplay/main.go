// Package main is the entry point for the smfplay CLI
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/james-see/smfplay/pkg/api"
	"github.com/james-see/smfplay/pkg/config"
	"github.com/james-see/smfplay/pkg/output"
	"github.com/james-see/smfplay/pkg/player"
	"github.com/james-see/smfplay/pkg/smf"
	"github.com/james-see/smfplay/pkg/tui"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configPath  string
	logLevel    string
	portName    string
	loop        bool
	tempoAdjust int
	policyName  string
	outputFile  string
	listenAddr  string

	cfg *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "smfplay",
	Short: "Play Standard MIDI Files to a MIDI output",
	Long: `smfplay streams Standard MIDI Files (format 0 and 1) to a MIDI output
port in real time, reading each track incrementally from disk.

Examples:
  smfplay play song.mid --port "USB MIDI"
  smfplay info song.mid
  smfplay render song.mid -o normalized.mid
  smfplay tui --port 1
  smfplay serve --listen :8080`,
	Version:           fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var playCmd = &cobra.Command{
	Use:   "play <file.mid>",
	Short: "Play a file to a MIDI output",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

var infoCmd = &cobra.Command{
	Use:   "info <file.mid>",
	Short: "Print header and track information",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

var dumpCmd = &cobra.Command{
	Use:   "dump <file.mid>",
	Short: "Log every event with its tick position",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

var renderCmd = &cobra.Command{
	Use:   "render <file.mid>",
	Short: "Decode a file and write it back as a normalized format 1 file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRender,
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI outputs",
	RunE:  runPorts,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive terminal player",
	RunE:  runTUI,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP control server",
	RunE:  runServe,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	// Playback flags
	for _, cmd := range []*cobra.Command{playCmd, tuiCmd, serveCmd} {
		cmd.Flags().StringVarP(&portName, "port", "p", "", "MIDI output number or name fragment")
		cmd.Flags().BoolVarP(&loop, "loop", "l", false, "Restart at the end of the file")
		cmd.Flags().IntVarP(&tempoAdjust, "tempo-adjust", "t", 0, "Tempo offset in BPM")
		cmd.Flags().StringVar(&policyName, "policy", "", "Track scheduling: event or track")
	}

	renderCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output .mid file path (required)")
	_ = renderCmd.MarkFlagRequired("output")

	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address, e.g. :8080")

	rootCmd.AddCommand(playCmd, infoCmd, dumpCmd, renderCmd, portsCmd, tuiCmd, serveCmd)
}

// setup loads the config, applies flag overrides and stores the logger in
// the command context.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("port") {
		cfg.Port = portName
	}
	if flags.Changed("loop") {
		cfg.Loop = loop
	}
	if flags.Changed("tempo-adjust") {
		cfg.TempoAdjust = tempoAdjust
	}
	if flags.Changed("policy") {
		cfg.Policy = policyName
	}
	if flags.Changed("listen") {
		cfg.Listen = listenAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		Level:           cfg.Level(),
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "smfplay",
	})
	cmd.SetContext(charmlog.WithContext(cmd.Context(), logger))
	return nil
}

// newSession opens the configured output and builds a session on it. With
// no port configured, events are discarded.
func newSession(ctx context.Context) (*player.Session, func(), error) {
	logger := charmlog.FromContext(ctx)

	send := output.SendFunc(func(midi.Message) error { return nil })
	closer := func() error { return nil }
	if cfg.Port != "" {
		var err error
		send, closer, err = output.OpenPort(cfg.Port)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("opened MIDI output", "port", cfg.Port)
	} else {
		logger.Warn("no MIDI output selected, events are discarded")
	}

	sink := output.NewPortSink(send, logger)
	opts := []player.Option{
		player.WithLogger(logger),
		player.WithPollInterval(cfg.PollInterval),
		player.WithDecoderOptions(cfg.DecoderOptions()...),
	}
	if logger.GetLevel() <= charmlog.DebugLevel {
		opts = append(opts, player.WithHandler(&output.EventLogger{Logger: logger}))
	}
	session := player.New(sink, opts...)
	session.SetLooping(cfg.Loop)
	if err := session.SetTempoAdjust(cfg.TempoAdjust); err != nil {
		_ = closer()
		return nil, nil, err
	}

	cleanup := func() {
		session.Close()
		if err := closer(); err != nil {
			logger.Warn("failed to close MIDI output", "err", err)
		}
		midi.CloseDriver()
	}
	return session, cleanup, nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func runPlay(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	session, cleanup, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := session.Load(args[0]); err != nil {
		return err
	}
	go func() { _ = session.Run(ctx) }()

	select {
	case <-session.Done():
	case <-ctx.Done():
	}
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	d := smf.NewDecoder(nil, cfg.DecoderOptions()...)
	if err := d.Load(args[0]); err != nil {
		return err
	}
	defer d.Close()
	return d.Dump(cmd.OutOrStdout())
}

func runDump(cmd *cobra.Command, args []string) error {
	logger := charmlog.FromContext(cmd.Context()).With()
	logger.SetLevel(charmlog.DebugLevel)

	d := smf.NewDecoder(nil, cfg.DecoderOptions()...)
	d.SetHandler(&output.EventLogger{Logger: logger, Ticks: d.ProcessedTicks})
	if err := d.Load(args[0]); err != nil {
		return err
	}
	defer d.Close()
	if err := output.Walk(d, nil); err != nil {
		return err
	}
	logger.Info("end of file", "ticks", d.ProcessedTicks())
	return nil
}

func runRender(cmd *cobra.Command, args []string) error {
	f, err := os.Create(outputFile)
	if err != nil {
		return err
	}
	if err := output.Render(args[0], f, cfg.DecoderOptions()...); err != nil {
		_ = f.Close()
		_ = os.Remove(outputFile)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rendered %s -> %s\n", args[0], outputFile)
	return nil
}

func runPorts(cmd *cobra.Command, args []string) error {
	defer midi.CloseDriver()
	ports := output.ListPorts()
	if len(ports) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No MIDI outputs found")
		return nil
	}
	for _, p := range ports {
		fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", p.Number, p.Name)
	}
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	session, cleanup, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	go func() { _ = session.Run(ctx) }()
	return tui.Run(session, cfg.MusicDir)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	session, cleanup, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	go func() { _ = session.Run(ctx) }()

	logger := charmlog.FromContext(ctx)
	logger.Info("starting API server", "listen", cfg.Listen, "music_dir", cfg.MusicDir)
	errc := make(chan error, 1)
	go func() {
		errc <- api.StartServer(cfg.Listen, session, api.Options{MusicDir: cfg.MusicDir, Logger: logger})
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return nil
	}
}
