// Package main is the entry point for the smfplay API server
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	charmlog "github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/james-see/smfplay/pkg/api"
	"github.com/james-see/smfplay/pkg/config"
	"github.com/james-see/smfplay/pkg/output"
	"github.com/james-see/smfplay/pkg/player"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	listen := flag.String("listen", "", "Listen address (default from config, :8080)")
	port := flag.String("port", "", "MIDI output number or name fragment")
	flag.Parse()

	if err := run(*configPath, *listen, *port); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, listen, port string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if port != "" {
		cfg.Port = port
	}

	logger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		Level:           cfg.Level(),
		ReportTimestamp: true,
		Prefix:          "smfplay-server",
	})

	send := output.SendFunc(func(midi.Message) error { return nil })
	if cfg.Port != "" {
		var closer func() error
		send, closer, err = output.OpenPort(cfg.Port)
		if err != nil {
			return err
		}
		defer closer()
	}
	defer midi.CloseDriver()

	session := player.New(output.NewPortSink(send, logger),
		player.WithLogger(logger),
		player.WithPollInterval(cfg.PollInterval),
		player.WithDecoderOptions(cfg.DecoderOptions()...))
	defer session.Close()
	session.SetLooping(cfg.Loop)
	if err := session.SetTempoAdjust(cfg.TempoAdjust); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() { _ = session.Run(ctx) }()

	logger.Info("starting API server", "listen", cfg.Listen)
	logger.Info("swagger docs", "url", fmt.Sprintf("http://localhost%s/swagger/index.html", cfg.Listen))

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
