package main

import (
	"bufio"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/yourusername/swiftsocket/internal/client"
	"github.com/yourusername/swiftsocket/internal/config"
	"github.com/yourusername/swiftsocket/internal/errors"
	"github.com/yourusername/swiftsocket/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	url := flag.String("url", "", "Relay URL, overrides client.url")
	username := flag.String("username", "", "Name shown with your messages, overrides client.username")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *url != "" {
		cfg.Client.URL = *url
	}
	if *username != "" {
		cfg.Client.Username = *username
	}

	if err := logger.Init(cfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Shutdown()

	if err := run(cfg, os.Stdin, os.Stdout, logger.Log); err != nil {
		logger.Log.Error().Err(err).Msg("Client stopped")
		os.Exit(1)
	}
}

func run(cfg *config.Config, in io.Reader, out io.Writer, lg zerolog.Logger) error {
	printer := newPrinter(out)

	opts := client.OptionsFromConfig(cfg.Client, lg)
	opts.OnMessage = printer.envelope
	opts.OnStateChange = printer.state
	ctrl := client.New(opts)
	defer ctrl.Close()

	if err := ctrl.Connect(); err != nil {
		return err
	}

	quit := make(chan struct{})
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	var wg conc.WaitGroup
	wg.Go(func() {
		defer close(quit)
		readInput(in, ctrl, cfg.Client.Username, printer)
	})

	select {
	case <-quit:
	case sig := <-signals:
		lg.Debug().Str("signal", sig.String()).Msg("Interrupted")
		// Stdin may stay blocked; closing the controller is enough to stop
		return ctrl.Close()
	}
	wg.Wait()
	return nil
}

func readInput(in io.Reader, ctrl *client.Controller, username string, p *printer) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		switch strings.TrimSpace(line) {
		case "/quit":
			return
		case "/reconnect":
			if err := ctrl.Connect(); err != nil {
				p.notice("reconnect failed: %v", err)
			}
			continue
		}

		err := ctrl.Send(line, username)
		switch {
		case err == nil, errors.Is(err, errors.ErrEmptyMessage):
		case errors.Is(err, errors.ErrNotConnected):
			p.notice("not connected, message not sent")
		default:
			p.notice("send failed: %v", err)
		}
	}
}
