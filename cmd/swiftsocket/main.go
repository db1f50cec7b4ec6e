package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/swiftsocket/internal/config"
	"github.com/yourusername/swiftsocket/internal/di"
	"github.com/yourusername/swiftsocket/internal/logger"
	"github.com/yourusername/swiftsocket/internal/relay"
)

var configPath = flag.String("config", "", "Path to configuration file")

func main() {
	genConfig := flag.String("gen-config", "", "Generate default configuration file at specified path and exit")
	flag.Parse()

	// Generate config file if requested
	if *genConfig != "" {
		if err := config.WriteDefaultConfig(*genConfig); err != nil {
			log.Fatalf("Failed to generate configuration file: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *genConfig)
		return
	}

	container := di.NewContainer()
	if err := container.Configure(*configPath); err != nil {
		log.Fatalf("Failed to configure container: %v", err)
	}

	if err := container.Invoke(run); err != nil {
		log.Fatalf("Failed to run relay: %v", err)
	}
}

// run serves the relay until a signal arrives or the listener fails
func run(cfg *config.Config, router http.Handler, hub *relay.Hub, lg zerolog.Logger) error {
	defer logger.Shutdown()

	if *configPath != "" {
		err := config.Watch(*configPath, func(next *config.Config) {
			level := logger.SetLevel(next.Logs.Level)
			lg.Info().Str("log_level", level.String()).Msg("Configuration reloaded")
		}, func(err error) {
			lg.Warn().Err(err).Msg("Ignoring invalid configuration change")
		})
		if err != nil {
			lg.Warn().Err(err).Msg("Configuration watch disabled")
		}
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Channel to listen for errors coming from the server
	serverErrors := make(chan error, 1)

	go func() {
		lg.Info().Str("addr", server.Addr).Msg("Relay listening")
		serverErrors <- server.ListenAndServe()
	}()

	// Channel to listen for interrupt/terminate signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		lg.Info().Str("signal", sig.String()).Msg("Shutting down gracefully")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// Stop accepting first; hijacked websocket connections are not tracked
		// by the http server, so the hub closes them afterwards
		var shutdownErr error
		if err := server.Shutdown(ctx); err != nil {
			server.Close()
			shutdownErr = fmt.Errorf("could not stop server gracefully: %w", err)
		}

		if err := hub.Shutdown(time.Second); err != nil {
			lg.Warn().Err(err).Msg("Some connections did not close cleanly")
		}
		return shutdownErr
	}
}
