package di

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"go.uber.org/dig"

	"github.com/yourusername/swiftsocket/internal/config"
	"github.com/yourusername/swiftsocket/internal/logger"
	"github.com/yourusername/swiftsocket/internal/middleware"
	"github.com/yourusername/swiftsocket/internal/relay"
)

// Container is the dependency injection container
type Container struct {
	container *dig.Container
}

// NewContainer creates a new dependency injection container
func NewContainer() *Container {
	return &Container{
		container: dig.New(),
	}
}

// Configure sets up the dependency injection container for the relay
func (c *Container) Configure(configPath string) error {
	// Provide config
	if err := c.container.Provide(func() (*config.Config, error) {
		return config.LoadConfig(configPath)
	}); err != nil {
		return fmt.Errorf("failed to provide config: %w", err)
	}

	// Provide the initialized logger
	if err := c.container.Provide(func(cfg *config.Config) (zerolog.Logger, error) {
		if err := logger.Init(cfg); err != nil {
			return zerolog.Nop(), err
		}
		return logger.Log, nil
	}); err != nil {
		return fmt.Errorf("failed to provide logger: %w", err)
	}

	// Provide relay hub and server
	if err := c.container.Provide(relay.NewHub); err != nil {
		return fmt.Errorf("failed to provide relay hub: %w", err)
	}

	if err := c.container.Provide(relay.NewServer); err != nil {
		return fmt.Errorf("failed to provide relay server: %w", err)
	}

	// Provide router
	if err := c.container.Provide(NewRouter); err != nil {
		return fmt.Errorf("failed to provide router: %w", err)
	}

	return nil
}

// Invoke calls a function with dependencies from the container
func (c *Container) Invoke(function interface{}) error {
	return c.container.Invoke(function)
}

// NewRouter registers the relay routes
func NewRouter(srv *relay.Server, log zerolog.Logger) http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.AccessLog(log.With().Str("component", "http").Logger()))

	// The websocket endpoint answers on the root as well as /ws
	router.HandleFunc("/", srv.ServeWs)
	router.HandleFunc("/ws", srv.ServeWs)
	router.HandleFunc("/health", srv.HandleHealth).Methods(http.MethodGet)
	router.HandleFunc("/stats", srv.HandleStats).Methods(http.MethodGet)

	return router
}
