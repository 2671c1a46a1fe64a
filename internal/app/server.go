package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"walink/internal/handlers"
	"walink/internal/router"

	"github.com/rs/zerolog/log"
)

// Server represents the HTTP server
type Server struct {
	container *Container
	server    *http.Server
	handler   http.Handler
	version   string
}

// NewServer creates a new HTTP server
func NewServer(container *Container, version string) *Server {
	deviceHandler := handlers.NewDeviceHandler(
		container.DeviceRepository(),
		container.Supervisor(),
		container.CredentialStore(),
		container.Config().WhatsApp.MaxDevicesPerUser,
	)

	messageHandler := handlers.NewMessageHandler(
		container.DeviceRepository(),
		container.Supervisor(),
	)

	realtimeHandler := handlers.NewRealtimeHandler(
		container.Broadcaster(),
		container.Supervisor(),
		container.DeviceRepository(),
	)

	healthHandler := handlers.NewHealthHandler(container.Database(), version)

	// Setup router
	appRouter := router.NewRouter(deviceHandler, messageHandler, realtimeHandler, healthHandler)
	handler := appRouter.SetupRoutes()

	server := &Server{
		container: container,
		handler:   handler,
		version:   version,
	}

	server.setupHTTPServer()

	return server
}

// setupHTTPServer configures the HTTP server
func (s *Server) setupHTTPServer() {
	cfg := s.container.Config()

	s.server = &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           s.handler,
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	log.Info().Msg("HTTP server configured successfully")
}

// Start starts the HTTP server and blocks until the context is cancelled
func (s *Server) Start(ctx context.Context) error {
	cfg := s.container.Config()

	// Bring previously online devices back up before accepting traffic
	if cfg.WhatsApp.AutoConnect {
		go s.container.Supervisor().RestoreConnections(ctx)
	}

	go func() {
		log.Info().
			Str("address", cfg.GetServerAddress()).
			Str("version", s.version).
			Msg("Starting HTTP server")

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for context cancellation (shutdown signal)
	<-ctx.Done()

	log.Info().Msg("Shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown server gracefully
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info().Msg("Server stopped gracefully")
	return nil
}
