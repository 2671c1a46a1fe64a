package app

import (
	"context"
	"fmt"
	"time"

	"walink/internal/analytics"
	"walink/internal/app/config"
	"walink/internal/broadcast"
	"walink/internal/domain"
	"walink/internal/storage"
	"walink/internal/storage/repository"
	"walink/internal/supervisor"
	"walink/internal/whatsapp"

	"github.com/rs/zerolog/log"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// Container holds all application dependencies
type Container struct {
	config *config.Config
	db     *storage.Database

	// WhatsApp
	storeManager *whatsapp.StoreManager
	adapter      *whatsapp.Adapter

	// Repositories
	deviceRepo domain.DeviceRepository

	// Runtime
	broadcaster *broadcast.Broadcaster
	counter     *analytics.Counter
	supervisor  *supervisor.Supervisor
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config) (*Container, error) {
	container := &Container{
		config: cfg,
	}

	if err := container.initializeDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := container.initializeWhatsApp(); err != nil {
		return nil, fmt.Errorf("failed to initialize WhatsApp: %w", err)
	}

	if err := container.initializeRepositories(); err != nil {
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	if err := container.initializeSupervisor(); err != nil {
		return nil, fmt.Errorf("failed to initialize supervisor: %w", err)
	}

	log.Info().Msg("Application container initialized successfully")
	return container, nil
}

// initializeDatabase sets up the database connection and runs migrations
func (c *Container) initializeDatabase() error {
	db, err := storage.New(c.config.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Run migrations
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	c.db = db
	log.Info().Msg("Database initialized successfully")
	return nil
}

// initializeWhatsApp sets up the credential store and protocol adapter
func (c *Container) initializeWhatsApp() error {
	waLogger := waLog.Stdout("WhatsApp", c.config.WhatsApp.LogLevel, c.config.Logging.ColorOutput)

	storeManager, err := whatsapp.NewStoreManager(context.Background(), c.db.DB.DB, waLogger)
	if err != nil {
		return fmt.Errorf("failed to create credential store: %w", err)
	}

	c.storeManager = storeManager
	c.adapter = whatsapp.NewAdapter(waLogger)

	log.Info().Msg("WhatsApp initialized successfully")
	return nil
}

// initializeRepositories sets up all repositories
func (c *Container) initializeRepositories() error {
	c.deviceRepo = repository.NewDeviceRepository(c.db.DB)

	log.Info().Msg("Repositories initialized successfully")
	return nil
}

// initializeSupervisor wires the connection supervisor with its
// collaborators
func (c *Container) initializeSupervisor() error {
	c.broadcaster = broadcast.New()
	c.counter = analytics.NewCounter(c.db.DB)

	c.supervisor = supervisor.New(
		c.adapter,
		c.storeManager,
		c.deviceRepo,
		c.broadcaster,
		c.counter,
		supervisor.Config{
			QRTimeout:            c.config.WhatsApp.QRTimeout,
			ReconnectInterval:    c.config.WhatsApp.ReconnectInterval,
			MaxReconnectAttempts: c.config.WhatsApp.MaxReconnectAttempts,
			KeepAliveInterval:    c.config.WhatsApp.KeepAliveInterval,
			PrintQR:              c.config.WhatsApp.PrintQR,
		},
	)

	log.Info().Msg("Connection supervisor initialized successfully")
	return nil
}

// Close closes all resources
func (c *Container) Close() error {
	if c.supervisor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		c.supervisor.Shutdown(ctx)
		cancel()
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database connection")
			return err
		}
	}

	log.Info().Msg("Application container closed successfully")
	return nil
}

// Getters for dependencies

func (c *Container) Config() *config.Config {
	return c.config
}

func (c *Container) Database() *storage.Database {
	return c.db
}

func (c *Container) DeviceRepository() domain.DeviceRepository {
	return c.deviceRepo
}

func (c *Container) CredentialStore() domain.CredentialStore {
	return c.storeManager
}

func (c *Container) Broadcaster() *broadcast.Broadcaster {
	return c.broadcaster
}

func (c *Container) Supervisor() *supervisor.Supervisor {
	return c.supervisor
}
