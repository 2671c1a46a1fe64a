package router

import (
	"net/http"

	"walink/internal/handlers"
	"walink/internal/middleware"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Router holds all the route handlers
type Router struct {
	deviceHandler   *handlers.DeviceHandler
	messageHandler  *handlers.MessageHandler
	realtimeHandler *handlers.RealtimeHandler
	healthHandler   *handlers.HealthHandler
}

// NewRouter creates a new router instance
func NewRouter(
	deviceHandler *handlers.DeviceHandler,
	messageHandler *handlers.MessageHandler,
	realtimeHandler *handlers.RealtimeHandler,
	healthHandler *handlers.HealthHandler,
) *Router {
	return &Router{
		deviceHandler:   deviceHandler,
		messageHandler:  messageHandler,
		realtimeHandler: realtimeHandler,
		healthHandler:   healthHandler,
	}
}

// SetupRoutes configures all the HTTP routes
func (rt *Router) SetupRoutes() http.Handler {
	r := chi.NewRouter()

	// Add Chi built-in middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Compress(5))

	// Add custom middleware
	r.Use(middleware.LoggingMiddleware)

	// Setup CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure this properly for production
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", rt.healthHandler.Health)

	// Realtime event stream
	r.Get("/ws", rt.realtimeHandler.ServeWS)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		rt.setupDeviceRoutes(r)
	})

	return r
}

// setupDeviceRoutes configures device-related routes
func (rt *Router) setupDeviceRoutes(r chi.Router) {
	r.Route("/devices", func(r chi.Router) {
		r.Post("/", rt.deviceHandler.CreateDevice)
		r.Get("/", rt.deviceHandler.ListDevices)

		r.Route("/{deviceID}", func(r chi.Router) {
			r.Get("/", rt.deviceHandler.GetDevice)
			r.Delete("/", rt.deviceHandler.DeleteDevice)

			// Connection lifecycle
			r.Post("/connect", rt.deviceHandler.ConnectDevice)
			r.Post("/disconnect", rt.deviceHandler.DisconnectDevice)
			r.Get("/qr", rt.deviceHandler.GetQRCode)
			r.Get("/status", rt.deviceHandler.GetStatus)

			// Messaging
			r.Post("/messages/text", rt.messageHandler.SendTextMessage)
		})
	})
}
