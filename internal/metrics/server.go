package metrics

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// HealthFunc supplies the service-specific health payload.
type HealthFunc func() map[string]interface{}

// Server exposes /metrics (Prometheus text) and /health (JSON).
type Server struct {
	app    *fiber.App
	host   string
	port   int
	health HealthFunc
}

// NewServer builds the HTTP surface. health may be nil.
func NewServer(host string, port int, health HealthFunc) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          10 * time.Second,
	})

	s := &Server{app: app, host: host, port: port, health: health}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	s.app.Get("/health", func(c *fiber.Ctx) error {
		payload := fiber.Map{
			"status": "ok",
			"time":   time.Now().Unix(),
		}
		if s.health != nil {
			for k, v := range s.health() {
				payload[k] = v
			}
		}
		return c.JSON(payload)
	})
}

// Start serves until Shutdown; blockingly, so run it on its own goroutine.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	log.Info().Str("addr", addr).Msg("metrics server started")
	return s.app.Listen(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
