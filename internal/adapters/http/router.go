package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/melih/docker-cicd-manager/internal/core/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// RouterConfig holds what NewRouter wires together.
type RouterConfig struct {
	Service       ports.ContainerService
	Builder       ports.BuilderService // optional
	Gatherer      prometheus.Gatherer  // optional; enables /metrics
	PreviewDomain string               // optional; enables the preview proxy
	Logger        *logrus.Entry        // optional
}

// NewRouter builds the fiber app with every route registered.
func NewRouter(cfg RouterConfig) *fiber.App {
	log := cfg.Logger
	if log == nil {
		log = logrus.WithField("component", "http")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(requestLogger(log))

	if cfg.PreviewDomain != "" {
		app.Use(NewProxyHandler(cfg.Service, cfg.PreviewDomain).ProxyRequest)
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	h := NewContainerHandler(cfg.Service, cfg.Builder)

	v1 := app.Group("/api/v1")
	v1.Get("/info", h.Info)

	// Routes for Container operations
	containers := v1.Group("/containers")
	containers.Get("/", h.ListContainers)
	containers.Post("/", h.CreateContainer)
	containers.Delete("/", h.Cleanup)
	containers.Get("/:id", h.GetContainer)
	containers.Delete("/:id", h.StopContainer)
	containers.Post("/:id/wait", h.WaitContainer)
	containers.Get("/:id/logs", h.GetContainerLogs)

	return app
}

func requestLogger(log *logrus.Entry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.WithFields(logrus.Fields{
			"method":   c.Method(),
			"path":     c.Path(),
			"status":   c.Response().StatusCode(),
			"duration": time.Since(start),
		}).Debug("request")
		return err
	}
}
