// Package server exposes the identification pipeline over HTTP.
package server

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"pillscan/internal/catalog"
	"pillscan/internal/match"
	"pillscan/internal/pipeline"
)

// Server holds the request-scope dependencies. The catalog and matcher are
// immutable after construction; the pipeline serializes its model access
// internally, so the fiber worker pool can call into it concurrently.
type Server struct {
	app      *fiber.App
	pipe     *pipeline.Pipeline
	matcher  *match.Matcher
	catalog  *catalog.Catalog
	photos   *catalog.PhotoStore
	validate *validator.Validate
	log      *logrus.Logger
}

// New assembles the fiber app and its routes.
func New(pipe *pipeline.Pipeline, matcher *match.Matcher, cat *catalog.Catalog,
	photos *catalog.PhotoStore, log *logrus.Logger) *Server {
	s := &Server{
		pipe:     pipe,
		matcher:  matcher,
		catalog:  cat,
		photos:   photos,
		validate: validator.New(),
		log:      log,
	}

	s.app = fiber.New(fiber.Config{
		AppName:      "pillscan",
		BodyLimit:    50 * 1024 * 1024, // phone photos, HEIC included
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})
	s.app.Use(recover.New())
	s.app.Use(s.requestLogger())

	s.app.Get("/healthz", s.handleHealthz)
	api := s.app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/upload", s.handleUpload)
	api.Post("/match", s.handleMatch)

	return s
}

// Listen blocks serving on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app for in-process tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()

		fields := logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"ip":         c.IP(),
		}
		switch {
		case status >= 500:
			s.log.WithFields(fields).Error("request")
		case status >= 400:
			s.log.WithFields(fields).Warn("request")
		default:
			s.log.WithFields(fields).Info("request")
		}
		return err
	}
}
