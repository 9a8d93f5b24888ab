// Command pillscan serves the pill identification API: photo in, ranked
// catalog candidates out.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"pillscan/internal/catalog"
	"pillscan/internal/config"
	"pillscan/internal/match"
	"pillscan/internal/pipeline"
	"pillscan/internal/server"
	"pillscan/pkg/log"
)

func main() {
	configPath := flag.String("config", "", "optional YAML settings file")
	flag.Parse()

	_ = godotenv.Load()
	logger := log.NewLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("load settings")
	}

	cat, warnings, err := catalog.LoadXLSX(cfg.CatalogPath)
	if err != nil {
		logger.WithError(err).WithField("path", cfg.CatalogPath).Fatal("load catalog")
	}
	for _, w := range warnings {
		logger.WithField("catalog", cfg.CatalogPath).Warn(w)
	}
	logger.WithField("records", cat.Len()).Info("catalog loaded")

	pipe, err := pipeline.New(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("init pipeline")
	}
	defer pipe.Close()
	if err := pipe.Warmup(); err != nil {
		logger.WithError(err).Warn("model warmup incomplete")
	}

	srv := server.New(pipe,
		match.New(cat, cfg.Match, logger),
		cat,
		catalog.NewPhotoStore(cfg.PhotoDir),
		logger)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-done
		logger.Info("shutting down")
		if err := srv.Shutdown(); err != nil {
			logger.WithError(err).Error("shutdown")
		}
	}()

	logger.WithField("addr", cfg.ListenAddr).Info("listening")
	if err := srv.Listen(cfg.ListenAddr); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}
