package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"vartalap/internal/backend"
	"vartalap/internal/config"
	"vartalap/internal/domain"
	"vartalap/internal/session"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadClientConfig()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(cfg).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app agrupa lo que comparten todos los comandos: logger a archivo y la
// sesión contra la API.
type app struct {
	cfg    *config.ClientConfig
	logger *zap.Logger
	sess   *session.Client
}

func newApp(ctx context.Context, cfg *config.ClientConfig) (*app, error) {
	logger, err := newFileLogger(cfg.LogFile)
	if err != nil {
		return nil, err
	}

	cachePath := cfg.SessionFile
	if cachePath == "" {
		if cachePath, err = session.DefaultCachePath(); err != nil {
			logger.Warn("session cache disabled", zap.Error(err))
		}
	}
	opts := session.Options{}
	if cachePath != "" {
		opts.Cache = session.NewFileCache(cachePath)
	}

	be := backend.NewRemote(cfg.APIURL, cfg.RequestTimeout(), logger)
	sess := session.New(logger, be, opts)
	if err := sess.Init(ctx); err != nil {
		sess.Close()
		_ = logger.Sync()
		return nil, fmt.Errorf("cannot reach %s: %s", cfg.APIURL, userMessage(err))
	}
	return &app{cfg: cfg, logger: logger, sess: sess}, nil
}

func (a *app) Close() {
	a.sess.Close()
	_ = a.logger.Sync()
}

// newFileLogger escribe a path; la terminal queda para la interfaz.
func newFileLogger(path string) (*zap.Logger, error) {
	if path == "" {
		return zap.NewNop(), nil
	}
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{path}
	zcfg.ErrorOutputPaths = []string{path}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return logger, nil
}

// userMessage devuelve el texto de una falla apto para mostrar.
func userMessage(err error) string {
	if err == nil {
		return ""
	}
	var f *domain.Failure
	if errors.As(err, &f) {
		return f.UserMessage()
	}
	return err.Error()
}
