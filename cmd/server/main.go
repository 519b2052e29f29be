package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/SkinMatchProject5/camera-backend/internal/auth"
	"github.com/SkinMatchProject5/camera-backend/internal/config"
	"github.com/SkinMatchProject5/camera-backend/internal/facedetect"
	"github.com/SkinMatchProject5/camera-backend/internal/httpapi"
	"github.com/SkinMatchProject5/camera-backend/internal/registry"
)

const serviceName = "camera-backend"

var version = "dev"

func main() {
	app := &cli.App{
		Name:    serviceName,
		Usage:   "camera capture signaling service",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "http-addr",
				Usage:   "listen address for the HTTP/WebSocket server",
				EnvVars: []string{"CAMERA_HTTP_ADDR"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "zerolog level (trace|debug|info|warn|error)",
				Value:   "info",
				EnvVars: []string{"CAMERA_LOG_LEVEL"},
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg := config.Load()
	if c.IsSet("http-addr") {
		cfg.HTTPAddr = c.String("http-addr")
	}

	logger := newLogger(c.String("log-level"))

	reg := registry.New(logger)
	sweeper := registry.NewSweeper(reg, cfg.SweepInterval, cfg.LivenessTimeout, logger)
	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	detector := facedetect.NewStubDetector()

	cameraWS := httpapi.NewCameraWSHandler(reg, detector, verifier, httpapi.WSOptions{
		CountdownSeconds: cfg.CountdownSeconds,
		ReadTimeout:      cfg.ReadTimeout,
		AllowedOrigins:   cfg.AllowedOrigins,
	}, logger)
	router := httpapi.NewRouter(cameraWS, httpapi.NewOpsHandler(reg))

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := sweeper.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newLogger(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).
		Level(parsed).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", version).
		Logger()
}
