package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/surya-garg/UAVLogViewer/internal/agent"
	"github.com/surya-garg/UAVLogViewer/internal/dataflash"
	"github.com/surya-garg/UAVLogViewer/internal/flight"
	"github.com/surya-garg/UAVLogViewer/internal/server"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	janitorInterval   = time.Minute
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	var opts []flight.Option
	if config.ThresholdsFile != "" {
		thresholds, err := flight.ThresholdsFromFile(config.ThresholdsFile)
		if err != nil {
			return fmt.Errorf("loading thresholds: %w", err)
		}
		opts = append(opts, flight.WithThresholds(thresholds))
	}

	if err := os.MkdirAll(config.UploadDir, 0o755); err != nil {
		return fmt.Errorf("creating upload directory: %w", err)
	}

	if config.OpenAIKey == "" {
		logger.Warn("OPENAI_API_KEY is not set, chat requests will fail")
	}
	client := openai.NewClient(config.OpenAIKey)

	ingest := func(path string) (*flight.Log, error) {
		dec, err := dataflash.Open(path)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return flight.Ingest(dec, opts...)
	}

	newAgent := func(log *flight.Log) *agent.Agent {
		return agent.New(client, config.Model, log, agent.WithLogger(logger))
	}

	srv, err := server.New(server.Config{
		UploadDir:      config.UploadDir,
		MaxUploadBytes: config.MaxUploadBytes,
		Origins:        config.Origins,
		SessionTTL:     config.SessionTimeout,
		Model:          config.Model,
	}, ingest, newAgent, server.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	go srv.Sessions().Janitor(ctx, janitorInterval)

	httpServer := &http.Server{
		Addr:              config.BindAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			slog.String("addr", config.BindAddr),
			slog.String("model", config.Model))

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err = <-errc:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
