package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/confdesk/backend/internal/conferences"
	"github.com/confdesk/backend/internal/config"
	"github.com/confdesk/backend/internal/database"
	"github.com/confdesk/backend/internal/llm"
	"github.com/confdesk/backend/internal/logging"
	"github.com/confdesk/backend/internal/metrics"
	"github.com/confdesk/backend/internal/server"
	"github.com/confdesk/backend/internal/speech"
	"github.com/confdesk/backend/internal/tracker"
	"github.com/confdesk/backend/internal/users"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	metricsNamespace = "confdesk"
	shutdownTimeout  = 10 * time.Second
)

func runAPI(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	conferenceService, err := conferences.NewService(conferences.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db, Clock: time.Now})
	if err != nil {
		return err
	}

	collector := metrics.NewCollector(metricsNamespace)
	deps := server.Dependencies{
		Conferences:    conferenceService,
		Users:          userService,
		Events:         server.NewEventHub(),
		Metrics:        collector,
		MetricsHandler: collector.Handler(),
		Logger:         logger,
	}
	if err := attachExternalServices(&deps, appConfig, logger); err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(deps)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// attachExternalServices wires the clients whose endpoints are configured.
// Unconfigured services make their routes answer 503.
func attachExternalServices(deps *server.Dependencies, appConfig config.AppConfig, logger *zap.Logger) error {
	if strings.TrimSpace(appConfig.LLM.BaseURL) != "" {
		client, err := llm.NewClient(llm.Config{
			BaseURL: appConfig.LLM.BaseURL,
			APIKey:  appConfig.LLM.APIKey,
			Model:   appConfig.LLM.Model,
			Logger:  logger.Named("llm"),
		})
		if err != nil {
			return err
		}
		deps.Assistant = client
	} else {
		logger.Warn("llm.base_url not set, text endpoints disabled")
	}

	if strings.TrimSpace(appConfig.Speech.BaseURL) != "" {
		client, err := speech.NewClient(speech.Config{
			BaseURL: appConfig.Speech.BaseURL,
			APIKey:  appConfig.Speech.APIKey,
			Logger:  logger.Named("speech"),
		})
		if err != nil {
			return err
		}
		deps.Transcriber = client
	} else {
		logger.Warn("speech.base_url not set, recognition disabled")
	}

	if strings.TrimSpace(appConfig.Tracker.Token) != "" {
		client, err := tracker.NewClient(tracker.Config{
			BaseURL: appConfig.Tracker.BaseURL,
			Token:   appConfig.Tracker.Token,
			OrgID:   appConfig.Tracker.OrgID,
			Logger:  logger.Named("tracker"),
		})
		if err != nil {
			return err
		}
		deps.Tracker = client
	} else {
		logger.Warn("tracker.token not set, board publication disabled")
	}
	return nil
}
