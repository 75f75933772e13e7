package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/confdesk/backend/internal/bot"
	"github.com/confdesk/backend/internal/conferences"
	"github.com/confdesk/backend/internal/config"
	"github.com/confdesk/backend/internal/database"
	"github.com/confdesk/backend/internal/lockfile"
	"github.com/confdesk/backend/internal/logging"
	"github.com/confdesk/backend/internal/metrics"
	"github.com/confdesk/backend/internal/navigation"
	"github.com/confdesk/backend/internal/notifier"
	"github.com/confdesk/backend/internal/session"
	"github.com/confdesk/backend/internal/snapshot"
	"github.com/confdesk/backend/internal/subscribers"
	"github.com/confdesk/backend/internal/telegram"
	"github.com/confdesk/backend/internal/updates"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

func runBot(ctx context.Context) error {
	appConfig, err := config.LoadBot(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	lock, err := lockfile.Acquire(appConfig.LockPath)
	if err != nil {
		logger.Error("bot already running", zap.String("lock_path", appConfig.LockPath), zap.Error(err))
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("failed to release lock", zap.Error(err))
		}
	}()

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector(metricsNamespace)

	conferenceService, err := conferences.NewService(conferences.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	store, err := snapshot.NewStore(snapshot.StoreConfig{Source: conferenceService, Logger: logger.Named("snapshot")})
	if err != nil {
		return err
	}

	subscriberSet, err := openSubscribers(signalCtx, appConfig, db, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := subscriberSet.Close(closeCtx); err != nil {
			logger.Error("failed to persist subscribers on shutdown", zap.Error(err))
		}
	}()
	collector.SetSubscribers(len(subscriberSet.IDs()))

	botAPI, err := tgbotapi.NewBotAPI(appConfig.TelegramToken)
	if err != nil {
		return err
	}
	logger.Info("telegram bot authorized", zap.String("username", botAPI.Self.UserName))

	client, err := telegram.NewClient(botAPI, logger.Named("telegram"))
	if err != nil {
		return err
	}

	announcer, err := notifier.New(notifier.Config{
		Sender:      client,
		Limiter:     rate.NewLimiter(rate.Limit(appConfig.NotifyRatePerSecond), 1),
		MaxAttempts: appConfig.NotifyMaxAttempts,
		IsPermanent: telegram.IsPermanent,
		Observer:    collector,
		Logger:      logger.Named("notifier"),
	})
	if err != nil {
		return err
	}

	poller, err := updates.New(updates.Config{
		Store:       store,
		Announcer:   announcer,
		Subscribers: subscriberSet,
		Interval:    appConfig.RefreshInterval,
		Cron:        appConfig.RefreshCron,
		Observer:    collector,
		Logger:      logger.Named("updates"),
	})
	if err != nil {
		return err
	}
	if err := poller.Prime(signalCtx); err != nil {
		logger.Warn("initial conference load failed, browsing starts empty", zap.Error(err))
	}

	machine, err := navigation.NewMachine(navigation.MachineConfig{
		Catalog:  store,
		PageSize: appConfig.PageSize,
		Columns:  appConfig.Columns,
	})
	if err != nil {
		return err
	}

	handler, err := bot.NewHandler(bot.Config{
		Messenger:     client,
		Machine:       machine,
		Sessions:      session.NewStore(),
		Subscriptions: subscriberSet,
		Checker:       poller,
		Observer:      collector,
		Logger:        logger.Named("bot"),
	})
	if err != nil {
		return err
	}

	if err := client.RegisterCommands(signalCtx, bot.Commands); err != nil {
		logger.Warn("failed to register bot commands", zap.Error(err))
	}

	listener, err := telegram.NewListener(telegram.ListenerConfig{
		API:                botAPI,
		Handler:            handler,
		PollTimeoutSeconds: int(appConfig.TelegramPollTimeout / time.Second),
		Logger:             logger.Named("listener"),
	})
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		return poller.Run(groupCtx)
	})
	group.Go(func() error {
		return listener.Run(groupCtx)
	})
	if appConfig.MetricsAddress != "" {
		metricsServer := &http.Server{
			Addr:              appConfig.MetricsAddress,
			Handler:           collector.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		group.Go(func() error {
			logger.Info("metrics server starting", zap.String("address", appConfig.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		group.Go(func() error {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	logger.Info("bot started")
	err = group.Wait()
	logger.Info("bot stopped")
	return err
}

func openSubscribers(ctx context.Context, appConfig config.AppConfig, db *gorm.DB, logger *zap.Logger) (*subscribers.Set, error) {
	var persistence subscribers.Persistence
	switch appConfig.SubscribersBackend {
	case config.SubscribersBackendFile:
		persistence = subscribers.NewFileStore(appConfig.SubscribersPath)
	default:
		store, err := subscribers.NewDatabaseStore(db)
		if err != nil {
			return nil, err
		}
		persistence = store
	}

	set, err := subscribers.NewSet(persistence, logger.Named("subscribers"))
	if err != nil {
		return nil, err
	}
	if err := set.Load(ctx); err != nil {
		return nil, err
	}
	logger.Info("subscribers loaded",
		zap.String("backend", appConfig.SubscribersBackend),
		zap.Int("count", len(set.IDs())))
	return set, nil
}
