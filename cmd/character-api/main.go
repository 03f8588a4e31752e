package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/character-library/backend/internal/characters"
	"github.com/MarcoPoloResearchLab/character-library/backend/internal/config"
	"github.com/MarcoPoloResearchLab/character-library/backend/internal/database"
	"github.com/MarcoPoloResearchLab/character-library/backend/internal/images"
	"github.com/MarcoPoloResearchLab/character-library/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/character-library/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/character-library/backend/internal/notify"
	"github.com/MarcoPoloResearchLab/character-library/backend/internal/server"
	"github.com/MarcoPoloResearchLab/character-library/backend/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	queueModeRedis     = "redis"
	queueModeInProcess = "in-process"
	shutdownTimeout    = 10 * time.Second
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "character-api",
		Short: "Character Library REST API",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Bool("database-seed", defaults.GetBool("database.seed"), "Seed sample characters into an empty catalog")
	cmd.PersistentFlags().String("images-root", defaults.GetString("images.root"), "Directory holding character image blobs")
	cmd.PersistentFlags().String("images-account", defaults.GetString("images.account"), "Storage account used in image URLs")
	cmd.PersistentFlags().String("queue-url", defaults.GetString("queue.url"), "Redis URL of the notification queue (empty for in-process delivery)")
	cmd.PersistentFlags().String("queue-channel", defaults.GetString("queue.channel"), "Notification queue channel name")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.seed", "database-seed")
	bindFlag(cmd, "images.root", "images-root")
	bindFlag(cmd, "images.account", "images-account")
	bindFlag(cmd, "queue.url", "queue-url")
	bindFlag(cmd, "queue.channel", "queue-channel")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, "character-api")
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(registry)

	blobStore, err := images.NewDirectoryStore(appConfig.ImagesRoot)
	if err != nil {
		return err
	}
	imageResolver, err := images.NewResolver(images.ResolverConfig{
		Store:     blobStore,
		Account:   appConfig.ImagesAccount,
		Container: appConfig.ImagesContainer,
		Metrics:   recorder,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	db, err := database.OpenSQLite(database.Options{
		Path:     appConfig.DatabasePath,
		Seed:     appConfig.SeedDatabase,
		ImageURL: imageResolver.URLFor,
	}, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	store, err := characters.NewGormStore(db)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(signalCtx)

	var publisher notify.Publisher
	queueMode := queueModeInProcess
	if appConfig.QueueURL != "" {
		redisClient, err := notify.OpenRedis(signalCtx, notify.RedisOptions{URL: appConfig.QueueURL})
		if err != nil {
			return err
		}
		defer redisClient.Close()
		queue, err := notify.NewRedisQueue(redisClient)
		if err != nil {
			return err
		}
		publisher = queue
		queueMode = queueModeRedis
	} else {
		dispatcher := notify.NewDispatcher()
		stream, unsubscribe := dispatcher.Subscribe(groupCtx, appConfig.QueueChannel)
		defer unsubscribe()
		backgroundWorker, err := worker.New(worker.Config{
			Source:          worker.NewChannelSource(stream),
			ProcessingDelay: appConfig.ProcessingDelay,
			Metrics:         recorder,
			Logger:          logger.Named("background"),
		})
		if err != nil {
			return err
		}
		group.Go(func() error {
			return backgroundWorker.Run(groupCtx)
		})
		publisher = dispatcher
	}

	notifier, err := notify.NewTolerant(notify.TolerantConfig{
		Publisher: publisher,
		Metrics:   recorder,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	characterService, err := characters.NewService(characters.ServiceConfig{
		Store:          store,
		Images:         imageResolver,
		Notifier:       notifier,
		Channel:        appConfig.QueueChannel,
		Metrics:        recorder,
		Logger:         logger,
		CleanupTimeout: appConfig.CleanupTimeout,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		CharacterService: characterService,
		Images:           imageResolver,
		Health:           store,
		Settings:         config.NewSettings(viper.GetViper(), logger),
		QueueMode:        queueMode,
		MetricsHandler:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		AllowedOrigins:   appConfig.AllowedOrigins,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group.Go(func() error {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("queue_mode", queueMode))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		shutdownErr := httpServer.Shutdown(shutdownCtx)
		if err := characterService.WaitForCleanup(shutdownCtx); err != nil {
			logger.Warn("image cleanups still running at shutdown", zap.Error(err))
		}
		return shutdownErr
	})

	return group.Wait()
}
