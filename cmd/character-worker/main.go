package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/character-library/backend/internal/config"
	"github.com/MarcoPoloResearchLab/character-library/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/character-library/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/character-library/backend/internal/notify"
	"github.com/MarcoPoloResearchLab/character-library/backend/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "character-worker",
		Short: "Character Library background worker",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context())
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
	cmd.PersistentFlags().String("http-address", defaults.GetString("worker.http_address"), "HTTP listen address for health and push delivery")
	cmd.PersistentFlags().String("queue-url", defaults.GetString("queue.url"), "Redis URL of the notification queue")
	cmd.PersistentFlags().String("queue-channel", defaults.GetString("queue.channel"), "Notification queue channel name")
	cmd.PersistentFlags().Int("processing-delay-ms", defaults.GetInt("worker.processing_delay_ms"), "Pause after each processed message")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "worker.http_address", "http-address")
	bindFlag(cmd, "queue.url", "queue-url")
	bindFlag(cmd, "queue.channel", "queue-channel")
	bindFlag(cmd, "worker.processing_delay_ms", "processing-delay-ms")
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

func runWorker(ctx context.Context) error {
	workerConfig, err := config.LoadWorker(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(workerConfig.LogLevel, "character-worker")
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(registry)

	redisClient, err := notify.OpenRedis(signalCtx, notify.RedisOptions{URL: workerConfig.QueueURL})
	if err != nil {
		return err
	}
	defer redisClient.Close()

	source, err := worker.NewRedisSource(redisClient, workerConfig.QueueChannel, workerConfig.PollTimeout)
	if err != nil {
		return err
	}

	backgroundWorker, err := worker.New(worker.Config{
		Source:          source,
		ProcessingDelay: workerConfig.ProcessingDelay,
		Metrics:         recorder,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              workerConfig.HTTPAddress,
		Handler:           worker.NewHTTPHandler(backgroundWorker, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(signalCtx)

	group.Go(func() error {
		return backgroundWorker.Run(groupCtx)
	})

	group.Go(func() error {
		logger.Info("worker endpoint starting",
			zap.String("address", workerConfig.HTTPAddress),
			zap.String("channel", workerConfig.QueueChannel))
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
		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
