package worker

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/character-library/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/character-library/backend/internal/notify"
	"go.uber.org/zap"
)

const defaultRetryDelay = time.Second

var (
	// ErrNoMessage indicates that a source had nothing to deliver before its poll timeout.
	ErrNoMessage = errors.New("worker: no message available")
	// ErrSourceClosed indicates that a source will never deliver another message.
	ErrSourceClosed = errors.New("worker: source closed")

	errMissingSource = errors.New("worker: source is required")
)

// Source yields queued notification messages.
type Source interface {
	Receive(ctx context.Context) (notify.Message, error)
}

// Config describes the dependencies of a Worker.
type Config struct {
	Source          Source
	ProcessingDelay time.Duration
	RetryDelay      time.Duration
	Metrics         *metrics.Recorder
	Logger          *zap.Logger
}

// Worker consumes notification messages and logs them.
type Worker struct {
	source          Source
	processingDelay time.Duration
	retryDelay      time.Duration
	metrics         *metrics.Recorder
	logger          *zap.Logger
}

// New constructs a Worker.
func New(cfg Config) (*Worker, error) {
	if cfg.Source == nil {
		return nil, errMissingSource
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		source:          cfg.Source,
		processingDelay: cfg.ProcessingDelay,
		retryDelay:      retryDelay,
		metrics:         cfg.Metrics,
		logger:          logger,
	}, nil
}

// Run consumes messages until ctx ends or the source closes.
// Receive failures are logged and retried after the retry delay.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("background worker started")
	defer w.logger.Info("background worker stopped")

	for {
		message, err := w.source.Receive(ctx)
		switch {
		case err == nil:
			if err := w.Process(ctx, message); err != nil {
				return ctxErrOrNil(ctx, err)
			}
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, ErrNoMessage):
			continue
		case errors.Is(err, ErrSourceClosed):
			return nil
		default:
			w.metrics.ObserveCollaboratorFailure(metrics.CollaboratorQueueConsumer)
			w.logger.Warn("failed to receive message", zap.Error(err))
			if err := sleep(ctx, w.retryDelay); err != nil {
				return nil
			}
		}
	}
}

// Process logs a single message and then holds for the processing delay.
func (w *Worker) Process(ctx context.Context, message notify.Message) error {
	w.logger.Info(message.Data,
		zap.String("message_id", message.ID),
		zap.String("operation", string(message.Operation)),
		zap.Int64("character_id", message.CharacterID))
	w.metrics.ObserveBackgroundMessage()
	return sleep(ctx, w.processingDelay)
}

func sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func ctxErrOrNil(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}
