package notify

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/character-library/backend/internal/metrics"
	"go.uber.org/zap"
)

var (
	// ErrMissingChannel indicates that a publish call named no channel.
	ErrMissingChannel   = errors.New("notify: channel is required")
	errMissingPublisher = errors.New("notify: publisher is required")
)

// Publisher delivers a message to the named channel and reports transport failures.
type Publisher interface {
	Publish(ctx context.Context, message Message, channel string) error
}

// TolerantConfig describes the dependencies of a Tolerant publisher.
type TolerantConfig struct {
	Publisher Publisher
	Metrics   *metrics.Recorder
	Logger    *zap.Logger
}

// Tolerant wraps a Publisher so failures are logged and absorbed at the call site.
type Tolerant struct {
	publisher Publisher
	metrics   *metrics.Recorder
	logger    *zap.Logger
}

// NewTolerant constructs a Tolerant publisher.
func NewTolerant(cfg TolerantConfig) (*Tolerant, error) {
	if cfg.Publisher == nil {
		return nil, errMissingPublisher
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tolerant{publisher: cfg.Publisher, metrics: cfg.Metrics, logger: logger}, nil
}

// Publish delegates to the wrapped publisher and propagates its error.
func (t *Tolerant) Publish(ctx context.Context, message Message, channel string) error {
	return t.publisher.Publish(ctx, message, channel)
}

// TryPublish delegates to the wrapped publisher and never reports failure.
func (t *Tolerant) TryPublish(ctx context.Context, message Message, channel string) {
	defer func() {
		if recovered := recover(); recovered != nil {
			t.metrics.ObserveCollaboratorFailure(metrics.CollaboratorNotifier)
			t.logger.Error("notification publish panicked",
				zap.String("channel", channel),
				zap.String("message_id", message.ID),
				zap.Any("panic", recovered))
		}
	}()

	t.logger.Info("publishing notification",
		zap.String("channel", channel),
		zap.String("message_id", message.ID),
		zap.String("data", message.Data))
	if err := t.publisher.Publish(ctx, message, channel); err != nil {
		t.metrics.ObserveCollaboratorFailure(metrics.CollaboratorNotifier)
		t.logger.Error("notification publish failed",
			zap.String("channel", channel),
			zap.String("message_id", message.ID),
			zap.String("data", message.Data),
			zap.Error(err))
	}
}
