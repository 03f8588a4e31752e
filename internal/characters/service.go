package characters

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/character-library/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/character-library/backend/internal/notify"
	"go.uber.org/zap"
)

var (
	errMissingStore    = errors.New("record store is required")
	errMissingImages   = errors.New("image resolver is required")
	errMissingNotifier = errors.New("notifier is required")
	errMissingChannel  = errors.New("notification channel is required")
	noOpLogger         = zap.NewNop()
)

const (
	defaultCleanupTimeout = 30 * time.Second

	opServiceNew = "characters.service.new"
	opCreate     = "characters.create"
	opGet        = "characters.get"
	opList       = "characters.list"
	opUpdate     = "characters.update"
	opDelete     = "characters.delete"
	opCleanup    = "characters.image_cleanup"

	reasonInvalidInput  = "invalid_input"
	reasonNotFound      = "not_found"
	reasonCanceled      = "canceled"
	reasonStoreFailed   = "store_failed"
	reasonCleanupFailed = "cleanup_failed"
	reasonCleanupPanic  = "cleanup_panic"
	reasonMessageFailed = "message_build_failed"
	fieldCharacterID    = "character_id"
	fieldCharacterName  = "character_name"
)

// ServiceError carries a stable "<operation>.<reason>" code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ImageResolver yields display URLs for character images and removes them best-effort.
// Neither operation reports failure as an error.
type ImageResolver interface {
	Resolve(ctx context.Context, characterName string) string
	Delete(ctx context.Context, characterName string) bool
}

// Notifier publishes change notifications without ever failing the caller.
type Notifier interface {
	TryPublish(ctx context.Context, message notify.Message, channel string)
}

// ServiceConfig describes the collaborators of the character service.
type ServiceConfig struct {
	Store          RecordStore
	Images         ImageResolver
	Notifier       Notifier
	Channel        string
	Messages       *notify.MessageFactory
	Metrics        *metrics.Recorder
	Logger         *zap.Logger
	CleanupTimeout time.Duration
}

// Service sequences record mutations with their secondary effects.
type Service struct {
	store          RecordStore
	images         ImageResolver
	notifier       Notifier
	channel        string
	messages       *notify.MessageFactory
	metrics        *metrics.Recorder
	logger         *zap.Logger
	cleanupTimeout time.Duration
	cleanups       sync.WaitGroup
}

// NewService validates the collaborators and constructs the service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.Images == nil {
		return nil, newServiceError(opServiceNew, "missing_images", errMissingImages)
	}
	if cfg.Notifier == nil {
		return nil, newServiceError(opServiceNew, "missing_notifier", errMissingNotifier)
	}
	if cfg.Channel == "" {
		return nil, newServiceError(opServiceNew, "missing_channel", errMissingChannel)
	}

	messages := cfg.Messages
	if messages == nil {
		messages = notify.NewMessageFactory(notify.MessageFactoryConfig{})
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	cleanupTimeout := cfg.CleanupTimeout
	if cleanupTimeout <= 0 {
		cleanupTimeout = defaultCleanupTimeout
	}

	return &Service{
		store:          cfg.Store,
		images:         cfg.Images,
		notifier:       cfg.Notifier,
		channel:        cfg.Channel,
		messages:       messages,
		metrics:        cfg.Metrics,
		logger:         logger,
		cleanupTimeout: cleanupTimeout,
	}, nil
}

// Create validates the input, resolves the image URL, persists the record and announces it.
func (s *Service) Create(ctx context.Context, input Input) (Character, error) {
	if err := input.Validate(); err != nil {
		return Character{}, newServiceError(opCreate, reasonInvalidInput, err)
	}
	normalized := input.Normalized()

	imageURL := s.images.Resolve(ctx, normalized.Name)
	if err := ctx.Err(); err != nil {
		return Character{}, newServiceError(opCreate, reasonCanceled, err)
	}

	created, err := s.store.Create(ctx, Character{}.WithInput(normalized, &imageURL))
	if err != nil {
		return Character{}, s.storeFailure(opCreate, err)
	}
	s.metrics.ObserveMutation(metrics.MutationCreate)

	s.announce(ctx, notify.OperationCreated, created.ID)
	return created, nil
}

// Get returns the stored character.
func (s *Service) Get(ctx context.Context, id CharacterID) (Character, error) {
	character, err := s.store.Get(ctx, id)
	if err != nil {
		return Character{}, s.storeFailure(opGet, err, zap.Int64(fieldCharacterID, id.Int64()))
	}
	return character, nil
}

// List returns every stored character.
func (s *Service) List(ctx context.Context) ([]Character, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return nil, s.storeFailure(opList, err)
	}
	return records, nil
}

// Update replaces every mutable field of an existing character.
// An explicit image URL is kept verbatim; otherwise the URL is resolved from the new name.
func (s *Service) Update(ctx context.Context, id CharacterID, input Input) (Character, error) {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return Character{}, s.storeFailure(opUpdate, err, zap.Int64(fieldCharacterID, id.Int64()))
	}

	if err := input.Validate(); err != nil {
		return Character{}, newServiceError(opUpdate, reasonInvalidInput, err)
	}
	normalized := input.Normalized()

	imageURL := normalized.ImageURL
	if imageURL == nil {
		resolved := s.images.Resolve(ctx, normalized.Name)
		imageURL = &resolved
	}
	if err := ctx.Err(); err != nil {
		return Character{}, newServiceError(opUpdate, reasonCanceled, err)
	}

	updated, err := s.store.Update(ctx, existing.WithInput(normalized, imageURL))
	if err != nil {
		return Character{}, s.storeFailure(opUpdate, err, zap.Int64(fieldCharacterID, id.Int64()))
	}
	s.metrics.ObserveMutation(metrics.MutationUpdate)

	s.announce(ctx, notify.OperationUpdated, updated.ID)
	return updated, nil
}

// Delete removes the character. Once the store confirms the removal the operation has succeeded:
// image cleanup runs detached from the request and its outcome is only logged, so a deleted
// character's image may outlive the record.
func (s *Service) Delete(ctx context.Context, id CharacterID) error {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return s.storeFailure(opDelete, err, zap.Int64(fieldCharacterID, id.Int64()))
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return s.storeFailure(opDelete, err, zap.Int64(fieldCharacterID, id.Int64()))
	}
	s.metrics.ObserveMutation(metrics.MutationDelete)

	s.cleanupImage(ctx, existing)
	s.announce(ctx, notify.OperationDeleted, existing.ID)
	return nil
}

// WaitForCleanup blocks until detached image cleanups finish or the context ends.
func (s *Service) WaitForCleanup(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.cleanups.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) cleanupImage(ctx context.Context, character Character) {
	detached := context.WithoutCancel(ctx)
	s.cleanups.Go(func() {
		cleanupCtx, cancel := context.WithTimeout(detached, s.cleanupTimeout)
		defer cancel()
		defer func() {
			if recovered := recover(); recovered != nil {
				s.metrics.ObserveCollaboratorFailure(metrics.CollaboratorImageCleanup)
				s.logError(opCleanup, reasonCleanupPanic, fmt.Errorf("panic: %v", recovered),
					zap.Int64(fieldCharacterID, character.ID),
					zap.String(fieldCharacterName, character.Name))
			}
		}()

		if !s.images.Delete(cleanupCtx, character.Name) {
			s.metrics.ObserveCollaboratorFailure(metrics.CollaboratorImageCleanup)
			s.loggerOrDefault().Warn("character image cleanup failed",
				zap.String("operation", opCleanup),
				zap.String("reason", reasonCleanupFailed),
				zap.Int64(fieldCharacterID, character.ID),
				zap.String(fieldCharacterName, character.Name))
		}
	})
}

// announce publishes after the durable mutation; the request context no longer cancels it.
func (s *Service) announce(ctx context.Context, operation notify.Operation, characterID int64) {
	message, err := s.messages.New(operation, characterID)
	if err != nil {
		s.metrics.ObserveCollaboratorFailure(metrics.CollaboratorNotifier)
		s.logError(string(operation), reasonMessageFailed, err, zap.Int64(fieldCharacterID, characterID))
		return
	}
	s.notifier.TryPublish(context.WithoutCancel(ctx), message, s.channel)
}

func (s *Service) storeFailure(operation string, err error, fields ...zap.Field) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return newServiceError(operation, reasonNotFound, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newServiceError(operation, reasonCanceled, err)
	default:
		s.logError(operation, reasonStoreFailed, err, fields...)
		return newServiceError(operation, reasonStoreFailed, err)
	}
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("characters service error", attrs...)
}
