package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/MarcoPoloResearchLab/character-library/backend/internal/metrics"
	"go.uber.org/zap"
)

const (
	// DefaultAccount names the storage account used when none is configured.
	DefaultAccount = "dragonballstorage"
	// DefaultContainer names the blob container holding character images.
	DefaultContainer = "characters"

	imageExtension = ".jpg"
)

var (
	errMissingStore = errors.New("images: blob store is required")
	// ErrInvalidName indicates that a character name normalizes to an empty blob path.
	ErrInvalidName = errors.New("images: invalid character name")
)

// ResolverConfig describes the dependencies of a Resolver.
type ResolverConfig struct {
	Store     BlobStore
	Account   string
	Container string
	Metrics   *metrics.Recorder
	Logger    *zap.Logger
}

// Resolver maps character names to image URLs backed by a blob store.
type Resolver struct {
	store     BlobStore
	account   string
	container string
	metrics   *metrics.Recorder
	logger    *zap.Logger
}

// NewResolver constructs a Resolver, applying default account and container names.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	account := strings.TrimSpace(cfg.Account)
	if account == "" {
		account = DefaultAccount
	}
	container := strings.TrimSpace(cfg.Container)
	if container == "" {
		container = DefaultContainer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		store:     cfg.Store,
		account:   account,
		container: container,
		metrics:   cfg.Metrics,
		logger:    logger,
	}, nil
}

// NormalizeName lowercases the name and strips every whitespace rune.
func NormalizeName(characterName string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, characterName)
}

// BlobPath returns the deterministic blob path for the character's image.
func BlobPath(characterName string) string {
	normalized := NormalizeName(characterName)
	return normalized + "/" + normalized + imageExtension
}

// URLFor returns the public URL of the character's image whether or not the blob exists.
func (r *Resolver) URLFor(characterName string) string {
	return fmt.Sprintf("https://%s.blob.core.windows.net/%s/%s", r.account, r.container, BlobPath(characterName))
}

// Resolve returns the image URL for the character. Absent blobs and lookup failures are logged
// and yield the same URL, so callers cannot tell a missing image from a present one.
func (r *Resolver) Resolve(ctx context.Context, characterName string) (url string) {
	url = r.URLFor(characterName)
	blobPath := BlobPath(characterName)
	defer func() {
		if recovered := recover(); recovered != nil {
			r.metrics.ObserveCollaboratorFailure(metrics.CollaboratorImageResolver)
			r.logger.Error("image lookup panicked, returning fallback url",
				zap.String("character_name", characterName),
				zap.Any("panic", recovered))
			url = r.URLFor(characterName)
		}
	}()

	exists, err := r.store.Exists(ctx, blobPath)
	switch {
	case err != nil:
		r.metrics.ObserveCollaboratorFailure(metrics.CollaboratorImageResolver)
		r.logger.Warn("image lookup failed, returning fallback url",
			zap.String("character_name", characterName),
			zap.String("blob_path", blobPath),
			zap.Error(err))
	case !exists:
		r.logger.Info("image not found, returning fallback url",
			zap.String("character_name", characterName),
			zap.String("blob_path", blobPath))
	default:
		r.logger.Debug("image resolved",
			zap.String("character_name", characterName),
			zap.String("blob_path", blobPath))
	}
	return url
}

// Delete removes the character's image and reports whether removal succeeded.
func (r *Resolver) Delete(ctx context.Context, characterName string) (deleted bool) {
	blobPath := BlobPath(characterName)
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Error("image delete panicked",
				zap.String("character_name", characterName),
				zap.Any("panic", recovered))
			deleted = false
		}
	}()
	r.logger.Info("deleting character image",
		zap.String("character_name", characterName),
		zap.String("blob_path", blobPath))
	if err := r.store.Remove(ctx, blobPath); err != nil {
		r.logger.Error("image delete failed",
			zap.String("character_name", characterName),
			zap.String("blob_path", blobPath),
			zap.Error(err))
		return false
	}
	return true
}

// Upload stores the character's image and returns its URL.
func (r *Resolver) Upload(ctx context.Context, characterName string, content io.Reader) (string, error) {
	if NormalizeName(characterName) == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, characterName)
	}
	blobPath := BlobPath(characterName)
	if err := r.store.Put(ctx, blobPath, content); err != nil {
		r.logger.Error("image upload failed",
			zap.String("character_name", characterName),
			zap.String("blob_path", blobPath),
			zap.Error(err))
		return "", fmt.Errorf("images: upload %s: %w", blobPath, err)
	}
	r.logger.Info("image uploaded",
		zap.String("character_name", characterName),
		zap.String("blob_path", blobPath))
	return r.URLFor(characterName), nil
}
