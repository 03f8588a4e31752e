package characters

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("database handle is required")

// RecordStore is the durable source of truth for character records.
type RecordStore interface {
	Create(ctx context.Context, character Character) (Character, error)
	Get(ctx context.Context, id CharacterID) (Character, error)
	List(ctx context.Context) ([]Character, error)
	Update(ctx context.Context, character Character) (Character, error)
	Delete(ctx context.Context, id CharacterID) error
}

var updatableColumns = []string{"name", "race", "planet", "transformation", "technique", "image_url"}

// GormStore persists characters in a single relational table.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore constructs a RecordStore backed by the provided GORM handle.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &GormStore{db: db}, nil
}

// Create inserts the character and returns it with the store-assigned identifier.
func (store *GormStore) Create(ctx context.Context, character Character) (Character, error) {
	record := character
	record.ID = 0
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		return Character{}, classifyStoreError(err)
	}
	return record, nil
}

// Get loads a single character by identifier.
func (store *GormStore) Get(ctx context.Context, id CharacterID) (Character, error) {
	var record Character
	if err := store.db.WithContext(ctx).Where("id = ?", id.Int64()).Take(&record).Error; err != nil {
		return Character{}, classifyStoreError(err)
	}
	return record, nil
}

// List returns every character ordered by identifier.
func (store *GormStore) List(ctx context.Context) ([]Character, error) {
	records := make([]Character, 0)
	if err := store.db.WithContext(ctx).Order("id ASC").Find(&records).Error; err != nil {
		return nil, classifyStoreError(err)
	}
	return records, nil
}

// Update replaces every mutable column of the stored character in a single statement.
func (store *GormStore) Update(ctx context.Context, character Character) (Character, error) {
	id, err := NewCharacterID(character.ID)
	if err != nil {
		return Character{}, err
	}
	result := store.db.WithContext(ctx).
		Model(&Character{}).
		Where("id = ?", id.Int64()).
		Select(updatableColumns).
		Updates(&character)
	if result.Error != nil {
		return Character{}, classifyStoreError(result.Error)
	}
	if result.RowsAffected == 0 {
		return Character{}, fmt.Errorf("%w: id %d", ErrNotFound, id.Int64())
	}
	return character, nil
}

// Delete removes the character permanently.
func (store *GormStore) Delete(ctx context.Context, id CharacterID) error {
	result := store.db.WithContext(ctx).Where("id = ?", id.Int64()).Delete(&Character{})
	if result.Error != nil {
		return classifyStoreError(result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id.Int64())
	}
	return nil
}

// Ping verifies that the underlying database is reachable.
func (store *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := store.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func classifyStoreError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
}
