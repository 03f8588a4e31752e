package characters

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidInput indicates that a required character field is empty or exceeds storage bounds.
	ErrInvalidInput = errors.New("characters: invalid input")
	// ErrInvalidID indicates that a character identifier is not a positive integer.
	ErrInvalidID = errors.New("characters: invalid character id")
	// ErrNotFound indicates that no character exists for the requested identifier.
	ErrNotFound = errors.New("characters: not found")
	// ErrStorageUnavailable indicates that the record store could not be reached.
	ErrStorageUnavailable = errors.New("characters: storage unavailable")
)

// CharacterID represents a validated, store-assigned character identifier.
type CharacterID int64

// NewCharacterID validates the value and returns a CharacterID.
func NewCharacterID(value int64) (CharacterID, error) {
	if value <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidID, value)
	}
	return CharacterID(value), nil
}

// ParseCharacterID validates raw path input and returns a CharacterID.
func ParseCharacterID(rawInput string) (CharacterID, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(rawInput), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, rawInput)
	}
	return NewCharacterID(value)
}

// Int64 exposes the raw identifier value.
func (id CharacterID) Int64() int64 {
	return int64(id)
}

// Character models the persisted catalog entry.
type Character struct {
	ID             int64   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name           string  `gorm:"column:name;not null" json:"name"`
	Race           string  `gorm:"column:race;not null" json:"race"`
	Planet         string  `gorm:"column:planet;not null" json:"planet"`
	Transformation string  `gorm:"column:transformation;not null" json:"transformation"`
	Technique      string  `gorm:"column:technique;not null" json:"technique"`
	ImageURL       *string `gorm:"column:image_url;type:text" json:"imageUrl,omitempty"`
}

// TableName provides the explicit table binding for GORM.
func (Character) TableName() string {
	return "characters"
}

// WithInput returns a copy of the character carrying every mutable field from the input.
// The identifier is never replaced.
func (c Character) WithInput(input Input, imageURL *string) Character {
	updated := c
	updated.Name = input.Name
	updated.Race = input.Race
	updated.Planet = input.Planet
	updated.Transformation = input.Transformation
	updated.Technique = input.Technique
	updated.ImageURL = cloneString(imageURL)
	return updated
}

// Input carries caller-supplied character fields for create and update.
type Input struct {
	Name           string
	Race           string
	Planet         string
	Transformation string
	Technique      string
	ImageURL       *string
}

// Normalized returns the input with a blank image URL treated as absent.
// Text fields are kept exactly as submitted.
func (input Input) Normalized() Input {
	normalized := input
	normalized.ImageURL = nil
	if input.ImageURL != nil && strings.TrimSpace(*input.ImageURL) != "" {
		normalized.ImageURL = cloneString(input.ImageURL)
	}
	return normalized
}

// Validate reports every required field that is empty or whitespace only.
func (input Input) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{name: "name", value: input.Name},
		{name: "race", value: input.Race},
		{name: "planet", value: input.Planet},
		{name: "transformation", value: input.Transformation},
		{name: "technique", value: input.Technique},
	}

	var problems []string
	for _, field := range fields {
		if strings.TrimSpace(field.value) == "" {
			problems = append(problems, field.name+" is required")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, ", "))
	}
	return nil
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
