package notify

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Operation enumerates catalog changes that produce notifications.
type Operation string

const (
	// OperationCreated announces a newly stored character.
	OperationCreated Operation = "created"
	// OperationUpdated announces a replaced character.
	OperationUpdated Operation = "updated"
	// OperationDeleted announces a removed character.
	OperationDeleted Operation = "deleted"
)

// ErrUnknownOperation indicates that a message was requested for an unsupported operation.
var ErrUnknownOperation = errors.New("notify: unknown operation")

// Message is the queue payload describing a single catalog change.
type Message struct {
	ID                string    `json:"id"`
	Data              string    `json:"data"`
	Operation         Operation `json:"operation,omitempty"`
	CharacterID       int64     `json:"characterId,omitempty"`
	OccurredAtSeconds int64     `json:"occurredAtS,omitempty"`
}

// IDProvider issues message identifiers.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// MessageFactoryConfig describes the dependencies of a MessageFactory.
type MessageFactoryConfig struct {
	IDProvider IDProvider
	Clock      func() time.Time
}

// MessageFactory builds change messages with identifiers and timestamps.
type MessageFactory struct {
	idProvider IDProvider
	clock      func() time.Time
}

// NewMessageFactory applies defaults and returns a MessageFactory.
func NewMessageFactory(cfg MessageFactoryConfig) *MessageFactory {
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &MessageFactory{idProvider: idProvider, clock: clock}
}

// New returns the message announcing the operation on the character.
func (factory *MessageFactory) New(operation Operation, characterID int64) (Message, error) {
	data, err := describe(operation, characterID)
	if err != nil {
		return Message{}, err
	}
	id, err := factory.idProvider.NewID()
	if err != nil {
		return Message{}, fmt.Errorf("notify: message id: %w", err)
	}
	return Message{
		ID:                id,
		Data:              data,
		Operation:         operation,
		CharacterID:       characterID,
		OccurredAtSeconds: factory.clock().UTC().Unix(),
	}, nil
}

func describe(operation Operation, characterID int64) (string, error) {
	switch operation {
	case OperationCreated:
		return fmt.Sprintf("New character %d created.", characterID), nil
	case OperationUpdated:
		return fmt.Sprintf("Character %d updated.", characterID), nil
	case OperationDeleted:
		return fmt.Sprintf("Character %d deleted.", characterID), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, operation)
	}
}
