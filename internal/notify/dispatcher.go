package notify

import (
	"context"
	"strings"
	"sync"
)

const defaultDispatcherBuffer = 16

// Dispatcher is an in-process Publisher that fans messages out to channel subscribers.
// Messages are dropped for subscribers whose buffer is full.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*dispatcherSubscriber
	nextID      int64
	bufferSize  int
}

type dispatcherSubscriber struct {
	id     int64
	stream chan Message
}

// NewDispatcher constructs an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: make(map[string]map[int64]*dispatcherSubscriber),
		bufferSize:  defaultDispatcherBuffer,
	}
}

// Subscribe registers a subscriber for the channel until ctx ends or the cleanup func runs.
func (d *Dispatcher) Subscribe(ctx context.Context, channel string) (<-chan Message, func()) {
	if strings.TrimSpace(channel) == "" {
		stream := make(chan Message)
		close(stream)
		return stream, func() {}
	}
	subscriber := &dispatcherSubscriber{
		id:     d.nextSequence(),
		stream: make(chan Message, d.bufferSize),
	}
	d.registerSubscriber(channel, subscriber)

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(channel, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers the message to every current subscriber of the channel.
func (d *Dispatcher) Publish(ctx context.Context, message Message, channel string) error {
	if strings.TrimSpace(channel) == "" {
		return ErrMissingChannel
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.RLock()
	subscribers := d.subscribers[channel]
	copies := make([]*dispatcherSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()

	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
	return nil
}

func (d *Dispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *Dispatcher) registerSubscriber(channel string, subscriber *dispatcherSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[channel]; !ok {
		d.subscribers[channel] = make(map[int64]*dispatcherSubscriber)
	}
	d.subscribers[channel][subscriber.id] = subscriber
}

func (d *Dispatcher) unregisterSubscriber(channel string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[channel]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, channel)
		}
	}
	d.mu.Unlock()
}
