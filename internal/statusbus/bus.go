// internal/statusbus/bus.go

// Package statusbus is the one-way channel between operation workers and the
// goroutine that owns the terminal. Workers post; only the render loop
// receives. Nothing else may write UI state.
package statusbus

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind tags what an event carries.
type Kind string

const (
	// KindLog is a human-readable progress line.
	KindLog Kind = "log"
	// KindStatus is a state change of an operation.
	KindStatus Kind = "status"
	// KindDeviceCode carries the code the user must enter at the Microsoft
	// verification URL during the device-code flow.
	KindDeviceCode Kind = "device_code"
	// KindResult is an operation's final outcome.
	KindResult Kind = "result"
)

// Event is the envelope workers send to the UI.
type Event struct {
	ID        uuid.UUID
	Timestamp time.Time
	Kind      Kind
	// Operation identifies the worker that posted the event.
	Operation string
	Message   string
	// Payload holds kind-specific data, e.g. a DownloadResult for KindResult.
	Payload interface{}
}

// Bus is a buffered FIFO with a single consumer. Post is fire-and-forget:
// it only blocks when the buffer is full, and never after Close.
type Bus struct {
	logger *zap.Logger
	ch     chan Event

	activePosts sync.WaitGroup
	closeOnce   sync.Once
	closedChan  chan struct{}
	closedMu    sync.Mutex
	closed      bool
}

// New creates a bus with the given buffer size.
func New(logger *zap.Logger, bufferSize int) *Bus {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Bus{
		logger:     logger.Named("status_bus"),
		ch:         make(chan Event, bufferSize),
		closedChan: make(chan struct{}),
	}
}

// Post queues an event for the UI. Posting to a closed bus drops the event;
// a worker racing shutdown should not panic over a lost status line.
func (b *Bus) Post(kind Kind, operation, message string, payload interface{}) {
	b.closedMu.Lock()
	if b.closed {
		b.closedMu.Unlock()
		b.logger.Debug("Dropped event posted after close",
			zap.String("kind", string(kind)), zap.String("operation", operation))
		return
	}
	b.activePosts.Add(1)
	b.closedMu.Unlock()
	defer b.activePosts.Done()

	ev := Event{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Operation: operation,
		Message:   message,
		Payload:   payload,
	}

	select {
	case b.ch <- ev:
	case <-b.closedChan:
		b.logger.Debug("Dropped event during shutdown", zap.String("kind", string(kind)))
	}
}

// Events returns the consumer side. The channel closes after Close, once
// every in-flight Post has landed, so a plain range drains everything.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Close stops accepting new events and closes the event channel. Buffered
// events remain readable; the consumer drains them by ranging to the close.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.closedMu.Lock()
		b.closed = true
		b.closedMu.Unlock()

		close(b.closedChan)
		// Let racing Posts finish their send or bail before the channel closes.
		b.activePosts.Wait()
		close(b.ch)
	})
}
