package bus

import (
	"log/slog"
	"sync"
	"time"

	"mirrorbot/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based hand-off point between the gateway
// listener and the dispatch loop. Publish never runs dispatch work inline:
// the listener enqueues and returns, the dispatch loop drains.
type InMemoryBus struct {
	inbound chan domain.InboundMessage
	mu      sync.RWMutex
	closed  bool
	logger  *slog.Logger
}

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound: make(chan domain.InboundMessage, bufferSize),
		logger:  logger,
	}
}

// Publish enqueues a message for the dispatch loop. Blocks up to 10 seconds
// if the bus is full instead of dropping immediately.
func (b *InMemoryBus) Publish(msg domain.InboundMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus")
		return
	}

	select {
	case b.inbound <- msg:
	default:
		b.logger.Warn("inbound bus full, waiting...",
			"channel_id", msg.ChannelID,
			"author_id", msg.Author.ID,
		)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.inbound <- msg:
			b.logger.Info("message enqueued after wait", "channel_id", msg.ChannelID)
		case <-timer.C:
			b.logger.Error("message dropped: bus full for 10s",
				"channel_id", msg.ChannelID,
				"author_id", msg.Author.ID,
			)
		}
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.InboundMessage {
	return b.inbound
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
