package domain

// MessageBus hands inbound messages from the gateway listener's callback
// goroutine to the dispatch loop.
type MessageBus interface {
	Publish(msg InboundMessage)
	Subscribe() <-chan InboundMessage
	Close()
}
