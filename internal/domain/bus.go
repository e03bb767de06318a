package domain

import (
	"context"
)

// EventBus carries console events to interested subscribers
// (the web layer streams them to open browser tabs).
// Supports Go channels or NATS.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, profile string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, profile string, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Profile   string            `json:"profile"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings
	ChannelBufferSize int

	// NATS settings
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Console event topics.
const (
	TopicSessionAuthenticated = "session.authenticated"
	TopicSessionLoggedOut     = "session.logged_out"
	TopicPredictionResolved   = "prediction.resolved"
	TopicPredictionFailed     = "prediction.failed"
	TopicHistoryRefreshed     = "history.refreshed"
)

// ConsoleTopics lists every topic the web layer relays to browsers.
func ConsoleTopics() []string {
	return []string{
		TopicSessionAuthenticated,
		TopicSessionLoggedOut,
		TopicPredictionResolved,
		TopicPredictionFailed,
		TopicHistoryRefreshed,
	}
}

// Event is the JSON payload published on console topics.
type Event struct {
	Topic   string `json:"topic"`
	Message string `json:"message,omitempty"`
}
