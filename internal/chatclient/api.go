package chatclient

import "context"

// API is the chat backend as the client consumes it.
type API interface {
	// History returns the existing transcript of a conversation. It must be safe to repeat.
	History(ctx context.Context, conversationID string) ([]Message, error)
	// Send posts text and returns the message as persisted by the server.
	Send(ctx context.Context, conversationID, text string) (Message, error)
	// OpenStream subscribes to live events. It returns once the subscription is ready.
	OpenStream(ctx context.Context, conversationID string) (EventStream, error)
}

// EventStream is one live subscription.
type EventStream interface {
	// Next blocks until the next event. It returns io.EOF when the server ends the stream.
	Next() (Event, error)
	Close() error
}

// Event is a single server-sent event.
type Event struct {
	Name string
	ID   string
	Data []byte
}
