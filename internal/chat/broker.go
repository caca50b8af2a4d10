package chat

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventMessage EventType = "message"
	// EventClosed ends every live stream of a request, e.g. when chat gets disabled.
	EventClosed EventType = "closed"
)

type StreamEvent struct {
	Type    EventType `json:"type"`
	Message *Message  `json:"message,omitempty"`
}

// Subscription receives the live events of one request. Events is closed when the
// subscription ends for any reason.
type Subscription interface {
	Events() <-chan StreamEvent
	Close() error
}

// Broker fans message events out to the live streams of a request.
type Broker interface {
	Publish(ctx context.Context, requestID string, ev StreamEvent) error
	Subscribe(ctx context.Context, requestID string) (Subscription, error)
	CloseConversation(ctx context.Context, requestID string) error
}

// MemoryBroker is an in-process Broker for a single server instance.
type MemoryBroker struct {
	buffer int

	mu   sync.Mutex
	subs map[string]map[*memorySub]struct{}
}

var _ Broker = (*MemoryBroker)(nil)

func NewMemoryBroker(buffer int) *MemoryBroker {
	if buffer <= 0 {
		buffer = 64
	}
	return &MemoryBroker{buffer: buffer, subs: make(map[string]map[*memorySub]struct{})}
}

type memorySub struct {
	b         *MemoryBroker
	requestID string
	ch        chan StreamEvent
}

func (s *memorySub) Events() <-chan StreamEvent { return s.ch }

func (s *memorySub) Close() error {
	s.b.mu.Lock()
	s.b.removeLocked(s)
	s.b.mu.Unlock()
	return nil
}

func (b *MemoryBroker) Subscribe(_ context.Context, requestID string) (Subscription, error) {
	sub := &memorySub{b: b, requestID: requestID, ch: make(chan StreamEvent, b.buffer)}
	b.mu.Lock()
	set, ok := b.subs[requestID]
	if !ok {
		set = make(map[*memorySub]struct{})
		b.subs[requestID] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()
	return sub, nil
}

// Publish never blocks; a subscriber whose buffer is full is dropped and its stream
// ends, the client recovers the gap from history.
func (b *MemoryBroker) Publish(_ context.Context, requestID string, ev StreamEvent) error {
	if ev.Type == EventClosed {
		return b.CloseConversation(context.Background(), requestID)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[requestID] {
		select {
		case sub.ch <- ev:
		default:
			log.Warn().Str("component", "broker").Str("request_id", requestID).Msg("subscriber too slow, dropping")
			b.removeLocked(sub)
		}
	}
	return nil
}

func (b *MemoryBroker) CloseConversation(_ context.Context, requestID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[requestID] {
		b.removeLocked(sub)
	}
	return nil
}

// Subscribers reports the number of live subscriptions for a request.
func (b *MemoryBroker) Subscribers(requestID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[requestID])
}

func (b *MemoryBroker) removeLocked(sub *memorySub) {
	set, ok := b.subs[sub.requestID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.ch)
	if len(set) == 0 {
		delete(b.subs, sub.requestID)
	}
}
