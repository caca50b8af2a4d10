package redisstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/gadgetchat/internal/chat"
)

const channelPrefix = "chat:request:"

func channel(requestID string) string {
	return channelPrefix + requestID
}

// Broker fans chat events out over redis pub/sub so every server instance sees them.
type Broker struct {
	rdb    *redis.Client
	buffer int
	log    zerolog.Logger
}

var _ chat.Broker = (*Broker)(nil)

func NewBroker(s *Store) *Broker {
	return &Broker{
		rdb:    s.rdb,
		buffer: 64,
		log:    log.Logger.With().Str("component", "redis-broker").Logger(),
	}
}

func (b *Broker) Publish(ctx context.Context, requestID string, ev chat.StreamEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal stream event")
	}
	return b.rdb.Publish(ctx, channel(requestID), payload).Err()
}

func (b *Broker) CloseConversation(ctx context.Context, requestID string) error {
	return b.Publish(ctx, requestID, chat.StreamEvent{Type: chat.EventClosed})
}

func (b *Broker) Subscribe(ctx context.Context, requestID string) (chat.Subscription, error) {
	ps := b.rdb.Subscribe(ctx, channel(requestID))
	// wait for the confirmation so no publish after return is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, errors.Wrap(err, "redis subscribe")
	}

	sub := &subscription{
		ps:   ps,
		out:  make(chan chat.StreamEvent, b.buffer),
		done: make(chan struct{}),
	}
	go sub.pump(b.log.With().Str("request_id", requestID).Logger())
	return sub, nil
}

type subscription struct {
	ps   *redis.PubSub
	out  chan chat.StreamEvent
	done chan struct{}
	once sync.Once
}

func (s *subscription) Events() <-chan chat.StreamEvent { return s.out }

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

func (s *subscription) pump(l zerolog.Logger) {
	defer close(s.out)
	defer s.Close()

	in := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			var ev chat.StreamEvent
			if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
				l.Warn().Err(err).Msg("dropping malformed stream event")
				continue
			}
			if ev.Type == chat.EventClosed {
				return
			}
			select {
			case s.out <- ev:
			case <-s.done:
				return
			}
		}
	}
}
