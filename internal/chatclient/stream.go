package chatclient

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// StreamConnection owns the single live subscription of a session and its state machine.
//
//	connecting -> open -> {chat-disabled | closed}
//
// chat-disabled, closed and error are only left through an explicit Open, which the
// session performs after a successful reconnect probe.
type StreamConnection struct {
	api        API
	store      *MessageStore
	log        zerolog.Logger
	status     *statusEmitter
	transcript *transcriptEmitter

	mu    sync.Mutex
	state Status
	gen   uint64
	sub   *subscription
}

// subscription is one attempt at a live stream. stream is nil until the server accepts it.
type subscription struct {
	gen            uint64
	conversationID string
	cancel         context.CancelFunc
	stream         EventStream
}

func newStreamConnection(api API, store *MessageStore, log zerolog.Logger, status *statusEmitter, transcript *transcriptEmitter) *StreamConnection {
	return &StreamConnection{
		api:        api,
		store:      store,
		log:        log,
		status:     status,
		transcript: transcript,
		state:      StatusClosed,
	}
}

func (c *StreamConnection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open replaces any current subscription with a fresh one for conversationID.
func (c *StreamConnection) Open(ctx context.Context, conversationID string) {
	c.open(ctx, conversationID)
	c.status.flush()
}

// Close ends the subscription on request of the user and moves to closed.
func (c *StreamConnection) Close() {
	c.settle(StatusClosed)
	c.status.flush()
}

func (c *StreamConnection) open(ctx context.Context, conversationID string) {
	c.mu.Lock()
	stop := c.detachLocked()
	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{gen: c.gen, conversationID: conversationID, cancel: cancel}
	c.sub = sub
	c.setLocked(StatusConnecting)
	c.mu.Unlock()

	stop()
	go c.run(subCtx, sub)
}

// settle tears down the subscription, if any, and parks the machine in a terminal state.
func (c *StreamConnection) settle(to Status) {
	c.mu.Lock()
	stop := c.detachLocked()
	c.setLocked(to)
	c.mu.Unlock()
	stop()
}

// detachLocked invalidates the current subscription. Readers of older generations
// see the mismatch under c.mu and stop touching the store.
func (c *StreamConnection) detachLocked() func() {
	c.gen++
	sub := c.sub
	c.sub = nil
	if sub == nil {
		return func() {}
	}
	stream := sub.stream
	return func() {
		sub.cancel()
		if stream != nil {
			_ = stream.Close()
		}
	}
}

func (c *StreamConnection) setLocked(to Status) {
	if c.state == to {
		return
	}
	c.log.Debug().
		Str("from", string(c.state)).
		Str("to", string(to)).
		Msg("stream status")
	c.state = to
	c.status.push(to)
}

func (c *StreamConnection) run(ctx context.Context, sub *subscription) {
	log := c.log.With().Str("conversation_id", sub.conversationID).Uint64("subscription", sub.gen).Logger()

	stream, err := c.api.OpenStream(ctx, sub.conversationID)
	if err != nil {
		c.fail(sub, errors.Wrap(err, "open stream"))
		return
	}

	c.mu.Lock()
	if c.gen != sub.gen {
		c.mu.Unlock()
		_ = stream.Close()
		return
	}
	sub.stream = stream
	c.setLocked(StatusOpen)
	c.mu.Unlock()
	c.status.flush()
	log.Info().Msg("stream open")

	for {
		ev, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = errors.Wrap(err, "stream ended by server")
			}
			c.fail(sub, err)
			return
		}
		if ev.Name == "ping" || len(ev.Data) == 0 {
			continue
		}

		p, err := ParsePayload(ev.Data)
		if err != nil {
			log.Warn().Err(err).Str("event", ev.Name).Int("bytes", len(ev.Data)).Msg("dropping stream event")
			continue
		}

		c.mu.Lock()
		if c.gen != sub.gen {
			c.mu.Unlock()
			return
		}
		n := c.store.InsertAll(p.Messages)
		c.mu.Unlock()

		log.Debug().Str("kind", p.Kind.String()).Int("received", len(p.Messages)).Int("inserted", n).Msg("stream event")
		if n > 0 {
			c.transcript.mark()
			c.transcript.flush()
		}
	}
}

// fail handles an error from a subscription that was not closed on purpose.
// The server ends the stream deliberately when chat is disabled, so there is no retry.
func (c *StreamConnection) fail(sub *subscription, err error) {
	c.mu.Lock()
	if c.gen != sub.gen {
		c.mu.Unlock()
		return
	}
	stop := c.detachLocked()
	c.setLocked(StatusChatDisabled)
	c.mu.Unlock()
	stop()

	c.log.Warn().Err(err).Str("conversation_id", sub.conversationID).Msg("stream lost, chat disabled until reconnect")
	c.status.flush()
}
