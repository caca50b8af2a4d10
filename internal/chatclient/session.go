// Package chatclient keeps a request chat transcript in sync with the server.
//
// A Session merges a one-shot history fetch and a live event stream into one
// ordered, deduplicated transcript, and exposes the connection status so a UI can
// tell a lost stream from chat that an admin switched off.
package chatclient

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type Option func(*Session)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithStatusHandler registers fn for every status transition, in order.
func WithStatusHandler(fn func(Status)) Option {
	return func(s *Session) { s.status.fn = fn }
}

// WithTranscriptHandler registers fn to receive a transcript snapshot after changes.
func WithTranscriptHandler(fn func([]Message)) Option {
	return func(s *Session) { s.transcript.fn = fn }
}

// WithReconnectLimiter overrides the reconnect rate limit. nil disables throttling.
func WithReconnectLimiter(l *rate.Limiter) Option {
	return func(s *Session) { s.limiter = l }
}

// Session is the only component a UI talks to. It owns the transcript, the history
// fetch and the live subscription of the active conversation.
type Session struct {
	api        API
	log        zerolog.Logger
	limiter    *rate.Limiter
	store      *MessageStore
	status     *statusEmitter
	transcript *transcriptEmitter
	history    *HistoryFetcher
	probe      *ReconnectProbe
	conn       *StreamConnection

	mu             sync.Mutex
	gen            uint64
	conversationID string
	actx           context.Context
	cancel         context.CancelFunc
	historyDone    chan struct{}
	historyErr     error
}

func NewSession(api API, opts ...Option) *Session {
	s := &Session{
		api:        api,
		log:        log.Logger.With().Str("component", "chatclient").Logger(),
		limiter:    DefaultReconnectLimiter(),
		store:      NewMessageStore(),
		status:     &statusEmitter{},
		transcript: &transcriptEmitter{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.transcript.snapshot = s.store.Messages
	s.history = NewHistoryFetcher(api, s.log)
	s.probe = NewReconnectProbe(api, s.limiter, s.log)
	s.conn = newStreamConnection(api, s.store, s.log, s.status, s.transcript)
	return s
}

// Activate binds the session to conversationID. State of a previous conversation is
// torn down first: in-flight fetch canceled, stream closed, transcript cleared.
// History and stream then start concurrently. ctx bounds the whole activation.
func (s *Session) Activate(ctx context.Context, conversationID string) {
	conversationID = strings.TrimSpace(conversationID)

	s.mu.Lock()
	s.teardownLocked()
	if conversationID == "" {
		s.mu.Unlock()
		s.emit()
		return
	}
	actx, cancel := context.WithCancel(ctx)
	s.conversationID = conversationID
	s.actx = actx
	s.cancel = cancel
	gen := s.gen
	done := make(chan struct{})
	s.historyDone = done
	s.conn.open(actx, conversationID)
	s.mu.Unlock()

	s.log.Info().Str("conversation_id", conversationID).Msg("session activated")
	s.emit()
	go s.loadHistory(actx, gen, conversationID, done)
}

// teardownLocked releases everything bound to the current conversation.
func (s *Session) teardownLocked() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = nil
	s.actx = nil
	s.conversationID = ""
	s.historyDone = nil
	s.historyErr = nil
	s.conn.settle(StatusClosed)
	if s.store.Len() > 0 {
		s.store.Reset()
		s.transcript.mark()
	}
}

func (s *Session) loadHistory(ctx context.Context, gen uint64, conversationID string, done chan struct{}) {
	msgs, err := s.history.Fetch(ctx, conversationID)

	s.mu.Lock()
	if s.gen != gen {
		// stale activation, discard
		s.mu.Unlock()
		close(done)
		return
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.historyErr = err
		}
	} else if s.store.InsertAll(msgs) > 0 {
		s.transcript.mark()
	}
	s.mu.Unlock()
	close(done)
	s.emit()
}

// WaitHistory blocks until the history fetch of the current activation settles and
// returns its error, if any.
func (s *Session) WaitHistory(ctx context.Context) error {
	s.mu.Lock()
	done := s.historyDone
	s.mu.Unlock()
	if done == nil {
		return ErrNoConversation
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyDone != done {
		return nil
	}
	return s.historyErr
}

// Send posts text to the active conversation. Blank text is rejected with a
// *ValidationError. On success the server's message joins the transcript; on failure
// nothing is added and nothing is retried.
func (s *Session) Send(ctx context.Context, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, &ValidationError{Field: "text", Reason: "message must not be empty"}
	}

	s.mu.Lock()
	conversationID, gen := s.conversationID, s.gen
	s.mu.Unlock()
	if conversationID == "" {
		return Message{}, ErrNoConversation
	}

	m, err := s.api.Send(ctx, conversationID, text)
	if err != nil {
		s.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("send failed")
		return Message{}, errors.Wrap(err, "send message")
	}

	s.mu.Lock()
	if s.gen == gen && s.store.InsertIfNew(m) {
		s.transcript.mark()
	}
	s.mu.Unlock()
	s.emit()
	return m, nil
}

// Close ends the live subscription. The transcript stays available.
func (s *Session) Close() {
	s.mu.Lock()
	s.conn.settle(StatusClosed)
	s.mu.Unlock()
	s.emit()
}

// Reconnect probes the conversation over REST and reopens the stream only when the
// probe succeeds. A 403 parks the session in chat-disabled, other failures in error.
func (s *Session) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	conversationID, gen, actx := s.conversationID, s.gen, s.actx
	s.mu.Unlock()
	if conversationID == "" {
		return ErrNoConversation
	}
	// a stream opened on an ended activation would fail at once
	if actx.Err() != nil {
		return errors.Wrap(ErrNoConversation, "activation context ended")
	}

	res, err := s.probe.Check(ctx, conversationID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return nil
	}
	switch res.Verdict {
	case ProbeChatDisabled:
		s.conn.settle(StatusChatDisabled)
	case ProbeFailed:
		s.conn.settle(StatusError)
	case ProbeReady:
		if s.actx.Err() != nil {
			s.mu.Unlock()
			return errors.Wrap(ErrNoConversation, "activation context ended")
		}
		// only seed an empty transcript; a populated one is already consistent
		if s.store.Len() == 0 && s.store.InsertAll(res.Messages) > 0 {
			s.transcript.mark()
		}
		s.conn.open(s.actx, conversationID)
	}
	s.mu.Unlock()
	s.emit()

	if res.Verdict == ProbeReady {
		s.log.Info().Str("conversation_id", conversationID).Msg("reconnecting stream")
	}
	return res.Err
}

// UpdateLocal merges client-local flags into a message. Nothing is sent to the server.
func (s *Session) UpdateLocal(id string, p Patch) bool {
	if !s.store.UpdateLocal(id, p) {
		return false
	}
	s.transcript.mark()
	s.emit()
	return true
}

// Shutdown releases the session: fetch canceled, stream closed, transcript cleared.
func (s *Session) Shutdown() {
	s.mu.Lock()
	s.teardownLocked()
	s.mu.Unlock()
	s.emit()
}

func (s *Session) Messages() []Message {
	return s.store.Messages()
}

func (s *Session) Status() Status {
	return s.conn.Status()
}

func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

func (s *Session) emit() {
	s.status.flush()
	s.transcript.flush()
}
