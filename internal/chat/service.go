package chat

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/gadgetchat/internal/common"
	"gorm.io/gorm"
)

var (
	ErrNotFound     = errors.New("chat: request not found")
	ErrForbidden    = errors.New("chat: admin role required")
	ErrChatDisabled = errors.New("chat: chat is disabled for this request")
	ErrEmptyMessage = errors.New("chat: message must not be empty")
	ErrTooLong      = errors.New("chat: message too long")
	ErrEmptyTitle   = errors.New("chat: title must not be empty")
)

const MaxMessageRunes = 4000

// Notifier hands a queued notification to the delivery worker.
type Notifier interface {
	PublishNotification(ctx context.Context, notificationID string) error
}

type Service struct {
	repo         *Repo
	broker       Broker
	notifier     Notifier
	historyLimit int
	log          zerolog.Logger
}

// NewService wires the chat domain. notifier may be nil, in which case no
// notifications are recorded.
func NewService(repo *Repo, broker Broker, notifier Notifier, historyLimit int) *Service {
	if historyLimit <= 0 || historyLimit > 1000 {
		historyLimit = 200
	}
	return &Service{
		repo:         repo,
		broker:       broker,
		notifier:     notifier,
		historyLimit: historyLimit,
		log:          log.Logger.With().Str("component", "chat").Logger(),
	}
}

func (s *Service) CreateRequest(ctx context.Context, caller Caller, title string) (*Request, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	req := &Request{
		ID:          id,
		OwnerID:     caller.UserID,
		Title:       title,
		ChatEnabled: true,
	}
	if err := s.repo.CreateRequest(ctx, req); err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	return req, nil
}

// request loads a request the caller may see. Foreign requests look missing.
func (s *Service) request(ctx context.Context, caller Caller, requestID string) (*Request, error) {
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !caller.Role.Privileged() && req.OwnerID != caller.UserID {
		return nil, ErrNotFound
	}
	return req, nil
}

func (s *Service) chatRequest(ctx context.Context, caller Caller, requestID string) (*Request, error) {
	req, err := s.request(ctx, caller, requestID)
	if err != nil {
		return nil, err
	}
	if !req.ChatEnabled {
		return nil, ErrChatDisabled
	}
	return req, nil
}

func (s *Service) GetRequest(ctx context.Context, caller Caller, requestID string) (*Request, error) {
	return s.request(ctx, caller, requestID)
}

func (s *Service) ListMessages(ctx context.Context, caller Caller, requestID string) ([]Message, error) {
	if _, err := s.chatRequest(ctx, caller, requestID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, requestID, s.historyLimit)
}

func (s *Service) SendMessage(ctx context.Context, caller Caller, requestID string, text string) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxMessageRunes {
		return nil, ErrTooLong
	}

	req, err := s.chatRequest(ctx, caller, requestID)
	if err != nil {
		return nil, err
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	msg := &Message{
		ID:         id,
		RequestID:  requestID,
		SenderID:   caller.UserID,
		SenderRole: caller.Role,
		Body:       text,
		Delivered:  true,
	}
	if err := s.repo.InsertMessage(ctx, msg); err != nil {
		return nil, errors.Wrap(err, "insert message")
	}

	// the message is stored; live delivery and notification are best effort
	if err := s.broker.Publish(ctx, requestID, StreamEvent{Type: EventMessage, Message: msg}); err != nil {
		s.log.Warn().Err(err).Str("request_id", requestID).Str("message_id", msg.ID).Msg("publish message")
	}
	s.notify(ctx, req, msg)

	return msg, nil
}

func (s *Service) notify(ctx context.Context, req *Request, msg *Message) {
	if s.notifier == nil {
		return
	}
	recipient := AdminInbox
	if msg.SenderRole.Privileged() {
		recipient = req.OwnerID
	}
	if recipient == msg.SenderID {
		return
	}

	id, err := common.NewULID()
	if err != nil {
		s.log.Warn().Err(err).Msg("notification id")
		return
	}
	n := &Notification{
		ID:        id,
		MessageID: msg.ID,
		RequestID: req.ID,
		Recipient: recipient,
		Status:    NotificationQueued,
	}
	if err := s.repo.CreateNotification(ctx, n); err != nil {
		s.log.Warn().Err(err).Str("message_id", msg.ID).Msg("create notification")
		return
	}
	if err := s.notifier.PublishNotification(ctx, n.ID); err != nil {
		s.log.Warn().Err(err).Str("notification_id", n.ID).Msg("enqueue notification")
		_ = s.repo.MarkNotificationFailed(context.Background(), n.ID, "enqueue failed: "+err.Error())
	}
}

// SetChatEnabled toggles chat for a request. Disabling ends every live stream of it.
func (s *Service) SetChatEnabled(ctx context.Context, caller Caller, requestID string, enabled bool) (*Request, error) {
	if !caller.Role.Privileged() {
		return nil, ErrForbidden
	}
	if err := s.repo.SetChatEnabled(ctx, requestID, enabled); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !enabled {
		if err := s.broker.CloseConversation(ctx, requestID); err != nil {
			s.log.Warn().Err(err).Str("request_id", requestID).Msg("close live streams")
		}
	}
	s.log.Info().Str("request_id", requestID).Bool("enabled", enabled).Str("by", caller.UserID).Msg("chat toggled")
	return s.repo.GetRequest(ctx, requestID)
}

// Subscribe opens a live subscription and returns it with the current history.
// The subscription starts before history is read so nothing falls in between;
// a message may show up in both, readers dedupe on id.
func (s *Service) Subscribe(ctx context.Context, caller Caller, requestID string) (Subscription, []Message, error) {
	if _, err := s.chatRequest(ctx, caller, requestID); err != nil {
		return nil, nil, err
	}
	sub, err := s.broker.Subscribe(ctx, requestID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "subscribe")
	}

	// chat may have been disabled between the check and the subscription
	if _, err := s.chatRequest(ctx, caller, requestID); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}
	history, err := s.repo.ListMessages(ctx, requestID, s.historyLimit)
	if err != nil {
		_ = sub.Close()
		return nil, nil, err
	}
	return sub, history, nil
}
