package chat

import (
	"context"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// AutoMigrate creates the chat tables.
func (r *Repo) AutoMigrate() error {
	return r.db.AutoMigrate(&Request{}, &Message{}, &Notification{})
}

func (r *Repo) CreateRequest(ctx context.Context, req *Request) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *Repo) GetRequest(ctx context.Context, id string) (*Request, error) {
	var req Request
	if err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *Repo) SetChatEnabled(ctx context.Context, id string, enabled bool) error {
	res := r.db.WithContext(ctx).Model(&Request{}).
		Where("id = ?", id).
		Update("chat_enabled", enabled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListMessages returns the newest limit messages of a request in ASC order (oldest -> newest).
func (r *Repo) ListMessages(ctx context.Context, requestID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 200
	}
	var desc []Message
	if err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&desc).Error; err != nil {
		return nil, err
	}

	// reverse to ASC
	msgs := make([]Message, 0, len(desc))
	for i := len(desc) - 1; i >= 0; i-- {
		msgs = append(msgs, desc[i])
	}
	return msgs, nil
}

// Notification CRUD
func (r *Repo) CreateNotification(ctx context.Context, n *Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *Repo) GetNotification(ctx context.Context, id string) (*Notification, error) {
	var n Notification
	if err := r.db.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *Repo) MarkNotificationSent(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ? AND status = ?", id, NotificationQueued).
		Updates(map[string]any{
			"status": NotificationSent,
			"error":  nil,
		}).Error
}

func (r *Repo) MarkNotificationFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status": NotificationFailed,
			"error":  errMsg,
		}).Error
}
