package chat

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Caller is the authenticated party of a request.
type Caller struct {
	UserID string
	Role   Role
}

// Request is a gadget-sourcing request; its id scopes one chat.
type Request struct {
	ID          string    `gorm:"primaryKey;size:26" json:"id"` // ULID length
	OwnerID     string    `gorm:"size:64;index;not null" json:"ownerId"`
	Title       string    `gorm:"type:varchar(255);not null" json:"title"`
	ChatEnabled bool      `gorm:"not null" json:"chatEnabled"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (Request) TableName() string { return "gadget_requests" }

// Meta is an opaque key/value bag stored as JSON text.
type Meta map[string]any

func (m Meta) Value() (driver.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *Meta) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return errors.Errorf("chat: cannot scan %T into Meta", src)
	}
	if len(b) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(b, m)
}

type Message struct {
	ID         string    `gorm:"primaryKey;size:26" json:"id"`
	RequestID  string    `gorm:"size:26;not null;index:idx_chat_msg_request_created,priority:1" json:"requestId"`
	SenderID   string    `gorm:"size:64;not null" json:"senderId"`
	SenderRole Role      `gorm:"type:varchar(16);not null" json:"senderRole"`
	Body       string    `gorm:"type:text;not null" json:"body"`
	Delivered  bool      `gorm:"not null;default:false" json:"delivered"`
	Read       bool      `gorm:"not null;default:false" json:"read"`
	Meta       Meta      `gorm:"type:text" json:"meta,omitempty"`
	CreatedAt  time.Time `gorm:"index:idx_chat_msg_request_created,priority:2" json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (Message) TableName() string { return "chat_messages" }

type NotificationStatus string

const (
	NotificationQueued NotificationStatus = "queued"
	NotificationSent   NotificationStatus = "sent"
	NotificationFailed NotificationStatus = "failed"
)

// Notification tells the other side of a chat that a message arrived.
type Notification struct {
	ID string `gorm:"primaryKey;size:26"` // ULID length

	MessageID string `gorm:"size:26;index;not null"`
	RequestID string `gorm:"size:26;index;not null"`
	// Recipient is an owner id, or "admins" for the admin inbox.
	Recipient string `gorm:"size:64;not null"`

	Status NotificationStatus `gorm:"type:varchar(16);index;not null"`

	// Filled when failed
	Error *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Notification) TableName() string { return "chat_notifications" }

// AdminInbox is the recipient of notifications for messages written by request owners.
const AdminInbox = "admins"
