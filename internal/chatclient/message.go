package chatclient

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Privileged reports whether the role belongs to the admin side of the conversation.
// It only drives presentation.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Message is one chat utterance as seen by the client.
// Delivered and Read are client-local annotations; the server is not told about them.
type Message struct {
	ID         string         `json:"id"`
	SenderID   string         `json:"senderId"`
	SenderRole Role           `json:"senderRole"`
	Body       string         `json:"body"`
	Delivered  *bool          `json:"delivered,omitempty"`
	Read       *bool          `json:"read,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
	CreatedAt  string         `json:"createdAt"`
	UpdatedAt  string         `json:"updatedAt,omitempty"`
}

// Mine reports whether the message was authored by userID.
func (m Message) Mine(userID string) bool {
	return userID != "" && m.SenderID == userID
}

// createdLayouts are the ISO-8601 forms accepted for CreatedAt. Layouts without an
// offset are read as UTC.
var createdLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// createdTime parses CreatedAt. Unparsable values yield the zero time.
func (m Message) createdTime() (time.Time, bool) {
	s := strings.TrimSpace(m.CreatedAt)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range createdLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Patch is a partial update of the local flags of a message.
type Patch struct {
	Delivered *bool
	Read      *bool
}

func (p Patch) apply(m *Message) {
	if p.Delivered != nil {
		v := *p.Delivered
		m.Delivered = &v
	}
	if p.Read != nil {
		v := *p.Read
		m.Read = &v
	}
}

// Bool returns a pointer to v, handy for building a Patch.
func Bool(v bool) *bool { return &v }

type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusOpen         Status = "open"
	StatusClosed       Status = "closed"
	StatusError        Status = "error"
	StatusChatDisabled Status = "chat-disabled"
)

// Terminal reports whether the status only leaves via an explicit reconnect.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusError || s == StatusChatDisabled
}
