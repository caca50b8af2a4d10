package chatclient

import (
	"sort"
	"sync"
	"time"
)

type storedMessage struct {
	msg Message
	at  time.Time
}

// MessageStore is the ordered, deduplicated transcript of one conversation.
// Entries are kept in non-decreasing CreatedAt order; equal timestamps keep arrival order.
type MessageStore struct {
	mu      sync.RWMutex
	entries []storedMessage
	ids     map[string]struct{}
}

func NewMessageStore() *MessageStore {
	return &MessageStore{ids: make(map[string]struct{})}
}

// InsertIfNew adds m unless a message with the same id is already known.
// It returns true when m was inserted.
func (s *MessageStore) InsertIfNew(m Message) bool {
	if m.ID == "" {
		return false
	}
	at, _ := m.createdTime()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[m.ID]; ok {
		return false
	}
	s.ids[m.ID] = struct{}{}

	// upper bound: first entry strictly after at, so ties stay in arrival order
	i := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].at.After(at)
	})
	s.entries = append(s.entries, storedMessage{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = storedMessage{msg: cloneMessage(m), at: at}
	return true
}

// InsertAll feeds every message through InsertIfNew and returns how many were new.
func (s *MessageStore) InsertAll(msgs []Message) int {
	n := 0
	for _, m := range msgs {
		if s.InsertIfNew(m) {
			n++
		}
	}
	return n
}

// Reset drops the transcript and the known ids.
func (s *MessageStore) Reset() {
	s.mu.Lock()
	s.entries = nil
	s.ids = make(map[string]struct{})
	s.mu.Unlock()
}

// UpdateLocal merges p into the message with the given id. Ordering is unchanged.
func (s *MessageStore) UpdateLocal(id string, p Patch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; !ok {
		return false
	}
	for i := range s.entries {
		if s.entries[i].msg.ID == id {
			p.apply(&s.entries[i].msg)
			return true
		}
	}
	return false
}

func (s *MessageStore) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Messages returns a copy of the transcript in display order.
func (s *MessageStore) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, cloneMessage(e.msg))
	}
	return out
}

func cloneMessage(m Message) Message {
	if m.Delivered != nil {
		v := *m.Delivered
		m.Delivered = &v
	}
	if m.Read != nil {
		v := *m.Read
		m.Read = &v
	}
	if m.Meta != nil {
		meta := make(map[string]any, len(m.Meta))
		for k, v := range m.Meta {
			meta[k] = v
		}
		m.Meta = meta
	}
	return m
}
