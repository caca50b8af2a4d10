package chatclient

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func msg(id, createdAt string) Message {
	return Message{ID: id, SenderID: "u1", SenderRole: RoleUser, Body: "hi " + id, CreatedAt: createdAt}
}

func ids(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

const (
	t0 = "2024-05-01T10:00:00Z"
	t1 = "2024-05-01T10:00:01Z"
	t2 = "2024-05-01T10:00:02.500Z"
	t3 = "2024-05-01T12:00:03+02:00" // 10:00:03Z
)

func TestMessageStore_InsertIfNewIsIdempotent(t *testing.T) {
	s := NewMessageStore()

	require.True(t, s.InsertIfNew(msg("1", t0)))
	once := s.Messages()

	require.False(t, s.InsertIfNew(msg("1", t0)))
	require.Equal(t, once, s.Messages())
	require.Equal(t, 1, s.Len())
}

func TestMessageStore_DuplicateWithDifferentContentKeepsFirst(t *testing.T) {
	s := NewMessageStore()
	first := msg("1", t0)
	second := msg("1", t2)
	second.Body = "edited"

	require.True(t, s.InsertIfNew(first))
	require.False(t, s.InsertIfNew(second))
	require.Equal(t, "hi 1", s.Messages()[0].Body)
}

func TestMessageStore_TiesKeepArrivalOrder(t *testing.T) {
	s := NewMessageStore()
	s.InsertIfNew(msg("x", t1))
	s.InsertIfNew(msg("b", t0))
	s.InsertIfNew(msg("a", t0))
	s.InsertIfNew(msg("c", t0))

	require.Equal(t, []string{"b", "a", "c", "x"}, ids(s.Messages()))
}

func TestMessageStore_OrderIsIndependentOfInterleaving(t *testing.T) {
	all := []Message{msg("1", t0), msg("2", t1), msg("3", t2), msg("4", t3)}
	orders := [][]int{
		{0, 1, 2, 3},
		{3, 2, 1, 0},
		{2, 0, 3, 1, 0, 2},
		{1, 3, 1, 0, 2, 3},
	}
	for _, order := range orders {
		s := NewMessageStore()
		for _, i := range order {
			s.InsertIfNew(all[i])
		}
		require.Equal(t, []string{"1", "2", "3", "4"}, ids(s.Messages()), "order %v", order)
	}
}

func TestMessageStore_TimezoneOffsetsCompareByInstant(t *testing.T) {
	s := NewMessageStore()
	s.InsertIfNew(msg("late", t3))
	s.InsertIfNew(msg("early", t2))
	require.Equal(t, []string{"early", "late"}, ids(s.Messages()))
}

func TestMessageStore_TimestampsWithoutOffsetAreUTC(t *testing.T) {
	s := NewMessageStore()
	s.InsertIfNew(msg("noon", "2024-05-01T12:00:00"))
	s.InsertIfNew(msg("nine", "2024-05-01T09:00:00"))
	s.InsertIfNew(msg("ten-z", "2024-05-01T10:00:00Z"))
	s.InsertIfNew(msg("eleven", "2024-05-01 11:00:00.250"))

	require.Equal(t, []string{"nine", "ten-z", "eleven", "noon"}, ids(s.Messages()))
}

func TestMessageStore_UnparsableTimestampSortsFirst(t *testing.T) {
	s := NewMessageStore()
	s.InsertIfNew(msg("a", t0))
	s.InsertIfNew(msg("junk", "yesterday"))
	require.Equal(t, []string{"junk", "a"}, ids(s.Messages()))
}

func TestMessageStore_RejectsMessageWithoutID(t *testing.T) {
	s := NewMessageStore()
	require.False(t, s.InsertIfNew(msg("", t0)))
	require.Equal(t, 0, s.Len())
}

func TestMessageStore_Reset(t *testing.T) {
	s := NewMessageStore()
	s.InsertAll([]Message{msg("1", t0), msg("2", t1)})
	s.Reset()

	require.Equal(t, 0, s.Len())
	require.False(t, s.Has("1"))
	require.True(t, s.InsertIfNew(msg("1", t0)))
}

func TestMessageStore_UpdateLocal(t *testing.T) {
	s := NewMessageStore()
	s.InsertAll([]Message{msg("1", t0), msg("2", t1)})

	require.True(t, s.UpdateLocal("1", Patch{Delivered: Bool(true)}))
	require.True(t, s.UpdateLocal("1", Patch{Read: Bool(true)}))
	require.False(t, s.UpdateLocal("missing", Patch{Read: Bool(true)}))

	got := s.Messages()
	require.Equal(t, []string{"1", "2"}, ids(got))
	require.NotNil(t, got[0].Delivered)
	require.True(t, *got[0].Delivered)
	require.True(t, *got[0].Read)
	require.Nil(t, got[1].Read)
}

func TestMessageStore_MessagesReturnsCopies(t *testing.T) {
	s := NewMessageStore()
	m := msg("1", t0)
	m.Meta = map[string]any{"k": "v"}
	m.Read = Bool(false)
	s.InsertIfNew(m)

	got := s.Messages()
	got[0].Meta["k"] = "changed"
	*got[0].Read = true

	again := s.Messages()
	require.Equal(t, "v", again[0].Meta["k"])
	require.False(t, *again[0].Read)
}
