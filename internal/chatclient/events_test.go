package chatclient

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		kind     PayloadKind
		ids      []string
		rejected bool
	}{
		{
			name: "history envelope",
			data: `{"event":"history","messages":[{"id":"1","body":"a","createdAt":"` + t0 + `"},{"id":"2","body":"b","createdAt":"` + t1 + `"}]}`,
			kind: PayloadBatch,
			ids:  []string{"1", "2"},
		},
		{
			name: "history envelope with legacy data field",
			data: `{"event":"history","data":[{"id":"7","body":"a"}]}`,
			kind: PayloadBatch,
			ids:  []string{"7"},
		},
		{
			name: "empty history",
			data: `{"event":"history","messages":[]}`,
			kind: PayloadBatch,
			ids:  []string{},
		},
		{
			name: "message envelope",
			data: `{"event":"message","message":{"id":"3","senderRole":"admin","body":"hello"}}`,
			kind: PayloadMessage,
			ids:  []string{"3"},
		},
		{
			name: "message envelope with legacy data field",
			data: `{"event":"message","data":{"id":"4","body":"hello"}}`,
			kind: PayloadMessage,
			ids:  []string{"4"},
		},
		{
			name: "bare message",
			data: `{"id":"5","senderId":"u2","body":"plain","meta":{"k":1}}`,
			kind: PayloadMessage,
			ids:  []string{"5"},
		},
		{name: "heartbeat", data: `{"type":"ping","ts":1}`, rejected: true},
		{name: "unknown event", data: `{"event":"typing","user":"u1"}`, rejected: true},
		{name: "message without id", data: `{"event":"message","message":{"body":"x"}}`, rejected: true},
		{name: "history without messages", data: `{"event":"history"}`, rejected: true},
		{name: "array", data: `[1,2,3]`, rejected: true},
		{name: "plain text", data: `hello`, rejected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePayload([]byte(tt.data))
			if tt.rejected {
				require.Error(t, err)
				require.True(t, errors.Is(err, ErrUnrecognizedPayload), "got %v", err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.kind, p.Kind)
			require.Equal(t, tt.ids, ids(p.Messages))
		})
	}
}

func TestParsePayload_MalformedJSON(t *testing.T) {
	_, err := ParsePayload([]byte(`{"event":"message","message":`))
	require.Error(t, err)
}

func TestParsePayload_KeepsMetaUntouched(t *testing.T) {
	p, err := ParsePayload([]byte(`{"event":"message","message":{"id":"1","meta":{"sku":"ABC-1","qty":2}}}`))
	require.NoError(t, err)
	require.Equal(t, map[string]any{"sku": "ABC-1", "qty": float64(2)}, p.Messages[0].Meta)
}
