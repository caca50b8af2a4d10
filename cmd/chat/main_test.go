package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/gadgetchat/internal/auth"
	"github.com/suPer8Hu/gadgetchat/internal/chatclient"
	"github.com/suPer8Hu/gadgetchat/internal/config"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type idleStream struct {
	once sync.Once
	done chan struct{}
}

func (s *idleStream) Next() (chatclient.Event, error) {
	<-s.done
	return chatclient.Event{}, io.EOF
}

func (s *idleStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

type stubAPI struct {
	mu   sync.Mutex
	sent []string
}

func (a *stubAPI) History(ctx context.Context, id string) ([]chatclient.Message, error) {
	return []chatclient.Message{{
		ID:         "m1",
		SenderID:   "admin-1",
		SenderRole: chatclient.RoleAdmin,
		Body:       "hi there",
		CreatedAt:  "2024-05-01T10:00:00Z",
	}}, nil
}

func (a *stubAPI) Send(ctx context.Context, id, text string) (chatclient.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, text)
	return chatclient.Message{
		ID:         "m2",
		SenderID:   "u-1",
		SenderRole: chatclient.RoleUser,
		Body:       text,
		CreatedAt:  "2024-05-01T10:00:05Z",
	}, nil
}

func (a *stubAPI) OpenStream(ctx context.Context, id string) (chatclient.EventStream, error) {
	return &idleStream{done: make(chan struct{})}, nil
}

func TestTokenCmd(t *testing.T) {
	cmd := newRootCmd(config.Config{JWTSecret: "s", LogLevel: "error"})
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"token", "u-9", "--role", "admin"})
	require.NoError(t, cmd.Execute())

	claims, err := auth.ParseJWT(strings.TrimSpace(buf.String()), "s")
	require.NoError(t, err)
	require.Equal(t, "u-9", claims.Subject)
	require.Equal(t, "admin", claims.Role)

	cmd = newRootCmd(config.Config{JWTSecret: "s", LogLevel: "error"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"token", "u-9", "--role", "root"})
	require.Error(t, cmd.Execute())
}

func TestOpenCmd_RequiresToken(t *testing.T) {
	cmd := newRootCmd(config.Config{LogLevel: "error"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"open", "req-1"})
	require.Error(t, cmd.Execute())
}

func TestFormatMessage(t *testing.T) {
	m := chatclient.Message{SenderID: "u-1", SenderRole: chatclient.RoleUser, Body: "ok", CreatedAt: "2024-05-01T10:00:05Z"}
	require.Equal(t, "[10:00:05] you: ok", formatMessage(m, "u-1"))
	require.Equal(t, "[10:00:05] u-1: ok", formatMessage(m, "u-2"))

	m.SenderRole = chatclient.RoleSuperAdmin
	require.Equal(t, "[10:00:05] support: ok", formatMessage(m, ""))
}

func TestRunChat(t *testing.T) {
	api := &stubAPI{}
	out := &syncBuffer{}
	in := strings.NewReader("hello\n/read m1\n/read nope\n/bogus\n/quit\nnot sent\n")

	require.NoError(t, runChat(context.Background(), api, "u-1", "req-1", in, out))

	require.Equal(t, []string{"hello"}, api.sent)
	require.Eventually(t, func() bool {
		s := out.String()
		return strings.Contains(s, "support: hi there") &&
			strings.Contains(s, "you: hello") &&
			strings.Contains(s, `!! no message "nope"`) &&
			strings.Contains(s, "!! unknown command /bogus")
	}, 2*time.Second, 10*time.Millisecond, out.String())
}
