package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeEnvelope(w http.ResponseWriter, status int, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "message": message, "data": data})
}

func newTestAPI(t *testing.T) (*HTTPClient, *http.ServeMux) {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL+"/", StaticToken("tok-1")), mux
}

func TestHTTPClient_History(t *testing.T) {
	c, mux := newTestAPI(t)
	mux.HandleFunc("/requests/req-1/chat/messages", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		writeEnvelope(w, http.StatusOK, 0, "ok", map[string]any{
			"messages": []Message{msg("1", t0), msg("2", t1)},
		})
	})

	got, err := c.History(context.Background(), "req-1")
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2"}, ids(got))
}

func TestHTTPClient_Send(t *testing.T) {
	c, mux := newTestAPI(t)
	mux.HandleFunc("/requests/r1/chat/messages", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "need a usb-c hub", body["text"])
		m := msg("srv-1", t2)
		m.Body = body["text"]
		writeEnvelope(w, http.StatusOK, 0, "ok", map[string]any{"message": m})
	})

	got, err := c.Send(context.Background(), "r1", "need a usb-c hub")
	require.NoError(t, err)
	require.Equal(t, "srv-1", got.ID)
	require.Equal(t, "need a usb-c hub", got.Body)
}

func TestHTTPClient_PermissionDenied(t *testing.T) {
	c, mux := newTestAPI(t)
	mux.HandleFunc("/requests/r1/chat/messages", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusForbidden, 40301, "chat disabled", nil)
	})

	_, err := c.History(context.Background(), "r1")
	require.Error(t, err)
	require.True(t, IsPermissionDenied(err))

	var se *APIError
	require.ErrorAs(t, err, &se)
	require.Equal(t, 40301, se.Code)
	require.Equal(t, "chat disabled", se.Message)
}

func TestHTTPClient_ServerErrorIsNotPermissionDenied(t *testing.T) {
	c, mux := newTestAPI(t)
	mux.HandleFunc("/requests/r1/chat/messages", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := c.History(context.Background(), "r1")
	require.Error(t, err)
	require.False(t, IsPermissionDenied(err))
}

func TestHTTPClient_OpenStream(t *testing.T) {
	c, mux := newTestAPI(t)
	mux.HandleFunc("/requests/r1/chat/stream", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "tok-1", r.URL.Query().Get("token"))
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprintf(w, "event: history\ndata: {\"event\":\"history\",\"messages\":[]}\n\n")
		fmt.Fprintf(w, "event: message\ndata: {\"event\":\"message\",\"message\":{\"id\":\"9\"}}\n\n")
		flusher.Flush()
	})

	stream, err := c.OpenStream(context.Background(), "r1")
	require.NoError(t, err)
	defer stream.Close()

	ev, err := stream.Next()
	require.NoError(t, err)
	require.Equal(t, "history", ev.Name)

	ev, err = stream.Next()
	require.NoError(t, err)
	p, err := ParsePayload(ev.Data)
	require.NoError(t, err)
	require.Equal(t, []string{"9"}, ids(p.Messages))

	_, err = stream.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestHTTPClient_OpenStreamSurvivesOversizedEvent(t *testing.T) {
	c, mux := newTestAPI(t)
	mux.HandleFunc("/requests/r1/chat/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "event: message\ndata: %s\n\n", strings.Repeat("a", 3*1024*1024))
		fmt.Fprintf(w, "event: message\ndata: {\"event\":\"message\",\"message\":{\"id\":\"7\"}}\n\n")
		w.(http.Flusher).Flush()
	})

	stream, err := c.OpenStream(context.Background(), "r1")
	require.NoError(t, err)
	defer stream.Close()

	ev, err := stream.Next()
	require.NoError(t, err)
	p, err := ParsePayload(ev.Data)
	require.NoError(t, err)
	require.Equal(t, []string{"7"}, ids(p.Messages))

	_, err = stream.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestHTTPClient_OpenStreamForbidden(t *testing.T) {
	c, mux := newTestAPI(t)
	mux.HandleFunc("/requests/r1/chat/stream", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusForbidden, 40301, "chat disabled", nil)
	})

	_, err := c.OpenStream(context.Background(), "r1")
	require.True(t, IsPermissionDenied(err))
}
