package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TokenSource supplies the bearer token for a request. An empty token means anonymous.
type TokenSource func(ctx context.Context) (string, error)

func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

// HTTPClient talks to the chat endpoints of the request API.
type HTTPClient struct {
	BaseURL string
	Token   TokenSource
	// Client is used for history and send calls.
	Client *http.Client
	// StreamClient is used for the live subscription and must not carry a global timeout.
	StreamClient *http.Client
	Log          zerolog.Logger
}

var _ API = (*HTTPClient)(nil)

func NewHTTPClient(baseURL string, token TokenSource) *HTTPClient {
	return &HTTPClient{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		Token:        token,
		Client:       &http.Client{Timeout: 30 * time.Second},
		StreamClient: &http.Client{},
		Log:          log.Logger.With().Str("component", "chatclient").Logger(),
	}
}

// apiResponse is the common response envelope of the API.
type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type historyData struct {
	Messages []Message `json:"messages"`
}

type sendData struct {
	Message Message `json:"message"`
}

type sendReq struct {
	Text string `json:"text"`
}

func (c *HTTPClient) chatURL(conversationID, suffix string) string {
	return fmt.Sprintf("%s/requests/%s/chat/%s", c.BaseURL, url.PathEscape(conversationID), suffix)
}

func (c *HTTPClient) token(ctx context.Context) (string, error) {
	if c.Token == nil {
		return "", nil
	}
	tok, err := c.Token(ctx)
	if err != nil {
		return "", errors.Wrap(err, "chat api: token")
	}
	return strings.TrimSpace(tok), nil
}

func (c *HTTPClient) do(ctx context.Context, method, u string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	tok, err := c.token(ctx)
	if err != nil {
		return err
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readAPIError(resp)
	}

	var env apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return errors.Wrap(err, "chat api: decode response")
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(env.Data, out), "chat api: decode data")
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	se := &APIError{StatusCode: resp.StatusCode}
	var env apiResponse
	if err := json.Unmarshal(body, &env); err == nil && env.Message != "" {
		se.Code = env.Code
		se.Message = env.Message
	} else {
		se.Message = strings.TrimSpace(string(body))
	}
	return se
}

func (c *HTTPClient) History(ctx context.Context, conversationID string) ([]Message, error) {
	var data historyData
	if err := c.do(ctx, http.MethodGet, c.chatURL(conversationID, "messages"), nil, &data); err != nil {
		return nil, err
	}
	return data.Messages, nil
}

func (c *HTTPClient) Send(ctx context.Context, conversationID, text string) (Message, error) {
	var data sendData
	if err := c.do(ctx, http.MethodPost, c.chatURL(conversationID, "messages"), sendReq{Text: text}, &data); err != nil {
		return Message{}, err
	}
	if data.Message.ID == "" {
		return Message{}, errors.New("chat api: send response without message")
	}
	return data.Message, nil
}

// OpenStream opens the SSE subscription. The token travels as a query parameter as
// well as a header, since browser event sources cannot set headers.
func (c *HTTPClient) OpenStream(ctx context.Context, conversationID string) (EventStream, error) {
	u, err := url.Parse(c.chatURL(conversationID, "stream"))
	if err != nil {
		return nil, err
	}
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	if tok != "" {
		q := u.Query()
		q.Set("token", tok)
		u.RawQuery = q.Encode()
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	client := c.StreamClient
	if client == nil {
		client = &http.Client{}
	}
	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		cancel()
		return nil, readAPIError(resp)
	}
	return &httpEventStream{body: resp.Body, rd: newSSEReader(resp.Body, c.Log.With().Str("conversation_id", conversationID).Logger()), cancel: cancel}, nil
}

type httpEventStream struct {
	body   io.ReadCloser
	rd     *sseReader
	cancel context.CancelFunc
	once   sync.Once
}

func (s *httpEventStream) Next() (Event, error) {
	return s.rd.Next()
}

func (s *httpEventStream) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.body.Close()
	})
	return err
}
