package chatclient

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

type PayloadKind int

const (
	PayloadMessage PayloadKind = iota + 1
	PayloadBatch
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadMessage:
		return "message"
	case PayloadBatch:
		return "batch"
	default:
		return "unknown"
	}
}

// Payload is a stream event resolved to its canonical form.
// PayloadMessage carries exactly one message, PayloadBatch zero or more.
type Payload struct {
	Kind     PayloadKind
	Messages []Message
}

// envelope covers every shape the server has used for stream events.
// History batches arrive under "messages" or the older "data"; single
// messages under "message" or the older "data".
type envelope struct {
	Event    string          `json:"event"`
	Messages json.RawMessage `json:"messages"`
	Message  json.RawMessage `json:"message"`
	Data     json.RawMessage `json:"data"`
	ID       string          `json:"id"`
}

// ParsePayload decodes one data event. Shapes it does not understand yield
// ErrUnrecognizedPayload.
func ParsePayload(data []byte) (Payload, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return Payload{}, errors.Wrap(ErrUnrecognizedPayload, "not a json object")
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Payload{}, errors.Wrap(err, "decode stream payload")
	}

	switch env.Event {
	case "history":
		raw := firstPresent(env.Messages, env.Data)
		if raw == nil {
			return Payload{}, errors.Wrap(ErrUnrecognizedPayload, "history event without messages")
		}
		var msgs []Message
		if err := json.Unmarshal(raw, &msgs); err != nil {
			return Payload{}, errors.Wrap(err, "decode history messages")
		}
		return Payload{Kind: PayloadBatch, Messages: validMessages(msgs)}, nil

	case "message":
		raw := firstPresent(env.Message, env.Data)
		if raw == nil {
			return Payload{}, errors.Wrap(ErrUnrecognizedPayload, "message event without message")
		}
		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			return Payload{}, errors.Wrap(err, "decode message")
		}
		if m.ID == "" {
			return Payload{}, errors.Wrap(ErrUnrecognizedPayload, "message without id")
		}
		return Payload{Kind: PayloadMessage, Messages: []Message{m}}, nil

	case "":
		// bare message object
		if env.ID == "" {
			return Payload{}, errors.Wrap(ErrUnrecognizedPayload, "object without event or id")
		}
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			return Payload{}, errors.Wrap(err, "decode bare message")
		}
		return Payload{Kind: PayloadMessage, Messages: []Message{m}}, nil

	default:
		return Payload{}, errors.Wrapf(ErrUnrecognizedPayload, "event %q", env.Event)
	}
}

func firstPresent(raws ...json.RawMessage) json.RawMessage {
	for _, r := range raws {
		if len(r) > 0 && !bytes.Equal(r, []byte("null")) {
			return r
		}
	}
	return nil
}

func validMessages(msgs []Message) []Message {
	out := msgs[:0]
	for _, m := range msgs {
		if m.ID != "" {
			out = append(out, m)
		}
	}
	return out
}
