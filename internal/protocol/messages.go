package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DoneSentinel is the payload of the terminal stream message.
const DoneSentinel = "[DONE]"

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeToken MessageType = "token"
	TypeDone  MessageType = "done"
	TypeError MessageType = "error"
)

var (
	ErrUnsupportedType = errors.New("unsupported message type")
	ErrMissingContent  = errors.New("token chunk has no content")
)

// TokenChunk is the JSON payload of one SSE data message.
type TokenChunk struct {
	Content string `json:"content"`
	Index   int    `json:"index"`
}

type Envelope struct {
	Type MessageType `json:"type"`
}

type TokenEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Index     int         `json:"index"`
	Content   string      `json:"content"`
}

type DoneEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Tokens    int         `json:"tokens"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

// ParseTokenChunk decodes an SSE data payload. Older producers sent the
// fragment under "token" instead of "content"; both are accepted.
func ParseTokenChunk(raw []byte) (string, error) {
	var obj struct {
		Content *string `json:"content"`
		Token   *string `json:"token"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("invalid token chunk: %w", err)
	}
	switch {
	case obj.Content != nil:
		return *obj.Content, nil
	case obj.Token != nil:
		return *obj.Token, nil
	default:
		return "", ErrMissingContent
	}
}

// ParseServerMessage decodes a websocket frame sent by the stream endpoint.
func ParseServerMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeToken:
		var msg TokenEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeDone:
		var msg DoneEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeError:
		var msg ErrorEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Code == "" {
			return nil, errors.New("invalid error event")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
