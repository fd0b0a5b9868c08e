package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeAuth         MessageType = "auth"
	TypeConnected    MessageType = "connected"
	TypeTodosUpdate  MessageType = "todos_update"
	TypeAudio        MessageType = "audio"
	TypeAction       MessageType = "action"
	TypeActionResult MessageType = "action_result"
	TypeInterrupted  MessageType = "interrupted"
	TypeError        MessageType = "error"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// Auth is the first client frame after the socket opens. The server answers
// with Connected before any other traffic is accepted.
type Auth struct {
	Type      MessageType `json:"type"`
	Token     string      `json:"token"`
	SessionID string      `json:"session_id,omitempty"`
}

type Connected struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
}

// TaskSummary is the wire shape of one todo inside a TodosUpdate. It carries
// the fields the assistant needs to resolve fuzzy references; it is not the
// full REST record.
type TaskSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority"`
	DueAt       string `json:"due_at,omitempty"`
}

// TodosUpdate pushes the client's current task list to the assistant whenever
// it changes locally.
type TodosUpdate struct {
	Type  MessageType   `json:"type"`
	Todos []TaskSummary `json:"todos"`
}

// Audio carries one base64-wrapped PCM16LE chunk in either direction.
type Audio struct {
	Type        MessageType `json:"type"`
	Seq         int         `json:"seq,omitempty"`
	PCM16Base64 string      `json:"pcm16_base64"`
	SampleRate  int         `json:"sample_rate,omitempty"`
}

// Action is an assistant-issued task mutation request.
type Action struct {
	Type        MessageType `json:"type"`
	ID          string      `json:"id,omitempty"`
	Name        string      `json:"action"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	Priority    string      `json:"priority,omitempty"`
	DueAt       string      `json:"due_at,omitempty"`
	Search      string      `json:"search,omitempty"`
}

// ActionResult relays the bridge outcome for one Action back to the assistant.
type ActionResult struct {
	Type     MessageType `json:"type"`
	ActionID string      `json:"action_id,omitempty"`
	Status   string      `json:"status"`
	Message  string      `json:"message"`
}

// Interrupted signals barge-in: the user started talking and assistant
// playback must stop immediately.
type Interrupted struct {
	Type MessageType `json:"type"`
}

type ErrorEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code,omitempty"`
	Detail string      `json:"detail"`
}

// ParseServerMessage decodes one inbound frame. Unknown tags return
// ErrUnsupportedType so callers can skip them and stay forward compatible.
func ParseServerMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeConnected:
		var msg Connected
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeAudio:
		var msg Audio
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.PCM16Base64 == "" {
			return nil, errors.New("invalid audio frame")
		}
		return msg, nil
	case TypeAction:
		var msg Action
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Name == "" {
			return nil, errors.New("invalid action frame")
		}
		return msg, nil
	case TypeInterrupted:
		var msg Interrupted
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeError:
		var msg ErrorEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
