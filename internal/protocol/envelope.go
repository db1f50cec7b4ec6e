// Package protocol defines the JSON envelope exchanged between clients and the relay.
package protocol

import (
	"encoding/json"
	"strings"

	"github.com/yourusername/swiftsocket/internal/errors"
)

// Kind tags an envelope on the wire
type Kind string

const (
	KindChat   Kind = "chat"
	KindStatus Kind = "status"
)

// Anonymous is shown in place of an empty username.
const Anonymous = "Anonymous"

// Status notices broadcast by the relay
const (
	StatusConnected    = "A user connected."
	StatusDisconnected = "A user disconnected."
)

// Envelope is a frame broadcast by the relay
type Envelope struct {
	Type     Kind   `json:"type"`
	Username string `json:"username,omitempty"`
	Message  string `json:"message"`
}

// Outbound is a frame sent by a client to the relay
type Outbound struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// NewChat builds a chat envelope
func NewChat(username, message string) Envelope {
	return Envelope{Type: KindChat, Username: username, Message: message}
}

// NewStatus builds a status envelope
func NewStatus(message string) Envelope {
	return Envelope{Type: KindStatus, Message: message}
}

// DisplayName returns the sender name, or Anonymous when none was given.
func (e Envelope) DisplayName() string {
	if strings.TrimSpace(e.Username) == "" {
		return Anonymous
	}
	return e.Username
}

// Blank reports whether text is empty after trimming surrounding whitespace.
func Blank(text string) bool {
	return strings.TrimSpace(text) == ""
}

// Encode serializes an envelope
func Encode(e Envelope) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, "encode envelope")
	}
	return data, nil
}

// EncodeOutbound serializes a client message
func EncodeOutbound(username, message string) ([]byte, error) {
	data, err := json.Marshal(Outbound{Username: username, Message: message})
	if err != nil {
		return nil, errors.Wrap(err, "encode outbound message")
	}
	return data, nil
}

// DecodeOutbound parses a client frame. Frames that are not JSON objects with
// string fields, or whose message is blank, are rejected.
func DecodeOutbound(data []byte) (Outbound, error) {
	var out Outbound
	if err := json.Unmarshal(data, &out); err != nil {
		return Outbound{}, errors.Wrapf(errors.ErrDecode, "decode outbound: %v", err)
	}
	if Blank(out.Message) {
		return Outbound{}, errors.ErrEmptyMessage
	}
	return out, nil
}

// DecodeEnvelope parses a relay frame on the client side.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, errors.Wrapf(errors.ErrDecode, "decode envelope: %v", err)
	}
	switch env.Type {
	case KindChat, KindStatus:
	default:
		return Envelope{}, errors.Wrapf(errors.ErrDecode, "unknown envelope type %q", env.Type)
	}
	if Blank(env.Message) {
		return Envelope{}, errors.ErrEmptyMessage
	}
	return env, nil
}
