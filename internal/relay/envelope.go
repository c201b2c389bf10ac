package relay

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charlesng35/handoff/pkg/validator"
)

// Type discriminates the envelope variants exchanged over a relay channel.
type Type string

// Envelope variants.
const (
	TypeJoin     Type = "join"
	TypeLeave    Type = "leave"
	TypeContent  Type = "content"
	TypeTyping   Type = "typing"
	TypeTransfer Type = "transfer"
	TypeClosed   Type = "closed"
)

// Envelope is a single typed realtime event. Optional attributes are pointers so
// presence can be distinguished from zero values when checking per-variant requirements.
type Envelope struct {
	Type           Type    `json:"type" validate:"required,oneof=join leave content typing transfer closed"`
	ConversationID int64   `json:"conversationId" validate:"gte=0"`
	SenderID       *int64  `json:"senderId,omitempty" validate:"omitempty,gt=0"`
	Role           Role    `json:"role,omitempty" validate:"omitempty,oneof=agent user"`
	MessageID      *int64  `json:"messageId,omitempty"`
	Content        *string `json:"content,omitempty" validate:"omitempty,max=4000"`
	IsTyping       *bool   `json:"isTyping,omitempty"`
	ToAgentID      *int64  `json:"toAgentId,omitempty" validate:"omitempty,gt=0"`
	Reason         *string `json:"reason,omitempty" validate:"omitempty,max=512"`
}

// DecodeEnvelope parses and validates a raw inbound frame.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, &ProtocolError{Kind: ProtocolMalformed, Detail: err.Error()}
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Validate checks the discriminant and the attributes each variant requires.
func (e Envelope) Validate() error {
	if err := validator.ValidateStruct(e); err != nil {
		return &ProtocolError{Kind: ProtocolInvalid, Detail: err.Error()}
	}

	switch e.Type {
	case TypeContent:
		if e.Content == nil || strings.TrimSpace(*e.Content) == "" {
			return missingField(e.Type, "content")
		}
	case TypeTyping:
		if e.IsTyping == nil {
			return missingField(e.Type, "isTyping")
		}
	case TypeTransfer:
		if e.ToAgentID == nil {
			return missingField(e.Type, "toAgentId")
		}
	case TypeClosed:
		if e.Reason == nil {
			return missingField(e.Type, "reason")
		}
	}
	return nil
}

// Encode serialises the envelope once so every recipient receives identical bytes.
func (e Envelope) Encode() ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("relay: encode %s envelope: %w", e.Type, err)
	}
	return payload, nil
}

func presenceEnvelope(kind Type, key Key) Envelope {
	sender := key.Identity
	return Envelope{
		Type:           kind,
		ConversationID: key.ConversationID,
		SenderID:       &sender,
		Role:           key.Role,
	}
}

func typingStopped(key Key) Envelope {
	env := presenceEnvelope(TypeTyping, key)
	stopped := false
	env.IsTyping = &stopped
	return env
}

func missingField(kind Type, field string) error {
	return &ProtocolError{Kind: ProtocolMissingField, Detail: fmt.Sprintf("%s envelope requires %s", kind, field)}
}

// Status is a server notice delivered to a single session. It is never broadcast.
type Status struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Ref     Type   `json:"ref,omitempty"`
}

func errorStatus(code, message string, ref Type) []byte {
	payload, err := json.Marshal(Status{Type: "error", Code: code, Message: message, Ref: ref})
	if err != nil {
		return nil
	}
	return payload
}
