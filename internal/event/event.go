package event

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Event is the JSON envelope exchanged over a connection in both directions.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Outbound event types.
const (
	TypeError            = "error"
	TypeMessageSent      = "message:sent"
	TypeMessageReceive   = "message:receive"
	TypeMessageDelivered = "message:delivered"
	TypeMessageDeleted   = "message:deleted"
	TypeTyping           = "typing"
	TypePresenceUpdate   = "presence:update"
	TypeContactRequest   = "contact:request"
	TypeContactAccepted  = "contact:accepted"
	TypeCallOffer        = "call:offer"
	TypeCallAnswer       = "call:answer"
	TypeCallICE          = "call:ice"
	TypeCallHangup       = "call:hangup"
	TypeCallToggleVideo  = "call:toggle-video"
	TypeCallReject       = "call:reject"
	TypeCallUnavailable  = "call:unavailable"
)

// Inbound event types not already listed above.
const (
	TypeMessageSend   = "message:send"
	TypeMessageAck    = "message:ack"
	TypeMessageDelete = "message:delete"
)

type Error struct {
	Message string `json:"message"`
}

type MessageSent struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}

type MessageReceive struct {
	ID         string    `json:"id"`
	From       uuid.UUID `json:"from"`
	Ciphertext string    `json:"ciphertext"`
	Nonce      string    `json:"nonce"`
	Timestamp  int64     `json:"timestamp"`
}

type MessageDelivered struct {
	MessageID string `json:"messageId"`
}

type MessageDeleted struct {
	ID   string    `json:"id"`
	From uuid.UUID `json:"from"`
}

type Typing struct {
	From     uuid.UUID `json:"from"`
	IsTyping bool      `json:"isTyping"`
}

type PresenceUpdate struct {
	UserID uuid.UUID `json:"userId"`
	Online bool      `json:"online"`
}

// ContactSummary is the public identity snippet pushed with contact
// notifications.
type ContactSummary struct {
	ID            uuid.UUID `json:"id"`
	ContactCode   string    `json:"contactCode"`
	DisplayName   string    `json:"displayName"`
	PublicKey     string    `json:"publicKey,omitempty"`
	ChatPublicKey string    `json:"chatPublicKey,omitempty"`
}

type CallOffer struct {
	From     uuid.UUID `json:"from"`
	SDP      string    `json:"sdp"`
	CallType string    `json:"callType"`
}

type CallAnswer struct {
	From uuid.UUID `json:"from"`
	SDP  string    `json:"sdp"`
}

type CallICE struct {
	From      uuid.UUID       `json:"from"`
	Candidate json.RawMessage `json:"candidate"`
}

type CallHangup struct {
	From uuid.UUID `json:"from"`
}

type CallToggleVideo struct {
	From         uuid.UUID `json:"from"`
	VideoEnabled bool      `json:"videoEnabled"`
}

type CallReject struct {
	From uuid.UUID `json:"from"`
}
