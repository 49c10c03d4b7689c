package domain

import (
	"time"

	"github.com/google/uuid"

	"e2ee-relay/internal/evtjson"
)

// Contact relationship states. Blocked is declared for the schema but no
// operation transitions into it.
const (
	ContactPending  = "pending"
	ContactAccepted = "accepted"
	ContactBlocked  = "blocked"
)

type User struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	ContactCode   string    `gorm:"type:text;not null;uniqueIndex"`
	DisplayName   string    `gorm:"type:text;not null;uniqueIndex"`
	PublicKey     string    `gorm:"type:text;not null;uniqueIndex"`
	ChatPublicKey *string   `gorm:"type:text;uniqueIndex"`
	Username      *string   `gorm:"type:text;uniqueIndex"`
	PasswordHash  *string   `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"not null;autoCreateTime"`
}

// Contact is one directed edge of a relationship. Accepted friendships
// always exist as a reciprocal pair of rows, one per direction.
type Contact struct {
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	ContactID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Status    string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}

// Message carries an opaque ciphertext. The ID is client-generated; the
// delivered flag only ever moves false -> true.
type Message struct {
	ID         string    `gorm:"type:text;primaryKey"`
	SenderID   uuid.UUID `gorm:"type:uuid;not null;index"`
	ReceiverID uuid.UUID `gorm:"type:uuid;not null;index:idx_messages_receiver_delivered,priority:1"`
	Ciphertext string    `gorm:"type:text;not null"`
	Nonce      string    `gorm:"type:text;not null"`
	Timestamp  int64     `gorm:"not null"`
	Delivered  bool      `gorm:"not null;default:false;index:idx_messages_receiver_delivered,priority:2"`
}

// PendingEvent is a durable notification queued for an offline user and
// replayed verbatim on their next connection.
type PendingEvent struct {
	ID        uuid.UUID    `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID    `gorm:"type:uuid;not null;index"`
	EventType string       `gorm:"type:text;not null"`
	Payload   evtjson.JSON `gorm:"type:jsonb;not null"`
	Timestamp int64        `gorm:"not null"`
}
