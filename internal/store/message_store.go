package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"e2ee-relay/internal/domain"
)

type MessageStore struct{ db *gorm.DB }

func (s *Store) Messages() *MessageStore { return &MessageStore{db: s.DB} }

func (m *MessageStore) Create(ctx context.Context, msg *domain.Message) error {
	return m.db.WithContext(ctx).Create(msg).Error
}

// GetForReceiver looks a message up by (id, receiver). Acks resolve through
// this so a foreign or unknown message ID misses identically.
func (m *MessageStore) GetForReceiver(ctx context.Context, id string, receiverID uuid.UUID) (*domain.Message, error) {
	var msg domain.Message
	err := m.db.WithContext(ctx).First(&msg, "id = ? AND receiver_id = ?", id, receiverID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &msg, nil
}

func (m *MessageStore) GetFromSender(ctx context.Context, id string, senderID uuid.UUID) (*domain.Message, error) {
	var msg domain.Message
	err := m.db.WithContext(ctx).First(&msg, "id = ? AND sender_id = ?", id, senderID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &msg, nil
}

func (m *MessageStore) MarkDelivered(ctx context.Context, id string) error {
	return m.db.WithContext(ctx).Model(&domain.Message{}).
		Where("id = ?", id).
		Update("delivered", true).Error
}

// UndeliveredFor returns the replay backlog in ascending timestamp order.
func (m *MessageStore) UndeliveredFor(ctx context.Context, receiverID uuid.UUID) ([]domain.Message, error) {
	var msgs []domain.Message
	err := m.db.WithContext(ctx).
		Where("receiver_id = ? AND delivered = ?", receiverID, false).
		Order("timestamp asc").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (m *MessageStore) Delete(ctx context.Context, id string) error {
	return m.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Message{}).Error
}

// PurgeStaleUndelivered removes undelivered messages older than the cutoff.
func (m *MessageStore) PurgeStaleUndelivered(ctx context.Context, before int64) (int64, error) {
	res := m.db.WithContext(ctx).
		Where("timestamp < ? AND delivered = ?", before, false).
		Delete(&domain.Message{})
	return res.RowsAffected, res.Error
}
