package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"e2ee-relay/internal/domain"
)

type PendingEventStore struct{ db *gorm.DB }

func (s *Store) PendingEvents() *PendingEventStore { return &PendingEventStore{db: s.DB} }

func (p *PendingEventStore) Add(ctx context.Context, ev *domain.PendingEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	return p.db.WithContext(ctx).Create(ev).Error
}

// ForUser returns the queued events in ascending timestamp order.
func (p *PendingEventStore) ForUser(ctx context.Context, userID uuid.UUID) ([]domain.PendingEvent, error) {
	var events []domain.PendingEvent
	err := p.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp asc").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (p *PendingEventStore) DeleteForUser(ctx context.Context, userID uuid.UUID) error {
	return p.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&domain.PendingEvent{}).Error
}
