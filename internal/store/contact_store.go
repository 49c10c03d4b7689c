package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"e2ee-relay/internal/domain"
)

type ContactStore struct{ db *gorm.DB }

func (s *Store) Contacts() *ContactStore { return &ContactStore{db: s.DB} }

func (c *ContactStore) Create(ctx context.Context, edge *domain.Contact) error {
	return c.db.WithContext(ctx).Create(edge).Error
}

// ExistsBetween reports whether any relationship row exists between the two
// users, in either direction and in any status.
func (c *ContactStore) ExistsBetween(ctx context.Context, a, b uuid.UUID) (bool, error) {
	var count int64
	err := c.db.WithContext(ctx).Model(&domain.Contact{}).
		Where("(user_id = ? AND contact_id = ?) OR (user_id = ? AND contact_id = ?)", a, b, b, a).
		Count(&count).Error
	return count > 0, err
}

// HasAccepted reports whether the directed edge (userID -> contactID) exists
// with accepted status. Message sends check exactly this direction.
func (c *ContactStore) HasAccepted(ctx context.Context, userID, contactID uuid.UUID) (bool, error) {
	var count int64
	err := c.db.WithContext(ctx).Model(&domain.Contact{}).
		Where("user_id = ? AND contact_id = ? AND status = ?", userID, contactID, domain.ContactAccepted).
		Count(&count).Error
	return count > 0, err
}

func (c *ContactStore) GetPending(ctx context.Context, requesterID, targetID uuid.UUID) (*domain.Contact, error) {
	var edge domain.Contact
	err := c.db.WithContext(ctx).
		First(&edge, "user_id = ? AND contact_id = ? AND status = ?", requesterID, targetID, domain.ContactPending).
		Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &edge, nil
}

func (c *ContactStore) SetStatus(ctx context.Context, userID, contactID uuid.UUID, status string) error {
	return c.db.WithContext(ctx).Model(&domain.Contact{}).
		Where("user_id = ? AND contact_id = ?", userID, contactID).
		Update("status", status).Error
}

func (c *ContactStore) DeletePending(ctx context.Context, requesterID, targetID uuid.UUID) error {
	return c.db.WithContext(ctx).
		Where("user_id = ? AND contact_id = ? AND status = ?", requesterID, targetID, domain.ContactPending).
		Delete(&domain.Contact{}).Error
}

// AcceptedIDs resolves either side of an accepted edge to the contact's user ID.
func (c *ContactStore) AcceptedIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := c.db.WithContext(ctx).
		Raw(`SELECT DISTINCT CASE WHEN user_id = ? THEN contact_id ELSE user_id END AS contact_id
		     FROM contacts
		     WHERE (user_id = ? OR contact_id = ?) AND status = ?`,
			userID, userID, userID, domain.ContactAccepted).
		Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// AcceptedUsers returns the accepted contacts joined with their user rows,
// grouped by user ID to defensively deduplicate.
func (c *ContactStore) AcceptedUsers(ctx context.Context, userID uuid.UUID) ([]domain.User, error) {
	var users []domain.User
	err := c.db.WithContext(ctx).
		Raw(`SELECT u.* FROM contacts c
		     JOIN users u ON u.id = CASE WHEN c.user_id = ? THEN c.contact_id ELSE c.user_id END
		     WHERE (c.user_id = ? OR c.contact_id = ?) AND c.status = ?
		     GROUP BY u.id`,
			userID, userID, userID, domain.ContactAccepted).
		Scan(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// PendingIncoming returns the users with an open request towards userID.
func (c *ContactStore) PendingIncoming(ctx context.Context, userID uuid.UUID) ([]domain.User, error) {
	var users []domain.User
	err := c.db.WithContext(ctx).
		Raw(`SELECT u.* FROM contacts c
		     JOIN users u ON u.id = c.user_id
		     WHERE c.contact_id = ? AND c.status = ?`,
			userID, domain.ContactPending).
		Scan(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}
