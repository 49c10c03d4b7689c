package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"e2ee-relay/internal/domain"
	"e2ee-relay/internal/event"
	"e2ee-relay/internal/presence"
	"e2ee-relay/internal/store"
)

// Contacts runs the relationship state machine: none -> pending -> accepted,
// or pending -> none on rejection.
type Contacts struct {
	store    *store.Store
	presence *presence.Registry
}

func NewContacts(st *store.Store, reg *presence.Registry) *Contacts {
	return &Contacts{store: st, presence: reg}
}

// Request resolves a contact code and inserts the forward pending edge. Any
// existing row between the pair, in either direction and any status, blocks
// a new request.
func (c *Contacts) Request(ctx context.Context, requesterID uuid.UUID, code string) error {
	if code == "" {
		return ErrInvalidRequest
	}
	target, err := c.store.Users().GetByContactCode(ctx, code)
	if err != nil {
		if err == store.ErrRecordNotFound {
			return ErrCodeNotFound
		}
		return err
	}
	if target.ID == requesterID {
		return ErrSelfContact
	}

	exists, err := c.store.Contacts().ExistsBetween(ctx, requesterID, target.ID)
	if err != nil {
		return err
	}
	if exists {
		return ErrContactExists
	}

	edge := domain.Contact{UserID: requesterID, ContactID: target.ID, Status: domain.ContactPending}
	if err := c.store.Contacts().Create(ctx, &edge); err != nil {
		return err
	}

	if c.presence.IsOnline(target.ID) {
		requester, err := c.store.Users().GetByID(ctx, requesterID)
		if err != nil {
			slog.Warn("contacts: requester lookup for notification failed", "user_id", requesterID, "error", err)
			return nil
		}
		c.presence.Fanout(target.ID, event.Event{
			Type: event.TypeContactRequest,
			Data: summary(requester, false),
		})
	}
	return nil
}

// Accept requires the pending edge (requester -> accepter) and atomically
// flips it to accepted while inserting the reverse edge. Both writes commit
// together or not at all; every other component relies on the edge existing
// in its own query direction.
func (c *Contacts) Accept(ctx context.Context, accepterID, requesterID uuid.UUID) error {
	if _, err := c.store.Contacts().GetPending(ctx, requesterID, accepterID); err != nil {
		if err == store.ErrRecordNotFound {
			return ErrNotFound
		}
		return err
	}

	err := c.store.WithTx(ctx, func(tx *store.Store) error {
		if err := tx.Contacts().SetStatus(ctx, requesterID, accepterID, domain.ContactAccepted); err != nil {
			return err
		}
		return tx.Contacts().Create(ctx, &domain.Contact{
			UserID:    accepterID,
			ContactID: requesterID,
			Status:    domain.ContactAccepted,
		})
	})
	if err != nil {
		return err
	}

	if c.presence.IsOnline(requesterID) {
		accepter, err := c.store.Users().GetByID(ctx, accepterID)
		if err != nil {
			slog.Warn("contacts: accepter lookup for notification failed", "user_id", accepterID, "error", err)
			return nil
		}
		c.presence.Fanout(requesterID, event.Event{
			Type: event.TypeContactAccepted,
			Data: summary(accepter, true),
		})
	}
	return nil
}

// Reject deletes the pending edge if present. Absence is not an error.
func (c *Contacts) Reject(ctx context.Context, rejecterID, requesterID uuid.UUID) error {
	return c.store.Contacts().DeletePending(ctx, requesterID, rejecterID)
}

func (c *Contacts) ListAccepted(ctx context.Context, userID uuid.UUID) ([]event.ContactSummary, error) {
	users, err := c.store.Contacts().AcceptedUsers(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]event.ContactSummary, 0, len(users))
	for i := range users {
		out = append(out, summary(&users[i], true))
	}
	return out, nil
}

func (c *Contacts) ListPendingIncoming(ctx context.Context, userID uuid.UUID) ([]event.ContactSummary, error) {
	users, err := c.store.Contacts().PendingIncoming(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]event.ContactSummary, 0, len(users))
	for i := range users {
		out = append(out, summary(&users[i], false))
	}
	return out, nil
}

func summary(u *domain.User, withKeys bool) event.ContactSummary {
	s := event.ContactSummary{
		ID:          u.ID,
		ContactCode: u.ContactCode,
		DisplayName: u.DisplayName,
	}
	if withKeys {
		s.PublicKey = u.PublicKey
		if u.ChatPublicKey != nil {
			s.ChatPublicKey = *u.ChatPublicKey
		}
	}
	return s
}
