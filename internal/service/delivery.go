package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"e2ee-relay/internal/domain"
	"e2ee-relay/internal/event"
	"e2ee-relay/internal/observability/metrics"
	"e2ee-relay/internal/presence"
	"e2ee-relay/internal/store"
)

// Delivery persists inbound ciphertext, forwards it to online recipients,
// replays backlog on reconnect, and processes acknowledgements.
type Delivery struct {
	store    *store.Store
	presence *presence.Registry
	now      func() time.Time
}

func NewDelivery(st *store.Store, reg *presence.Registry) *Delivery {
	return &Delivery{store: st, presence: reg, now: time.Now}
}

type SendInput struct {
	SenderID     uuid.UUID
	SenderHandle uuid.UUID
	ID           string
	To           uuid.UUID
	Ciphertext   string
	Nonce        string
	Timestamp    int64
}

// Send validates, persists, acknowledges, and forwards a message. The
// acknowledgement reflects persistence only; recipient reachability never
// changes the outcome.
func (d *Delivery) Send(ctx context.Context, in SendInput) (event.MessageSent, error) {
	if in.ID == "" || in.To == uuid.Nil || in.Ciphertext == "" || in.Nonce == "" {
		metrics.MessagesRelayedTotal.WithLabelValues("rejected").Inc()
		return event.MessageSent{}, fmt.Errorf("%w: missing required message fields", ErrInvalidRequest)
	}

	// Contacts-only messaging is checked on every send, never cached.
	ok, err := d.store.Contacts().HasAccepted(ctx, in.SenderID, in.To)
	if err != nil {
		return event.MessageSent{}, err
	}
	if !ok {
		metrics.MessagesRelayedTotal.WithLabelValues("rejected").Inc()
		return event.MessageSent{}, ErrNotContact
	}

	ts := in.Timestamp
	if ts == 0 {
		ts = d.now().Unix()
	}
	msg := domain.Message{
		ID:         in.ID,
		SenderID:   in.SenderID,
		ReceiverID: in.To,
		Ciphertext: in.Ciphertext,
		Nonce:      in.Nonce,
		Timestamp:  ts,
	}
	if err := d.store.Messages().Create(ctx, &msg); err != nil {
		return event.MessageSent{}, err
	}

	if d.presence.IsOnline(in.To) {
		d.presence.FanoutExcept(in.To, in.SenderHandle, event.Event{
			Type: event.TypeMessageReceive,
			Data: event.MessageReceive{
				ID:         msg.ID,
				From:       in.SenderID,
				Ciphertext: msg.Ciphertext,
				Nonce:      msg.Nonce,
				Timestamp:  msg.Timestamp,
			},
		})
		metrics.MessagesRelayedTotal.WithLabelValues("delivered").Inc()
	} else {
		metrics.MessagesRelayedTotal.WithLabelValues("queued").Inc()
	}

	return event.MessageSent{ID: msg.ID, Timestamp: msg.Timestamp}, nil
}

// Ack flips the delivered flag and notifies the sender. Unknown or foreign
// message IDs no-op silently, which also makes duplicate acks safe.
func (d *Delivery) Ack(ctx context.Context, receiverID uuid.UUID, messageID string) error {
	msg, err := d.store.Messages().GetForReceiver(ctx, messageID, receiverID)
	if err != nil {
		if err == store.ErrRecordNotFound {
			return nil
		}
		return err
	}
	if msg.Delivered {
		return nil
	}
	if err := d.store.Messages().MarkDelivered(ctx, msg.ID); err != nil {
		return err
	}
	if d.presence.IsOnline(msg.SenderID) {
		d.presence.Fanout(msg.SenderID, event.Event{
			Type: event.TypeMessageDelivered,
			Data: event.MessageDelivered{MessageID: msg.ID},
		})
	}
	return nil
}

// Replay emits the undelivered backlog for userID in ascending timestamp
// order, then drains the pending event queue. Rows are only deleted after
// every queued event has been handed to the transport, so a drop mid-replay
// leaves the remainder for the next connection.
func (d *Delivery) Replay(ctx context.Context, userID uuid.UUID, emit func(event.Event) error) error {
	msgs, err := d.store.Messages().UndeliveredFor(ctx, userID)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		ev := event.Event{
			Type: event.TypeMessageReceive,
			Data: event.MessageReceive{
				ID:         m.ID,
				From:       m.SenderID,
				Ciphertext: m.Ciphertext,
				Nonce:      m.Nonce,
				Timestamp:  m.Timestamp,
			},
		}
		if err := emit(ev); err != nil {
			return err
		}
	}

	pending, err := d.store.PendingEvents().ForUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, p := range pending {
		var data any
		if err := json.Unmarshal(p.Payload, &data); err != nil {
			slog.Warn("replay: dropping malformed pending event", "event_id", p.ID, "error", err)
			continue
		}
		if err := emit(event.Event{Type: p.EventType, Data: data}); err != nil {
			return err
		}
	}
	if len(pending) > 0 {
		return d.store.PendingEvents().DeleteForUser(ctx, userID)
	}
	return nil
}

// Typing is a pure best-effort forward: no persistence, no contact check,
// silently dropped when the recipient is offline.
func (d *Delivery) Typing(senderID, to uuid.UUID, isTyping bool) {
	if to == uuid.Nil {
		return
	}
	d.presence.Fanout(to, event.Event{
		Type: event.TypeTyping,
		Data: event.Typing{From: senderID, IsTyping: isTyping},
	})
}

// Delete removes a message the sender owns. The recipient sees a
// message:deleted event, live or queued for their next connection.
func (d *Delivery) Delete(ctx context.Context, senderID uuid.UUID, messageID string) error {
	msg, err := d.store.Messages().GetFromSender(ctx, messageID, senderID)
	if err != nil {
		if err == store.ErrRecordNotFound {
			return nil
		}
		return err
	}
	if err := d.store.Messages().Delete(ctx, msg.ID); err != nil {
		return err
	}

	deleted := event.MessageDeleted{ID: msg.ID, From: senderID}
	if d.presence.IsOnline(msg.ReceiverID) {
		d.presence.Fanout(msg.ReceiverID, event.Event{Type: event.TypeMessageDeleted, Data: deleted})
		return nil
	}
	payload, err := json.Marshal(deleted)
	if err != nil {
		return err
	}
	return d.store.PendingEvents().Add(ctx, &domain.PendingEvent{
		UserID:    msg.ReceiverID,
		EventType: event.TypeMessageDeleted,
		Payload:   payload,
		Timestamp: d.now().Unix(),
	})
}
