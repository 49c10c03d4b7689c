package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"e2ee-relay/internal/auth"
	"e2ee-relay/internal/event"
	"e2ee-relay/internal/presence"
	"e2ee-relay/internal/service"
	"e2ee-relay/internal/store"
)

// Handler upgrades authenticated websocket connections and dispatches their
// event stream into the delivery engine and signaling relay.
type Handler struct {
	Hub       *Hub
	Presence  *presence.Registry
	Delivery  *service.Delivery
	Signaling *service.Signaling
	Store     *store.Store

	// InsecureSkipVerify bypasses origin checks, for local development only.
	InsecureSkipVerify bool

	now func() time.Time
}

func NewHandler(hub *Hub, reg *presence.Registry, delivery *service.Delivery, signaling *service.Signaling, st *store.Store) *Handler {
	return &Handler{
		Hub:       hub,
		Presence:  reg,
		Delivery:  delivery,
		Signaling: signaling,
		Store:     st,
		now:       time.Now,
	}
}

// inbound is the raw envelope read off the wire; Data stays opaque until the
// type is known.
type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type sendPayload struct {
	ID         string    `json:"id"`
	To         uuid.UUID `json:"to"`
	Ciphertext string    `json:"ciphertext"`
	Nonce      string    `json:"nonce"`
	Timestamp  int64     `json:"timestamp"`
}

type ackPayload struct {
	MessageID string `json:"messageId"`
}

type deletePayload struct {
	ID string `json:"id"`
}

type typingPayload struct {
	To       uuid.UUID `json:"to"`
	IsTyping bool      `json:"isTyping"`
}

type callPayload struct {
	To           uuid.UUID       `json:"to"`
	SDP          string          `json:"sdp"`
	Candidate    json.RawMessage `json:"candidate"`
	CallType     string          `json:"callType"`
	VideoEnabled *bool           `json:"videoEnabled"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	publicKey := q.Get("publicKey")
	timestamp := q.Get("timestamp")
	signature := q.Get("signature")

	if err := auth.VerifyHandshake(publicKey, timestamp, signature, h.now()); err != nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	user, err := h.Store.Users().GetByPublicKey(r.Context(), publicKey)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			http.Error(w, "unknown identity", http.StatusUnauthorized)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.InsecureSkipVerify,
	})
	if err != nil {
		return // Accept already wrote the error response
	}

	client := h.Hub.Add(user.ID, conn)
	h.Presence.Register(r.Context(), user.ID, client.ID)
	slog.Info("user connected", "user_id", user.ID, "handle_id", client.ID)

	defer func() {
		h.Presence.Unregister(user.ID, client.ID)
		h.Hub.Remove(client)
		slog.Info("user disconnected", "user_id", user.ID, "handle_id", client.ID)
	}()

	ctx := r.Context()

	// Tell the new handle which of its contacts are online right now.
	online, err := h.Presence.OnlineAccepted(ctx, user.ID)
	if err != nil {
		slog.Warn("presence snapshot failed", "user_id", user.ID, "error", err)
	}
	for _, id := range online {
		if err := client.Enqueue(event.Event{
			Type: event.TypePresenceUpdate,
			Data: event.PresenceUpdate{UserID: id, Online: true},
		}); err != nil {
			return
		}
	}

	if err := h.Delivery.Replay(ctx, user.ID, client.Enqueue); err != nil {
		slog.Warn("replay failed", "user_id", user.ID, "error", err)
		return
	}

	for {
		var in inbound
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			return
		}
		h.dispatch(ctx, client, in)
	}
}

func (h *Handler) dispatch(ctx context.Context, client *Client, in inbound) {
	userID := client.UserID

	switch in.Type {
	case event.TypeMessageSend:
		var p sendPayload
		if err := json.Unmarshal(in.Data, &p); err != nil {
			h.sendError(client, "malformed message payload")
			return
		}
		sent, err := h.Delivery.Send(ctx, service.SendInput{
			SenderID:     userID,
			SenderHandle: client.ID,
			ID:           p.ID,
			To:           p.To,
			Ciphertext:   p.Ciphertext,
			Nonce:        p.Nonce,
			Timestamp:    p.Timestamp,
		})
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidRequest):
				h.sendError(client, "Missing required message fields")
			case errors.Is(err, service.ErrNotContact):
				h.sendError(client, "Recipient is not in your contacts")
			default:
				slog.Error("message send failed", "user_id", userID, "error", err)
				h.sendError(client, "Message could not be stored")
			}
			return
		}
		_ = client.Enqueue(event.Event{Type: event.TypeMessageSent, Data: sent})

	case event.TypeMessageAck:
		var p ackPayload
		if err := json.Unmarshal(in.Data, &p); err != nil || p.MessageID == "" {
			return
		}
		if err := h.Delivery.Ack(ctx, userID, p.MessageID); err != nil {
			slog.Error("message ack failed", "user_id", userID, "message_id", p.MessageID, "error", err)
		}

	case event.TypeMessageDelete:
		var p deletePayload
		if err := json.Unmarshal(in.Data, &p); err != nil || p.ID == "" {
			return
		}
		if err := h.Delivery.Delete(ctx, userID, p.ID); err != nil {
			slog.Error("message delete failed", "user_id", userID, "message_id", p.ID, "error", err)
		}

	case event.TypeTyping:
		var p typingPayload
		if err := json.Unmarshal(in.Data, &p); err != nil {
			return
		}
		h.Delivery.Typing(userID, p.To, p.IsTyping)

	case event.TypeCallOffer:
		var p callPayload
		if err := json.Unmarshal(in.Data, &p); err != nil {
			return
		}
		if h.Signaling.Offer(userID, p.To, p.SDP, p.CallType) {
			_ = client.Enqueue(event.Event{Type: event.TypeCallUnavailable, Data: struct{}{}})
		}

	case event.TypeCallAnswer:
		var p callPayload
		if err := json.Unmarshal(in.Data, &p); err != nil {
			return
		}
		h.Signaling.Answer(userID, p.To, p.SDP)

	case event.TypeCallICE:
		var p callPayload
		if err := json.Unmarshal(in.Data, &p); err != nil {
			return
		}
		h.Signaling.ICE(userID, p.To, p.Candidate)

	case event.TypeCallHangup:
		var p callPayload
		if err := json.Unmarshal(in.Data, &p); err != nil {
			return
		}
		h.Signaling.Hangup(userID, p.To)

	case event.TypeCallToggleVideo:
		var p callPayload
		if err := json.Unmarshal(in.Data, &p); err != nil {
			return
		}
		h.Signaling.ToggleVideo(userID, p.To, p.VideoEnabled)

	case event.TypeCallReject:
		var p callPayload
		if err := json.Unmarshal(in.Data, &p); err != nil {
			return
		}
		h.Signaling.Reject(userID, p.To)

	default:
		slog.Debug("ignoring unknown event type", "type", in.Type, "user_id", userID)
	}
}

func (h *Handler) sendError(client *Client, message string) {
	_ = client.Enqueue(event.Event{Type: event.TypeError, Data: event.Error{Message: message}})
}
