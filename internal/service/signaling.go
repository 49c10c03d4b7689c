package service

import (
	"encoding/json"

	"github.com/google/uuid"

	"e2ee-relay/internal/event"
	"e2ee-relay/internal/presence"
)

// Signaling forwards call-signaling payloads between two online users. It is
// stateless and nothing it carries is ever persisted.
type Signaling struct {
	presence *presence.Registry
}

func NewSignaling(reg *presence.Registry) *Signaling {
	return &Signaling{presence: reg}
}

// Offer forwards a call offer. It is the one signaling path with a
// synchronous failure: when the callee has no live handles at all the
// caller needs an immediate answer, so unavailable reports true and nothing
// is forwarded.
func (s *Signaling) Offer(from, to uuid.UUID, sdp, callType string) (unavailable bool) {
	if to == uuid.Nil || sdp == "" {
		return false
	}
	if !s.presence.IsOnline(to) {
		return true
	}
	if callType == "" {
		callType = "voice"
	}
	s.presence.Fanout(to, event.Event{
		Type: event.TypeCallOffer,
		Data: event.CallOffer{From: from, SDP: sdp, CallType: callType},
	})
	return false
}

func (s *Signaling) Answer(from, to uuid.UUID, sdp string) {
	if to == uuid.Nil || sdp == "" {
		return
	}
	s.presence.Fanout(to, event.Event{
		Type: event.TypeCallAnswer,
		Data: event.CallAnswer{From: from, SDP: sdp},
	})
}

func (s *Signaling) ICE(from, to uuid.UUID, candidate json.RawMessage) {
	if to == uuid.Nil || len(candidate) == 0 {
		return
	}
	s.presence.Fanout(to, event.Event{
		Type: event.TypeCallICE,
		Data: event.CallICE{From: from, Candidate: candidate},
	})
}

func (s *Signaling) Hangup(from, to uuid.UUID) {
	if to == uuid.Nil {
		return
	}
	s.presence.Fanout(to, event.Event{
		Type: event.TypeCallHangup,
		Data: event.CallHangup{From: from},
	})
}

func (s *Signaling) ToggleVideo(from, to uuid.UUID, videoEnabled *bool) {
	if to == uuid.Nil || videoEnabled == nil {
		return
	}
	s.presence.Fanout(to, event.Event{
		Type: event.TypeCallToggleVideo,
		Data: event.CallToggleVideo{From: from, VideoEnabled: *videoEnabled},
	})
}

func (s *Signaling) Reject(from, to uuid.UUID) {
	if to == uuid.Nil {
		return
	}
	s.presence.Fanout(to, event.Event{
		Type: event.TypeCallReject,
		Data: event.CallReject{From: from},
	})
}
