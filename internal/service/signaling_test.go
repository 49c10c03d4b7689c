package service_test

import (
	"encoding/json"
	"testing"

	"e2ee-relay/internal/event"
)

func TestOfferToOfflineCalleeIsUnavailable(t *testing.T) {
	e := setupEnv(t)
	alice := e.addUser(t)
	bob := e.addUser(t)

	if unavailable := e.signaling.Offer(alice.ID, bob.ID, "sdp-offer", "video"); !unavailable {
		t.Fatalf("offer to offline callee reported available")
	}
}

func TestOfferForwardedToOnlineCallee(t *testing.T) {
	e := setupEnv(t)
	alice := e.addUser(t)
	bob := e.addUser(t)
	bobHandle := e.connect(bob.ID)

	if unavailable := e.signaling.Offer(alice.ID, bob.ID, "sdp-offer", ""); unavailable {
		t.Fatalf("offer to online callee reported unavailable")
	}

	var offers []event.CallOffer
	for _, ev := range e.sink.eventsFor(bobHandle) {
		if ev.Type == event.TypeCallOffer {
			offers = append(offers, ev.Data.(event.CallOffer))
		}
	}
	if len(offers) != 1 {
		t.Fatalf("callee got %d offers, want 1", len(offers))
	}
	if offers[0].From != alice.ID || offers[0].SDP != "sdp-offer" {
		t.Fatalf("offer payload = %+v", offers[0])
	}
	if offers[0].CallType != "voice" {
		t.Fatalf("call type = %q, want the voice default", offers[0].CallType)
	}
}

func TestOfferWithoutSDPIsDropped(t *testing.T) {
	e := setupEnv(t)
	alice := e.addUser(t)
	bob := e.addUser(t)
	bobHandle := e.connect(bob.ID)

	// Malformed offers are dropped silently, never reported unavailable.
	if unavailable := e.signaling.Offer(alice.ID, bob.ID, "", "video"); unavailable {
		t.Fatalf("malformed offer reported unavailable")
	}
	if got := e.sink.countByType(bobHandle, event.TypeCallOffer); got != 0 {
		t.Fatalf("callee got %d offers from a malformed send", got)
	}
}

func TestSignalingForwardsWithSenderIdentity(t *testing.T) {
	e := setupEnv(t)
	alice := e.addUser(t)
	bob := e.addUser(t)
	bobHandle := e.connect(bob.ID)

	on := true
	e.signaling.Answer(alice.ID, bob.ID, "sdp-answer")
	e.signaling.ICE(alice.ID, bob.ID, json.RawMessage(`{"candidate":"c"}`))
	e.signaling.ToggleVideo(alice.ID, bob.ID, &on)
	e.signaling.Reject(alice.ID, bob.ID)
	e.signaling.Hangup(alice.ID, bob.ID)

	events := e.sink.eventsFor(bobHandle)
	want := []string{
		event.TypeCallAnswer,
		event.TypeCallICE,
		event.TypeCallToggleVideo,
		event.TypeCallReject,
		event.TypeCallHangup,
	}
	if len(events) != len(want) {
		t.Fatalf("callee got %d events, want %d", len(events), len(want))
	}
	for i, ev := range events {
		if ev.Type != want[i] {
			t.Fatalf("event %d type = %q, want %q", i, ev.Type, want[i])
		}
	}

	answer := events[0].Data.(event.CallAnswer)
	if answer.From != alice.ID || answer.SDP != "sdp-answer" {
		t.Fatalf("answer payload = %+v", answer)
	}
	toggle := events[2].Data.(event.CallToggleVideo)
	if !toggle.VideoEnabled {
		t.Fatalf("toggle payload = %+v", toggle)
	}
}

func TestToggleVideoRequiresExplicitFlag(t *testing.T) {
	e := setupEnv(t)
	alice := e.addUser(t)
	bob := e.addUser(t)
	bobHandle := e.connect(bob.ID)

	e.signaling.ToggleVideo(alice.ID, bob.ID, nil)
	if got := e.sink.countByType(bobHandle, event.TypeCallToggleVideo); got != 0 {
		t.Fatalf("toggle without a flag was forwarded %d times", got)
	}
}

func TestSignalingToOfflinePeerIsSilent(t *testing.T) {
	e := setupEnv(t)
	alice := e.addUser(t)
	bob := e.addUser(t)

	// None of these have a failure channel; they must simply not panic and
	// not leak anywhere.
	e.signaling.Answer(alice.ID, bob.ID, "sdp")
	e.signaling.ICE(alice.ID, bob.ID, json.RawMessage(`{}`))
	e.signaling.Hangup(alice.ID, bob.ID)
	e.signaling.Reject(alice.ID, bob.ID)
}
