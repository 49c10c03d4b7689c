package service_test

import (
	"context"
	"testing"

	"e2ee-relay/internal/event"
	"e2ee-relay/internal/service"
)

// The full lifecycle of one conversation: contact request, acceptance,
// offline send, replay on reconnect, delivery receipt.
func TestConversationLifecycle(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	alice := e.addUser(t)
	bob := e.addUser(t)
	aliceHandle := e.connect(alice.ID)

	if err := e.contacts.Request(ctx, alice.ID, bob.ContactCode); err != nil {
		t.Fatalf("request: %v", err)
	}
	incoming, err := e.contacts.ListPendingIncoming(ctx, bob.ID)
	if err != nil {
		t.Fatalf("pending incoming: %v", err)
	}
	if len(incoming) != 1 || incoming[0].ID != alice.ID {
		t.Fatalf("bob's incoming = %+v", incoming)
	}

	if err := e.contacts.Accept(ctx, bob.ID, alice.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got := e.sink.countByType(aliceHandle, event.TypeContactAccepted); got != 1 {
		t.Fatalf("alice got %d contact:accepted events, want 1", got)
	}
	aliceContacts, err := e.contacts.ListAccepted(ctx, alice.ID)
	if err != nil || len(aliceContacts) != 1 || aliceContacts[0].ID != bob.ID {
		t.Fatalf("alice's contacts = %+v (%v)", aliceContacts, err)
	}
	bobContacts, err := e.contacts.ListAccepted(ctx, bob.ID)
	if err != nil || len(bobContacts) != 1 || bobContacts[0].ID != alice.ID {
		t.Fatalf("bob's contacts = %+v (%v)", bobContacts, err)
	}

	// Bob is offline; the send still acknowledges to alice.
	sent, err := e.delivery.Send(ctx, service.SendInput{
		SenderID:     alice.ID,
		SenderHandle: aliceHandle,
		ID:           "m1",
		To:           bob.ID,
		Ciphertext:   "c1",
		Nonce:        "n1",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sent.ID != "m1" {
		t.Fatalf("sent ack = %+v", sent)
	}

	// Bob connects later and the backlog replays exactly once.
	e.connect(bob.ID)
	var replayed []event.MessageReceive
	if err := e.delivery.Replay(ctx, bob.ID, func(ev event.Event) error {
		if ev.Type == event.TypeMessageReceive {
			replayed = append(replayed, ev.Data.(event.MessageReceive))
		}
		return nil
	}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(replayed) != 1 {
		t.Fatalf("replayed %d messages, want 1", len(replayed))
	}
	if replayed[0].Ciphertext != "c1" || replayed[0].Nonce != "n1" || replayed[0].From != alice.ID {
		t.Fatalf("replayed payload = %+v", replayed[0])
	}

	if err := e.delivery.Ack(ctx, bob.ID, "m1"); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if got := e.sink.countByType(aliceHandle, event.TypeMessageDelivered); got != 1 {
		t.Fatalf("alice got %d message:delivered events, want 1", got)
	}
}
