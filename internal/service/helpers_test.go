package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"e2ee-relay/internal/auth"
	"e2ee-relay/internal/domain"
	"e2ee-relay/internal/event"
	"e2ee-relay/internal/pow"
	"e2ee-relay/internal/presence"
	"e2ee-relay/internal/service"
	"e2ee-relay/internal/store"
)

type recordingSink struct {
	mu     sync.Mutex
	events map[uuid.UUID][]event.Event
}

func newRecordingSink() *recordingSink {
	return &recordingSink{events: make(map[uuid.UUID][]event.Event)}
}

func (s *recordingSink) Deliver(handleID uuid.UUID, ev event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[handleID] = append(s.events[handleID], ev)
}

func (s *recordingSink) eventsFor(handleID uuid.UUID) []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Event(nil), s.events[handleID]...)
}

func (s *recordingSink) countByType(handleID uuid.UUID, eventType string) int {
	n := 0
	for _, ev := range s.eventsFor(handleID) {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

type env struct {
	store     *store.Store
	sink      *recordingSink
	registry  *presence.Registry
	delivery  *service.Delivery
	contacts  *service.Contacts
	signaling *service.Signaling
	accounts  *service.Accounts
	pow       *pow.Engine
	tokens    *auth.TokenIssuer

	userSeq int
}

func setupEnv(t *testing.T) *env {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	st := store.New(db)
	if err := st.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	sink := newRecordingSink()
	reg := presence.NewRegistry(st.Contacts(), sink, 30*time.Millisecond)
	engine := pow.New(0, time.Minute)
	tokens := auth.NewTokenIssuer([]byte("test-signing-key"), "relay", time.Hour)

	return &env{
		store:     st,
		sink:      sink,
		registry:  reg,
		delivery:  service.NewDelivery(st, reg),
		contacts:  service.NewContacts(st, reg),
		signaling: service.NewSignaling(reg),
		accounts:  service.NewAccounts(st, engine, tokens),
		pow:       engine,
		tokens:    tokens,
	}
}

func (e *env) addUser(t *testing.T) *domain.User {
	t.Helper()
	e.userSeq++
	chatKey := fmt.Sprintf("chat-key-%d", e.userSeq)
	user := domain.User{
		ID:            uuid.New(),
		ContactCode:   fmt.Sprintf("TEST-%04d", e.userSeq),
		DisplayName:   fmt.Sprintf("Test User %d", e.userSeq),
		PublicKey:     fmt.Sprintf("public-key-%d", e.userSeq),
		ChatPublicKey: &chatKey,
	}
	if err := e.store.Users().Create(context.Background(), &user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return &user
}

// befriend runs the full request/accept flow between two users.
func (e *env) befriend(t *testing.T, requester, accepter *domain.User) {
	t.Helper()
	ctx := context.Background()
	if err := e.contacts.Request(ctx, requester.ID, accepter.ContactCode); err != nil {
		t.Fatalf("contact request: %v", err)
	}
	if err := e.contacts.Accept(ctx, accepter.ID, requester.ID); err != nil {
		t.Fatalf("contact accept: %v", err)
	}
}

// connect registers a fresh handle for the user and returns it.
func (e *env) connect(userID uuid.UUID) uuid.UUID {
	handle := uuid.New()
	e.registry.Register(context.Background(), userID, handle)
	return handle
}
