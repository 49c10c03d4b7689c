package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"e2ee-relay/internal/auth"
	"e2ee-relay/internal/domain"
	"e2ee-relay/internal/event"
	"e2ee-relay/internal/identity"
	"e2ee-relay/internal/observability/metrics"
	"e2ee-relay/internal/pow"
	"e2ee-relay/internal/store"
)

// Accounts handles PoW-gated registration, identity recovery, and the
// alternate credential login.
type Accounts struct {
	store  *store.Store
	pow    *pow.Engine
	tokens *auth.TokenIssuer
}

func NewAccounts(st *store.Store, engine *pow.Engine, tokens *auth.TokenIssuer) *Accounts {
	return &Accounts{store: st, pow: engine, tokens: tokens}
}

type RegisterInput struct {
	Challenge     string
	Nonce         string
	PublicKey     string
	ChatPublicKey string
	DisplayName   string
	Username      string
	Password      string
}

type RegisterOutput struct {
	ID          uuid.UUID `json:"id"`
	ContactCode string    `json:"contactCode"`
	DisplayName string    `json:"displayName"`
}

func (a *Accounts) Register(ctx context.Context, in RegisterInput) (RegisterOutput, error) {
	name := strings.TrimSpace(in.DisplayName)
	if in.Challenge == "" || in.Nonce == "" || in.PublicKey == "" || in.ChatPublicKey == "" {
		metrics.RegistrationsTotal.WithLabelValues("failure").Inc()
		return RegisterOutput{}, fmt.Errorf("%w: missing required fields", ErrInvalidRequest)
	}
	if len(name) < 1 || len(name) > 50 {
		metrics.RegistrationsTotal.WithLabelValues("failure").Inc()
		return RegisterOutput{}, fmt.Errorf("%w: display name must be 1-50 characters", ErrInvalidRequest)
	}

	if !a.pow.Verify(in.Challenge, in.Nonce) {
		metrics.RegistrationsTotal.WithLabelValues("failure").Inc()
		return RegisterOutput{}, ErrPowFailed
	}

	taken, err := a.store.Users().PublicKeyTaken(ctx, in.PublicKey)
	if err != nil {
		return RegisterOutput{}, err
	}
	if taken {
		metrics.RegistrationsTotal.WithLabelValues("failure").Inc()
		return RegisterOutput{}, fmt.Errorf("%w: public key", ErrConflict)
	}
	taken, err = a.store.Users().DisplayNameTaken(ctx, name)
	if err != nil {
		return RegisterOutput{}, err
	}
	if taken {
		metrics.RegistrationsTotal.WithLabelValues("failure").Inc()
		return RegisterOutput{}, fmt.Errorf("%w: display name", ErrConflict)
	}

	code, err := identity.ContactCode(ctx, a.store.Users())
	if err != nil {
		return RegisterOutput{}, err
	}

	user := domain.User{
		ID:            uuid.New(),
		ContactCode:   code,
		DisplayName:   name,
		PublicKey:     in.PublicKey,
		ChatPublicKey: &in.ChatPublicKey,
	}
	if in.Username != "" && in.Password != "" {
		hash, err := auth.HashPassword(in.Password)
		if err != nil {
			return RegisterOutput{}, err
		}
		user.Username = &in.Username
		user.PasswordHash = &hash
	}
	if err := a.store.Users().Create(ctx, &user); err != nil {
		return RegisterOutput{}, err
	}

	metrics.RegistrationsTotal.WithLabelValues("success").Inc()
	return RegisterOutput{ID: user.ID, ContactCode: user.ContactCode, DisplayName: user.DisplayName}, nil
}

type Profile struct {
	ID            uuid.UUID              `json:"id"`
	ContactCode   string                 `json:"contactCode"`
	DisplayName   string                 `json:"displayName"`
	PublicKey     string                 `json:"publicKey"`
	ChatPublicKey string                 `json:"chatPublicKey,omitempty"`
	Contacts      []event.ContactSummary `json:"contacts"`
}

// Recover looks an identity up by public key and returns its profile plus
// accepted contacts, so a client restoring from a key backup can rebuild
// its roster.
func (a *Accounts) Recover(ctx context.Context, publicKey string) (Profile, error) {
	if publicKey == "" {
		return Profile{}, ErrInvalidRequest
	}
	user, err := a.store.Users().GetByPublicKey(ctx, publicKey)
	if err != nil {
		if err == store.ErrRecordNotFound {
			return Profile{}, ErrNotFound
		}
		return Profile{}, err
	}

	contacts, err := a.store.Contacts().AcceptedUsers(ctx, user.ID)
	if err != nil {
		return Profile{}, err
	}

	p := Profile{
		ID:          user.ID,
		ContactCode: user.ContactCode,
		DisplayName: user.DisplayName,
		PublicKey:   user.PublicKey,
		Contacts:    make([]event.ContactSummary, 0, len(contacts)),
	}
	if user.ChatPublicKey != nil {
		p.ChatPublicKey = *user.ChatPublicKey
	}
	for i := range contacts {
		p.Contacts = append(p.Contacts, summary(&contacts[i], true))
	}
	return p, nil
}

// Login verifies a username/password credential and issues a bearer token.
func (a *Accounts) Login(ctx context.Context, username, password string) (string, error) {
	if username == "" || password == "" {
		return "", ErrInvalidCredentials
	}
	user, err := a.store.Users().GetByUsername(ctx, username)
	if err != nil {
		if err == store.ErrRecordNotFound {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if user.PasswordHash == nil || !auth.VerifyPassword(password, *user.PasswordHash) {
		return "", ErrInvalidCredentials
	}
	return a.tokens.Sign(user.ID)
}

// GenerateName hands out a random unused display name.
func (a *Accounts) GenerateName(ctx context.Context) (string, error) {
	return identity.DisplayName(ctx, a.store.Users())
}
