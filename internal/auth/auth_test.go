package auth_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"e2ee-relay/internal/auth"
)

func keypair(t *testing.T) (string, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return base64.StdEncoding.EncodeToString(pub), priv
}

func TestVerifySignature(t *testing.T) {
	pubB64, priv := keypair(t)
	payload := []byte(`{"to":"someone"}:1700000000`)
	sig := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, payload))

	if err := auth.VerifySignature(pubB64, sig, payload); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := auth.VerifySignature(pubB64, sig, []byte("tampered")); !errors.Is(err, auth.ErrBadSignature) {
		t.Fatalf("tampered payload err = %v, want ErrBadSignature", err)
	}

	otherPub, _ := keypair(t)
	if err := auth.VerifySignature(otherPub, sig, payload); !errors.Is(err, auth.ErrBadSignature) {
		t.Fatalf("wrong key err = %v, want ErrBadSignature", err)
	}
	if err := auth.VerifySignature("not base64!!", sig, payload); !errors.Is(err, auth.ErrBadSignature) {
		t.Fatalf("garbage key err = %v, want ErrBadSignature", err)
	}
}

func TestCheckTimestamp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	fresh := strconv.FormatInt(now.Unix()-60, 10)
	if err := auth.CheckTimestamp(fresh, now, auth.ReplayWindow); err != nil {
		t.Fatalf("fresh timestamp rejected: %v", err)
	}

	stale := strconv.FormatInt(now.Add(-auth.ReplayWindow-time.Second).Unix(), 10)
	if err := auth.CheckTimestamp(stale, now, auth.ReplayWindow); !errors.Is(err, auth.ErrExpired) {
		t.Fatalf("stale timestamp err = %v, want ErrExpired", err)
	}

	// Clocks skew both ways; the window is symmetric.
	future := strconv.FormatInt(now.Add(auth.ReplayWindow+time.Second).Unix(), 10)
	if err := auth.CheckTimestamp(future, now, auth.ReplayWindow); !errors.Is(err, auth.ErrExpired) {
		t.Fatalf("future timestamp err = %v, want ErrExpired", err)
	}

	if err := auth.CheckTimestamp("not-a-number", now, auth.ReplayWindow); !errors.Is(err, auth.ErrExpired) {
		t.Fatalf("garbage timestamp err = %v, want ErrExpired", err)
	}
}

func TestVerifyHandshake(t *testing.T) {
	pubB64, priv := keypair(t)
	now := time.Now()
	ts := strconv.FormatInt(now.Unix(), 10)
	sig := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, []byte(ts)))

	if err := auth.VerifyHandshake(pubB64, ts, sig, now); err != nil {
		t.Fatalf("valid handshake rejected: %v", err)
	}
	if err := auth.VerifyHandshake("", ts, sig, now); !errors.Is(err, auth.ErrMissingCredentials) {
		t.Fatalf("missing key err = %v, want ErrMissingCredentials", err)
	}

	// A signature over a different timestamp fails even inside the window.
	otherTS := strconv.FormatInt(now.Unix()-1, 10)
	if err := auth.VerifyHandshake(pubB64, otherTS, sig, now); !errors.Is(err, auth.ErrBadSignature) {
		t.Fatalf("rebound timestamp err = %v, want ErrBadSignature", err)
	}

	staleTS := strconv.FormatInt(now.Add(-auth.ReplayWindow-time.Minute).Unix(), 10)
	staleSig := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, []byte(staleTS)))
	if err := auth.VerifyHandshake(pubB64, staleTS, staleSig, now); !errors.Is(err, auth.ErrExpired) {
		t.Fatalf("replayed handshake err = %v, want ErrExpired", err)
	}
}

func TestTokenRoundtrip(t *testing.T) {
	issuer := auth.NewTokenIssuer([]byte("secret"), "relay", time.Hour)
	userID := uuid.New()

	token, err := issuer.Sign(userID)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	got, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != userID {
		t.Fatalf("subject = %s, want %s", got, userID)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := auth.NewTokenIssuer([]byte("secret-a"), "relay", time.Hour).Sign(uuid.New())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.NewTokenIssuer([]byte("secret-b"), "relay", time.Hour).Verify(token); err == nil {
		t.Fatalf("token verified with the wrong secret")
	}
}

func TestTokenExpiry(t *testing.T) {
	issuer := auth.NewTokenIssuer([]byte("secret"), "relay", -time.Minute)
	token, err := issuer.Sign(uuid.New())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := issuer.Verify(token); err == nil {
		t.Fatalf("expired token verified")
	}
}

func TestPasswordHashAndVerify(t *testing.T) {
	hash, err := auth.HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(hash, "argon2id$") {
		t.Fatalf("hash %q missing parameter prefix", hash)
	}
	if !auth.VerifyPassword("correct horse battery staple", hash) {
		t.Fatalf("correct password rejected")
	}
	if auth.VerifyPassword("wrong", hash) {
		t.Fatalf("wrong password accepted")
	}
	if auth.VerifyPassword("correct horse battery staple", "bcrypt$nonsense") {
		t.Fatalf("malformed hash accepted")
	}
}

func TestPasswordHashesAreSalted(t *testing.T) {
	h1, err := auth.HashPassword("same password")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := auth.HashPassword("same password")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 == h2 {
		t.Fatalf("two hashes of the same password are identical")
	}
}

func TestEmptyPasswordRejected(t *testing.T) {
	if _, err := auth.HashPassword(""); !errors.Is(err, auth.ErrMissingCredentials) {
		t.Fatalf("err = %v, want ErrMissingCredentials", err)
	}
}
