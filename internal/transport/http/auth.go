package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"e2ee-relay/internal/auth"
	"e2ee-relay/internal/domain"
	"e2ee-relay/internal/store"
)

type authCtxKey struct{}

// userFromContext returns the authenticated user placed by requireAuth.
func userFromContext(ctx context.Context) *domain.User {
	u, _ := ctx.Value(authCtxKey{}).(*domain.User)
	return u
}

// requireAuth accepts either a bearer token from the credential login path
// or Ed25519 signature headers over the request body and timestamp.
func requireAuth(st *store.Store, tokens *auth.TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
				userID, err := tokens.Verify(strings.TrimPrefix(header, "Bearer "))
				if err != nil {
					writeError(w, http.StatusUnauthorized, "invalid or expired token")
					return
				}
				user, err := st.Users().GetByID(r.Context(), userID)
				if err != nil {
					writeError(w, http.StatusUnauthorized, "unknown identity")
					return
				}
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), authCtxKey{}, user)))
				return
			}

			publicKey := r.Header.Get("X-Public-Key")
			signature := r.Header.Get("X-Signature")
			timestamp := r.Header.Get("X-Timestamp")
			if publicKey == "" || signature == "" || timestamp == "" {
				writeError(w, http.StatusUnauthorized, "missing auth headers")
				return
			}
			if err := auth.CheckTimestamp(timestamp, time.Now(), auth.ReplayWindow); err != nil {
				writeError(w, http.StatusUnauthorized, "request expired")
				return
			}

			// The signature covers body + ":" + timestamp; GET requests sign
			// an empty body.
			var body []byte
			if r.Method != http.MethodGet && r.Body != nil {
				var err error
				body, err = io.ReadAll(r.Body)
				if err != nil {
					writeError(w, http.StatusBadRequest, "unreadable body")
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}
			payload := append(body, ':')
			payload = append(payload, timestamp...)
			if err := auth.VerifySignature(publicKey, signature, payload); err != nil {
				writeError(w, http.StatusUnauthorized, "invalid signature")
				return
			}

			user, err := st.Users().GetByPublicKey(r.Context(), publicKey)
			if err != nil {
				if errors.Is(err, store.ErrRecordNotFound) {
					writeError(w, http.StatusUnauthorized, "unknown identity")
					return
				}
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), authCtxKey{}, user)))
		})
	}
}
