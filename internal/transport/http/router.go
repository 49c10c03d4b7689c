package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"e2ee-relay/internal/auth"
	"e2ee-relay/internal/pow"
	"e2ee-relay/internal/service"
	"e2ee-relay/internal/store"
)

type Deps struct {
	Store    *store.Store
	Accounts *service.Accounts
	Contacts *service.Contacts
	Pow      *pow.Engine
	Tokens   *auth.TokenIssuer
	WS       http.Handler

	CORSOrigins []string
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	c := cors.Options{
		AllowedOrigins:   originsIfSet(d.CORSOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Public-Key", "X-Signature", "X-Timestamp"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	r.Use(cors.Handler(c))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/ws", d.WS)

	r.Route("/api", func(r chi.Router) {
		r.Post("/pow/challenge", handlePowChallenge(d.Pow))

		r.With(httprate.LimitByIP(5, time.Minute)).
			Post("/register", handleRegister(d.Accounts))
		r.With(httprate.LimitByIP(10, time.Minute)).
			Post("/login", handleLogin(d.Accounts))

		r.Post("/recover", handleRecover(d.Accounts))
		r.Post("/generate-name", handleGenerateName(d.Accounts))

		r.Route("/contacts", func(r chi.Router) {
			r.Use(requireAuth(d.Store, d.Tokens))
			r.Get("/", handleListContacts(d.Contacts))
			r.Get("/requests", handleListRequests(d.Contacts))
			r.Post("/add", handleAddContact(d.Contacts))
			r.Post("/accept", handleAcceptContact(d.Contacts))
			r.Post("/reject", handleRejectContact(d.Contacts))
		})
	})

	return r
}

func originsIfSet(origins []string) []string {
	cleaned := origins[:0]
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			cleaned = append(cleaned, o)
		}
	}
	if len(cleaned) == 0 {
		return []string{"*"}
	}
	return cleaned
}

func handlePowChallenge(engine *pow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Action string `json:"action"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Action == "" {
			writeError(w, http.StatusBadRequest, "action is required")
			return
		}
		ch, err := engine.Issue(req.Action)
		if err != nil {
			slog.Error("pow challenge issue failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, ch)
	}
}

func handleRegister(accounts *service.Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Challenge     string `json:"challenge"`
			Nonce         string `json:"nonce"`
			PublicKey     string `json:"publicKey"`
			ChatPublicKey string `json:"chatPublicKey"`
			DisplayName   string `json:"displayName"`
			Username      string `json:"username"`
			Password      string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad request")
			return
		}
		out, err := accounts.Register(r.Context(), service.RegisterInput{
			Challenge:     req.Challenge,
			Nonce:         req.Nonce,
			PublicKey:     req.PublicKey,
			ChatPublicKey: req.ChatPublicKey,
			DisplayName:   req.DisplayName,
			Username:      req.Username,
			Password:      req.Password,
		})
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrPowFailed):
				writeError(w, http.StatusBadRequest, err.Error())
			case errors.Is(err, service.ErrConflict):
				writeError(w, http.StatusConflict, err.Error())
			default:
				slog.Error("registration failed", "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
			return
		}
		slog.Info("account registered", "user_id", out.ID)
		writeJSON(w, http.StatusCreated, out)
	}
}

func handleLogin(accounts *service.Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad request")
			return
		}
		token, err := accounts.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			if errors.Is(err, service.ErrInvalidCredentials) {
				writeError(w, http.StatusUnauthorized, "invalid credentials")
				return
			}
			slog.Error("login failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": token})
	}
}

func handleRecover(accounts *service.Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PublicKey string `json:"publicKey"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad request")
			return
		}
		profile, err := accounts.Recover(r.Context(), req.PublicKey)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidRequest):
				writeError(w, http.StatusBadRequest, "public key is required")
			case errors.Is(err, service.ErrNotFound):
				writeError(w, http.StatusNotFound, "identity not found")
			default:
				slog.Error("recover failed", "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

func handleGenerateName(accounts *service.Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, err := accounts.GenerateName(r.Context())
		if err != nil {
			slog.Error("name generation failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to generate name")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"name": name})
	}
}

func handleListContacts(contacts *service.Contacts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFromContext(r.Context())
		list, err := contacts.ListAccepted(r.Context(), user.ID)
		if err != nil {
			slog.Error("list contacts failed", "user_id", user.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"contacts": list})
	}
}

func handleListRequests(contacts *service.Contacts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFromContext(r.Context())
		list, err := contacts.ListPendingIncoming(r.Context(), user.ID)
		if err != nil {
			slog.Error("list requests failed", "user_id", user.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"requests": list})
	}
}

func handleAddContact(contacts *service.Contacts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFromContext(r.Context())
		var req struct {
			ContactCode string `json:"contactCode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ContactCode == "" {
			writeError(w, http.StatusBadRequest, "contact code is required")
			return
		}
		err := contacts.Request(r.Context(), user.ID, req.ContactCode)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrCodeNotFound):
				writeError(w, http.StatusNotFound, "contact code not found")
			case errors.Is(err, service.ErrSelfContact):
				writeError(w, http.StatusBadRequest, "cannot add yourself as a contact")
			case errors.Is(err, service.ErrContactExists):
				writeError(w, http.StatusConflict, "contact relationship already exists")
			default:
				slog.Error("contact request failed", "user_id", user.ID, "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
	}
}

func handleAcceptContact(contacts *service.Contacts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFromContext(r.Context())
		requesterID, ok := decodeUserID(w, r)
		if !ok {
			return
		}
		if err := contacts.Accept(r.Context(), user.ID, requesterID); err != nil {
			if errors.Is(err, service.ErrNotFound) {
				writeError(w, http.StatusNotFound, "no pending request from this user")
				return
			}
			slog.Error("contact accept failed", "user_id", user.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
	}
}

func handleRejectContact(contacts *service.Contacts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFromContext(r.Context())
		requesterID, ok := decodeUserID(w, r)
		if !ok {
			return
		}
		if err := contacts.Reject(r.Context(), user.ID, requesterID); err != nil {
			slog.Error("contact reject failed", "user_id", user.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
	}
}

func decodeUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "requester userId is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid userId")
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
