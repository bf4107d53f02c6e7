package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/osetrov/messenger/pkg/apperr"
	"github.com/osetrov/messenger/pkg/auth"
	"github.com/osetrov/messenger/pkg/presence"
	"github.com/osetrov/messenger/pkg/store"
)

type api struct {
	messages      store.Messages
	notifications store.Notifications
	presence      presence.Store
	tokens        *auth.Tokens
}

func (a *api) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	// Public endpoint. The identity provider is an external collaborator in
	// production; this issues dev tokens the same way the rest of the system
	// consumes them.
	r.Post("/login", a.login)

	r.Group(func(r chi.Router) {
		r.Use(a.tokens.Middleware)
		r.Get("/messages/chat/{chatId}", a.chatHistory)
		r.Get("/messages/since/{timestampMs}", a.messagesSince)
		r.Get("/users/online/{userId}", a.userOnline)
		r.Post("/notifications/markread", a.markRead)
	})

	return r
}

type loginRequest struct {
	UserID string `json:"user_id"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	token, err := a.tokens.Generate(req.UserID)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, loginResponse{Token: token})
}

func (a *api) chatHistory(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatId")

	messages, err := a.messages.ListByChat(r.Context(), chatID)
	if err != nil {
		log.Printf("history for chat %s: %v", chatID, err)
		http.Error(w, "Failed to retrieve history", http.StatusInternalServerError)
		return
	}
	writeJSON(w, messages)
}

// messagesSince feeds the reconciler: every message stamped strictly after
// the given unix-millisecond timestamp.
func (a *api) messagesSince(w http.ResponseWriter, r *http.Request) {
	ms, err := strconv.ParseInt(chi.URLParam(r, "timestampMs"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid timestamp", http.StatusBadRequest)
		return
	}

	messages, err := a.messages.ListSince(r.Context(), time.UnixMilli(ms))
	if err != nil {
		log.Printf("messages since %d: %v", ms, err)
		http.Error(w, "Failed to retrieve messages", http.StatusInternalServerError)
		return
	}
	writeJSON(w, messages)
}

func (a *api) userOnline(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	online, err := a.presence.IsOnline(r.Context(), userID)
	if err != nil {
		log.Printf("online check for %s: %v", userID, err)
		http.Error(w, "Failed to check presence", http.StatusInternalServerError)
		return
	}
	writeJSON(w, online)
}

type markReadRequest struct {
	ChatID     string  `json:"chat_id"`
	MessageIDs []int64 `json:"message_ids"`
}

type markReadResponse struct {
	Marked int `json:"marked"`
}

// markRead flips the caller's notification records for the given messages.
// Ids without a record are skipped: a message read before the reconciler
// observed it simply never escalates.
func (a *api) markRead(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	now := time.Now()
	marked := 0
	for _, messageID := range req.MessageIDs {
		err := a.notifications.MarkRead(r.Context(), messageID, claims.UserID, now)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			log.Printf("mark read (%d,%s): %v", messageID, claims.UserID, err)
			http.Error(w, "Failed to mark read", http.StatusInternalServerError)
			return
		}
		marked++
	}
	writeJSON(w, markReadResponse{Marked: marked})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
