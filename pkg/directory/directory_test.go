package directory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/osetrov/messenger/pkg/apperr"
	"github.com/osetrov/messenger/pkg/auth"
	"github.com/osetrov/messenger/pkg/model"
)

func TestGetChat(t *testing.T) {
	tokens := auth.New("test-secret")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Errorf("missing service token on %s", r.URL.Path)
		}
		switch r.URL.Path {
		case "/chats/c1":
			json.NewEncoder(w).Encode(model.Chat{
				ID:             "c1",
				Kind:           "group",
				Name:           "team",
				ParticipantIDs: []string{"alice", "bob"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, tokens)

	chat, err := c.GetChat(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if chat.Name != "team" || !chat.HasParticipant("bob") || chat.HasParticipant("mallory") {
		t.Fatalf("bad chat: %+v", chat)
	}

	if _, err := c.GetChat(context.Background(), "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestGetChatFailsClosed(t *testing.T) {
	tokens := auth.New("test-secret")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	c := NewClient(srv.URL, tokens)
	if _, err := c.GetChat(context.Background(), "c1"); !errors.Is(err, apperr.ErrUnavailable) {
		t.Fatalf("5xx: got %v, want ErrUnavailable", err)
	}
	srv.Close()

	// Connection refused after Close: still ErrUnavailable, never a silent pass.
	if _, err := c.GetChat(context.Background(), "c1"); !errors.Is(err, apperr.ErrUnavailable) {
		t.Fatalf("refused: got %v, want ErrUnavailable", err)
	}
}
