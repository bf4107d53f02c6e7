package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/osetrov/messenger/pkg/auth"
	"github.com/osetrov/messenger/pkg/model"
	"github.com/osetrov/messenger/pkg/presence"
	"github.com/osetrov/messenger/pkg/snowflake"
	"github.com/osetrov/messenger/pkg/store"
)

type apiFixture struct {
	srv           *httptest.Server
	tokens        *auth.Tokens
	messages      *store.MemoryMessages
	notifications *store.MemoryNotifications
	presence      *presence.Memory
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatal(err)
	}
	ps := presence.NewMemory(time.Minute)
	t.Cleanup(ps.Close)

	messages := store.NewMemoryMessages(node)
	notifications := store.NewMemoryNotifications()
	a := &api{
		messages:      messages,
		notifications: notifications,
		presence:      ps,
		tokens:        auth.New("test-secret"),
	}
	srv := httptest.NewServer(a.routes())
	t.Cleanup(srv.Close)

	return &apiFixture{
		srv:           srv,
		tokens:        a.tokens,
		messages:      messages,
		notifications: notifications,
		presence:      ps,
	}
}

func (f *apiFixture) do(t *testing.T, method, path, userID string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if userID != "" {
		token, err := f.tokens.Generate(userID)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAuthRequired(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.do(t, http.MethodGet, "/messages/chat/c1", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401", resp.StatusCode)
	}
}

func TestLoginAndHistory(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	resp := f.do(t, http.MethodPost, "/login", "", map[string]string{"user_id": "alice"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d", resp.StatusCode)
	}
	var lr struct {
		Token string `json:"token"`
	}
	json.NewDecoder(resp.Body).Decode(&lr)
	if lr.Token == "" {
		t.Fatal("empty token from login")
	}

	f.messages.Append(ctx, "c1", "alice", "one")
	f.messages.Append(ctx, "c2", "bob", "other chat")
	f.messages.Append(ctx, "c1", "bob", "two")

	resp = f.do(t, http.MethodGet, "/messages/chat/c1", "alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status %d", resp.StatusCode)
	}
	var msgs []model.Message
	json.NewDecoder(resp.Body).Decode(&msgs)
	if len(msgs) != 2 || msgs[0].Content != "one" || msgs[1].Content != "two" {
		t.Fatalf("bad history: %v", msgs)
	}
}

func TestMessagesSince(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	first, _ := f.messages.Append(ctx, "c1", "alice", "early")
	time.Sleep(5 * time.Millisecond)
	f.messages.Append(ctx, "c1", "alice", "late")

	path := fmt.Sprintf("/messages/since/%d", first.Timestamp.UnixMilli())
	resp := f.do(t, http.MethodGet, path, "svc", nil)
	var msgs []model.Message
	json.NewDecoder(resp.Body).Decode(&msgs)
	if len(msgs) != 1 || msgs[0].Content != "late" {
		t.Fatalf("bad since feed: %v", msgs)
	}

	resp = f.do(t, http.MethodGet, "/messages/since/nonsense", "svc", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", resp.StatusCode)
	}
}

func TestUserOnline(t *testing.T) {
	f := newAPIFixture(t)
	f.presence.Connect(context.Background(), "alice", "conn1")

	for _, tc := range []struct {
		user string
		want string
	}{
		{"alice", "true"},
		{"ghost", "false"},
	} {
		resp := f.do(t, http.MethodGet, "/users/online/"+tc.user, "svc", nil)
		var body bytes.Buffer
		body.ReadFrom(resp.Body)
		if got := strings.TrimSpace(body.String()); got != tc.want {
			t.Fatalf("online %s: got %q, want %q", tc.user, got, tc.want)
		}
	}
}

func TestMarkRead(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	f.notifications.Create(ctx, model.NotificationRecord{
		ID: "n1", MessageID: 7, ChatID: "c1", SenderID: "alice",
		RecipientID: "bob", SentTimestamp: time.Now(),
	})

	// 7 has a record; 8 has none and is skipped. Recipient comes from the
	// token, so bob marks his own records.
	resp := f.do(t, http.MethodPost, "/notifications/markread", "bob", markReadRequest{
		ChatID:     "c1",
		MessageIDs: []int64{7, 8},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("markread status %d", resp.StatusCode)
	}
	var mr markReadResponse
	json.NewDecoder(resp.Body).Decode(&mr)
	if mr.Marked != 1 {
		t.Fatalf("got marked=%d, want 1", mr.Marked)
	}

	rec, err := f.notifications.Get(ctx, 7, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if !rec.IsRead {
		t.Fatalf("record not marked read: %+v", rec)
	}
}
