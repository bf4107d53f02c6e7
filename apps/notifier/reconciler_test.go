package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/osetrov/messenger/pkg/apperr"
	"github.com/osetrov/messenger/pkg/model"
	"github.com/osetrov/messenger/pkg/presence"
	"github.com/osetrov/messenger/pkg/snowflake"
	"github.com/osetrov/messenger/pkg/store"
)

type fakeDirectory struct {
	chats map[string]*model.Chat
	err   error
}

func (d *fakeDirectory) GetChat(_ context.Context, chatID string) (*model.Chat, error) {
	if d.err != nil {
		return nil, d.err
	}
	chat, ok := d.chats[chatID]
	if !ok {
		return nil, fmt.Errorf("chat %s: %w", chatID, apperr.ErrNotFound)
	}
	return chat, nil
}

type fakeSender struct {
	mu    sync.Mutex
	sends []string // recipient ids, in send order
	err   error
}

func (f *fakeSender) Send(_ context.Context, recipientID, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sends = append(f.sends, recipientID)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

type reconcilerFixture struct {
	r             *Reconciler
	messages      *store.MemoryMessages
	notifications *store.MemoryNotifications
	checkpoint    *store.MemoryCheckpoint
	presence      *presence.Memory
	dir           *fakeDirectory
	sender        *fakeSender
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatal(err)
	}
	ps := presence.NewMemory(time.Minute)
	t.Cleanup(ps.Close)

	f := &reconcilerFixture{
		messages:      store.NewMemoryMessages(node),
		notifications: store.NewMemoryNotifications(),
		presence:      ps,
		dir: &fakeDirectory{chats: map[string]*model.Chat{
			"c1": {ID: "c1", Kind: "group", ParticipantIDs: []string{"alice", "bob"}},
		}},
		sender:     &fakeSender{},
		checkpoint: store.NewMemoryCheckpoint(time.Time{}),
	}
	f.r = NewReconciler(f.messages, f.notifications, f.checkpoint,
		f.dir, ps, f.sender, time.Second, 5*time.Minute)
	return f
}

func (f *reconcilerFixture) atOffset(d time.Duration) {
	f.r.now = func() time.Time { return time.Now().Add(d) }
}

func TestIngestCreatesDedupedRecords(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	msg, _ := f.messages.Append(ctx, "c1", "alice", "hi")

	if err := f.r.runOnce(ctx); err != nil {
		t.Fatal(err)
	}
	// Rewind the checkpoint so the same message is read again; the per-pair
	// dedup must absorb the overlap without a duplicate record.
	if err := f.checkpoint.Save(ctx, time.Time{}); err != nil {
		t.Fatal(err)
	}
	if err := f.r.runOnce(ctx); err != nil {
		t.Fatal(err)
	}

	rec, err := f.notifications.Get(ctx, msg.ID, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if rec.IsEmailSent || rec.IsRead || !rec.SentTimestamp.Equal(msg.Timestamp) {
		t.Fatalf("bad record: %+v", rec)
	}

	// The sender never notifies itself.
	if _, err := f.notifications.Get(ctx, msg.ID, "alice"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound for sender record", err)
	}
}

func TestEscalationWaitsForDelayAndSendsOnce(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	f.messages.Append(ctx, "c1", "alice", "hi")

	// Inside the delay window: record exists but no email yet.
	f.atOffset(4 * time.Minute)
	if err := f.r.runOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if f.sender.count() != 0 {
		t.Fatalf("email sent before the delay elapsed: %v", f.sender.sends)
	}

	// Past the delay with bob still offline: exactly one email.
	f.atOffset(6 * time.Minute)
	if err := f.r.runOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if f.sender.count() != 1 || f.sender.sends[0] != "bob" {
		t.Fatalf("got sends %v, want exactly one to bob", f.sender.sends)
	}

	// A later poll must not send again.
	if err := f.r.runOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if f.sender.count() != 1 {
		t.Fatalf("duplicate email: %v", f.sender.sends)
	}
}

func TestEscalationSkipsOnlineRecipient(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	f.messages.Append(ctx, "c1", "alice", "hi")
	if err := f.r.runOnce(ctx); err != nil {
		t.Fatal(err)
	}

	// Bob comes online during the delay window; the check happens at
	// escalation time, so he is skipped and the record stays claimable.
	f.presence.Connect(ctx, "bob", "conn1")
	f.atOffset(6 * time.Minute)
	if err := f.r.runOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if f.sender.count() != 0 {
		t.Fatalf("emailed an online recipient: %v", f.sender.sends)
	}

	// He drops offline again: now the email goes out.
	f.presence.Disconnect(ctx, "conn1")
	if err := f.r.runOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if f.sender.count() != 1 {
		t.Fatalf("got %d sends, want 1", f.sender.count())
	}
}

func TestMarkReadSuppressesEmail(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	msg, _ := f.messages.Append(ctx, "c1", "alice", "hi")
	if err := f.r.runOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if err := f.notifications.MarkRead(ctx, msg.ID, "bob", time.Now()); err != nil {
		t.Fatal(err)
	}

	f.atOffset(6 * time.Minute)
	if err := f.r.runOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if f.sender.count() != 0 {
		t.Fatalf("emailed a read notification: %v", f.sender.sends)
	}
}

func TestDirectoryFailureRetriesFromSameCheckpoint(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	msg, _ := f.messages.Append(ctx, "c1", "alice", "hi")

	f.dir.err = fmt.Errorf("directory down: %w", apperr.ErrUnavailable)
	if err := f.r.runOnce(ctx); err == nil {
		t.Fatal("expected an iteration error while the directory is down")
	}
	if _, err := f.notifications.Get(ctx, msg.ID, "bob"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("no record should exist yet, got %v", err)
	}

	// Next tick: directory is back and the same message is picked up again.
	f.dir.err = nil
	if err := f.r.runOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := f.notifications.Get(ctx, msg.ID, "bob"); err != nil {
		t.Fatalf("record missing after retry: %v", err)
	}
}

// stubMessages serves a fixed log so tests can pin exact timestamps.
type stubMessages struct {
	msgs []model.Message
}

func (s *stubMessages) Append(context.Context, string, string, string) (*model.Message, error) {
	return nil, apperr.ErrInvalidState
}

func (s *stubMessages) Get(_ context.Context, messageID int64) (*model.Message, error) {
	for i := range s.msgs {
		if s.msgs[i].ID == messageID {
			return &s.msgs[i], nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (s *stubMessages) Edit(context.Context, int64, string, string) (*model.Message, error) {
	return nil, apperr.ErrInvalidState
}

func (s *stubMessages) Delete(context.Context, int64, string) (*model.Message, error) {
	return nil, apperr.ErrInvalidState
}

func (s *stubMessages) ListByChat(_ context.Context, chatID string) ([]model.Message, error) {
	var out []model.Message
	for _, m := range s.msgs {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *stubMessages) ListSince(_ context.Context, since time.Time) ([]model.Message, error) {
	var out []model.Message
	for _, m := range s.msgs {
		if m.Timestamp.After(since) {
			out = append(out, m)
		}
	}
	return out, nil
}

func TestFailureInSharedMillisecondIsRetried(t *testing.T) {
	ctx := context.Background()
	ts := time.Now().Truncate(time.Millisecond)

	// Two messages stamped in the same millisecond; the second one's chat is
	// unknown to the directory for the first tick.
	msgs := &stubMessages{msgs: []model.Message{
		{ID: 1, ChatID: "c1", SenderID: "alice", Content: "a", Timestamp: ts},
		{ID: 2, ChatID: "c2", SenderID: "alice", Content: "b", Timestamp: ts},
	}}
	dir := &fakeDirectory{chats: map[string]*model.Chat{
		"c1": {ID: "c1", Kind: "group", ParticipantIDs: []string{"alice", "bob"}},
	}}
	notifications := store.NewMemoryNotifications()
	ps := presence.NewMemory(time.Minute)
	t.Cleanup(ps.Close)

	r := NewReconciler(msgs, notifications, store.NewMemoryCheckpoint(time.Time{}),
		dir, ps, &fakeSender{}, time.Second, 5*time.Minute)

	if err := r.runOnce(ctx); err == nil {
		t.Fatal("expected an iteration error for the unknown chat")
	}
	if _, err := notifications.Get(ctx, 1, "bob"); err != nil {
		t.Fatalf("record for the message before the failure is missing: %v", err)
	}

	// The chat appears; the failed message must come back despite sharing its
	// timestamp with an already processed one.
	dir.chats["c2"] = &model.Chat{ID: "c2", Kind: "group", ParticipantIDs: []string{"alice", "bob"}}
	if err := r.runOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := notifications.Get(ctx, 2, "bob"); err != nil {
		t.Fatalf("record for the retried message is missing: %v", err)
	}
}

func TestSendFailureDoesNotDuplicate(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	msg, _ := f.messages.Append(ctx, "c1", "alice", "hi")
	if err := f.r.runOnce(ctx); err != nil {
		t.Fatal(err)
	}

	f.sender.err = errors.New("smtp down")
	f.atOffset(6 * time.Minute)
	if err := f.r.runOnce(ctx); err != nil {
		t.Fatal(err)
	}

	// The claim stuck before the failed send, so the record is spent; a
	// retry never turns into a duplicate email.
	f.sender.err = nil
	if err := f.r.runOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if f.sender.count() != 0 {
		t.Fatalf("claimed record was re-sent: %v", f.sender.sends)
	}
	rec, _ := f.notifications.Get(ctx, msg.ID, "bob")
	if !rec.IsEmailSent {
		t.Fatalf("claim did not stick: %+v", rec)
	}
}
