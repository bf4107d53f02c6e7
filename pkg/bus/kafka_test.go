package bus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/osetrov/messenger/pkg/model"
)

// scriptedReader plays back a fixed sequence of reads, then blocks until the
// context ends.
type scriptedReader struct {
	steps []func() (kafka.Message, error)
}

func (r *scriptedReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.steps) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	step := r.steps[0]
	r.steps = r.steps[1:]
	return step()
}

func eventMessage(t *testing.T, ev model.Event) kafka.Message {
	t.Helper()
	value, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{Value: value}
}

func TestConsumeRetriesAfterReadError(t *testing.T) {
	oldBackoff := readRetryBackoff
	readRetryBackoff = time.Millisecond
	defer func() { readRetryBackoff = oldBackoff }()

	reader := &scriptedReader{steps: []func() (kafka.Message, error){
		func() (kafka.Message, error) { return kafka.Message{}, errors.New("broker hiccup") },
		func() (kafka.Message, error) {
			return eventMessage(t, model.Event{Type: model.EventTyping, ChatID: "c1", UserID: "alice"}), nil
		},
	}}

	got := make(chan model.Event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		consume(ctx, reader, func(ev model.Event) { got <- ev })
	}()

	select {
	case ev := <-got:
		if ev.Type != model.EventTyping || ev.UserID != "alice" {
			t.Fatalf("bad event after retry: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("consumer gave up after a read error")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop on cancellation")
	}
}

func TestConsumeSkipsMalformedPayloads(t *testing.T) {
	reader := &scriptedReader{steps: []func() (kafka.Message, error){
		func() (kafka.Message, error) { return kafka.Message{Value: []byte("{not json")}, nil },
		func() (kafka.Message, error) {
			return eventMessage(t, model.Event{Type: model.EventInfo, Text: "ok"}), nil
		},
	}}

	got := make(chan model.Event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go consume(ctx, reader, func(ev model.Event) { got <- ev })

	select {
	case ev := <-got:
		if ev.Type != model.EventInfo || ev.Text != "ok" {
			t.Fatalf("bad event after malformed payload: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("consumer stopped on a malformed payload")
	}
}
