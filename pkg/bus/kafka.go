package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/osetrov/messenger/pkg/model"
)

// Kafka is the multi-instance bus. Each hub consumes with a unique group id
// so every instance sees every event (broadcast, not work-sharing).
type Kafka struct {
	producer *kafka.Writer
	consumer *kafka.Reader
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewKafka(brokers []string, topic string, handler Handler) *Kafka {
	producer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}

	consumer := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     "hub-" + time.Now().Format("20060102150405.000000000"),
		StartOffset: kafka.LastOffset,
		MinBytes:    10e3,
		MaxBytes:    10e6,
	})

	ctx, cancel := context.WithCancel(context.Background())
	k := &Kafka{
		producer: producer,
		consumer: consumer,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go func() {
		defer close(k.done)
		consume(ctx, consumer, handler)
	}()

	return k
}

// messageReader is the consuming side of a broker connection.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

var readRetryBackoff = 1 * time.Second

// consume delivers events to the handler until the context ends. A broker
// error must not end fanout for this instance, so reads are retried after a
// backoff.
func consume(ctx context.Context, r messageReader, handler Handler) {
	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("bus consumer error: %v. Retrying in %s...", err, readRetryBackoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(readRetryBackoff):
			}
			continue
		}

		var ev model.Event
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			log.Printf("bus: failed to unmarshal event: %v", err)
			continue
		}
		handler(ev)
	}
}

func (k *Kafka) Publish(ctx context.Context, ev model.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("bus publish: %w", err)
	}
	if err := k.producer.WriteMessages(ctx, kafka.Message{
		Value: value,
		Time:  time.Now(),
	}); err != nil {
		return fmt.Errorf("bus publish: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	k.cancel()
	k.consumer.Close()
	<-k.done
	return k.producer.Close()
}
