// Package consumer reads login events from Kafka and forwards them to the
// long-term sinks (Loki, the login_events table).
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"userbot-connect/internal/telemetry"
	"userbot-connect/internal/telemetry/domain"
)

// DefaultSinkTimeout bounds a single forward to the sinks.
const DefaultSinkTimeout = 10 * time.Second

// ErrMalformed is returned by Handle for payloads that are not events.
var ErrMalformed = errors.New("consumer: malformed event payload")

// Reader is the part of *kafka.Reader the consumer uses.
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// RawPusher receives payloads that could not be decoded (e.g. *loki.Client).
type RawPusher interface {
	PushEventJSON(ctx context.Context, raw []byte) error
}

// Consumer forwards every event read from a Reader to a sink.
type Consumer struct {
	reader      Reader
	sink        telemetry.EventEmitter
	raw         RawPusher
	sinkTimeout time.Duration
}

// New returns a consumer. raw may be nil, in which case malformed payloads are dropped.
func New(reader Reader, sink telemetry.EventEmitter, raw RawPusher) *Consumer {
	return &Consumer{reader: reader, sink: sink, raw: raw, sinkTimeout: DefaultSinkTimeout}
}

// NewKafkaReader returns a group reader for topic.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
}

// Run consumes until ctx is done. Read and sink errors are logged and the
// loop continues.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("worker: kafka read error: %v", err)
			continue
		}
		if err := c.Handle(ctx, msg); err != nil {
			log.Printf("worker: message at offset %d: %v", msg.Offset, err)
		}
	}
}

// Handle decodes one message and forwards it to the sink.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) error {
	ctx, cancel := context.WithTimeout(ctx, c.sinkTimeout)
	defer cancel()

	ev, err := decode(msg.Value)
	if err != nil {
		if c.raw != nil {
			if perr := c.raw.PushEventJSON(ctx, msg.Value); perr != nil {
				return errors.Join(err, perr)
			}
		}
		return err
	}
	return c.sink.Emit(ctx, ev)
}

func decode(raw []byte) (*domain.Event, error) {
	var ev domain.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if ev.ID == "" || ev.EventType == "" {
		return nil, fmt.Errorf("%w: missing id or event type", ErrMalformed)
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	return &ev, nil
}
