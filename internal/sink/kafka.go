package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/config"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/model"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaSink struct {
	w       messageWriter
	timeout time.Duration
}

// NewKafka writes one JSON message per event, keyed by event id.
func NewKafka(cfg config.KafkaConfig) Sink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 250 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{ClientID: cfg.ClientID},
	}
	return &kafkaSink{w: w, timeout: defaultTimeout(cfg.Timeout)}
}

func (k *kafkaSink) Name() string { return "kafka" }

func (k *kafkaSink) Push(ctx context.Context, events []model.ShutdownEvent) error {
	if len(events) == 0 {
		return nil
	}
	now := time.Now().UTC()
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		body, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", e.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.ID),
			Value: body,
			Time:  now,
			Headers: []kafka.Header{
				{Key: "source_type", Value: []byte(e.SourceType)},
			},
		})
	}

	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	return k.w.WriteMessages(ctx, msgs...)
}

func (k *kafkaSink) Close() error { return k.w.Close() }

func defaultTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}
