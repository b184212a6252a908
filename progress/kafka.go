package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rustyeddy/forecaster/pkg/logger"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events as JSON, keyed by phase.
type KafkaSink struct {
	w       messageWriter
	topic   string
	timeout time.Duration
	log     *logger.Logger
}

// NewKafkaSink writes to topic on the given brokers.
func NewKafkaSink(brokers []string, topic string, l *logger.Logger) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		BatchTimeout: 100 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}
	return &KafkaSink{w: w, topic: topic, timeout: 5 * time.Second, log: l}, nil
}

func (s *KafkaSink) Emit(ctx context.Context, ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		s.log.Warn("progress event not encodable", logger.String("phase", ev.Phase), logger.Error(err))
		return
	}
	wctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.w.WriteMessages(wctx, kafka.Message{Key: []byte(ev.Phase), Value: b, Time: ev.Time}); err != nil {
		s.log.Warn("progress publish failed", logger.String("topic", s.topic), logger.String("phase", ev.Phase), logger.Error(err))
	}
}

func (s *KafkaSink) Close() error {
	return s.w.Close()
}
