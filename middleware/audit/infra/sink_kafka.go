package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"risk-gateway/middleware/audit/domain"

	"github.com/segmentio/kafka-go"
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaSink publica um evento JSON por registro. A chave é o IP do cliente,
// então os eventos de um mesmo cliente ficam na mesma partição.
type KafkaSink struct {
	writer kafkaWriter
}

func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("kafka topic required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaSink{writer: w}, nil
}

func (s *KafkaSink) Write(ctx context.Context, rec domain.Record) error {
	if s == nil || s.writer == nil {
		return domain.ErrSinkClosed
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rec.ClientIP),
		Value: raw,
		Time:  rec.Timestamp,
		Headers: []kafka.Header{
			{Key: "severity", Value: []byte(rec.Severity)},
		},
	})
}

func (s *KafkaSink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
