// Package events publishes scored-attempt events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"reading-fluency-go/internal/logger"
	"reading-fluency-go/internal/metrics"
	"reading-fluency-go/internal/types"
)

const EventAttemptScored = "attempt.scored"

// AttemptScored is the event emitted once per processed attempt. It carries no
// audio or raw transcription.
type AttemptScored struct {
	EventType string          `json:"eventType"`
	AttemptID string          `json:"attemptId"`
	UserID    string          `json:"userId"`
	CohortID  string          `json:"cohortId"`
	TestType  types.TestType  `json:"testType"`
	IsCorrect *bool           `json:"isCorrect"`
	Accuracy  *float64        `json:"accuracy"`
	ErrorType types.ErrorKind `json:"errorType,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

func NewAttemptScored(a types.AttemptResult) AttemptScored {
	return AttemptScored{
		EventType: EventAttemptScored,
		AttemptID: a.ID,
		UserID:    a.UserID,
		CohortID:  a.CohortID,
		TestType:  a.TestType,
		IsCorrect: a.IsCorrect,
		Accuracy:  a.Accuracy,
		ErrorType: a.ErrorType,
		Timestamp: a.CreatedAt.UnixMilli(),
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	Brokers []string
	Topic   string
	Enabled bool
}

// Publisher writes events keyed by user id. Without brokers it only logs.
type Publisher struct {
	writer  messageWriter
	topic   string
	enabled bool
	metrics *metrics.Metrics
}

func New(cfg Config, m *metrics.Metrics) *Publisher {
	log := logger.New().WithComponent("events")
	if m == nil {
		m = metrics.DefaultMetrics
	}
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info("kafka disabled, using log-only mode")
		return &Publisher{topic: cfg.Topic, metrics: m}
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}
	log.WithField("brokers", cfg.Brokers).WithField("topic", cfg.Topic).Info("kafka publisher initialized")
	return &Publisher{writer: w, topic: cfg.Topic, enabled: true, metrics: m}
}

func (p *Publisher) PublishAttempt(ctx context.Context, a types.AttemptResult) error {
	ev := NewAttemptScored(a)
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	log := logger.New().WithComponent("events").WithField("topic", p.topic).WithField("attempt_id", a.ID)
	log.WithField("payload", string(payload)).Debug("publishing event")

	if !p.enabled || p.writer == nil {
		p.metrics.RecordPublish(nil)
		return nil
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(a.UserID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(EventAttemptScored)},
		},
	})
	p.metrics.RecordPublish(err)
	if err != nil {
		log.WithField("error", err.Error()).Error("failed to write to kafka")
		return err
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
