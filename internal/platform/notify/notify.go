// Package notify publishes "alert created" events to integrations. It is a
// hook for downstream consumers, not a delivery channel to patients.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// AlertEvent is the payload emitted once per newly created alert.
type AlertEvent struct {
	AlertID       uuid.UUID          `json:"alertId"`
	PatientID     uuid.UUID          `json:"patientId"`
	AlertDate     string             `json:"alertDate"`
	AlertKind     string             `json:"alertKind"`
	DailyAverage  float64            `json:"dailyAverage"`
	ExceededLines map[string]float64 `json:"exceededLines"`
	CreatedAt     time.Time          `json:"createdAt"`
}

type Publisher interface {
	Publish(ctx context.Context, events ...AlertEvent) error
	Close() error
}

// LogPublisher writes events to the structured log.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "alert-events").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, events ...AlertEvent) error {
	for _, ev := range events {
		p.logger.Info().
			Str("alert_id", ev.AlertID.String()).
			Str("patient_id", ev.PatientID.String()).
			Str("alert_date", ev.AlertDate).
			Str("alert_kind", ev.AlertKind).
			Float64("daily_average", ev.DailyAverage).
			Interface("exceeded_lines", ev.ExceededLines).
			Msg("alert created")
	}
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per event, keyed by patient id so a
// patient's events stay ordered within a partition.
type KafkaPublisher struct {
	w messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 2 * time.Second,
		MaxAttempts:  3,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...AlertEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		value, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode alert event %s: %w", ev.AlertID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.PatientID.String()),
			Value: value,
			Headers: []kafka.Header{
				{Key: "event-type", Value: []byte("score_alert.created")},
				{Key: "alert-kind", Value: []byte(ev.AlertKind)},
			},
			Time: ev.CreatedAt,
		})
	}
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write alert events: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
