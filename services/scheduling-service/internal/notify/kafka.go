package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/schedcore/libs/kafkax"
)

// KafkaNotifier publishes notification events to the collaborator's topics,
// one topic per kind, keyed by appointment id so per-appointment ordering is
// preserved across partitions.
type KafkaNotifier struct {
	writer *kafka.Writer
}

func NewKafkaNotifier(brokers string) *KafkaNotifier {
	list := kafkax.SplitBrokers(brokers)
	if len(list) == 0 {
		return nil
	}
	return &KafkaNotifier{
		writer: kafka.NewWriter(kafka.WriterConfig{
			Brokers:  list,
			Balancer: &kafka.Hash{},
		}),
	}
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

func (n *KafkaNotifier) Notify(ctx context.Context, note Notification) error {
	payload, err := json.Marshal(map[string]any{
		"participant_id":  note.ParticipantID,
		"appointment_id":  note.AppointmentID,
		"professional_id": note.ProfessionalID,
		"kind":            string(note.Kind),
		"start_time":      note.Start.UTC().Format(time.RFC3339),
		"end_time":        note.End.UTC().Format(time.RFC3339),
		"detail":          note.Detail,
		"emitted_at":      time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: note.Kind.Topic(),
		Key:   []byte(note.AppointmentID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(uuid.NewString())},
			{Key: "event_type", Value: []byte(note.Kind.Topic())},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)
	return n.writer.WriteMessages(ctx, msg)
}
