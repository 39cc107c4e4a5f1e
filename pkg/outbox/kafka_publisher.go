package outbox

import (
	"context"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/dcbengine/dcbengine/pkg/dcb"
)

// KafkaPublisher delivers events to a Kafka topic via a *kafka.Writer,
// keying each message by the event's first tag (if any) so related
// events land on the same partition. Grounded on correlator-io-correlator's
// go.mod dependency on github.com/segmentio/kafka-go, the only pack repo
// depending on it — wired here so the outbox's pluggable-sink story
// includes a real external broker, not only in-process stubs.
type KafkaPublisher struct {
	name   string
	writer *kafka.Writer
}

// NewKafkaPublisher creates a KafkaPublisher writing to kafkaTopic on the
// given brokers.
func NewKafkaPublisher(name string, brokers []string, kafkaTopic string) *KafkaPublisher {
	return &KafkaPublisher{
		name: name,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  kafkaTopic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *KafkaPublisher) Name() string { return p.name }

func (p *KafkaPublisher) Publish(ctx context.Context, topic string, event dcb.Event) error {
	return p.PublishBatch(ctx, topic, []dcb.Event{event})
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, topic string, events []dcb.Event) error {
	if len(events) == 0 {
		return nil
	}
	messages := make([]kafka.Message, len(events))
	for i, e := range events {
		var key []byte
		if len(e.Tags) > 0 {
			key = []byte(e.Tags[0].Key + ":" + e.Tags[0].Value)
		}
		messages[i] = kafka.Message{
			Key:   key,
			Value: e.Data,
			Headers: []kafka.Header{
				{Key: "event-type", Value: []byte(e.Type)},
				{Key: "outbox-topic", Value: []byte(topic)},
				{Key: "transaction-id", Value: []byte(strconv.FormatUint(e.TransactionID, 10))},
			},
		}
	}
	return p.writer.WriteMessages(ctx, messages...)
}

func (p *KafkaPublisher) Healthy(ctx context.Context) bool {
	return p.writer != nil
}

// Close releases the underlying Kafka connection.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
