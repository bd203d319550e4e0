package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/IBM/sarama"

	"convtrack/api/models"
)

// KafkaChannel publishes canonical events to the warehouse topic. Messages
// are keyed by event id so replays of the same conversion land on the same
// partition.
type KafkaChannel struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaChannel(brokers []string, topic string) (*KafkaChannel, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_6_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	log.Println("Kafka warehouse channel initialized")
	return &KafkaChannel{producer: producer, topic: topic}, nil
}

func (k *KafkaChannel) Name() string { return "kafka" }

func (k *KafkaChannel) Send(_ context.Context, event *models.CanonicalEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(event.EventID),
		Value: sarama.ByteEncoder(payload),
	}

	if _, _, err := k.producer.SendMessage(message); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (k *KafkaChannel) Close() error {
	if err := k.producer.Close(); err != nil {
		return fmt.Errorf("failed to close producer: %w", err)
	}
	return nil
}

var _ Channel = (*KafkaChannel)(nil)
