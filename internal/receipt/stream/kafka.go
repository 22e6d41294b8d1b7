package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"veto/internal/platform/config"
	"veto/internal/receipt/models"
)

// KafkaPublisher produces receipts to a Kafka topic keyed by pointer ID, so
// each pointer's receipts stay ordered within one partition.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

// NewKafkaPublisher builds a producer for cfg. It does not contact the
// brokers until the first produce.
func NewKafkaPublisher(cfg config.KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka publisher requires a topic")
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordPartitioner(kgo.StickyKeyPartitioner(nil)),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, topic: cfg.Topic}, nil
}

// Publish produces r synchronously.
func (p *KafkaPublisher) Publish(ctx context.Context, r *models.Receipt) error {
	value, err := Encode(r)
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(r.PointerID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "operation", Value: []byte(r.Operation)},
			{Key: "signature_algorithm", Value: []byte(r.SignatureAlgorithm)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce receipt %s: %w", r.ID, err)
	}
	return nil
}

// EnsureTopic creates the receipt topic if it does not exist yet.
func (p *KafkaPublisher) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	admin := kadm.NewClient(p.client)
	resp, err := admin.CreateTopic(ctx, partitions, replicationFactor, nil, p.topic)
	if err == nil {
		err = resp.Err
	}
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes buffered records and closes the client.
func (p *KafkaPublisher) Close(ctx context.Context) error {
	err := p.client.Flush(ctx)
	p.client.Close()
	return err
}
