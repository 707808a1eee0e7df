package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/lalith-99/brokerguard/internal/observ"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// KafkaPublisher produces events to one topic keyed by tenant, so a
// tenant's events stay ordered within a partition.
type KafkaPublisher struct {
	client  *kgo.Client
	logger  *zap.Logger
	metrics *observ.Metrics
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger, metrics *observ.Metrics) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ClientID(observ.ServiceName),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, logger: logger, metrics: metrics}, nil
}

// Publish hands the record to the client's buffer and returns. Delivery
// failures surface in the produce callback.
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) {
	value, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("failed to encode audit event", zap.String("type", string(ev.Type)), zap.Error(err))
		p.metrics.IncAuditDropped("kafka")
		return
	}

	rec := &kgo.Record{
		Key:   []byte(strconv.FormatInt(ev.TenantID, 10)),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}
	p.client.Produce(context.WithoutCancel(ctx), rec, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Warn("audit event not delivered to kafka",
				zap.String("type", string(ev.Type)),
				zap.Int64("tenant_id", ev.TenantID),
				zap.Error(err))
			p.metrics.IncAuditDropped("kafka")
		}
	})
}

// Close flushes buffered records and closes the client.
func (p *KafkaPublisher) Close(ctx context.Context) error {
	defer p.client.Close()
	if err := p.client.Flush(ctx); err != nil {
		return fmt.Errorf("flush kafka: %w", err)
	}
	return nil
}
