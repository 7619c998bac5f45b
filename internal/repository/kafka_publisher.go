package repository

import (
	"context"

	"TradeFuse/internal/domain/models"
	domrepo "TradeFuse/internal/domain/repository"
	pkgkafka "TradeFuse/pkg/kafka"
)

// KafkaPublisher implements Publisher over two topics: raw ticks and fused
// decisions. Messages are keyed by symbol so per-symbol ordering survives
// partitioning.
type KafkaPublisher struct {
	producer    *pkgkafka.Producer
	ticksTopic  string
	eventsTopic string
}

// NewKafkaPublisher creates the publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, ticksTopic, eventsTopic string) domrepo.Publisher {
	return &KafkaPublisher{
		producer:    producer,
		ticksTopic:  ticksTopic,
		eventsTopic: eventsTopic,
	}
}

func (p *KafkaPublisher) PublishTick(ctx context.Context, t *models.Tick) error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Publish(ctx, p.ticksTopic, []byte(t.Symbol), map[string]interface{}{
		"symbol": t.Symbol,
		"t":      t.Timestamp,
		"b":      t.Bid,
		"a":      t.Ask,
		"c":      t.Last,
		"v":      t.Volume,
	})
}

func (p *KafkaPublisher) PublishDecision(ctx context.Context, d *models.Decision) error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Publish(ctx, p.eventsTopic, []byte(d.Symbol), d)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
