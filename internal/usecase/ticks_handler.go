package usecase

import (
	"context"
	"encoding/json"
	"time"

	"TradeFuse/internal/domain/models"
	domrepo "TradeFuse/internal/domain/repository"
	pkgkafka "TradeFuse/pkg/kafka"
)

// KafkaTicksHandler consumes the raw tick topic and writes to storage,
// decoupling ingestion latency from ClickHouse insert latency.
type KafkaTicksHandler struct {
	topic   string
	storage domrepo.Storage
	metrics domrepo.Metrics
}

// NewKafkaTicksHandler creates the handler.
func NewKafkaTicksHandler(topic string, storage domrepo.Storage, metrics domrepo.Metrics) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, t, b, a, c, v}
func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol string  `json:"symbol"`
		T      int64   `json:"t"`
		B      float64 `json:"b"`
		A      float64 `json:"a"`
		C      float64 `json:"c"`
		V      float64 `json:"v"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}

	h.metrics.RecordLatency("ingest_e2e", time.Since(time.UnixMilli(m.T)).Seconds())

	start := time.Now()
	err := h.storage.StoreTick(ctx, &models.Tick{
		Symbol:    m.Symbol,
		Timestamp: m.T,
		Bid:       m.B,
		Ask:       m.A,
		Last:      m.C,
		Volume:    m.V,
	})
	h.metrics.RecordLatency("ch_insert", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
