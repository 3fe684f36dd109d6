package ingest

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"fuelwatch/internal/config"
)

// StartKafka consumes sensor readings from a topic, one JSON object per
// message, and runs each through the same validate/dispatch path as the
// REST endpoint. Transport-level auth is the broker's concern here.
func StartKafka(ctx context.Context, cfg *config.Manager, dispatcher *Dispatcher, logger *slog.Logger) {
	current := cfg.Get().Ingest.Kafka
	if !current.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", current.Brokers, "topic", current.Topic, "group_id", current.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  current.Brokers,
		Topic:    current.Topic,
		GroupID:  current.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("kafka read error", "err", err)
				}
				continue
			}
			var obj map[string]any
			if err := json.Unmarshal(m.Value, &obj); err != nil {
				if logger != nil {
					logger.Warn("kafka reading decode error", "err", err)
				}
				continue
			}
			res := dispatcher.ProcessRaw(ctx, []map[string]any{obj})
			if len(res.Errors) > 0 && logger != nil {
				for _, e := range res.Errors {
					logger.Warn("kafka reading rejected", "station_code", e.StationCode, "error", e.Error)
				}
			}
		}
	}()
}
