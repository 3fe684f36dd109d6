package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/segmentio/kafka-go"

	"fuelwatch/internal/config"
)

// KafkaPublisher mirrors broker events onto a kafka topic so subscribers in
// other processes can consume the same change feed.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewKafkaPublisher(cfg config.FeedKafkaConfig, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.Topic,
			Balancer: &kafka.LeastBytes{},
		},
		logger: logger,
	}
}

// Publish is best effort: a broker outage must not affect ingestion.
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Entity),
		Value: payload,
	})
	if err != nil && p.logger != nil {
		p.logger.Warn("feed kafka publish error", "err", err, "entity", ev.Entity, "kind", ev.Kind)
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// kafkaSource adapts a kafka topic into a Source. One reader per
// subscription; events for other entities are filtered out.
type kafkaSource struct {
	reader *kafka.Reader
	entity Entity
	events chan Event
	status chan Status
	cancel context.CancelFunc
	logger *slog.Logger
	once   sync.Once
	done   chan struct{}
}

func NewKafkaSource(cfg config.FeedKafkaConfig, entity Entity, logger *slog.Logger) Source {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	ctx, cancel := context.WithCancel(context.Background())
	s := &kafkaSource{
		reader: reader,
		entity: entity,
		events: make(chan Event, 64),
		status: make(chan Status, 4),
		cancel: cancel,
		logger: logger,
		done:   make(chan struct{}),
	}
	s.pushStatus(StatusSubscribed)
	go s.run(ctx)
	return s
}

func (s *kafkaSource) Events() <-chan Event    { return s.events }
func (s *kafkaSource) Statuses() <-chan Status { return s.status }

func (s *kafkaSource) Close() {
	s.once.Do(func() {
		s.cancel()
		_ = s.reader.Close()
		<-s.done
		s.pushStatus(StatusClosed)
		close(s.status)
		close(s.events)
	})
}

func (s *kafkaSource) pushStatus(st Status) {
	select {
	case s.status <- st:
	default:
	}
}

func (s *kafkaSource) run(ctx context.Context) {
	defer close(s.done)
	for {
		m, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if s.logger != nil {
				s.logger.Warn("feed kafka read error", "err", err)
			}
			s.pushStatus(StatusError)
			return
		}
		var ev Event
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			if s.logger != nil {
				s.logger.Warn("feed kafka decode error", "err", err)
			}
			continue
		}
		if ev.Entity != s.entity {
			continue
		}
		select {
		case s.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}
