package annotate

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/eyereview/gazepipe/internal/config"
	"github.com/eyereview/gazepipe/internal/gaze"
)

// KafkaPublisher hands decisions to the annotation manager over Kafka.
// Writes are async fire-and-forget: the pipeline never waits on the
// manager, and the decision's provenance is already retained locally.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher returns nil when no decisions topic is configured.
func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	topic, ok := cfg.Topics["decisions"]
	if !ok || len(cfg.Brokers) == 0 {
		return nil
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              1,
		BatchTimeout:           time.Millisecond * 10,
		Async:                  true,
		AllowAutoTopicCreation: true,
	}
	log.Info().Str("topic", topic).Msg("Decision publisher initialized")
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, d gaze.AnnotationDecision) {
	payload := map[string]interface{}{
		"decision_id":    d.ID.String(),
		"fixation_id":    d.FixationID.String(),
		"channel":        d.Channel,
		"channel_index":  d.ChannelIndex,
		"start_time":     d.StartTime,
		"end_time":       d.EndTime,
		"quality":        d.Quality,
		"category":       string(d.Category),
		"gaze_generated": d.Provenance.GazeGenerated,
		"created_at":     d.CreatedAt.UnixMilli(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal decision")
		return
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(d.Channel),
		Value: data,
	}); err != nil {
		log.Error().Err(err).Str("decision_id", d.ID.String()).Msg("Failed to publish decision")
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
