package source

import (
	"context"
	"encoding/json"

	"github.com/mdobak/go-xerrors"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/eyereview/gazepipe/internal/config"
	"github.com/eyereview/gazepipe/internal/gaze"
)

// Kafka consumes raw samples published by a device gateway to a topic.
type Kafka struct {
	reader *kafka.Reader
}

func NewKafka(cfg config.KafkaConfig) (*Kafka, error) {
	topic := cfg.Topics["samples"]
	if topic == "" {
		topic = "gazepipe.samples.raw"
	}
	if len(cfg.Brokers) == 0 {
		return nil, xerrors.New("kafka sample source requires brokers")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    1e6,
		StartOffset: kafka.LastOffset,
	})

	return &Kafka{reader: reader}, nil
}

func (k *Kafka) Run(ctx context.Context, emit func(gaze.RawSample)) error {
	defer k.reader.Close()

	log.Info().
		Str("topic", k.reader.Config().Topic).
		Str("group", k.reader.Config().GroupID).
		Msg("Kafka sample source started")

	for {
		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// The broker link is the device link here: losing it ends
			// the session rather than silently stalling.
			return xerrors.New("sample stream lost", err)
		}

		var s gaze.RawSample
		if err := json.Unmarshal(msg.Value, &s); err != nil {
			log.Error().Err(err).Str("value", string(msg.Value)).Msg("Failed to parse sample")
		} else {
			emit(s)
		}

		if err := k.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Failed to commit sample offset")
		}
	}
}
