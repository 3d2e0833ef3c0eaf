package storage

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"

	"github.com/eyereview/gazepipe/internal/config"
)

type ClickHouse struct {
	conn driver.Conn
}

// FixationRow is the analytics record for every ended fixation, whether
// or not it produced an annotation decision.
type FixationRow struct {
	FixationID     uuid.UUID
	SessionID      string
	Channel        string
	ChannelIndex   int32
	StartTime      time.Time
	DurationMs     uint64
	DomainTime     float64
	DispersionPx   float64
	SampleCount    uint32
	MeanConfidence float64
	Stability      float64
	Quality        float64
	Accepted       uint8
}

// DecisionRow is the audit record of an emitted annotation decision.
type DecisionRow struct {
	DecisionID   uuid.UUID
	FixationID   uuid.UUID
	SessionID    string
	Channel      string
	ChannelIndex int32
	StartSec     float64
	EndSec       float64
	Quality      float64
	Category     string
	Significance float64
	CreatedAt    time.Time
}

// SessionRow summarizes one review session.
type SessionRow struct {
	SessionID        string
	StartedAt        time.Time
	EndedAt          time.Time
	DurationMs       uint64
	SamplesTotal     uint64
	SamplesDropped   uint64
	QueueDrops       uint64
	Fixations        uint32
	Decisions        uint32
	DegradedSeconds  uint32
	CompletedWindows uint32
}

func NewClickHouse(cfg config.ClickHouseConfig) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, err
	}

	return &ClickHouse{conn: conn}, nil
}

func (c *ClickHouse) InsertFixations(ctx context.Context, rows []FixationRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO fixations (
			fixation_id, session_id, channel, channel_index,
			start_time, duration_ms, domain_time,
			dispersion_px, sample_count, mean_confidence, stability,
			quality, accepted
		)
	`)
	if err != nil {
		return err
	}

	for _, r := range rows {
		err := batch.Append(
			r.FixationID, r.SessionID, r.Channel, r.ChannelIndex,
			r.StartTime, r.DurationMs, r.DomainTime,
			r.DispersionPx, r.SampleCount, r.MeanConfidence, r.Stability,
			r.Quality, r.Accepted,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

func (c *ClickHouse) InsertDecisions(ctx context.Context, rows []DecisionRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO decisions (
			decision_id, fixation_id, session_id,
			channel, channel_index, start_sec, end_sec,
			quality, category, significance, created_at
		)
	`)
	if err != nil {
		return err
	}

	for _, r := range rows {
		err := batch.Append(
			r.DecisionID, r.FixationID, r.SessionID,
			r.Channel, r.ChannelIndex, r.StartSec, r.EndSec,
			r.Quality, r.Category, r.Significance, r.CreatedAt,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

func (c *ClickHouse) UpsertSession(ctx context.Context, s SessionRow) error {
	return c.conn.Exec(ctx, `
		INSERT INTO sessions (
			session_id, started_at, ended_at, duration_ms,
			samples_total, samples_dropped, queue_drops,
			fixations, decisions, degraded_seconds, completed_windows
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.SessionID, s.StartedAt, s.EndedAt, s.DurationMs,
		s.SamplesTotal, s.SamplesDropped, s.QueueDrops,
		s.Fixations, s.Decisions, s.DegradedSeconds, s.CompletedWindows,
	)
}

func (c *ClickHouse) Close() error {
	return c.conn.Close()
}
