package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eyereview/gazepipe/internal/gaze"
)

type Config struct {
	Session    SessionConfig    `yaml:"session"`
	Source     SourceConfig     `yaml:"source"`
	Filter     FilterConfig     `yaml:"filter"`
	Fixation   FixationConfig   `yaml:"fixation"`
	Annotation AnnotationConfig `yaml:"annotation"`
	Scroll     ScrollConfig     `yaml:"scroll"`
	Viewport   ViewportConfig   `yaml:"viewport"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Redis      RedisConfig      `yaml:"redis"`
	Batch      BatchConfig      `yaml:"batch"`
}

type SessionConfig struct {
	ID string `yaml:"id"`
	// Total duration of the loaded recording in seconds.
	TotalDurationSec float64 `yaml:"total_duration_sec"`
	QueueCapacity    int     `yaml:"queue_capacity"`
}

type SourceConfig struct {
	// Kind selects the sample source backend: mock, kafka or websocket.
	Kind string `yaml:"kind"`

	Mock      MockSourceConfig      `yaml:"mock"`
	WebSocket WebSocketSourceConfig `yaml:"websocket"`
}

type MockSourceConfig struct {
	RateHz     int   `yaml:"rate_hz"`
	Seed       int64 `yaml:"seed"`
	DurationMs int64 `yaml:"duration_ms"`
}

type WebSocketSourceConfig struct {
	URL string `yaml:"url"`
}

type FilterConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	SmoothingAlpha      float64 `yaml:"smoothing_alpha"`
	SmoothingBeta       float64 `yaml:"smoothing_beta"`
	MedianWindow        int     `yaml:"median_window"`
	OutlierSigma        float64 `yaml:"outlier_sigma"`
	OutlierHalfLifeMs   int64   `yaml:"outlier_half_life_ms"`
	// Drop rate over the rolling window that flags degraded signal quality.
	LossRateThreshold float64 `yaml:"loss_rate_threshold"`
	LossWindowMs      int64   `yaml:"loss_window_ms"`
}

type FixationConfig struct {
	SpatialThresholdPx float64 `yaml:"spatial_threshold_px"`
	TemporalWindowMs   int64   `yaml:"temporal_window_ms"`
}

type AnnotationConfig struct {
	QualityMinimum   float64          `yaml:"quality_minimum"`
	StabilityWeight  float64          `yaml:"stability_weight"`
	ConfidenceWeight float64          `yaml:"confidence_weight"`
	ContextWeight    float64          `yaml:"context_weight"`
	CooldownMs       int64            `yaml:"cooldown_ms"`
	HalfWindowSec    float64          `yaml:"half_window_sec"`
	Calibration      gaze.Calibration `yaml:"calibration"`
}

type ScrollConfig struct {
	CadenceMs int64 `yaml:"cadence_ms"`
	GraceMs   int64 `yaml:"grace_ms"`
	// Fraction of the window kept visible across an advance.
	OverlapFraction float64 `yaml:"overlap_fraction"`
}

// ViewportConfig describes the host viewer geometry used to build the
// initial viewport snapshot. A real host pushes updates at runtime; the
// standalone binary simulates one from these values.
type ViewportConfig struct {
	DisplayWidthPx  float64  `yaml:"display_width_px"`
	DisplayHeightPx float64  `yaml:"display_height_px"`
	DisplayOffsetX  float64  `yaml:"display_offset_x"`
	DisplayOffsetY  float64  `yaml:"display_offset_y"`
	PlotOriginX     float64  `yaml:"plot_origin_x"`
	PlotOriginY     float64  `yaml:"plot_origin_y"`
	PlotWidthPx     float64  `yaml:"plot_width_px"`
	PlotHeightPx    float64  `yaml:"plot_height_px"`
	Channels        []string `yaml:"channels"`
	WindowSec       float64  `yaml:"window_sec"`
}

// Snapshot builds the initial viewport context.
func (v ViewportConfig) Snapshot() gaze.ViewportContext {
	return gaze.ViewportContext{
		TimeWindowStart:     0,
		TimeWindowDuration:  v.WindowSec,
		ChannelOrder:        v.Channels,
		ChannelBandHeightPx: v.PlotHeightPx / float64(len(v.Channels)),
		PlotOriginX:         v.PlotOriginX,
		PlotOriginY:         v.PlotOriginY,
		PlotWidthPx:         v.PlotWidthPx,
		PlotHeightPx:        v.PlotHeightPx,
		DisplayWidthPx:      v.DisplayWidthPx,
		DisplayHeightPx:     v.DisplayHeightPx,
		DisplayOffsetX:      v.DisplayOffsetX,
		DisplayOffsetY:      v.DisplayOffsetY,
	}
}

type KafkaConfig struct {
	Brokers       []string          `yaml:"brokers"`
	Topics        map[string]string `yaml:"topics"`
	ConsumerGroup string            `yaml:"consumer_group"`
}

type ClickHouseConfig struct {
	Addr         string `yaml:"addr"`
	Database     string `yaml:"database"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type BatchConfig struct {
	Size          int           `yaml:"size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills zero values and clamps out-of-range options back to
// the documented defaults. Invalid configuration never fails a session.
func (cfg *Config) ApplyDefaults() {
	if cfg.Session.QueueCapacity <= 0 {
		cfg.Session.QueueCapacity = 256
	}
	if cfg.Session.TotalDurationSec <= 0 {
		cfg.Session.TotalDurationSec = 60
	}

	if cfg.Source.Kind == "" {
		cfg.Source.Kind = "mock"
	}
	if cfg.Source.Mock.RateHz < 30 || cfg.Source.Mock.RateHz > 120 {
		cfg.Source.Mock.RateHz = 60
	}

	if cfg.Filter.ConfidenceThreshold <= 0 || cfg.Filter.ConfidenceThreshold > 1 {
		cfg.Filter.ConfidenceThreshold = 0.70
	}
	if cfg.Filter.SmoothingAlpha <= 0 || cfg.Filter.SmoothingAlpha > 1 {
		cfg.Filter.SmoothingAlpha = 0.6
	}
	if cfg.Filter.SmoothingBeta <= 0 || cfg.Filter.SmoothingBeta > 1 {
		cfg.Filter.SmoothingBeta = 0.2
	}
	if cfg.Filter.MedianWindow < 3 || cfg.Filter.MedianWindow > 31 {
		cfg.Filter.MedianWindow = 5
	}
	if cfg.Filter.MedianWindow%2 == 0 {
		cfg.Filter.MedianWindow++
	}
	if cfg.Filter.OutlierSigma <= 0 {
		cfg.Filter.OutlierSigma = 2.0
	}
	if cfg.Filter.OutlierHalfLifeMs <= 0 {
		cfg.Filter.OutlierHalfLifeMs = 1000
	}
	if cfg.Filter.LossRateThreshold <= 0 || cfg.Filter.LossRateThreshold > 1 {
		cfg.Filter.LossRateThreshold = 0.5
	}
	if cfg.Filter.LossWindowMs <= 0 {
		cfg.Filter.LossWindowMs = 1000
	}

	if cfg.Fixation.SpatialThresholdPx <= 0 {
		cfg.Fixation.SpatialThresholdPx = 50
	}
	if cfg.Fixation.TemporalWindowMs <= 0 {
		cfg.Fixation.TemporalWindowMs = 1000
	}

	if cfg.Annotation.QualityMinimum <= 0 || cfg.Annotation.QualityMinimum > 1 {
		cfg.Annotation.QualityMinimum = 0.4
	}
	if cfg.Annotation.StabilityWeight <= 0 {
		cfg.Annotation.StabilityWeight = 0.35
	}
	if cfg.Annotation.ConfidenceWeight <= 0 {
		cfg.Annotation.ConfidenceWeight = 0.30
	}
	if cfg.Annotation.ContextWeight <= 0 {
		cfg.Annotation.ContextWeight = 0.35
	}
	if cfg.Annotation.CooldownMs <= 0 {
		cfg.Annotation.CooldownMs = 2000
	}
	if !cfg.Annotation.Calibration.Valid() {
		cfg.Annotation.Calibration = gaze.DefaultCalibration()
	}

	if cfg.Scroll.CadenceMs < 500 {
		cfg.Scroll.CadenceMs = 2500
	}
	if cfg.Scroll.GraceMs <= 0 {
		cfg.Scroll.GraceMs = 2000
	}
	if cfg.Scroll.OverlapFraction < 0 || cfg.Scroll.OverlapFraction >= 1 {
		cfg.Scroll.OverlapFraction = 0.1
	}

	if cfg.Viewport.DisplayWidthPx <= 0 {
		cfg.Viewport.DisplayWidthPx = 1920
	}
	if cfg.Viewport.DisplayHeightPx <= 0 {
		cfg.Viewport.DisplayHeightPx = 1080
	}
	if cfg.Viewport.PlotWidthPx <= 0 {
		cfg.Viewport.PlotWidthPx = 1600
	}
	if cfg.Viewport.PlotHeightPx <= 0 {
		cfg.Viewport.PlotHeightPx = 800
	}
	if len(cfg.Viewport.Channels) == 0 {
		cfg.Viewport.Channels = []string{
			"Fp1", "Fp2", "F3", "F4", "C3", "C4", "P3", "P4",
			"O1", "O2", "F7", "F8", "T3", "T4", "T5", "T6",
		}
	}
	if cfg.Viewport.WindowSec <= 0 {
		cfg.Viewport.WindowSec = 10
	}

	if cfg.ClickHouse.MaxOpenConns == 0 {
		cfg.ClickHouse.MaxOpenConns = 10
	}
	if cfg.ClickHouse.MaxIdleConns == 0 {
		cfg.ClickHouse.MaxIdleConns = 5
	}
	if cfg.Batch.Size == 0 {
		cfg.Batch.Size = 500
	}
	if cfg.Batch.FlushInterval == 0 {
		cfg.Batch.FlushInterval = 5 * time.Second
	}
}
