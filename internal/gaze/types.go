package gaze

import (
	"time"

	"github.com/google/uuid"
)

// ChannelNone marks a mapped point that falls outside every channel band.
const ChannelNone = -1

// RawSample is a single gaze measurement as delivered by the device.
// Coordinates are normalized to the display area, timestamps are
// monotonic microseconds.
type RawSample struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
	Timestamp  int64   `json:"timestamp_us"`
}

// MappedPoint is a sample expressed in screen pixels and domain
// (time offset, channel) coordinates of the viewer.
type MappedPoint struct {
	ScreenX    float64
	ScreenY    float64
	DomainTime float64 // seconds relative to recording start
	Channel    int     // index into ViewportContext.ChannelOrder, or ChannelNone
	Confidence float64
	Timestamp  int64 // microseconds, carried from the raw sample
}

// Calibration holds the per-operator offset and scale correction applied
// in the device-to-screen stage. Values outside the accepted ranges make
// the calibration invalid and it is ignored.
type Calibration struct {
	OffsetX float64 `yaml:"offset_x"`
	OffsetY float64 `yaml:"offset_y"`
	ScaleX  float64 `yaml:"scale_x"`
	ScaleY  float64 `yaml:"scale_y"`
}

// Valid reports whether the calibration can be applied safely.
func (c Calibration) Valid() bool {
	return c.OffsetX > -1000 && c.OffsetX < 1000 &&
		c.OffsetY > -1000 && c.OffsetY < 1000 &&
		c.ScaleX >= 0.5 && c.ScaleX <= 2.0 &&
		c.ScaleY >= 0.5 && c.ScaleY <= 2.0
}

// DefaultCalibration is the identity transform.
func DefaultCalibration() Calibration {
	return Calibration{ScaleX: 1, ScaleY: 1}
}

// ViewportContext is an immutable snapshot of the host viewer's visible
// window and plot geometry. The pipeline never mutates a snapshot; the
// host pushes a fresh one whenever the view changes.
type ViewportContext struct {
	TimeWindowStart    float64
	TimeWindowDuration float64

	ChannelOrder        []string
	ChannelBandHeightPx float64

	PlotOriginX  float64
	PlotOriginY  float64
	PlotWidthPx  float64
	PlotHeightPx float64

	DisplayWidthPx  float64
	DisplayHeightPx float64
	// Additive multi-monitor offset of the display in the virtual desktop.
	DisplayOffsetX float64
	DisplayOffsetY float64
}

// ChannelName resolves a channel index, returning "" when out of range.
func (v ViewportContext) ChannelName(idx int) string {
	if idx < 0 || idx >= len(v.ChannelOrder) {
		return ""
	}
	return v.ChannelOrder[idx]
}

// Fixation is a period of stable gaze. It is mutable while the detector
// tracks it and immutable once emitted with a FixationEnd event.
type Fixation struct {
	ID          uuid.UUID
	StartUS     int64
	EndUS       int64
	CentroidX   float64 // screen pixels
	CentroidY   float64
	DomainTime  float64 // centroid time offset in seconds
	Channel     int
	ChannelName string

	DispersionPx   float64
	SampleCount    int
	MeanConfidence float64
	Stability      float64 // 1 - normalized dispersion, in [0,1]
}

// DurationMS is the fixation length in milliseconds.
func (f Fixation) DurationMS() int64 {
	return (f.EndUS - f.StartUS) / 1000
}

// FixationEventKind enumerates detector state machine outputs.
type FixationEventKind int

const (
	FixationBegin FixationEventKind = iota
	FixationProgress
	FixationEnd
)

func (k FixationEventKind) String() string {
	switch k {
	case FixationBegin:
		return "begin"
	case FixationProgress:
		return "progress"
	case FixationEnd:
		return "end"
	}
	return "unknown"
}

// FixationEvent is a typed detector output carrying a fixation snapshot.
type FixationEvent struct {
	Kind     FixationEventKind
	Fixation Fixation
}

// Category classifies an annotation decision.
type Category string

const (
	CategorySpikeLike    Category = "spike_like"
	CategoryArtifactLike Category = "artifact_like"
	CategoryGeneric      Category = "generic"
	CategoryRejected     Category = "rejected"
)

// ContextSummary is the clinical-significance summary returned by the
// external context analyzer for a (channel, time range) query.
type ContextSummary struct {
	Significance  float64 `json:"significance"`
	SpikeScore    float64 `json:"spike_score"`
	ArtifactScore float64 `json:"artifact_score"`
}

// Provenance records how a decision was produced, retained for audit
// regardless of what the annotation manager does with it.
type Provenance struct {
	GazeGenerated  bool
	DurationMS     int64
	Stability      float64
	MeanConfidence float64
	DispersionPx   float64
	Significance   float64
	SpikeScore     float64
	ArtifactScore  float64
}

// AnnotationDecision is produced at most once per ended fixation and is
// never mutated after creation.
type AnnotationDecision struct {
	ID           uuid.UUID
	FixationID   uuid.UUID
	Channel      string
	ChannelIndex int
	StartTime    float64
	EndTime      float64
	Quality      float64
	Category     Category
	Provenance   Provenance
	CreatedAt    time.Time
}

// ScrollMode enumerates auto-scroll controller states.
type ScrollMode int

const (
	ScrollStopped ScrollMode = iota
	ScrollAdvancing
	ScrollPaused
	ScrollCompleted
)

func (m ScrollMode) String() string {
	switch m {
	case ScrollStopped:
		return "stopped"
	case ScrollAdvancing:
		return "advancing"
	case ScrollPaused:
		return "paused"
	case ScrollCompleted:
		return "completed"
	}
	return "unknown"
}

// PauseReason explains why the controller is paused.
type PauseReason int

const (
	PauseNone PauseReason = iota
	PauseFixation
	PauseManual
)

func (r PauseReason) String() string {
	switch r {
	case PauseFixation:
		return "fixation"
	case PauseManual:
		return "manual"
	}
	return "none"
}

// ScrollProgress is emitted to the host viewer with each state change or
// window advance.
type ScrollProgress struct {
	Mode           ScrollMode
	PauseReason    PauseReason
	TimeOffset     float64
	TotalDuration  float64
	ElapsedWindows int
	Percent        float64
}

// SignalQuality is the pipeline health condition surfaced to the caller.
type SignalQuality int

const (
	SignalOK SignalQuality = iota
	SignalDegraded
)

func (q SignalQuality) String() string {
	if q == SignalDegraded {
		return "degraded"
	}
	return "ok"
}
