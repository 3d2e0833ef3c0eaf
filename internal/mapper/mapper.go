// Package mapper converts device-normalized gaze coordinates into the
// viewer's domain coordinates (time offset, channel index).
//
// Every function here is pure: the ViewportContext argument is a snapshot
// taken by the caller, so concurrent calls are safe as long as snapshots
// are passed by value.
package mapper

import (
	"github.com/eyereview/gazepipe/internal/gaze"
)

// Map runs the full transformation chain for one raw sample:
// device-normalized -> screen pixel -> viewport-local -> domain.
// It returns false when the sample lands outside the plot area.
func Map(raw gaze.RawSample, cal gaze.Calibration, ctx gaze.ViewportContext) (gaze.MappedPoint, bool) {
	sx, sy := ToScreen(raw.X, raw.Y, cal, ctx)

	p := gaze.MappedPoint{
		ScreenX:    sx,
		ScreenY:    sy,
		Confidence: raw.Confidence,
		Timestamp:  raw.Timestamp,
	}
	return Rebind(p, ctx)
}

// ToScreen converts device-normalized coordinates to screen pixels,
// applying the display offset and the operator calibration.
func ToScreen(nx, ny float64, cal gaze.Calibration, ctx gaze.ViewportContext) (float64, float64) {
	sx := nx*ctx.DisplayWidthPx + ctx.DisplayOffsetX
	sy := ny*ctx.DisplayHeightPx + ctx.DisplayOffsetY

	if cal.Valid() {
		sx = sx*cal.ScaleX + cal.OffsetX
		sy = sy*cal.ScaleY + cal.OffsetY
	}
	return sx, sy
}

// Rebind recomputes the domain coordinates of a point from its screen
// position against a viewport snapshot. The filter pipeline adjusts screen
// positions, so the session rebinds each point after filtering.
// Returns false when the point is outside the plot bounds.
func Rebind(p gaze.MappedPoint, ctx gaze.ViewportContext) (gaze.MappedPoint, bool) {
	localX := p.ScreenX - ctx.PlotOriginX
	localY := p.ScreenY - ctx.PlotOriginY

	if ctx.PlotWidthPx <= 0 || ctx.PlotHeightPx <= 0 {
		return p, false
	}
	if localX < 0 || localX >= ctx.PlotWidthPx || localY < 0 || localY >= ctx.PlotHeightPx {
		return p, false
	}

	p.DomainTime = ctx.TimeWindowStart + (localX/ctx.PlotWidthPx)*ctx.TimeWindowDuration
	p.Channel = channelAt(localY, ctx)
	return p, true
}

// FromDomain maps domain coordinates back to screen pixels. The center of
// the channel band is used for the vertical position. Used by overlays and
// by the round-trip tests.
func FromDomain(domainTime float64, channel int, ctx gaze.ViewportContext) (float64, float64, bool) {
	if ctx.TimeWindowDuration <= 0 || channel < 0 || channel >= len(ctx.ChannelOrder) {
		return 0, 0, false
	}

	frac := (domainTime - ctx.TimeWindowStart) / ctx.TimeWindowDuration
	if frac < 0 || frac > 1 {
		return 0, 0, false
	}

	sx := ctx.PlotOriginX + frac*ctx.PlotWidthPx
	sy := ctx.PlotOriginY + (float64(channel)+0.5)*ctx.ChannelBandHeightPx
	return sx, sy, true
}

func channelAt(localY float64, ctx gaze.ViewportContext) int {
	if ctx.ChannelBandHeightPx <= 0 {
		return gaze.ChannelNone
	}
	idx := int(localY / ctx.ChannelBandHeightPx)
	if idx < 0 || idx >= len(ctx.ChannelOrder) {
		return gaze.ChannelNone
	}
	return idx
}
