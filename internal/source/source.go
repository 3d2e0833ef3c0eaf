// Package source provides the pluggable Sample Source backends that push
// raw gaze samples into a session.
package source

import (
	"context"

	"github.com/mdobak/go-xerrors"

	"github.com/eyereview/gazepipe/internal/config"
	"github.com/eyereview/gazepipe/internal/gaze"
)

// Source streams raw samples at device rate. Run blocks until the stream
// ends: a nil return is a clean end-of-stream, a non-nil error is the
// hardware-loss terminal signal, and ctx cancellation returns nil.
type Source interface {
	Run(ctx context.Context, emit func(gaze.RawSample)) error
}

// New selects a backend from the configuration.
func New(cfg *config.Config) (Source, error) {
	switch cfg.Source.Kind {
	case "mock":
		return NewMock(cfg.Source.Mock), nil
	case "kafka":
		return NewKafka(cfg.Kafka)
	case "websocket":
		return NewWebSocket(cfg.Source.WebSocket)
	}
	return nil, xerrors.New("unknown sample source kind: " + cfg.Source.Kind)
}
