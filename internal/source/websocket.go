package source

import (
	"context"

	"github.com/gorilla/websocket"
	"github.com/mdobak/go-xerrors"
	"github.com/rs/zerolog/log"

	"github.com/eyereview/gazepipe/internal/config"
	"github.com/eyereview/gazepipe/internal/gaze"
)

// WebSocket streams samples from an eye-tracker gateway that pushes JSON
// frames. A dropped connection is the hardware-loss terminal signal; a
// normal close frame is a clean end-of-stream.
type WebSocket struct {
	url string
}

func NewWebSocket(cfg config.WebSocketSourceConfig) (*WebSocket, error) {
	if cfg.URL == "" {
		return nil, xerrors.New("websocket sample source requires a url")
	}
	return &WebSocket{url: cfg.URL}, nil
}

func (w *WebSocket) Run(ctx context.Context, emit func(gaze.RawSample)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return xerrors.New("failed to connect to tracker gateway", err)
	}
	defer conn.Close()

	log.Info().Str("url", w.url).Msg("WebSocket sample source connected")

	// Unblock ReadJSON when the session stops.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var s gaze.RawSample
		if err := conn.ReadJSON(&s); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info().Msg("Tracker gateway closed the stream")
				return nil
			}
			return xerrors.New("tracker connection lost", err)
		}
		emit(s)
	}
}
