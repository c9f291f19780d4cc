package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	// A sidecar that stops sending frames for this long is treated as dead.
	wsReadWait = 30 * time.Second
)

// WebsocketClassifier reads samples from a classifier sidecar that streams
// {"label": ..., "confidence": ...} text messages over a websocket.
type WebsocketClassifier struct {
	name string
	url  string
}

// NewWebsocketClassifier creates a classifier for the sidecar at url.
func NewWebsocketClassifier(name, url string) *WebsocketClassifier {
	return &WebsocketClassifier{name: name, url: url}
}

func (w *WebsocketClassifier) Name() string { return w.name }

func (w *WebsocketClassifier) Detect(ctx context.Context) iter.Seq2[Sample, error] {
	return func(yield func(Sample, error) bool) {
		dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
		conn, _, err := dialer.DialContext(ctx, w.url, nil)
		if err != nil {
			yield(Sample{}, fmt.Errorf("dial %s: %w", w.url, err))
			return
		}
		defer conn.Close()

		// Unblock ReadMessage when ctx ends.
		stop := context.AfterFunc(ctx, func() { conn.Close() })
		defer stop()

		for {
			if err := conn.SetReadDeadline(time.Now().Add(wsReadWait)); err != nil {
				yield(Sample{}, err)
				return
			}
			kind, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					err = ctx.Err()
				}
				yield(Sample{}, fmt.Errorf("read %s: %w", w.name, err))
				return
			}
			if kind != websocket.TextMessage {
				continue
			}
			var s Sample
			if err := json.Unmarshal(data, &s); err != nil {
				continue
			}
			if s.At.IsZero() {
				s.At = time.Now()
			}
			if !yield(s, nil) {
				return
			}
		}
	}
}
