package render

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"

	"github.com/m4xw311/genui/errors"
)

// StreamID is the SSE stream frames are published on. Subscribers connect
// with ?stream=surfaces.
const StreamID = "surfaces"

const frameEvent = "frame"

// SSEPublisher publishes frames as server-sent events. A new subscriber gets
// the last published frame first, like WebSocketHub.
type SSEPublisher struct {
	server *sse.Server
	logger *zap.Logger

	mu   sync.Mutex
	last []byte
}

// NewSSEPublisher creates the SSE server and its stream.
func NewSSEPublisher(logger *zap.Logger) *SSEPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := sse.New()
	server.AutoReplay = false
	server.CreateStream(StreamID)
	return &SSEPublisher{server: server, logger: logger.Named("sse")}
}

// Publish implements Publisher.
func (p *SSEPublisher) Publish(ctx context.Context, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return errors.Wrapf(err, "failed to encode frame %s", f.RequestID)
	}
	p.mu.Lock()
	p.last = data
	p.mu.Unlock()

	p.server.Publish(StreamID, &sse.Event{Event: []byte(frameEvent), Data: data})
	p.logger.Debug("Published frame", zap.String("requestID", f.RequestID))
	return nil
}

func (p *SSEPublisher) lastFrame() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// ServeHTTP serves the event stream. The stream query parameter defaults to
// StreamID.
func (p *SSEPublisher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("stream") == "" {
		q.Set("stream", StreamID)
		r.URL.RawQuery = q.Encode()
	}
	flusher, ok := w.(http.Flusher)
	if !ok || q.Get("stream") != StreamID {
		p.server.ServeHTTP(w, r)
		return
	}
	p.server.ServeHTTP(&replayWriter{ResponseWriter: w, flusher: flusher, replay: p.lastFrame}, r)
}

// Close ends every subscription.
func (p *SSEPublisher) Close() {
	p.server.Close()
}

// replayWriter writes the last frame as soon as the response starts. The sse
// server only starts the response once the subscriber is registered, so a
// frame published after that point is delivered live and none is lost.
type replayWriter struct {
	http.ResponseWriter
	flusher http.Flusher
	replay  func() []byte
	started bool
}

func (w *replayWriter) start(code int) {
	if w.started {
		return
	}
	w.started = true
	w.ResponseWriter.WriteHeader(code)
	if code != http.StatusOK {
		return
	}
	if data := w.replay(); data != nil {
		fmt.Fprintf(w.ResponseWriter, "event: %s\ndata: %s\n\n", frameEvent, data)
	}
}

func (w *replayWriter) WriteHeader(code int) {
	w.start(code)
}

func (w *replayWriter) Write(b []byte) (int, error) {
	w.start(http.StatusOK)
	return w.ResponseWriter.Write(b)
}

func (w *replayWriter) Flush() {
	w.start(http.StatusOK)
	w.flusher.Flush()
}
