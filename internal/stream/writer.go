package stream

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/star/isstrack/internal/metrics"
)

const writeTimeout = 30 * time.Second

// eventWriter writes SSE frames to one connection.
type eventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	logger  *slog.Logger

	sent int
}

func (e *eventWriter) extendDeadline() {
	if err := e.rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		e.logger.Debug("could not set write deadline", "component", "stream", "error", err)
	}
}

// send writes v as a "data:" frame.
func (e *eventWriter) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	e.extendDeadline()
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	e.flusher.Flush()
	e.sent++
	metrics.IncStreamMessages()
	return nil
}

// retry tells the browser how long to wait before reconnecting.
func (e *eventWriter) retry(d time.Duration) error {
	e.extendDeadline()
	if _, err := fmt.Fprintf(e.w, "retry: %d\n\n", d.Milliseconds()); err != nil {
		return fmt.Errorf("retry write: %w", err)
	}
	e.flusher.Flush()
	return nil
}

// keepalive writes an SSE comment.
func (e *eventWriter) keepalive() error {
	e.extendDeadline()
	if _, err := fmt.Fprint(e.w, ":\n\n"); err != nil {
		return fmt.Errorf("keepalive write: %w", err)
	}
	e.flusher.Flush()
	return nil
}
