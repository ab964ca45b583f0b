package driver

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"sync"
	"time"
)

// TraceEntry is one provider exchange in the NDJSON trace.
type TraceEntry struct {
	Timestamp   time.Time       `json:"timestamp"`
	Driver      string          `json:"driver"`
	Endpoint    string          `json:"endpoint"`
	Method      string          `json:"method"`
	Model       string          `json:"model,omitempty"`
	RequestBody json.RawMessage `json:"request_body,omitempty"`
	Images      int             `json:"images,omitempty"`
	StatusCode  int             `json:"status_code,omitempty"`
	Response    json.RawMessage `json:"response,omitempty"`
	Error       string          `json:"error,omitempty"`
	DurationMs  int64           `json:"duration_ms"`
}

// Tracer writes one JSON object per line.
type Tracer struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
}

// NewTracer traces to w. Closing the tracer closes w when it is an io.Closer.
func NewTracer(w io.Writer) *Tracer {
	return &Tracer{w: w, enc: json.NewEncoder(w)}
}

// Screenshots travel as data URLs; a single one can be megabytes.
var dataURLPattern = regexp.MustCompile(`data:image/[a-zA-Z0-9.+-]+;base64,[A-Za-z0-9+/=]+`)

var active struct {
	sync.RWMutex
	tracer *Tracer
}

// EnableTracing appends provider exchanges to path until the returned func
// is called.
func EnableTracing(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	SetTracer(NewTracer(f))
	return DisableTracing, nil
}

// SetTracer installs t as the process tracer, closing the previous one.
func SetTracer(t *Tracer) {
	active.Lock()
	prev := active.tracer
	active.tracer = t
	active.Unlock()
	_ = prev.Close()
}

// DisableTracing stops tracing and closes the trace sink.
func DisableTracing() {
	SetTracer(nil)
}

func IsTracingEnabled() bool {
	active.RLock()
	defer active.RUnlock()
	return active.tracer != nil
}

// Trace records entry when tracing is enabled.
func Trace(entry TraceEntry) {
	active.RLock()
	t := active.tracer
	active.RUnlock()
	_ = t.Write(entry)
}

// Write records entry with inline images replaced by their size.
func (t *Tracer) Write(entry TraceEntry) error {
	if t == nil {
		return nil
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.RequestBody, entry.Images = redactImages(entry.RequestBody)

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enc.Encode(entry)
}

func (t *Tracer) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func redactImages(body json.RawMessage) (json.RawMessage, int) {
	count := 0
	if len(body) == 0 {
		return body, count
	}
	redacted := dataURLPattern.ReplaceAllFunc(body, func(match []byte) []byte {
		count++
		return fmt.Appendf(nil, "[image %d bytes]", len(match))
	})
	return redacted, count
}
