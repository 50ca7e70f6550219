package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/danpilch/schaap/pkg/stack"
)

// Format selects how Writer renders samples.
type Format string

const (
	// FormatText writes "<unix-seconds> <folded trace>" lines.
	FormatText Format = "text"
	// FormatJSON writes one JSON object per line.
	FormatJSON Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatText, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown sample format %q (want text or json)", s)
	}
}

// Writer writes each sample as one line. Wrap it in Async when the
// underlying writer can block.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	format Format
	enc    *json.Encoder
}

// NewWriter creates a Writer in the given format.
func NewWriter(w io.Writer, format Format) (*Writer, error) {
	if _, err := ParseFormat(string(format)); err != nil {
		return nil, err
	}
	return &Writer{
		w:      w,
		format: format,
		enc:    json.NewEncoder(w),
	}, nil
}

// Push writes the sample.
func (w *Writer) Push(ts time.Time, trace stack.Trace) error {
	s := Sample{Time: ts, Trace: trace}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.format == FormatJSON {
		return w.enc.Encode(s.record())
	}
	_, err := fmt.Fprintf(w.w, "%.6f %s\n", s.Seconds(), trace)
	return err
}
