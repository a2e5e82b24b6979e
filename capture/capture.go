package capture

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// File descriptors that carry captured output.
const (
	FdStdout uint32 = 1
	FdStderr uint32 = 2
)

// DecodeMode selects how bytes written by the guest are turned into text.
type DecodeMode int

const (
	// DecodeStreaming keeps an incomplete UTF-8 sequence pending between
	// writes, so a code point split across two writes decodes intact.
	DecodeStreaming DecodeMode = iota
	// DecodePerWrite decodes every write on its own. A code point split
	// across writes becomes replacement characters.
	DecodePerWrite
)

func (m DecodeMode) String() string {
	switch m {
	case DecodeStreaming:
		return "streaming"
	case DecodePerWrite:
		return "per-write"
	default:
		return fmt.Sprintf("DecodeMode(%d)", int(m))
	}
}

// ParseDecodeMode parses "streaming" or "per-write".
func ParseDecodeMode(s string) (DecodeMode, error) {
	switch strings.ToLower(s) {
	case "", "streaming", "stream":
		return DecodeStreaming, nil
	case "per-write", "perwrite", "write":
		return DecodePerWrite, nil
	default:
		return 0, fmt.Errorf("unknown decode mode %q (expected streaming or per-write)", s)
	}
}

// Stream is an append-only output channel for one descriptor.
//
// Invalid UTF-8 never fails a write; it is replaced with U+FFFD.
// Once the byte limit is reached further bytes are counted but dropped.
type Stream struct {
	mu        sync.Mutex
	mode      DecodeMode
	limit     int64
	written   int64
	kept      int64
	truncated bool
	closed    bool

	text    bytes.Buffer
	stream  *transform.Writer
	decoder *encoding.Decoder
}

// NewStream creates an empty stream. A limit of 0 means unlimited.
func NewStream(mode DecodeMode, limit int64) *Stream {
	s := &Stream{mode: mode, limit: limit}
	if mode == DecodeStreaming {
		s.stream = transform.NewWriter(&s.text, unicode.UTF8.NewDecoder())
	} else {
		s.decoder = unicode.UTF8.NewDecoder()
	}
	return s
}

// Write appends p. It always reports len(p) bytes written.
func (s *Stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(p)
	s.written += int64(n)
	if s.closed {
		return n, nil
	}

	if s.limit > 0 {
		room := s.limit - s.kept
		if room <= 0 {
			s.truncated = true
			return n, nil
		}
		if int64(len(p)) > room {
			p = p[:room]
			s.truncated = true
		}
	}
	s.kept += int64(len(p))

	if s.stream != nil {
		if _, err := s.stream.Write(p); err != nil {
			return n, err
		}
		return n, nil
	}

	decoded, err := s.decoder.Bytes(p)
	if err != nil {
		return n, err
	}
	s.text.Write(decoded)
	return n, nil
}

// Close finalizes the stream. A pending incomplete sequence is flushed as
// U+FFFD and later writes are discarded.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.stream != nil {
		return s.stream.Close()
	}
	return nil
}

// String returns the text decoded so far.
func (s *Stream) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

// Written returns the number of bytes the guest has written, including
// bytes dropped by the limit.
func (s *Stream) Written() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// Truncated reports whether the limit dropped any bytes.
func (s *Stream) Truncated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.truncated
}

// Output pairs the stdout and stderr streams of one run.
type Output struct {
	Stdout *Stream
	Stderr *Stream
}

// New creates the capture for one run. Each stream gets its own limit.
func New(mode DecodeMode, limit int64) *Output {
	return &Output{
		Stdout: NewStream(mode, limit),
		Stderr: NewStream(mode, limit),
	}
}

// Stream returns the stream for fd, or false for any descriptor other
// than stdout and stderr.
func (o *Output) Stream(fd uint32) (*Stream, bool) {
	switch fd {
	case FdStdout:
		return o.Stdout, true
	case FdStderr:
		return o.Stderr, true
	default:
		return nil, false
	}
}

// Finalize closes both streams and returns their text.
func (o *Output) Finalize() (stdout, stderr string, err error) {
	err1 := o.Stdout.Close()
	err2 := o.Stderr.Close()
	if err1 != nil {
		err = fmt.Errorf("finalize stdout: %w", err1)
	} else if err2 != nil {
		err = fmt.Errorf("finalize stderr: %w", err2)
	}
	return o.Stdout.String(), o.Stderr.String(), err
}

// Truncated reports whether either stream dropped bytes.
func (o *Output) Truncated() bool {
	return o.Stdout.Truncated() || o.Stderr.Truncated()
}
