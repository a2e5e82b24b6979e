package capture

import (
	"strings"
	"sync"
	"testing"
	"unicode/utf8"
)

func TestStreamAppendsInOrder(t *testing.T) {
	s := NewStream(DecodeStreaming, 0)
	for _, chunk := range []string{"fib(5)", " = ", "5", "\n"} {
		n, err := s.Write([]byte(chunk))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != len(chunk) {
			t.Errorf("expected %d bytes written, got %d", len(chunk), n)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := s.String(); got != "fib(5) = 5\n" {
		t.Errorf("expected %q, got %q", "fib(5) = 5\n", got)
	}
	if s.Written() != 11 {
		t.Errorf("expected 11 bytes written, got %d", s.Written())
	}
}

func TestStreamEmptyWrite(t *testing.T) {
	for _, mode := range []DecodeMode{DecodeStreaming, DecodePerWrite} {
		s := NewStream(mode, 0)
		if _, err := s.Write(nil); err != nil {
			t.Fatalf("%v: unexpected error: %v", mode, err)
		}
		s.Close()
		if s.String() != "" || s.Written() != 0 {
			t.Errorf("%v: expected empty stream, got %q (%d bytes)", mode, s.String(), s.Written())
		}
	}
}

// Every way of splitting a multi-byte string across two writes must decode
// to the original text in streaming mode.
func TestStreamingSplitProperty(t *testing.T) {
	inputs := []string{
		"héllo wörld",
		"€100",
		"日本語テキスト",
		"emoji 🎉 done",
		"mixed ascii, 中文, and 🚀🚀",
	}

	for _, in := range inputs {
		raw := []byte(in)
		for cut := 0; cut <= len(raw); cut++ {
			s := NewStream(DecodeStreaming, 0)
			s.Write(raw[:cut])
			s.Write(raw[cut:])
			s.Close()
			if got := s.String(); got != in {
				t.Errorf("cut %d of %q: got %q", cut, in, got)
			}
		}
	}
}

// Splitting byte by byte is the worst case for the pending-sequence state.
func TestStreamingByteAtATime(t *testing.T) {
	in := "ünïcödé 🎉"
	s := NewStream(DecodeStreaming, 0)
	for i := 0; i < len(in); i++ {
		s.Write([]byte{in[i]})
	}
	s.Close()
	if got := s.String(); got != in {
		t.Errorf("expected %q, got %q", in, got)
	}
}

func TestPerWriteSplitReplaces(t *testing.T) {
	euro := []byte("€") // e2 82 ac
	s := NewStream(DecodePerWrite, 0)
	s.Write(euro[:1])
	s.Write(euro[1:])
	s.Close()

	got := s.String()
	if strings.Contains(got, "€") {
		t.Errorf("per-write decoding should not rejoin a split code point, got %q", got)
	}
	if got != "���" {
		t.Errorf("expected three replacement characters, got %q", got)
	}
}

// Whole code points decode identically in both modes.
func TestModesAgreeOnWholeWrites(t *testing.T) {
	chunks := []string{"héllo ", "wörld ", "🎉", "\n"}
	streaming := NewStream(DecodeStreaming, 0)
	perWrite := NewStream(DecodePerWrite, 0)
	for _, c := range chunks {
		streaming.Write([]byte(c))
		perWrite.Write([]byte(c))
	}
	streaming.Close()
	perWrite.Close()
	if streaming.String() != perWrite.String() {
		t.Errorf("modes disagree: %q vs %q", streaming.String(), perWrite.String())
	}
}

func TestStreamingTrailingPartialFlushed(t *testing.T) {
	s := NewStream(DecodeStreaming, 0)
	s.Write([]byte("ok"))
	s.Write([]byte{0xe2, 0x82})

	if got := s.String(); got != "ok" {
		t.Errorf("pending bytes should not be visible before close, got %q", got)
	}

	s.Close()
	if got := s.String(); got != "ok�" {
		t.Errorf("expected %q, got %q", "ok�", got)
	}
}

func TestInvalidBytesNeverFail(t *testing.T) {
	for _, mode := range []DecodeMode{DecodeStreaming, DecodePerWrite} {
		s := NewStream(mode, 0)
		if _, err := s.Write([]byte{'a', 0xff, 'b', 0xc0, 'c'}); err != nil {
			t.Fatalf("%v: unexpected error: %v", mode, err)
		}
		s.Close()
		got := s.String()
		if !utf8.ValidString(got) {
			t.Errorf("%v: output is not valid UTF-8: %q", mode, got)
		}
		if got != "a�b�c" {
			t.Errorf("%v: expected %q, got %q", mode, "a�b�c", got)
		}
	}
}

func TestStreamLimit(t *testing.T) {
	s := NewStream(DecodeStreaming, 5)
	n, _ := s.Write([]byte("hello world"))
	if n != 11 {
		t.Errorf("limit must not shorten the reported count, got %d", n)
	}
	s.Write([]byte("more"))
	s.Close()

	if got := s.String(); got != "hello" {
		t.Errorf("expected %q, got %q", "hello", got)
	}
	if !s.Truncated() {
		t.Error("expected stream to be truncated")
	}
	if s.Written() != 15 {
		t.Errorf("expected 15 bytes counted, got %d", s.Written())
	}
}

func TestWritesAfterCloseDropped(t *testing.T) {
	s := NewStream(DecodeStreaming, 0)
	s.Write([]byte("before"))
	s.Close()
	s.Write([]byte("after"))
	if got := s.String(); got != "before" {
		t.Errorf("expected %q, got %q", "before", got)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
}

func TestOutputStreamsIndependent(t *testing.T) {
	out := New(DecodeStreaming, 0)

	stdout, ok := out.Stream(FdStdout)
	if !ok {
		t.Fatal("expected stdout stream")
	}
	stderr, ok := out.Stream(FdStderr)
	if !ok {
		t.Fatal("expected stderr stream")
	}
	for _, fd := range []uint32{0, 3, 100} {
		if _, ok := out.Stream(fd); ok {
			t.Errorf("fd %d should not have a stream", fd)
		}
	}

	stdout.Write([]byte("out1 "))
	stderr.Write([]byte("error: overflow\n"))
	stdout.Write([]byte("out2"))

	o, e, err := out.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if o != "out1 out2" {
		t.Errorf("expected stdout %q, got %q", "out1 out2", o)
	}
	if e != "error: overflow\n" {
		t.Errorf("expected stderr %q, got %q", "error: overflow\n", e)
	}
}

func TestStreamConcurrentReaders(t *testing.T) {
	s := NewStream(DecodeStreaming, 0)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			s.Write([]byte("x"))
		}
	}()
	for i := 0; i < 50; i++ {
		_ = s.String()
	}
	wg.Wait()
	s.Close()
	if len(s.String()) != 100 {
		t.Errorf("expected 100 bytes, got %d", len(s.String()))
	}
}

func TestParseDecodeMode(t *testing.T) {
	tests := []struct {
		in      string
		want    DecodeMode
		wantErr bool
	}{
		{"", DecodeStreaming, false},
		{"streaming", DecodeStreaming, false},
		{"Per-Write", DecodePerWrite, false},
		{"bogus", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDecodeMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDecodeMode(%q): unexpected error state: %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseDecodeMode(%q): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}
