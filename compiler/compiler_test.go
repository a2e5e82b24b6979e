package compiler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/caffeineduck/wasmplay/executor"
	"github.com/caffeineduck/wasmplay/internal/wasmtest"
)

func strPtr(s string) *string { return &s }

func compileServer(t *testing.T, handler func(req Request) (int, any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/compile" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %q", ct)
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		status, body := handler(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// =============================================================================
// CLIENT TESTS
// =============================================================================

func TestClientSendsRequest(t *testing.T) {
	var got Request
	srv := compileServer(t, func(req Request) (int, any) {
		got = req
		return http.StatusOK, map[string]any{"success": true, "output": "define i32 @main()"}
	})

	want := Request{Source: "fn main() {}", Driver: "drv", Mode: ModeLLVMIR, Opt: OptSize}
	resp, err := NewClient(srv.URL+"/").Compile(context.Background(), want)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if got != want {
		t.Errorf("server saw %+v, want %+v", got, want)
	}
	if !resp.Success || resp.Output == nil || *resp.Output != "define i32 @main()" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestClientServerError(t *testing.T) {
	srv := compileServer(t, func(Request) (int, any) {
		return http.StatusBadGateway, map[string]any{}
	})

	_, err := NewClient(srv.URL).Compile(context.Background(), Request{Mode: ModeRun})
	if err == nil || !strings.Contains(err.Error(), "server error 502") {
		t.Errorf("expected 'server error 502', got %v", err)
	}
}

func TestResponseBinaryAlias(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"wasm", `{"success":true,"wasm":"AGFzbQ=="}`},
		{"binary", `{"success":true,"binary":"AGFzbQ=="}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp Response
			if err := json.Unmarshal([]byte(tt.body), &resp); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			b, err := resp.Binary()
			if err != nil {
				t.Fatalf("binary: %v", err)
			}
			if string(b) != "\x00asm" {
				t.Errorf("expected wasm magic, got %q", b)
			}
		})
	}
}

func TestParseModeAndOpt(t *testing.T) {
	for _, s := range []string{"run", "llvm-ir", "asm", "mlir"} {
		if _, err := ParseMode(s); err != nil {
			t.Errorf("ParseMode(%q): %v", s, err)
		}
	}
	if _, err := ParseMode("wasm"); err == nil {
		t.Error("expected error for unknown mode")
	}
	for _, s := range []string{"none", "default", "size", "aggressive"} {
		if _, err := ParseOptLevel(s); err != nil {
			t.Errorf("ParseOptLevel(%q): %v", s, err)
		}
	}
	if _, err := ParseOptLevel("O3"); err == nil {
		t.Error("expected error for unknown opt level")
	}
}

// =============================================================================
// PLAYGROUND TESTS
// =============================================================================

type stubCompiler struct {
	resp *Response
	err  error
}

func (s stubCompiler) Compile(context.Context, Request) (*Response, error) {
	return s.resp, s.err
}

type stubRunner struct {
	result executor.Result
	got    []byte
}

func (s *stubRunner) Run(_ context.Context, binary []byte, _ ...executor.Option) executor.Result {
	s.got = binary
	return s.result
}

func TestSubmitOutcomes(t *testing.T) {
	wasm := base64.StdEncoding.EncodeToString([]byte("\x00asm\x01\x00\x00\x00"))

	tests := []struct {
		name     string
		compiler stubCompiler
		run      executor.Result
		kind     OutcomeKind
		text     string
	}{
		{"request failure", stubCompiler{err: errors.New("connection refused")}, executor.Result{},
			OutcomeError, "Request failed: connection refused"},
		{"compile error", stubCompiler{resp: &Response{Error: strPtr("type mismatch at 3:4")}}, executor.Result{},
			OutcomeError, "type mismatch at 3:4"},
		{"compile error without text", stubCompiler{resp: &Response{}}, executor.Result{},
			OutcomeError, "Unknown compilation error."},
		{"text output", stubCompiler{resp: &Response{Success: true, Output: strPtr("mov eax, 0")}}, executor.Result{},
			OutcomeSuccess, "mov eax, 0"},
		{"empty text output", stubCompiler{resp: &Response{Success: true, Output: strPtr("")}}, executor.Result{},
			OutcomeSuccess, "(empty output)"},
		{"bad base64", stubCompiler{resp: &Response{Success: true, Wasm: strPtr("!!!")}}, executor.Result{},
			OutcomeError, "WASI error: decode binary"},
		{"neither", stubCompiler{resp: &Response{Success: true}}, executor.Result{},
			OutcomeError, "Unexpected response from server."},
		{"run stdout", stubCompiler{resp: &Response{Success: true, Wasm: &wasm}},
			executor.Result{Stdout: "fib(5) = 5\n", Termination: executor.Completed},
			OutcomeSuccess, "fib(5) = 5\n"},
		{"run stderr and exit", stubCompiler{resp: &Response{Success: true, Wasm: &wasm}},
			executor.Result{Stdout: "partial", Stderr: "error: overflow\n", ExitCode: 1, Termination: executor.Completed},
			OutcomeError, "partial\n--- stderr ---\nerror: overflow\n\n\nProcess exited with code 1."},
		{"run no output", stubCompiler{resp: &Response{Success: true, Wasm: &wasm}},
			executor.Result{Termination: executor.Completed},
			OutcomeSuccess, "(no output)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &stubRunner{result: tt.run}
			out := NewPlayground(tt.compiler, runner).Submit(context.Background(), Request{Mode: ModeRun})
			if out.Kind != tt.kind {
				t.Errorf("expected kind %s, got %s", tt.kind, out.Kind)
			}
			if !strings.HasPrefix(out.Text, tt.text) {
				t.Errorf("expected text starting with %q, got %q", tt.text, out.Text)
			}
			if out.Text == "" {
				t.Error("outcome text must never be empty")
			}
		})
	}
}

func TestRenderHarnessError(t *testing.T) {
	out := RenderResult(executor.Result{
		Stdout:      "tick\n",
		Termination: executor.TimedOut,
		Error:       &executor.Error{Kind: executor.KindTimedOut, Op: "run", Detail: "execution timed out after 1s"},
	})
	if out.Kind != OutcomeError {
		t.Errorf("expected error kind, got %s", out.Kind)
	}
	if out.Text != "tick\n\nWASI error: [timed_out] run: execution timed out after 1s" {
		t.Errorf("unexpected text %q", out.Text)
	}
}

func TestPlaygroundEndToEnd(t *testing.T) {
	bin := wasmtest.New().Write(1, "fib(5) = 5\n").Exit(0).Build()
	srv := compileServer(t, func(req Request) (int, any) {
		if req.Mode != ModeRun {
			t.Errorf("expected run mode, got %s", req.Mode)
		}
		return http.StatusOK, map[string]any{"success": true, "wasm": base64.StdEncoding.EncodeToString(bin)}
	})

	exec, err := executor.New(nil)
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}
	defer exec.Close()

	out := NewPlayground(NewClient(srv.URL), exec).Submit(context.Background(), Request{Source: "...", Mode: ModeRun, Opt: OptDefault})
	if out.Kind != OutcomeSuccess || out.Text != "fib(5) = 5\n" {
		t.Errorf("unexpected outcome %+v", out)
	}
	if out.Run == nil || out.Run.Termination != executor.Completed {
		t.Errorf("expected completed run attached, got %+v", out.Run)
	}
}
