package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/caffeineduck/wasmplay/compiler"
	"github.com/caffeineduck/wasmplay/executor"
	"github.com/caffeineduck/wasmplay/internal/config"
	"github.com/caffeineduck/wasmplay/internal/metrics"
	"github.com/caffeineduck/wasmplay/internal/wasmtest"
)

func setupTestServer(t *testing.T, compileURL string) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.Server.MaxTimeout = 2 * time.Second

	recorder := metrics.New()
	exec, err := executor.New(nil, executor.WithObserver(recorder))
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}
	t.Cleanup(func() { exec.Close() })

	var playground *compiler.Playground
	if compileURL != "" {
		playground = compiler.NewPlayground(compiler.NewClient(compileURL), exec)
	}
	return New(cfg, exec, playground, recorder, nil)
}

func post(t *testing.T, s *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if raw, ok := body.(string); ok {
		buf.WriteString(raw)
	} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func encode(b *wasmtest.Builder) string {
	return base64.StdEncoding.EncodeToString(b.Build())
}

func TestHealthEndpoint(t *testing.T) {
	s := setupTestServer(t, "")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Errorf("expected 'ok', got %q", w.Body.String())
	}
}

func TestRunEndpoint(t *testing.T) {
	s := setupTestServer(t, "")
	w := post(t, s, "/api/run", runRequest{
		Wasm: encode(wasmtest.New().Write(1, "hello\n").Write(2, "warn\n").Exit(3)),
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}

	var resp runResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Stdout != "hello\n" || resp.Stderr != "warn\n" {
		t.Errorf("unexpected output %q / %q", resp.Stdout, resp.Stderr)
	}
	if resp.ExitCode != 3 || resp.Termination != "completed" || resp.FellThrough {
		t.Errorf("unexpected status %+v", resp)
	}
	if resp.RunID == "" {
		t.Error("expected run id")
	}
	if resp.Error != "" {
		t.Errorf("unexpected error %q", resp.Error)
	}
}

func TestRunEndpointTimeout(t *testing.T) {
	s := setupTestServer(t, "")
	w := post(t, s, "/api/run", runRequest{
		Wasm:    encode(wasmtest.New().Write(1, "tick").Spin()),
		Timeout: "100ms",
	})

	var resp runResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Termination != "timed_out" {
		t.Errorf("expected timed_out, got %q", resp.Termination)
	}
	if resp.Stdout != "tick" {
		t.Errorf("expected partial output, got %q", resp.Stdout)
	}
	if !strings.Contains(resp.Error, "execution timed out after 100ms") {
		t.Errorf("unexpected error %q", resp.Error)
	}
}

func TestRunEndpointLoadError(t *testing.T) {
	s := setupTestServer(t, "")
	w := post(t, s, "/api/run", runRequest{Wasm: base64.StdEncoding.EncodeToString([]byte("nope"))})

	var resp runResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Termination != "aborted" || !strings.Contains(resp.Error, "[load]") {
		t.Errorf("expected aborted load error, got %+v", resp)
	}
}

func TestRunEndpointBadRequests(t *testing.T) {
	s := setupTestServer(t, "")
	wasm := encode(wasmtest.New().Exit(0))

	tests := []struct {
		name string
		body any
		want string
	}{
		{"invalid json", "{", "invalid JSON"},
		{"missing wasm", runRequest{}, "wasm required"},
		{"bad base64", runRequest{Wasm: "%%%"}, "base64"},
		{"bad timeout", runRequest{Wasm: wasm, Timeout: "soon"}, "invalid timeout"},
		{"bad decode", runRequest{Wasm: wasm, Decode: "latin1"}, "decode"},
		{"negative limit", runRequest{Wasm: wasm, OutputLimit: -1}, "output_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(t, s, "/api/run", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("expected %q in %s", tt.want, w.Body.String())
			}
		})
	}
}

func TestRunOptionsClampTimeout(t *testing.T) {
	s := setupTestServer(t, "")
	start := time.Now()
	w := post(t, s, "/api/run", runRequest{Wasm: encode(wasmtest.New().Spin()), Timeout: "1h"})
	if time.Since(start) > 10*time.Second {
		t.Fatal("timeout was not clamped")
	}
	var resp runResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if !strings.Contains(resp.Error, "after 2s") {
		t.Errorf("expected clamped 2s timeout, got %q", resp.Error)
	}
}

func TestCompileEndpoint(t *testing.T) {
	bin := wasmtest.New().Write(1, "fib(5) = 5\n").Exit(0).Build()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req compiler.Request
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		switch req.Mode {
		case compiler.ModeRun:
			json.NewEncoder(w).Encode(map[string]any{"success": true, "wasm": base64.StdEncoding.EncodeToString(bin)})
		default:
			json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "no text backends here"})
		}
	}))
	defer upstream.Close()

	s := setupTestServer(t, upstream.URL)

	w := post(t, s, "/api/compile", compiler.Request{Source: "main"})
	var out compiler.Outcome
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Kind != compiler.OutcomeSuccess || out.Text != "fib(5) = 5\n" {
		t.Errorf("unexpected outcome %+v", out)
	}

	w = post(t, s, "/api/compile", compiler.Request{Source: "main", Mode: compiler.ModeAsm})
	json.NewDecoder(w.Body).Decode(&out)
	if out.Kind != compiler.OutcomeError || out.Text != "no text backends here" {
		t.Errorf("unexpected outcome %+v", out)
	}

	w = post(t, s, "/api/compile", compiler.Request{Source: "main", Mode: "wat"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown mode, got %d", w.Code)
	}
}

func TestCompileWithoutCompiler(t *testing.T) {
	s := setupTestServer(t, "")
	w := post(t, s, "/api/compile", compiler.Request{Source: "main"})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := setupTestServer(t, "")
	post(t, s, "/api/run", runRequest{Wasm: encode(wasmtest.New().Exit(0))})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), `wasmplay_runs_total{termination="completed"} 1`) {
		t.Errorf("expected run counted, got:\n%s", w.Body.String())
	}
}
