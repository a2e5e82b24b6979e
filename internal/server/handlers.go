package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/caffeineduck/wasmplay/capture"
	"github.com/caffeineduck/wasmplay/compiler"
	"github.com/caffeineduck/wasmplay/executor"
)

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	body := http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
	return json.NewDecoder(body).Decode(v)
}

// --- Run ---

type runRequest struct {
	Wasm        string `json:"wasm"`
	Timeout     string `json:"timeout,omitempty"`
	Decode      string `json:"decode,omitempty"`
	OutputLimit int64  `json:"output_limit,omitempty"`
}

type runResponse struct {
	RunID       string `json:"run_id"`
	Stdout      string `json:"stdout"`
	Stderr      string `json:"stderr"`
	ExitCode    uint32 `json:"exit_code"`
	Termination string `json:"termination"`
	FellThrough bool   `json:"fell_through"`
	Truncated   bool   `json:"truncated"`
	DurationMs  int64  `json:"duration_ms"`
	Error       string `json:"error,omitempty"`
}

func newRunResponse(r executor.Result) runResponse {
	resp := runResponse{
		RunID:       r.RunID,
		Stdout:      r.Stdout,
		Stderr:      r.Stderr,
		ExitCode:    r.ExitCode,
		Termination: r.Termination.String(),
		FellThrough: r.FellThrough,
		Truncated:   r.Truncated,
		DurationMs:  r.Duration.Milliseconds(),
	}
	if r.Error != nil {
		resp.Error = r.Error.Error()
	}
	return resp
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Wasm == "" {
		writeError(w, http.StatusBadRequest, "wasm required")
		return
	}
	binary, err := base64.StdEncoding.DecodeString(req.Wasm)
	if err != nil {
		writeError(w, http.StatusBadRequest, "wasm must be base64: "+err.Error())
		return
	}

	opts, err := s.runOptions(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := s.exec.Run(r.Context(), binary, opts...)
	s.logger.Debug("run served",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("run_id", result.RunID),
		zap.Stringer("termination", result.Termination),
	)
	writeJSON(w, http.StatusOK, newRunResponse(result))
}

// runOptions turns the request knobs into executor options. The requested
// timeout is clamped to server.max_timeout.
func (s *Server) runOptions(req runRequest) ([]executor.Option, error) {
	timeout := s.cfg.Run.Timeout
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil || d <= 0 {
			return nil, errors.New("invalid timeout " + req.Timeout)
		}
		timeout = d
	}
	if max := s.cfg.Server.MaxTimeout; max > 0 && (timeout <= 0 || timeout > max) {
		timeout = max
	}

	opts := []executor.Option{executor.WithTimeout(timeout)}

	if req.Decode != "" {
		mode, err := capture.ParseDecodeMode(req.Decode)
		if err != nil {
			return nil, err
		}
		opts = append(opts, executor.WithDecodeMode(mode))
	}
	if req.OutputLimit < 0 {
		return nil, errors.New("output_limit must not be negative")
	}
	if req.OutputLimit > 0 {
		opts = append(opts, executor.WithOutputLimit(req.OutputLimit))
	}
	return opts, nil
}

// --- Compile ---

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	if s.playground == nil {
		writeError(w, http.StatusServiceUnavailable, "no compiler configured")
		return
	}

	var req compiler.Request
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Mode == "" {
		req.Mode = compiler.ModeRun
	}
	if _, err := compiler.ParseMode(string(req.Mode)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Opt == "" {
		req.Opt = compiler.OptDefault
	}
	if _, err := compiler.ParseOptLevel(string(req.Opt)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, s.playground.Submit(r.Context(), req))
}

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
