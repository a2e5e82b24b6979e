// Package compiler talks to the remote compile service and turns its
// answers into something a user can read.
//
// The service compiles source text either to a textual artifact (LLVM IR,
// assembly, MLIR) or to a wasm32-wasip1 binary. Binaries are run locally by
// a Playground through the executor.
package compiler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Mode selects what the service produces.
type Mode string

const (
	ModeRun    Mode = "run"
	ModeLLVMIR Mode = "llvm-ir"
	ModeAsm    Mode = "asm"
	ModeMLIR   Mode = "mlir"
)

// OptLevel is the optimization level passed through to the compiler.
type OptLevel string

const (
	OptNone       OptLevel = "none"
	OptDefault    OptLevel = "default"
	OptSize       OptLevel = "size"
	OptAggressive OptLevel = "aggressive"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeRun, ModeLLVMIR, ModeAsm, ModeMLIR:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q (want run, llvm-ir, asm or mlir)", s)
}

// ParseOptLevel validates an optimization level name.
func ParseOptLevel(s string) (OptLevel, error) {
	switch o := OptLevel(s); o {
	case OptNone, OptDefault, OptSize, OptAggressive:
		return o, nil
	}
	return "", fmt.Errorf("unknown opt level %q (want none, default, size or aggressive)", s)
}

type Request struct {
	Source string   `json:"source"`
	Driver string   `json:"driver"`
	Mode   Mode     `json:"mode"`
	Opt    OptLevel `json:"opt"`
}

// Response is the service's answer. Exactly one of Output, Wasm or Error is
// expected to be set.
type Response struct {
	Success bool    `json:"success"`
	Output  *string `json:"output,omitempty"`
	Wasm    *string `json:"wasm,omitempty"`
	Error   *string `json:"error,omitempty"`
}

// UnmarshalJSON accepts "binary" as an alias for "wasm".
func (r *Response) UnmarshalJSON(data []byte) error {
	type plain Response
	var aux struct {
		plain
		Binary *string `json:"binary,omitempty"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Response(aux.plain)
	if r.Wasm == nil {
		r.Wasm = aux.Binary
	}
	return nil
}

// Binary decodes the base64 wasm payload.
func (r *Response) Binary() ([]byte, error) {
	if r.Wasm == nil {
		return nil, errors.New("response carries no binary")
	}
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(*r.Wasm))
	if err != nil {
		return nil, fmt.Errorf("decode binary: %w", err)
	}
	return b, nil
}

// DefaultTimeout bounds one compile request. Building a run-mode binary
// links a runtime crate and can take minutes.
const DefaultTimeout = 3 * time.Minute

// Client posts compile requests to a service.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) {
		cl.http = &http.Client{Timeout: d}
	}
}

// NewClient returns a client for the service at baseURL, e.g.
// "http://127.0.0.1:8080".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile sends req to <base>/api/compile.
func (c *Client) Compile(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/compile", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post compile request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("server error %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}
