package compiler

import (
	"context"
	"fmt"
	"strings"

	"github.com/caffeineduck/wasmplay/executor"
)

// OutcomeKind says whether an Outcome should be shown as success or error.
type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeError   OutcomeKind = "error"
)

// Outcome is the rendered result of one submission.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`
	Text string      `json:"text"`
	// Run is set when a binary was executed.
	Run *executor.Result `json:"-"`
}

// Compiler is the service boundary a Playground depends on.
type Compiler interface {
	Compile(ctx context.Context, req Request) (*Response, error)
}

// Runner executes a wasm binary. *executor.Executor satisfies it.
type Runner interface {
	Run(ctx context.Context, binary []byte, opts ...executor.Option) executor.Result
}

// Playground submits source to a compiler and runs what comes back.
type Playground struct {
	compiler Compiler
	runner   Runner
	runOpts  []executor.Option
}

func NewPlayground(c Compiler, r Runner, runOpts ...executor.Option) *Playground {
	return &Playground{compiler: c, runner: r, runOpts: runOpts}
}

// Submit compiles req and renders the answer. Every failure is folded into
// an error Outcome; Submit never returns an empty text.
func (p *Playground) Submit(ctx context.Context, req Request) Outcome {
	resp, err := p.compiler.Compile(ctx, req)
	if err != nil {
		return Outcome{Kind: OutcomeError, Text: "Request failed: " + err.Error()}
	}

	if !resp.Success {
		text := "Unknown compilation error."
		if resp.Error != nil {
			text = *resp.Error
		}
		return Outcome{Kind: OutcomeError, Text: text}
	}

	if resp.Output != nil {
		text := *resp.Output
		if text == "" {
			text = "(empty output)"
		}
		return Outcome{Kind: OutcomeSuccess, Text: text}
	}

	if resp.Wasm != nil {
		binary, err := resp.Binary()
		if err != nil {
			return Outcome{Kind: OutcomeError, Text: "WASI error: " + err.Error()}
		}
		result := p.runner.Run(ctx, binary, p.runOpts...)
		out := RenderResult(result)
		out.Run = &result
		return out
	}

	return Outcome{Kind: OutcomeError, Text: "Unexpected response from server."}
}

// RenderResult formats a run the way the playground output panel shows it:
// stdout, then a "--- stderr ---" block, then the exit status when nonzero.
// Harness errors are reported as errors, with any partial output first.
func RenderResult(r executor.Result) Outcome {
	var b strings.Builder
	b.WriteString(r.Stdout)
	if r.Stderr != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("--- stderr ---\n")
		b.WriteString(r.Stderr)
	}

	if r.Error != nil {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "WASI error: %v", r.Error)
		return Outcome{Kind: OutcomeError, Text: b.String()}
	}

	if r.ExitCode != 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "\nProcess exited with code %d.", r.ExitCode)
	}

	text := b.String()
	if text == "" {
		text = "(no output)"
	}
	kind := OutcomeSuccess
	if r.ExitCode != 0 {
		kind = OutcomeError
	}
	return Outcome{Kind: kind, Text: text}
}
