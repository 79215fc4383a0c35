// Package codegen turns action code into generated code through a
// completion model and cleans up what the model returns.
package codegen

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Instruction closes every prompt
const Instruction = "Return only the finished code with no extra text."

// Completer sends one prompt to a completion model
type Completer interface {
	Complete(ctx context.Context, prompt, iamToken string) (string, error)
}

type Generator struct {
	completer Completer
	logger    *slog.Logger
}

type Option func(*Generator)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

func NewGenerator(completer Completer, opts ...Option) *Generator {
	g := &Generator{
		completer: completer,
		logger:    slog.Default().With("component", "codegen"),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Generate asks the model to rewrite userCode under systemPrompt and returns
// the normalized answer. Transport and response-shape failures from the
// completer are returned wrapped, so errors.IsTransport and
// errors.IsResponseShape still tell them apart.
func (g *Generator) Generate(ctx context.Context, userCode, systemPrompt, iamToken string) (string, error) {
	prompt := BuildPrompt(userCode, systemPrompt)

	start := time.Now()
	raw, err := g.completer.Complete(ctx, prompt, iamToken)
	if err != nil {
		return "", fmt.Errorf("generating code: %w", err)
	}

	code := Normalize(raw)
	g.logger.Debug("code generated",
		"prompt_chars", len(prompt),
		"raw_chars", len(raw),
		"code_chars", len(code),
		"duration_ms", time.Since(start).Milliseconds())

	return code, nil
}

// BuildPrompt joins the system prompt, the user's code and the closing
// instruction into one user turn
func BuildPrompt(userCode, systemPrompt string) string {
	var b strings.Builder
	if p := strings.TrimSpace(systemPrompt); p != "" {
		b.WriteString(p)
		b.WriteString("\n\n")
	}
	b.WriteString(userCode)
	b.WriteString("\n\n")
	b.WriteString(Instruction)
	return b.String()
}
