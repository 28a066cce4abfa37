package insight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// ErrGeneration marks an unrecoverable generation failure: the model call
// itself failed, or its output stayed malformed after a retry. Results
// carrying this error are never cached.
var ErrGeneration = errors.New("insight generation failed")

const systemInstruction = `You are a document analysis assistant. Answer strictly from the provided document context. Do not use outside knowledge. If the context does not contain the information needed, say so in the answer.

Respond with a single JSON object with these fields:
  "summary": one-paragraph summary of the relevant context
  "keyPoints": array of the most important points as strings
  "entities": array of named entities, each {"name": ..., "type": ...}
  "answer": direct answer to the request, grounded in the context
  "confidence": number between 0 and 1
  "metadata": object with any additional observations`

const strictInstruction = `Return ONLY the JSON object. No prose, no code fences, no text before or after the opening and closing braces.`

const emptyContextInstruction = `The document contains no content relevant to this request. State clearly in the answer that no relevant content was found, with confidence 0.`

// Generator produces grounded insights with a generative model at
// temperature zero.
type Generator struct {
	g       *genkit.Genkit
	modelID string
	timeout time.Duration
	logger  *slog.Logger
}

// NewGenerator creates a Generator. timeout bounds each model call.
func NewGenerator(g *genkit.Genkit, modelID string, timeout time.Duration, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{g: g, modelID: modelID, timeout: timeout, logger: logger}
}

// ModelID returns the configured model identifier.
func (g *Generator) ModelID() string { return g.modelID }

// Generate answers the prompt from the given context chunks. Malformed model
// output gets one retry with a stricter instruction; a second failure
// returns ErrGeneration.
func (g *Generator) Generate(ctx context.Context, prompt string, contexts []string) (*Insight, error) {
	grounded := buildPrompt(prompt, contexts)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		input := grounded
		if attempt > 0 {
			input += "\n\n" + strictInstruction
		}

		raw, err := g.call(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
		}

		ins, err := parseInsight(raw)
		if err == nil {
			return ins, nil
		}
		lastErr = err
		g.logger.Warn("malformed model output", "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("%w: %v", ErrGeneration, lastErr)
}

func (g *Generator) call(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := genkit.Generate(callCtx, g.g,
		ai.WithModelName(g.modelID),
		ai.WithSystem(systemInstruction),
		ai.WithPrompt(prompt),
		ai.WithConfig(map[string]any{"temperature": 0.0}),
	)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// buildPrompt assembles the grounded prompt: numbered context chunks
// separated by ---, followed by the user request.
func buildPrompt(prompt string, contexts []string) string {
	var b strings.Builder

	if len(contexts) == 0 {
		b.WriteString(emptyContextInstruction)
		b.WriteString("\n\n")
	} else {
		b.WriteString("Document context:\n\n")
		for i, chunk := range contexts {
			if i > 0 {
				b.WriteString("\n---\n")
			}
			fmt.Fprintf(&b, "[%d] %s", i+1, chunk)
		}
		b.WriteString("\n\n")
	}

	b.WriteString("Request: ")
	b.WriteString(prompt)
	return b.String()
}
