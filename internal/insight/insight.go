// Package insight turns retrieved document context into structured insights
// using a generative model, fronted by the cache gate.
package insight

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Entity is a named entity the model found in the document context.
type Entity struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// UnmarshalJSON accepts both the object form and a bare string, since
// models emit either depending on the prompt outcome.
func (e *Entity) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		e.Name = s
		return nil
	}

	type plain Entity
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = Entity(p)
	return nil
}

// Insight is the structured result of one extraction. Extra holds any
// additional fields the model returned beyond the fixed schema.
type Insight struct {
	Summary    string         `json:"summary"`
	KeyPoints  []string       `json:"keyPoints,omitempty"`
	Entities   []Entity       `json:"entities,omitempty"`
	Answer     string         `json:"answer"`
	Confidence float64        `json:"confidence"`
	Extra      map[string]any `json:"metadata,omitempty"`
}

// knownKeys are the fixed schema fields; everything else lands in Extra.
var knownKeys = map[string]struct{}{
	"summary": {}, "keyPoints": {}, "entities": {}, "answer": {}, "confidence": {}, "metadata": {},
}

// parseInsight extracts the JSON object from raw model output. Models often
// wrap the object in prose or code fences, so everything outside the
// outermost braces is discarded.
func parseInsight(raw string) (*Insight, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, errors.New("model output contains no JSON object")
	}
	payload := raw[start : end+1]

	var ins Insight
	if err := json.Unmarshal([]byte(payload), &ins); err != nil {
		return nil, fmt.Errorf("model output is not valid insight JSON: %w", err)
	}
	if strings.TrimSpace(ins.Answer) == "" && strings.TrimSpace(ins.Summary) == "" {
		return nil, errors.New("insight missing both answer and summary")
	}

	if ins.Confidence < 0 {
		ins.Confidence = 0
	}
	if ins.Confidence > 1 {
		ins.Confidence = 1
	}

	// Preserve fields beyond the fixed schema.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &fields); err == nil {
		for key, value := range fields {
			if _, ok := knownKeys[key]; ok {
				continue
			}
			var v any
			if err := json.Unmarshal(value, &v); err != nil {
				continue
			}
			if ins.Extra == nil {
				ins.Extra = make(map[string]any)
			}
			ins.Extra[key] = v
		}
	}
	return &ins, nil
}
