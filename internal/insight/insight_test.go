package insight

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseInsight_PlainObject(t *testing.T) {
	raw := `{"summary":"the report covers Q3","keyPoints":["revenue up"],"entities":[{"name":"Acme","type":"org"}],"answer":"revenue grew 12%","confidence":0.8}`

	ins, err := parseInsight(raw)
	if err != nil {
		t.Fatalf("parseInsight() error: %v", err)
	}
	if ins.Summary != "the report covers Q3" {
		t.Errorf("Summary = %q", ins.Summary)
	}
	if len(ins.KeyPoints) != 1 || ins.KeyPoints[0] != "revenue up" {
		t.Errorf("KeyPoints = %v", ins.KeyPoints)
	}
	if len(ins.Entities) != 1 || ins.Entities[0].Name != "Acme" || ins.Entities[0].Type != "org" {
		t.Errorf("Entities = %v", ins.Entities)
	}
	if ins.Answer != "revenue grew 12%" || ins.Confidence != 0.8 {
		t.Errorf("Answer = %q, Confidence = %v", ins.Answer, ins.Confidence)
	}
}

func TestParseInsight_StripsSurroundingProse(t *testing.T) {
	raw := "Here is the analysis you asked for:\n```json\n" +
		`{"summary":"short","answer":"grounded answer","confidence":0.5}` +
		"\n```\nLet me know if you need more."

	ins, err := parseInsight(raw)
	if err != nil {
		t.Fatalf("parseInsight() error: %v", err)
	}
	if ins.Answer != "grounded answer" {
		t.Errorf("Answer = %q", ins.Answer)
	}
}

func TestParseInsight_ExtraFieldsPreserved(t *testing.T) {
	raw := `{"summary":"s","answer":"a","confidence":0.9,"language":"en","pageHints":[1,3]}`

	ins, err := parseInsight(raw)
	if err != nil {
		t.Fatalf("parseInsight() error: %v", err)
	}
	if ins.Extra["language"] != "en" {
		t.Errorf("Extra[language] = %v", ins.Extra["language"])
	}
	if _, ok := ins.Extra["pageHints"]; !ok {
		t.Error("Extra missing pageHints")
	}
	if _, ok := ins.Extra["summary"]; ok {
		t.Error("schema field leaked into Extra")
	}
}

func TestParseInsight_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no json at all", "I could not produce a structured response."},
		{"broken json", `{"summary": "unterminated`},
		{"empty object", `{}`},
		{"missing answer and summary", `{"confidence":0.4,"keyPoints":["point"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseInsight(tt.raw); err == nil {
				t.Errorf("parseInsight(%q) succeeded, want error", tt.raw)
			}
		})
	}
}

func TestParseInsight_ConfidenceClamped(t *testing.T) {
	for raw, want := range map[string]float64{
		`{"answer":"a","confidence":1.7}`:  1,
		`{"answer":"a","confidence":-0.3}`: 0,
	} {
		ins, err := parseInsight(raw)
		if err != nil {
			t.Fatalf("parseInsight(%q) error: %v", raw, err)
		}
		if ins.Confidence != want {
			t.Errorf("Confidence = %v, want %v", ins.Confidence, want)
		}
	}
}

func TestEntity_UnmarshalBareString(t *testing.T) {
	var ins Insight
	raw := `{"answer":"a","entities":["Acme Corp","Jane Doe"]}`
	if err := json.Unmarshal([]byte(raw), &ins); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(ins.Entities) != 2 || ins.Entities[0].Name != "Acme Corp" || ins.Entities[1].Name != "Jane Doe" {
		t.Errorf("Entities = %v", ins.Entities)
	}
}

func TestBuildPrompt_NumbersAndSeparatesChunks(t *testing.T) {
	got := buildPrompt("what changed?", []string{"first chunk", "second chunk", "third chunk"})

	for _, want := range []string{"[1] first chunk", "[2] second chunk", "[3] third chunk", "Request: what changed?"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Count(got, "\n---\n") != 2 {
		t.Errorf("prompt has %d separators, want 2", strings.Count(got, "\n---\n"))
	}
}

func TestBuildPrompt_EmptyContext(t *testing.T) {
	got := buildPrompt("what changed?", nil)

	if !strings.Contains(got, "no content relevant") {
		t.Error("empty-context prompt should instruct an explicit no-content answer")
	}
	if strings.Contains(got, "[1]") {
		t.Error("empty-context prompt should not number chunks")
	}
}
