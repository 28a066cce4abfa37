// Package chunk splits normalized document text into overlapping,
// size-bounded segments suitable for embedding.
//
// The splitter descends through a separator priority list (paragraph, line,
// sentence, word) and falls back to raw rune windows only when a candidate
// still exceeds the size bound. Adjacent chunks share the last Overlap units
// of the preceding chunk verbatim, so cross-boundary context is never lost.
// Output is deterministic for identical input.
package chunk

import "strings"

const (
	// DefaultSize is the target chunk size in embedding input units.
	DefaultSize = 8192

	// DefaultOverlap is the shared suffix length between consecutive
	// chunks (10% of DefaultSize).
	DefaultOverlap = 819
)

// separators in descending priority. Finer granularity is only used when a
// segment still exceeds the bound at the current level.
var separators = []string{"\n\n", "\n", ". ", " "}

// Chunk is a derived, ephemeral unit of text prepared for embedding. Only
// its embedding and metadata are persisted, never the chunk itself.
type Chunk struct {
	DocID     string
	PageRange string
	Index     int
	Text      string
}

// Splitter produces overlapping chunks bounded by Size.
type Splitter struct {
	// Size is the maximum chunk length in runes. Must match the embedding
	// service input limit.
	Size int

	// Overlap is the number of trailing runes of a chunk repeated at the
	// start of its successor. Must be < Size.
	Overlap int
}

// NewSplitter creates a splitter with the default size and overlap.
func NewSplitter() *Splitter {
	return &Splitter{Size: DefaultSize, Overlap: DefaultOverlap}
}

// Split divides text into chunks of at most s.Size runes. Each chunk after
// the first begins with the verbatim last s.Overlap runes of its
// predecessor. Text no longer than s.Size yields exactly one chunk with no
// overlap applied. Empty or blank text yields no chunks.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= s.Size {
		return []string{text}
	}

	// Each chunk is overlap + body, so bodies are bounded by Size-Overlap
	// to keep the total within Size.
	bodyLimit := s.Size - s.Overlap
	fragments := splitRecursive(text, separators, bodyLimit)
	bodies := mergeFragments(fragments, bodyLimit)

	chunks := make([]string, 0, len(bodies))
	for i, body := range bodies {
		if i == 0 {
			chunks = append(chunks, body)
			continue
		}
		prev := []rune(chunks[i-1])
		tail := string(prev[len(prev)-min(s.Overlap, len(prev)):])
		chunks = append(chunks, tail+body)
	}
	return chunks
}

// Chunks splits text and attaches metadata. startIndex is the running chunk
// index within the document, so identifiers stay unique across batches.
func (s *Splitter) Chunks(docID, pageRange string, startIndex int, text string) []Chunk {
	parts := s.Split(text)
	chunks := make([]Chunk, 0, len(parts))
	for i, part := range parts {
		chunks = append(chunks, Chunk{
			DocID:     docID,
			PageRange: pageRange,
			Index:     startIndex + i,
			Text:      part,
		})
	}
	return chunks
}

// splitRecursive splits text into fragments no longer than limit runes,
// preferring coarse separators and keeping each separator attached to the
// fragment it terminates so concatenating all fragments reproduces text.
func splitRecursive(text string, seps []string, limit int) []string {
	if len([]rune(text)) <= limit {
		return []string{text}
	}

	if len(seps) == 0 {
		return splitWindows(text, limit)
	}

	pieces := splitAfter(text, seps[0])
	if len(pieces) == 1 {
		// Separator absent, descend to the next level.
		return splitRecursive(text, seps[1:], limit)
	}

	var out []string
	for _, piece := range pieces {
		if len([]rune(piece)) <= limit {
			out = append(out, piece)
			continue
		}
		out = append(out, splitRecursive(piece, seps[1:], limit)...)
	}
	return out
}

// splitAfter splits text on sep, keeping sep at the end of each piece.
func splitAfter(text, sep string) []string {
	parts := strings.SplitAfter(text, sep)
	// SplitAfter can leave a trailing empty string when text ends in sep.
	if n := len(parts); n > 0 && parts[n-1] == "" {
		parts = parts[:n-1]
	}
	return parts
}

// splitWindows cuts text into raw rune windows of at most limit runes.
func splitWindows(text string, limit int) []string {
	runes := []rune(text)
	out := make([]string, 0, (len(runes)+limit-1)/limit)
	for start := 0; start < len(runes); start += limit {
		end := min(start+limit, len(runes))
		out = append(out, string(runes[start:end]))
	}
	return out
}

// mergeFragments greedily packs consecutive fragments into bodies of at
// most limit runes, preserving original order and content.
func mergeFragments(fragments []string, limit int) []string {
	var bodies []string
	var current strings.Builder
	currentLen := 0

	for _, frag := range fragments {
		fragLen := len([]rune(frag))
		if currentLen > 0 && currentLen+fragLen > limit {
			bodies = append(bodies, current.String())
			current.Reset()
			currentLen = 0
		}
		current.WriteString(frag)
		currentLen += fragLen
	}
	if currentLen > 0 {
		bodies = append(bodies, current.String())
	}
	return bodies
}
