package vector

import "time"

const (
	defaultTopK = 5

	// maxTopK caps how many chunks one query may pull back.
	maxTopK = 30
)

// QueryOption configures a similarity search using the functional options
// pattern.
type QueryOption func(*queryConfig)

type queryConfig struct {
	topK         int
	docID        string
	createdAfter time.Time
}

// WithTopK sets the maximum number of results to return. Values outside
// [1, 30] are clamped.
func WithTopK(k int) QueryOption {
	return func(c *queryConfig) {
		c.topK = k
	}
}

// WithDocument restricts the search to chunks of a single document.
func WithDocument(docID string) QueryOption {
	return func(c *queryConfig) {
		c.docID = docID
	}
}

// WithCreatedAfter restricts the search to chunks indexed after t. The zero
// time means no restriction.
func WithCreatedAfter(t time.Time) QueryOption {
	return func(c *queryConfig) {
		c.createdAfter = t
	}
}

func buildQueryConfig(opts []QueryOption) *queryConfig {
	cfg := &queryConfig{topK: defaultTopK}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.topK < 1 {
		cfg.topK = defaultTopK
	}
	if cfg.topK > maxTopK {
		cfg.topK = maxTopK
	}
	return cfg
}
