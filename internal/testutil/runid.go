package testutil

// FixedRunID returns the same run ID every time.
//
// This keeps journal rows and log lines reproducible across test runs.
// If id is empty, Generate returns "test-run-default".
//
// Thread-safety: stateless and safe for concurrent use.
type FixedRunID struct {
	id string
}

// NewFixedRunID creates a generator for a single run ID.
func NewFixedRunID(id string) *FixedRunID {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunID{id: id}
}

// Generate returns the fixed run ID.
func (g *FixedRunID) Generate() string {
	return g.id
}
