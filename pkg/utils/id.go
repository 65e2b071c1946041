package utils

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// ArtifactIDs hands out unique artifact names for concurrent workers.
// Names combine the worker id, a process-wide sequence number and a short
// random token, so two workers can never produce the same file name even
// when the random part collides.
type ArtifactIDs struct {
	seq    atomic.Uint64
	random bool
}

// NewArtifactIDs creates a generator. When random is false the names are
// fully deterministic (worker + sequence), which is what tests want.
func NewArtifactIDs(random bool) *ArtifactIDs {
	return &ArtifactIDs{random: random}
}

// Next returns the next artifact id for the given worker
func (g *ArtifactIDs) Next(worker int) string {
	n := g.seq.Add(1)
	if !g.random {
		return fmt.Sprintf("w%d-%d", worker, n)
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("w%d-%d-%s", worker, n, token[:10])
}

// Issued returns how many ids have been handed out
func (g *ArtifactIDs) Issued() uint64 {
	return g.seq.Load()
}

// GenerateRunID generates a run id for a search that was not given one
func GenerateRunID() string {
	return "search-" + uuid.NewString()
}
