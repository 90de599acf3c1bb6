package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ExecutionContext maps step index to digest for one run. Entries are only
// ever added, each exactly once, by the step that produced it.
type ExecutionContext struct {
	mu      sync.RWMutex
	digests map[int]string
}

// NewExecutionContext returns an empty context.
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{digests: make(map[int]string)}
}

// Put records the digest for index.
func (c *ExecutionContext) Put(index int, digest string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.digests[index]; ok {
		return fmt.Errorf("%w: step %d", ErrDigestExists, index)
	}
	c.digests[index] = digest
	return nil
}

// Digest returns the digest recorded for index.
func (c *ExecutionContext) Digest(index int) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.digests[index]
	return d, ok
}

// Len reports how many digests have been recorded.
func (c *ExecutionContext) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.digests)
}

// Gather concatenates the digests of deps in ascending index order. Each
// digest is introduced by a "[step N]" line. Indices without a digest are
// returned in missing and contribute nothing to the input.
func (c *ExecutionContext) Gather(deps []int) (input string, missing []int) {
	sorted := append([]int(nil), deps...)
	sort.Ints(sorted)

	c.mu.RLock()
	defer c.mu.RUnlock()

	parts := make([]string, 0, len(sorted))
	for _, d := range sorted {
		digest, ok := c.digests[d]
		if !ok {
			missing = append(missing, d)
			continue
		}
		parts = append(parts, fmt.Sprintf("[step %d]\n%s", d, digest))
	}
	return strings.Join(parts, "\n\n"), missing
}

type runIDKey struct{}

// WithRunID returns a context carrying the run id.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFromContext returns the run id stored by WithRunID, if any.
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
