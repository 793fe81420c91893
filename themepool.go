package ragquiz

import (
	"math/rand"
	"sync"
)

// ThemePool is the run's ordered, deduplicated set of topical themes. It is
// built once per run and read-only afterwards; retry attempts index into it
// positionally so every attempt lands on a fresh theme.
type ThemePool struct {
	mu     sync.RWMutex
	themes []string
}

// NewThemePool deduplicates the themes in order, shuffles them for variety,
// and caps the pool at maxSize (at least 1) so indices map one-to-one to
// retry attempts. Shuffling happens only here, at construction time.
func NewThemePool(themes []string, maxSize int, rng *rand.Rand) *ThemePool {
	seen := make(map[string]struct{}, len(themes))
	ordered := make([]string, 0, len(themes))
	for _, t := range themes {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		ordered = append(ordered, t)
	}
	if rng != nil {
		rng.Shuffle(len(ordered), func(i, j int) {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		})
	}
	if maxSize < 1 {
		maxSize = 1
	}
	if len(ordered) > maxSize {
		ordered = ordered[:maxSize]
	}
	return &ThemePool{themes: ordered}
}

// Size returns the number of themes in the pool.
func (p *ThemePool) Size() int {
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.themes)
}

// IsEmpty reports whether the pool has no themes.
func (p *ThemePool) IsEmpty() bool {
	return p.Size() == 0
}

// At returns the theme at position i modulo the pool size, or empty for an
// empty pool.
func (p *ThemePool) At(i int) string {
	if p == nil {
		return ""
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.themes) == 0 {
		return ""
	}
	if i < 0 {
		i = -i
	}
	return p.themes[i%len(p.themes)]
}

// All returns a copy of the pool in order.
func (p *ThemePool) All() []string {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.themes))
	copy(out, p.themes)
	return out
}
