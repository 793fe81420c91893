package ragquiz

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"
)

// Document is one ranked hit from the vector store.
type Document struct {
	Content string
	Meta    map[string]string
}

// VectorStore is the retrieval service boundary. Query with a non-empty
// theme applies a metadata-equality filter across the store's numbered tag
// slots; an empty theme is a plain nearest-neighbor search.
type VectorStore interface {
	Query(ctx context.Context, vector []float32, topK int, theme string) ([]Document, error)
	Themes(ctx context.Context) ([]string, error)
	Close() error
}

// RetrievalDebug is the optional bundle returned alongside query-scoped
// retrieval when debugging is requested.
type RetrievalDebug struct {
	Query   string
	Sources []string
}

// snippetLimit bounds each context block's character budget; snippets are
// also the deduplication key within one retrieval call.
const snippetLimit = 1000

// Retriever scopes retrieval to themes or free-text queries and renders the
// hits into a prompt-ready context document. Every method is fail-soft: a
// store or embedder failure is logged and reported as "nothing retrieved",
// never as an error, so generation degrades to non-themed prompting.
type Retriever struct {
	store       VectorStore
	embed       Embedder
	topK        int
	maxThemes   int
	includeTags []string
	header      string
	rng         *rand.Rand
}

// NewRetriever wires a retriever over the given store and embedder. A nil
// store yields a retriever with retrieval disabled (all methods degrade).
func NewRetriever(store VectorStore, embed Embedder, cfg Config) *Retriever {
	header, err := loadTemplate(contextHeaderTemplate)
	if err != nil {
		Warnf("Could not load context header template; omitting header: %v", err)
		header = ""
	}
	return &Retriever{
		store:       store,
		embed:       embed,
		topK:        cfg.RAGTopK,
		maxThemes:   cfg.MaxRetries + 1,
		includeTags: cfg.IncludeTags,
		header:      header,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ListThemes enumerates the distinct theme labels in the store, shuffled for
// variety and truncated to max(1, maxRetries+1) entries so each retry
// attempt can index into a fresh theme. An unreachable or empty store means
// an empty pool; callers treat that as "no theming available".
func (r *Retriever) ListThemes(ctx context.Context) []string {
	if r == nil || r.store == nil {
		return nil
	}
	raw, err := r.store.Themes(ctx)
	if err != nil {
		Warnf("Could not fetch themes: %v", err)
		return nil
	}
	themes := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if len(r.includeTags) > 0 && !containsFold(r.includeTags, t) {
			continue
		}
		themes = append(themes, t)
	}
	pool := NewThemePool(themes, r.maxThemes, r.rng)
	return pool.All()
}

// BlocksForTheme retrieves up to topK documents filtered to the theme and
// renders one composite context document. Returns nil (not an error) when
// nothing matches; callers fall back to the theme-free corpus.
func (r *Retriever) BlocksForTheme(ctx context.Context, theme string) map[string]string {
	if r == nil || r.store == nil {
		return nil
	}
	theme = strings.ToLower(strings.TrimSpace(theme))
	if theme == "" {
		return nil
	}
	vector, err := r.embed.Embed(ctx, theme)
	if err != nil {
		Warnf("Per-question retrieval by theme failed: %v", err)
		return nil
	}
	docs, err := r.store.Query(ctx, vector, r.topK, theme)
	if err != nil {
		Warnf("Theme-filtered query failed: %v", err)
		docs = nil
	}
	if len(docs) == 0 {
		// Sharded metadata can defeat the exact filter; retry unfiltered and
		// re-check themes client-side.
		docs, err = r.store.Query(ctx, vector, r.topK, "")
		if err != nil {
			Warnf("Fallback query failed: %v", err)
			return nil
		}
		if kept := filterByTheme(docs, theme); len(kept) > 0 {
			docs = kept
		}
	}
	if len(docs) == 0 {
		return nil
	}
	return r.renderContext(theme, docs)
}

// BlocksForQuery retrieves for arbitrary text with no theme filter. Used by
// the validator, which must query with the question text only.
func (r *Retriever) BlocksForQuery(ctx context.Context, query string, debug bool) (map[string]string, *RetrievalDebug) {
	if r == nil || r.store == nil {
		return nil, nil
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	vector, err := r.embed.Embed(ctx, query)
	if err != nil {
		Warnf("Query embedding failed: %v", err)
		return nil, nil
	}
	docs, err := r.store.Query(ctx, vector, r.topK, "")
	if err != nil {
		Warnf("Query retrieval failed: %v", err)
		return nil, nil
	}
	if len(docs) == 0 {
		return nil, nil
	}
	files := r.renderContext(query, docs)
	if !debug {
		return files, nil
	}
	dbg := &RetrievalDebug{Query: query}
	for _, d := range docs {
		dbg.Sources = append(dbg.Sources, docSource(d))
	}
	return files, dbg
}

// BuildRunContext is the generation-run entry point: it returns the initial
// corpus mapping and the run's theme pool. When retrieval is disabled or the
// store is absent, both are empty and that is not an error.
func (r *Retriever) BuildRunContext(ctx context.Context) (map[string]string, *ThemePool) {
	if r == nil || r.store == nil {
		return map[string]string{}, nil
	}
	themes := r.ListThemes(ctx)
	if len(themes) == 0 {
		Warnf("No themes found in store; proceeding with empty context.")
		return map[string]string{}, nil
	}
	// Shuffled and capped already; the pool stays read-only from here on.
	return map[string]string{}, &ThemePool{themes: themes}
}

// renderContext deduplicates the hits by snippet content and assembles the
// composite context document under a templated header.
func (r *Retriever) renderContext(tag string, docs []Document) map[string]string {
	seen := make(map[string]struct{})
	var blocks []string
	for _, d := range docs {
		snippet := strings.TrimSpace(truncate(d.Content, snippetLimit))
		if snippet == "" {
			continue
		}
		if _, dup := seen[snippet]; dup {
			continue
		}
		seen[snippet] = struct{}{}

		heading := d.Meta["section_heading"]
		if heading == "" {
			heading = truncate(strings.SplitN(snippet, "\n", 2)[0], 80)
		}
		blocks = append(blocks, fmt.Sprintf("[C1] (source: %s, heading: %s)\n%s", docSource(d), heading, snippet))
	}
	if len(blocks) == 0 {
		return nil
	}
	header := RenderTemplate(r.header, map[string]string{"tag": tag})
	return map[string]string{
		ContextDocName: header + "\n\n---\n\n" + strings.Join(blocks, "\n\n"),
	}
}

// filterByTheme keeps documents whose tag metadata mentions the theme,
// checking the numbered slots and the aggregate comma-joined key.
func filterByTheme(docs []Document, theme string) []Document {
	var kept []Document
	for _, d := range docs {
		if docHasTheme(d, theme) {
			kept = append(kept, d)
		}
	}
	return kept
}

func docHasTheme(d Document, theme string) bool {
	for key, val := range d.Meta {
		if key != "tags" && !strings.HasPrefix(key, "tags_") {
			continue
		}
		for _, tok := range strings.Split(val, ",") {
			t := strings.ToLower(strings.TrimSpace(tok))
			if t == "" {
				continue
			}
			if t == theme || strings.Contains(t, theme) {
				return true
			}
		}
	}
	return false
}

func docSource(d Document) string {
	for _, key := range []string{"source", "rel_path", "path"} {
		if v := d.Meta[key]; v != "" {
			return v
		}
	}
	return "unknown"
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(strings.TrimSpace(h), needle) {
			return true
		}
	}
	return false
}

// truncate cuts s to at most n bytes, backing off to a rune boundary so the
// cut never emits invalid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
