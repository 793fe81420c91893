package ragquiz

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	vars := map[string]string{"name": "world", "n": "3"}

	assert.Equal(t, "hello world", RenderTemplate("hello $name", vars))
	assert.Equal(t, "hello world!", RenderTemplate("hello ${name}!", vars))
	assert.Equal(t, "3 items", RenderTemplate("$n items", vars))
	assert.Equal(t, "cost: $5", RenderTemplate("cost: $$5", vars))
}

func TestRenderTemplateUnknownPlaceholderLeftLiteral(t *testing.T) {
	out := RenderTemplate("known $name, unknown $missing and ${also_missing}", map[string]string{"name": "x"})
	assert.Equal(t, "known x, unknown $missing and ${also_missing}", out)
}

func TestRenderTemplateNoRecursiveSubstitution(t *testing.T) {
	// A value containing a placeholder must come through verbatim.
	out := RenderTemplate("$a", map[string]string{"a": "$b", "b": "nope"})
	assert.Equal(t, "$b", out)
}

func TestLoadEmbeddedTemplates(t *testing.T) {
	for _, name := range []string{generateTemplate, contextHeaderTemplate, validateTemplate} {
		tpl, err := loadTemplate(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, tpl, name)
	}
}

func TestBuildCorpusUnlimited(t *testing.T) {
	files := map[string]string{
		"b.md": "bravo",
		"a.md": "alpha",
	}
	corpus := BuildCorpus(files, -1, -1)

	// Sorted file order, each under its own header.
	assert.Equal(t, "\n# FILE: a.md\nalpha\n\n# FILE: b.md\nbravo\n", corpus)
}

func TestBuildCorpusSnippetCap(t *testing.T) {
	files := map[string]string{"a.md": strings.Repeat("x", 50)}
	corpus := BuildCorpus(files, 10, -1)
	assert.Contains(t, corpus, "\n# FILE: a.md\n"+strings.Repeat("x", 10)+"\n")
	assert.NotContains(t, corpus, strings.Repeat("x", 11))
}

func TestBuildCorpusSnippetCapKeepsValidUTF8(t *testing.T) {
	// Ten 2-byte runes with a cap landing mid-rune.
	files := map[string]string{"a.md": strings.Repeat("é", 10)}
	corpus := BuildCorpus(files, 5, -1)
	assert.True(t, utf8.ValidString(corpus))
	assert.Contains(t, corpus, "éé")
	assert.NotContains(t, corpus, "ééé")
}

func TestBuildCorpusContextDocExemptFromSnippetCap(t *testing.T) {
	long := strings.Repeat("c", 100)
	files := map[string]string{ContextDocName: long}
	corpus := BuildCorpus(files, 10, -1)
	assert.Contains(t, corpus, long)
}

func TestBuildCorpusTotalCapDropsWholeFiles(t *testing.T) {
	files := map[string]string{
		"a.md": strings.Repeat("a", 30),
		"b.md": strings.Repeat("b", 30),
	}
	// Room for the first part only; the second is dropped whole.
	corpus := BuildCorpus(files, -1, 60)
	assert.Contains(t, corpus, "a.md")
	assert.NotContains(t, corpus, "b.md")
	assert.NotContains(t, corpus, "bbb")
}

func TestBuildCorpusEmpty(t *testing.T) {
	assert.Equal(t, "", BuildCorpus(nil, -1, -1))
	assert.Equal(t, "", BuildCorpus(map[string]string{}, 100, 100))
}

func TestRecentClause(t *testing.T) {
	assert.Equal(t, "", RecentClause(nil, 5))

	clause := RecentClause([]string{"q one", "q two", "q three"}, 2)
	assert.Equal(t, "Avoid reusing these prior question phrasings: q two; q three", clause)

	// Window zero means no trimming.
	clause = RecentClause([]string{"a", "b"}, 0)
	assert.Equal(t, "Avoid reusing these prior question phrasings: a; b", clause)
}

func TestStyleClause(t *testing.T) {
	assert.Contains(t, StyleClause(true), "compact")
	assert.NotContains(t, StyleClause(false), "compact")
}
