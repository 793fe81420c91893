package ragquiz

import (
	"embed"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// ContextDocName is the synthetic file name the retrieval context is
// rendered under. It is exempt from the per-file snippet cap so retrieved
// grounding never gets cut mid-block.
const ContextDocName = "RAG_CONTEXT.md"

// Template names under templates/.
const (
	generateTemplate      = "generate_prompt.tmpl"
	contextHeaderTemplate = "context_header.tmpl"
	validateTemplate      = "validate_prompt.tmpl"
)

// placeholder matches $name, ${name}, and the $$ escape.
var placeholder = regexp.MustCompile(`\$(?:(\$)|([A-Za-z_][A-Za-z0-9_]*)|\{([A-Za-z_][A-Za-z0-9_]*)\})`)

// RenderTemplate substitutes $name / ${name} placeholders from vars. Unknown
// placeholders are left as literal text so template drift degrades the
// prompt instead of crashing generation.
func RenderTemplate(tpl string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(tpl, func(m string) string {
		groups := placeholder.FindStringSubmatch(m)
		if groups[1] == "$" {
			return "$"
		}
		name := groups[2]
		if name == "" {
			name = groups[3]
		}
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})
}

func loadTemplate(name string) (string, error) {
	data, err := templateFS.ReadFile("templates/" + name)
	if err != nil {
		return "", fmt.Errorf("load template %s: %w", name, err)
	}
	return string(data), nil
}

// BuildCorpus concatenates context files into one prompt-ready corpus under
// two independent caps: a per-file snippet cap and a total corpus cap
// (either may be -1 for unlimited). Caps are applied greedily in sorted file
// order; a file that would exceed a cap is dropped whole, never truncated
// mid-file, so the model never sees a misleading partial snippet.
func BuildCorpus(files map[string]string, snippetChars, corpusChars int) string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	ceiling := -1
	if corpusChars != -1 {
		ceiling = hardCorpusCeiling
	}

	var parts []string
	total := 0
	for _, name := range names {
		text := files[name]
		if snippetChars != -1 && name != ContextDocName && len(text) > snippetChars {
			text = truncate(text, snippetChars)
		}
		part := fmt.Sprintf("\n# FILE: %s\n%s\n", name, text)
		if corpusChars != -1 && total+len(part) > corpusChars {
			break
		}
		if ceiling != -1 && total+len(part) > ceiling {
			break
		}
		parts = append(parts, part)
		total += len(part)
	}
	return strings.Join(parts, "")
}

// RecentClause renders the advisory steer-away clause from normalized prior
// question texts, bounded by the configured window.
func RecentClause(recent []string, window int) string {
	if len(recent) == 0 {
		return ""
	}
	if window > 0 && len(recent) > window {
		recent = recent[len(recent)-window:]
	}
	return "Avoid reusing these prior question phrasings: " + strings.Join(recent, "; ")
}

// StyleClause picks the output-format instruction.
func StyleClause(compact bool) string {
	if compact {
		return "Return ONLY a strict compact JSON object; no markdown, no extra text."
	}
	return "Return ONLY a strict JSON object; no markdown, no extra text."
}
