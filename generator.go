package ragquiz

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Generator orchestrates a generation run: for each requested question it
// selects a theme, renders a prompt over the retrieved corpus, invokes the
// model, and parses the output. On a parse failure it advances to the next
// theme with a fresh nonce, up to MaxRetries extra attempts; exhausting the
// attempts fails the whole run, because shipping fewer questions than
// requested would silently corrupt the deliverable.
type Generator struct {
	cfg       Config
	llm       TextGenerator
	retriever *Retriever
	history   *HistoryLog
	template  string
}

// NewGenerator builds a generator. retriever and history may be nil; the run
// then proceeds without grounding and without repeat steering.
func NewGenerator(cfg Config, llm TextGenerator, retriever *Retriever, history *HistoryLog) (*Generator, error) {
	tpl, err := loadTemplate(generateTemplate)
	if err != nil {
		return nil, err
	}
	return &Generator{
		cfg:       cfg,
		llm:       llm,
		retriever: retriever,
		history:   history,
		template:  tpl,
	}, nil
}

// Run generates exactly cfg.Count questions or fails. Questions are
// processed sequentially; each one finishes all its retry attempts before
// the next begins. On success the history log grows by one normalized entry
// per question.
func (g *Generator) Run(ctx context.Context) ([]Question, error) {
	log.Printf("Starting quiz generation: %d questions, model %s", g.cfg.Count, g.cfg.Model)

	baseFiles, pool := g.retriever.BuildRunContext(ctx)
	if pool != nil {
		VerboseLog("Theme pool: %v", pool.All())
	}
	recent := g.history.Recent(g.cfg.RecentWindow)

	questions := make([]Question, 0, g.cfg.Count)
	for idx := 0; idx < g.cfg.Count; idx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		q, err := g.generateOne(ctx, idx, baseFiles, pool, recent)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", idx+1, err)
		}
		q.ID = fmt.Sprintf("Q%d", idx+1)
		questions = append(questions, q)
		log.Printf("[%d/%d] accepted: %s", idx+1, g.cfg.Count, q.ID)
	}

	g.history.Append(questions)
	return questions, nil
}

// generateOne runs the per-question attempt loop. The attempt's theme is
// pool[(idx+attempt) mod size], so consecutive parse failures rotate through
// distinct themes in pool order and rebuild the corpus from each theme's own
// blocks rather than reusing the original grounding.
func (g *Generator) generateOne(ctx context.Context, idx int, baseFiles map[string]string, pool *ThemePool, recent []string) (Question, error) {
	token := uuid.NewString()
	var lastErr error

	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Question{}, err
		}

		theme := ""
		files := baseFiles
		if !pool.IsEmpty() {
			theme = pool.At(idx + attempt)
			if blocks := g.retriever.BlocksForTheme(ctx, theme); blocks != nil {
				files = blocks
			}
		}

		vars := g.promptVars(idx, token, theme, recent, files)
		if attempt > 0 {
			// A fresh nonce keeps repeated attempts from being deduplicated
			// by the model or any caching transport.
			nonce := retryNonce()
			vars["retry_nonce"] = " retry-" + nonce
			if theme != "" {
				vars["theme"] = theme + " (alt " + nonce[:4] + ")"
			}
		}

		prompt := RenderTemplate(g.template, vars)
		res, err := g.llm.Generate(ctx, GenerateRequest{
			Model:  g.cfg.Model,
			Prompt: prompt,
			Options: GenerateOptions{
				Temperature: g.cfg.Temperature,
				NumPredict:  g.cfg.NumPredict,
				TopK:        g.cfg.TopK,
				TopP:        g.cfg.TopP,
			},
			KeepAlive: g.cfg.KeepAlive,
		})
		if err != nil {
			// Transport failures already spent their own retry budget; they
			// are not retried by theme rotation.
			return Question{}, err
		}

		parsed, perr := ParseQuestions(res.Text)
		if perr != nil {
			lastErr = perr
			Warnf("LLM output parsing failed (attempt %d/%d): %v", attempt+1, g.cfg.MaxRetries+1, perr)
			continue
		}

		q := parsed[0]
		q.RawResponse = res.Raw
		if q.Topic == "General" && theme != "" {
			q.Topic = theme
		}
		return q, nil
	}

	return Question{}, fmt.Errorf("attempts exhausted after %d tries: %w", g.cfg.MaxRetries+1, lastErr)
}

func (g *Generator) promptVars(idx int, token, theme string, recent []string, files map[string]string) map[string]string {
	corpus := BuildCorpus(files, g.cfg.SnippetChars, g.cfg.CorpusChars)
	if g.cfg.CorpusChars != -1 && len(corpus) > g.cfg.CorpusChars {
		corpus = truncate(corpus, g.cfg.CorpusChars)
	}
	displayTheme := theme
	if displayTheme == "" {
		displayTheme = "general knowledge"
	}
	return map[string]string{
		"token":          token,
		"question_index": strconv.Itoa(idx + 1),
		"recent_clause":  RecentClause(recent, g.cfg.RecentWindow),
		"corpus":         corpus,
		"style_clause":   StyleClause(g.cfg.CompactJSON),
		"iteration":      strconv.Itoa(idx),
		"count":          strconv.Itoa(g.cfg.Count),
		"model":          g.cfg.Model,
		"theme":          displayTheme,
		"retry_nonce":    "",
	}
}

// retryNonce is a short process-unique token folded into retry prompts.
func retryNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
