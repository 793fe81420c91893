package ragquiz

import (
	"context"
	"encoding/json"
	"log"
	"strings"
)

// Validator independently re-asks the model whether each previously produced
// answer is the best of the offered options. Retrieval uses only the
// question text, never the stored answer or explanation, so the claimed
// answer cannot leak into the context used to judge it.
type Validator struct {
	cfg       Config
	llm       TextGenerator
	retriever *Retriever
	db        *DB
	template  string
}

// NewValidator builds a validator. retriever and db may be nil; db nil skips
// the relational mirror.
func NewValidator(cfg Config, llm TextGenerator, retriever *Retriever, db *DB) (*Validator, error) {
	tpl, err := loadTemplate(validateTemplate)
	if err != nil {
		return nil, err
	}
	return &Validator{
		cfg:       cfg,
		llm:       llm,
		retriever: retriever,
		db:        db,
		template:  tpl,
	}, nil
}

// Run validates every question in the quiz against its key entry. A failed
// verdict call is logged and skipped; a failed DB insert is logged and never
// aborts the rest of the batch. Returns the accepted questions and the full
// verdict list.
func (v *Validator) Run(ctx context.Context, quiz []QuizEntry, key map[string]AnswerEntry) ([]ValidatedQuestion, []Verdict, error) {
	var accepted []ValidatedQuestion
	var verdicts []Verdict

	for _, q := range quiz {
		if err := ctx.Err(); err != nil {
			return accepted, verdicts, err
		}
		entry, ok := key[q.ID]
		if !ok {
			continue
		}

		v.sanityCheck(q, entry)

		prompt := v.buildPrompt(q, entry, v.contextFor(ctx, q.Question))
		res, err := v.llm.Generate(ctx, GenerateRequest{
			Model:     v.cfg.Model,
			Prompt:    prompt,
			Options:   GenerateOptions{Temperature: v.cfg.Temperature},
			KeepAlive: v.cfg.KeepAlive,
		})
		if err != nil {
			if ctx.Err() != nil {
				return accepted, verdicts, ctx.Err()
			}
			Warnf("Validation call failed for %s: %v", q.ID, err)
			continue
		}

		verdict := ParseVerdict(res.Text)
		verdicts = append(verdicts, Verdict{QuestionID: q.ID, Correct: verdict})
		VerboseLog("Question %s: verdict=%v", q.ID, verdict)
		if !verdict {
			continue
		}

		accepted = append(accepted, ValidatedQuestion{
			ID:          q.ID,
			Question:    q.Question,
			Options:     q.Options,
			Topic:       q.Topic,
			Difficulty:  q.Difficulty,
			Answer:      entry.Answer,
			Explanation: entry.Explanation,
		})
		if v.db != nil {
			if _, err := v.db.InsertValidated(q.Question, q.Options, entry.Answer, entry.Explanation); err != nil {
				Warnf("DB insert failed for %s: %v", q.ID, err)
			}
		}
	}

	log.Printf("Validation complete: %d/%d questions accepted", len(accepted), len(quiz))
	return accepted, verdicts, nil
}

// sanityCheck warns about key/quiz mismatches before the verdict call is
// made. Validation still proceeds either way.
func (v *Validator) sanityCheck(q QuizEntry, entry AnswerEntry) {
	if len(q.Options) == 0 {
		Warnf("Question %s has no options; validation may be unreliable.", q.ID)
		return
	}
	norm := strings.ToLower(strings.TrimSpace(entry.Answer))
	if norm == "" {
		return
	}
	for _, opt := range q.Options {
		if norm == strings.ToLower(strings.TrimSpace(opt)) {
			return
		}
	}
	Warnf("Question %s provided answer text does not match any option.", q.ID)
}

// contextFor retrieves grounding using only the question text and strips any
// leading banner line so the verdict prompt stays focused.
func (v *Validator) contextFor(ctx context.Context, question string) string {
	files, _ := v.retriever.BlocksForQuery(ctx, question, false)
	if files == nil {
		return ""
	}
	raw := files[ContextDocName]
	var lines []string
	for _, ln := range strings.Split(raw, "\n") {
		if strings.TrimSpace(ln) != "" {
			lines = append(lines, ln)
		}
	}
	if len(lines) > 0 {
		first := lines[0]
		if strings.HasPrefix(first, "#") || strings.HasPrefix(first, "===") || strings.HasPrefix(first, "---") {
			lines = lines[1:]
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func (v *Validator) buildPrompt(q QuizEntry, entry AnswerEntry, contextText string) string {
	contextSection := ""
	if contextText != "" {
		contextSection = "Context (from knowledge base):\n" + contextText + "\n\n"
	}
	opts := make([]string, 0, len(q.Options))
	for _, opt := range q.Options {
		opts = append(opts, "- "+opt)
	}
	return RenderTemplate(v.template, map[string]string{
		"context_section":      contextSection,
		"question":             strings.TrimSpace(q.Question),
		"options":              strings.Join(opts, "\n"),
		"provided_answer_text": strings.TrimSpace(entry.Answer),
		"explanation":          strings.TrimSpace(entry.Explanation),
	})
}

// ParseVerdict interprets model output as a boolean: exact true/false
// (case-insensitive, optionally quote-wrapped), else a JSON literal parse,
// else false.
func ParseVerdict(raw string) bool {
	s := strings.TrimSpace(raw)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
		if b, ok := parsed.(bool); ok {
			return b
		}
	}
	return false
}
