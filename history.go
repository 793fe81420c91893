package ragquiz

import (
	"encoding/json"
	"os"
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// normalizeQuestionText collapses whitespace and lower-cases a question for
// history comparison.
func normalizeQuestionText(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(strings.ToLower(s), " "))
}

// HistoryLog is the append-only record of recent question texts, consulted
// to steer the model away from repeats. It is advisory only, never a hard
// uniqueness guarantee, and every failure here is non-fatal.
type HistoryLog struct {
	path string
	keep int
}

// NewHistoryLog opens a history log at path with the default retention.
func NewHistoryLog(path string) *HistoryLog {
	return &HistoryLog{path: path, keep: DefaultHistoryKeep}
}

// Recent returns up to window normalized question texts, newest last. A
// missing or unreadable file yields nothing.
func (h *HistoryLog) Recent(window int) []string {
	if h == nil {
		return nil
	}
	data, err := os.ReadFile(h.path)
	if err != nil {
		return nil
	}
	var loaded []string
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil
	}
	out := make([]string, 0, len(loaded))
	for _, q := range loaded {
		out = append(out, normalizeQuestionText(q))
	}
	if window > 0 && len(out) > window {
		out = out[len(out)-window:]
	}
	return out
}

// Append records the questions' normalized texts, keeping only the newest
// entries up to the retention cap. Best-effort: a write failure is warned
// about and ignored.
func (h *HistoryLog) Append(questions []Question) {
	if h == nil || len(questions) == 0 {
		return
	}
	existing := h.Recent(0)
	for _, q := range questions {
		existing = append(existing, normalizeQuestionText(q.Question))
	}
	if len(existing) > h.keep {
		existing = existing[len(existing)-h.keep:]
	}
	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		Warnf("Could not encode history: %v", err)
		return
	}
	if err := os.WriteFile(h.path, data, 0644); err != nil {
		Warnf("Could not write history: %v", err)
	}
}
