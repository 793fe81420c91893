package ragquiz

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Model output is rarely clean JSON. The extraction order is: fenced code
// block (```json, ```JSON, then any fence), else the first balanced {...}
// object, else the first balanced [...] array, else the whole text. Objects
// are preferred over arrays on purpose: taking the first '[' would happily
// capture a nested "options" array instead of the outer envelope.
var fencePatterns = []*regexp.Regexp{
	regexp.MustCompile("(?s)```\\s*json\\s*\\n(.*?)```"),
	regexp.MustCompile("(?s)```\\s*JSON\\s*\\n(.*?)```"),
	regexp.MustCompile("(?s)```\\s*\\n(.*?)```"),
}

// optionLabel matches a leading per-option label like "A) ", "b.", "C :", "d -".
var optionLabel = regexp.MustCompile(`^\s*[A-Da-d]\s*[\)\.:\-]\s*`)

// bareLetter matches an answer that is just a letter, optionally followed by
// label punctuation.
var bareLetter = regexp.MustCompile(`^[A-Da-d]\s*[\)\.:\-]?$`)

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

// ParseQuestions turns raw model output into questions. The returned
// questions have no run-scoped id or theme yet; the orchestrator assigns
// those. All failures are *ParseError carrying the offending text.
func ParseQuestions(raw string) ([]Question, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, newParseError("empty response", raw)
	}

	data, err := decodeWithRepair(extractJSON(text))
	if err != nil {
		return nil, newParseError(fmt.Sprintf("no parseable JSON: %v", err), text)
	}

	var items []any
	switch v := data.(type) {
	case []any:
		items = v
	case map[string]any:
		// Single-question replies come back as one object.
		items = []any{v}
	default:
		return nil, newParseError(fmt.Sprintf("expected a list of questions, got %T", data), text)
	}

	var out []Question
	for idx, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		q, err := parseOne(obj, idx+1)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	if len(out) == 0 {
		return nil, newParseError("no questions parsed from model output", text)
	}
	return out, nil
}

func parseOne(obj map[string]any, idx int) (Question, error) {
	question := strings.TrimSpace(stringField(obj, "question"))
	if question == "" {
		// Tolerated: the record is still usable for everything downstream.
		question = fmt.Sprintf("Placeholder question %d", idx)
	}

	options, err := normalizeOptions(obj["options"])
	if err != nil {
		return Question{}, err
	}

	answerRaw := strings.TrimSpace(stringField(obj, "answer"))
	if answerRaw == "" {
		return Question{}, newParseError("answer must be the full correct option text", question)
	}
	answer, err := reconcileAnswer(answerRaw, options)
	if err != nil {
		return Question{}, err
	}

	topic := strings.TrimSpace(stringField(obj, "topic"))
	if topic == "" {
		topic = "General"
	}
	difficulty := strings.TrimSpace(stringField(obj, "difficulty"))
	if difficulty == "" {
		difficulty = "medium"
	}

	return Question{
		ID:          strings.TrimSpace(stringField(obj, "id")),
		Question:    question,
		Options:     options,
		Topic:       topic,
		Difficulty:  difficulty,
		Answer:      answer,
		Explanation: strings.TrimSpace(stringField(obj, "explanation")),
	}, nil
}

// extractJSON locates the JSON payload inside arbitrarily noisy text.
func extractJSON(text string) string {
	for _, pat := range fencePatterns {
		if m := pat.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	if obj, ok := balancedSlice(text, '{', '}'); ok {
		return obj
	}
	if arr, ok := balancedSlice(text, '[', ']'); ok {
		return arr
	}
	return text
}

// balancedSlice returns the first bracket-balanced slice of s, scanning with
// string-literal awareness: quotes inside strings do not count toward
// balance, and escaped quotes do not terminate the string.
func balancedSlice(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	if start == -1 {
		return "", false
	}
	depth := 0
	inStr := false
	esc := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case ch == '\\':
				esc = true
			case ch == '"':
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start : i+1]), true
			}
		}
	}
	return "", false
}

// decodeWithRepair decodes JSON, retrying once with trailing commas before a
// closing bracket stripped out.
func decodeWithRepair(src string) (any, error) {
	var data any
	if err := json.Unmarshal([]byte(src), &data); err == nil {
		return data, nil
	}
	cleaned := trailingComma.ReplaceAllString(src, "$1")
	var repaired any
	if err := json.Unmarshal([]byte(cleaned), &repaired); err != nil {
		return nil, err
	}
	return repaired, nil
}

// cleanOptionText strips a leading option label and surrounding whitespace.
// Models sometimes echo the labels inside the option bodies themselves.
func cleanOptionText(s string) string {
	trimmed := strings.TrimSpace(s)
	cleaned := strings.TrimSpace(optionLabel.ReplaceAllString(trimmed, ""))
	if cleaned == "" {
		return trimmed
	}
	return cleaned
}

// normalizeOptions reduces the raw options value to exactly four non-empty
// strings. Accepts a plain sequence or a letter-keyed {A,B,C,D} mapping.
func normalizeOptions(raw any) ([]string, error) {
	var texts []string
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, newParseError("options must be a list of strings or a dict with A-D keys", fmt.Sprintf("%v", raw))
			}
			texts = append(texts, s)
		}
	case map[string]any:
		for _, letter := range []string{"A", "B", "C", "D"} {
			s, ok := v[letter].(string)
			if !ok || strings.TrimSpace(s) == "" {
				return nil, newParseError("options must be a list of strings or a dict with A-D keys", fmt.Sprintf("%v", raw))
			}
			texts = append(texts, s)
		}
	default:
		return nil, newParseError("options must be a list of strings or a dict with A-D keys", fmt.Sprintf("%v", raw))
	}

	if len(texts) != NumOptions {
		return nil, newParseError(fmt.Sprintf("expected exactly %d options, got %d", NumOptions, len(texts)), strings.Join(texts, " | "))
	}
	out := make([]string, NumOptions)
	for i, s := range texts {
		cleaned := cleanOptionText(s)
		if cleaned == "" {
			return nil, newParseError("option text must not be empty", strings.Join(texts, " | "))
		}
		out[i] = cleaned
	}
	return out, nil
}

// reconcileAnswer maps the model's answer field to one canonical option
// text. The model is asked for the full text, but tolerance runs in three
// steps: exact case-insensitive match, label-stripped match, then a bare
// single letter mapped positionally.
func reconcileAnswer(answer string, options []string) (string, error) {
	norm := strings.ToLower(strings.TrimSpace(answer))
	for _, opt := range options {
		if norm == strings.ToLower(strings.TrimSpace(opt)) {
			return opt, nil
		}
	}

	if cleaned := cleanOptionText(answer); strings.ToLower(cleaned) != norm {
		cNorm := strings.ToLower(strings.TrimSpace(cleaned))
		for _, opt := range options {
			if cNorm == strings.ToLower(strings.TrimSpace(opt)) {
				VerboseLog("Normalized answer text by stripping label: %q", answer)
				return opt, nil
			}
		}
	}

	if letter := strings.TrimSpace(answer); bareLetter.MatchString(letter) {
		i := int(letter[0]&^0x20) - 'A'
		if i >= 0 && i < len(options) {
			VerboseLog("Mapped single-letter answer %q to option text", answer)
			return options[i], nil
		}
	}

	return "", newParseError("answer text must exactly match one of the provided options", answer)
}

func stringField(obj map[string]any, key string) string {
	if s, ok := obj[key].(string); ok {
		return s
	}
	return ""
}
