package ragquiz

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteOutputs writes the quiz list file and the answer-key mapping. The two
// artifacts are always written together and their id fields form a
// bijection. Each file is written to a temp sibling and renamed so an
// interrupted run never leaves partial JSON behind.
func WriteOutputs(questions []Question, quizPath, answersPath string) error {
	quiz := make([]QuizEntry, 0, len(questions))
	key := make(map[string]AnswerEntry, len(questions))
	for _, q := range questions {
		quiz = append(quiz, q.PublicEntry())
		key[q.ID] = q.KeyEntry()
	}
	if err := writeJSONAtomic(quizPath, quiz); err != nil {
		return err
	}
	return writeJSONAtomic(answersPath, key)
}

// ReadOutputs loads both artifacts back for the validation pass.
func ReadOutputs(quizPath, answersPath string) ([]QuizEntry, map[string]AnswerEntry, error) {
	var quiz []QuizEntry
	if err := readJSON(quizPath, &quiz); err != nil {
		return nil, nil, err
	}
	key := make(map[string]AnswerEntry)
	if err := readJSON(answersPath, &key); err != nil {
		return nil, nil, err
	}
	return quiz, key, nil
}

// WriteValidated writes the validated question set.
func WriteValidated(questions []ValidatedQuestion, path string) error {
	if questions == nil {
		questions = []ValidatedQuestion{}
	}
	return writeJSONAtomic(path, questions)
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &PersistenceError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &PersistenceError{Path: path, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return &PersistenceError{Path: path, Err: err}
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &PersistenceError{Path: path, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

// sanitizeRawResponse prepares the provider envelope for persistence in the
// answer key: the bulky token context is dropped and a JSON-looking response
// string is re-parsed so the key stays readable.
func sanitizeRawResponse(raw map[string]any) any {
	if raw == nil {
		return nil
	}
	obj := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == "context" {
			continue
		}
		obj[k] = v
	}
	if resp, ok := obj["response"].(string); ok {
		text := strings.TrimSpace(resp)
		if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
			var parsed any
			if err := json.Unmarshal([]byte(text), &parsed); err == nil {
				obj["response"] = parsed
				return obj
			}
		}
		obj["response"] = text
	}
	return obj
}
