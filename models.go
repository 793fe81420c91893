package ragquiz

// NumOptions is the required option count for every question.
const NumOptions = 4

// Question is a single multiple-choice question produced by a generation run.
// Answer is always the exact text of one of Options; a letter in the model
// output is only an input convenience resolved by the parser.
type Question struct {
	ID          string
	Question    string
	Options     []string
	Topic       string
	Difficulty  string
	Answer      string
	Explanation string

	// RawResponse keeps the provider envelope for audit. Large fields are
	// stripped before it is persisted into the answer key.
	RawResponse map[string]any
}

// QuizEntry is the public shape written to the quiz file. It never carries
// the answer; the answer key file does.
type QuizEntry struct {
	ID         string   `json:"id"`
	Question   string   `json:"question"`
	Options    []string `json:"options"`
	Topic      string   `json:"topic"`
	Difficulty string   `json:"difficulty"`
}

// AnswerEntry is the per-question record in the answer key file, keyed by
// question id. The two files are always written together and their id sets
// form a bijection.
type AnswerEntry struct {
	Answer      string `json:"answer"`
	Explanation string `json:"explanation"`
	RawResponse any    `json:"raw_response,omitempty"`
}

// PublicEntry returns the quiz-file view of the question.
func (q Question) PublicEntry() QuizEntry {
	return QuizEntry{
		ID:         q.ID,
		Question:   q.Question,
		Options:    q.Options,
		Topic:      q.Topic,
		Difficulty: q.Difficulty,
	}
}

// KeyEntry returns the answer-key view of the question, with the raw
// provider payload sanitized for persistence.
func (q Question) KeyEntry() AnswerEntry {
	return AnswerEntry{
		Answer:      q.Answer,
		Explanation: q.Explanation,
		RawResponse: sanitizeRawResponse(q.RawResponse),
	}
}

// Verdict records the validator's judgment for one question.
type Verdict struct {
	QuestionID string `json:"question_id"`
	Correct    bool   `json:"correct"`
}

// ValidatedQuestion is an accepted question written to the validated output
// set, enriched with the answer text and explanation from the key.
type ValidatedQuestion struct {
	ID          string   `json:"id"`
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Topic       string   `json:"topic"`
	Difficulty  string   `json:"difficulty"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation"`
}
