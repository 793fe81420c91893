package ragquiz

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedLLM replays canned responses in order and records the prompts it
// was asked to complete.
type scriptedLLM struct {
	responses []string
	prompts   []string
	err       error
}

func (s *scriptedLLM) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	s.prompts = append(s.prompts, req.Prompt)
	if s.err != nil {
		return GenerateResult{}, s.err
	}
	i := len(s.prompts) - 1
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	text := s.responses[i]
	return GenerateResult{Text: text, Raw: map[string]any{"response": text}}, nil
}

func goodResponse(question string) string {
	return fmt.Sprintf(`{"question": %q, "options": ["w", "x", "y", "z"], "answer": "x", "topic": "General", "difficulty": "medium", "explanation": "because"}`, question)
}

func testGenConfig(count int) Config {
	return Config{
		Count:        count,
		Model:        "mistral",
		Temperature:  0.4,
		MaxRetries:   2,
		RecentWindow: 5,
		SnippetChars: -1,
		CorpusChars:  -1,
	}
}

func TestGeneratorRunHappyPath(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		goodResponse("Q one?"),
		goodResponse("Q two?"),
		goodResponse("Q three?"),
	}}
	gen, err := NewGenerator(testGenConfig(3), llm, nil, nil)
	require.NoError(t, err)

	questions, err := gen.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, questions, 3)
	assert.Equal(t, "Q1", questions[0].ID)
	assert.Equal(t, "Q3", questions[2].ID)
	assert.Equal(t, "x", questions[0].Answer)
	assert.NotNil(t, questions[0].RawResponse)
	assert.Len(t, llm.prompts, 3)
}

func TestGeneratorRetriesThenSucceeds(t *testing.T) {
	historyPath := filepath.Join(t.TempDir(), "history.json")
	llm := &scriptedLLM{responses: []string{
		goodResponse("Q one?"),
		goodResponse("Q two?"),
		"garbage, not json",
		goodResponse("Q three after retry?"),
	}}
	gen, err := NewGenerator(testGenConfig(3), llm, nil, NewHistoryLog(historyPath))
	require.NoError(t, err)

	questions, err := gen.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, questions, 3)
	assert.Equal(t, "Q three after retry?", questions[2].Question)
	// Retry prompts carry a fresh nonce so they are never byte-identical.
	assert.Len(t, llm.prompts, 4)
	assert.Contains(t, llm.prompts[3], "retry-")
	assert.NotEqual(t, llm.prompts[2], llm.prompts[3])

	// The run still delivers exactly three questions and three history rows.
	assert.Equal(t, []string{"q one?", "q two?", "q three after retry?"}, NewHistoryLog(historyPath).Recent(0))
}

func TestGeneratorExhaustionFailsRun(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"still not json"}}
	gen, err := NewGenerator(testGenConfig(1), llm, nil, nil)
	require.NoError(t, err)

	_, err = gen.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attempts exhausted after 3 tries")
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
	// MaxRetries=2 means three attempts total.
	assert.Len(t, llm.prompts, 3)
}

func TestGeneratorTransportErrorNotThemeRetried(t *testing.T) {
	llm := &scriptedLLM{err: &TransportError{Status: 500, Attempts: 3}}
	gen, err := NewGenerator(testGenConfig(1), llm, nil, nil)
	require.NoError(t, err)

	_, err = gen.Run(context.Background())
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	// No theme-rotation retry on top of the transport's own budget.
	assert.Len(t, llm.prompts, 1)
}

func TestGeneratorThemeRotationAcrossAttempts(t *testing.T) {
	store := &fakeStore{
		themes: []string{"alpha", "beta", "gamma"},
		docs: []Document{
			{Content: "Alpha facts.", Meta: map[string]string{"tags_0": "alpha", "source": "a.md"}},
			{Content: "Beta facts.", Meta: map[string]string{"tags_0": "beta", "source": "b.md"}},
			{Content: "Gamma facts.", Meta: map[string]string{"tags_0": "gamma", "source": "c.md"}},
		},
	}
	retr := newTestRetriever(store, &fakeEmbedder{}, 2)
	_, pool := retr.BuildRunContext(context.Background())
	require.Equal(t, 3, pool.Size())

	llm := &scriptedLLM{responses: []string{
		"bad output",
		"still bad",
		goodResponse("Finally?"),
	}}
	gen, err := NewGenerator(testGenConfig(1), llm, retr, nil)
	require.NoError(t, err)

	q, err := gen.generateOne(context.Background(), 0, map[string]string{}, pool, nil)
	require.NoError(t, err)
	assert.Equal(t, "Finally?", q.Question)

	// Attempt i uses pool[(idx+attempt) mod size]: three distinct themes.
	order := pool.All()
	assert.Contains(t, llm.prompts[0], "Theme: "+order[0]+"\n")
	assert.Contains(t, llm.prompts[1], "Theme: "+order[1]+" (alt ")
	assert.Contains(t, llm.prompts[2], "Theme: "+order[2]+" (alt ")

	// Each attempt rebuilds the corpus from its own theme's blocks.
	for i, theme := range order {
		capitalized := strings.ToUpper(theme[:1]) + theme[1:]
		assert.Contains(t, llm.prompts[i], capitalized+" facts.")
	}
}

func TestGeneratorThemeBecomesTopic(t *testing.T) {
	store := &fakeStore{
		themes: []string{"networking"},
		docs: []Document{
			{Content: "Sockets.", Meta: map[string]string{"tags_0": "networking", "source": "n.md"}},
		},
	}
	retr := newTestRetriever(store, &fakeEmbedder{}, 0)
	_, pool := retr.BuildRunContext(context.Background())

	llm := &scriptedLLM{responses: []string{goodResponse("Q?")}}
	cfg := testGenConfig(1)
	cfg.MaxRetries = 0
	gen, err := NewGenerator(cfg, llm, retr, nil)
	require.NoError(t, err)

	q, err := gen.generateOne(context.Background(), 0, map[string]string{}, pool, nil)
	require.NoError(t, err)
	// The default "General" topic is replaced by the attempt's theme.
	assert.Equal(t, "networking", q.Topic)
}

func TestGeneratorHistoryGrowsPerRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".quiz_history.json")
	require.NoError(t, os.WriteFile(path, []byte(`["  An  OLD   question?  "]`), 0644))

	history := NewHistoryLog(path)
	llm := &scriptedLLM{responses: []string{
		goodResponse("First new?"),
		goodResponse("Second new?"),
	}}
	gen, err := NewGenerator(testGenConfig(2), llm, nil, history)
	require.NoError(t, err)

	_, err = gen.Run(context.Background())
	require.NoError(t, err)

	// Prior entries steer the prompt, normalized.
	assert.Contains(t, llm.prompts[0], "an old question?")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entries []string
	require.NoError(t, json.Unmarshal(data, &entries))
	assert.Equal(t, []string{"an old question?", "first new?", "second new?"}, entries)
}

func TestGeneratorCorpusCapKeepsValidUTF8(t *testing.T) {
	cfg := testGenConfig(1)
	cfg.CorpusChars = 40
	cfg.SnippetChars = 21 // lands mid-rune
	llm := &scriptedLLM{responses: []string{goodResponse("Q?")}}
	gen, err := NewGenerator(cfg, llm, nil, nil)
	require.NoError(t, err)

	files := map[string]string{"a.md": strings.Repeat("é", 30)}
	vars := gen.promptVars(0, "tok", "", nil, files)
	assert.NotEmpty(t, vars["corpus"])
	assert.True(t, utf8.ValidString(vars["corpus"]))
	assert.LessOrEqual(t, len(vars["corpus"]), cfg.CorpusChars)
}

func TestGeneratorCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	llm := &scriptedLLM{responses: []string{goodResponse("Q?")}}
	gen, err := NewGenerator(testGenConfig(1), llm, nil, nil)
	require.NoError(t, err)

	_, err = gen.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, llm.prompts)
}
