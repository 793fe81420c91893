package ragquiz

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLoggerNilWhenUnconfigured(t *testing.T) {
	assert.Nil(t, NewRunLogger("", "", ""))

	// A nil logger swallows everything without panicking.
	var rl *RunLogger
	rl.LogPrompt("p")
	rl.LogPayload(map[string]any{"a": 1})
	rl.LogResponse("r")
	assert.NoError(t, rl.Close())
}

func TestRunLoggerPromptOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	rl := NewRunLogger(path, "", "")
	require.NotNil(t, rl)
	defer rl.Close()

	rl.LogPrompt("first prompt")
	rl.LogPrompt("second prompt")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second prompt", string(data))
}

func TestRunLoggerAppendsPayloadsAndResponses(t *testing.T) {
	dir := t.TempDir()
	payloadPath := filepath.Join(dir, "payload.jsonl")
	responsePath := filepath.Join(dir, "response.jsonl")
	rl := NewRunLogger("", payloadPath, responsePath)
	require.NotNil(t, rl)

	rl.LogPayload(map[string]any{"model": "mistral", "prompt": "one"})
	rl.LogPayload(map[string]any{"model": "mistral", "prompt": "two"})
	rl.LogResponse(map[string]any{"response": "ok"})
	require.NoError(t, rl.Close())

	payload, err := os.ReadFile(payloadPath)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(payload), `"model": "mistral"`))

	response, err := os.ReadFile(responsePath)
	require.NoError(t, err)
	assert.Contains(t, string(response), `"response": "ok"`)
}

func TestRunLoggerDumpsStayDecodableAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.jsonl")
	rl := NewRunLogger("", path, "")
	require.NotNil(t, rl)

	rl.LogPayload(map[string]any{"model": "mistral", "prompt": "one"})
	rl.LogPayload(map[string]any{"model": "mistral", "prompt": "two"})
	require.NoError(t, rl.Close())

	// The file is a pure stream of JSON documents, nothing else.
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := json.NewDecoder(f)
	var docs []map[string]any
	for dec.More() {
		var doc map[string]any
		require.NoError(t, dec.Decode(&doc))
		docs = append(docs, doc)
	}
	require.Len(t, docs, 2)
	assert.Equal(t, "one", docs[0]["prompt"])
	assert.Equal(t, "two", docs[1]["prompt"])
}
