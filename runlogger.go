package ragquiz

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// RunLogger captures LLM traffic for a run: the last rendered prompt, every
// request payload, and every raw response. Each sink is optional; an empty
// path disables it. Write failures are warned about, never fatal.
type RunLogger struct {
	mu           sync.Mutex
	promptPath   string
	payloadPath  string
	responsePath string
	payloadFile  *os.File
	responseFile *os.File
}

// NewRunLogger opens the configured dump sinks. A nil *RunLogger is valid
// and drops everything.
func NewRunLogger(promptPath, payloadPath, responsePath string) *RunLogger {
	if promptPath == "" && payloadPath == "" && responsePath == "" {
		return nil
	}
	rl := &RunLogger{
		promptPath:   promptPath,
		payloadPath:  payloadPath,
		responsePath: responsePath,
	}
	if payloadPath != "" {
		f, err := os.OpenFile(payloadPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			Warnf("Could not open payload dump %s: %v", payloadPath, err)
		} else {
			rl.payloadFile = f
		}
	}
	if responsePath != "" {
		f, err := os.OpenFile(responsePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			Warnf("Could not open response dump %s: %v", responsePath, err)
		} else {
			rl.responseFile = f
		}
	}
	return rl
}

// LogPrompt overwrites the prompt dump with the full rendered prompt.
func (rl *RunLogger) LogPrompt(prompt string) {
	if rl == nil || rl.promptPath == "" {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if err := os.WriteFile(rl.promptPath, []byte(prompt), 0644); err != nil {
		Warnf("Could not write prompt dump: %v", err)
		return
	}
	VerboseLog("Wrote full LLM prompt -> %s", rl.promptPath)
}

// LogPayload appends one request envelope, pretty-printed.
func (rl *RunLogger) LogPayload(payload any) {
	if rl == nil || rl.payloadFile == nil {
		return
	}
	rl.appendJSON(rl.payloadFile, payload, "payload")
}

// LogResponse appends one raw provider response, pretty-printed.
func (rl *RunLogger) LogResponse(response any) {
	if rl == nil || rl.responseFile == nil {
		return
	}
	rl.appendJSON(rl.responseFile, response, "response")
}

func (rl *RunLogger) appendJSON(f *os.File, v any, what string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		data = []byte(fmt.Sprintf("%v", v))
	}
	if _, err := fmt.Fprintf(f, "%s\n", data); err != nil {
		Warnf("Could not append %s dump: %v", what, err)
		return
	}
	f.Sync()
}

// Close closes the append sinks. The dump files hold nothing but JSON
// documents, so there is no closing marker.
func (rl *RunLogger) Close() error {
	if rl == nil {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	var first error
	for _, f := range []*os.File{rl.payloadFile, rl.responseFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
