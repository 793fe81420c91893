package ragquiz

import "fmt"

// ConfigError reports missing or invalid required configuration. It is fatal
// at startup and never retried.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// TransportError reports an LLM endpoint failure that survived all
// transport-level retries. Callers must not retry it again at a higher level.
type TransportError struct {
	Status   int // HTTP status, 0 for network errors
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("llm transport: HTTP %d after %d attempts: %v", e.Status, e.Attempts, e.Err)
	}
	return fmt.Sprintf("llm transport: %d attempts failed: %v", e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError reports model output that could not be reconciled into a valid
// question. It carries a snippet of the offending text and is retried by the
// orchestrator via theme rotation.
type ParseError struct {
	Reason  string
	Snippet string
}

const parseSnippetLimit = 200

func newParseError(reason, raw string) *ParseError {
	snippet := raw
	if len(snippet) > parseSnippetLimit {
		snippet = truncate(snippet, parseSnippetLimit) + "..."
	}
	return &ParseError{Reason: reason, Snippet: snippet}
}

func (e *ParseError) Error() string {
	if e.Snippet == "" {
		return "parse: " + e.Reason
	}
	return fmt.Sprintf("parse: %s (output: %q)", e.Reason, e.Snippet)
}

// RetrievalError reports a knowledge-store failure. It is always resolved at
// a fail-soft boundary inside the Retriever: logged, degraded to
// non-retrieved operation, never propagated to callers.
type RetrievalError struct {
	Op  string
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval: %s: %v", e.Op, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// PersistenceError reports a failed file or database write. Fatal for the
// primary JSON outputs, best-effort for the relational mirror.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
