package ragquiz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"
)

// TextGenerator is the generation side of the LLM endpoint.
type TextGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
}

// Embedder turns text into a vector for retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GenerateOptions are the sampling knobs forwarded to the model. Nil pointer
// fields are omitted from the request.
type GenerateOptions struct {
	Temperature float64
	NumPredict  *int
	TopK        *int
	TopP        *float64
}

// GenerateRequest is one generation call.
type GenerateRequest struct {
	Model     string
	Prompt    string
	Options   GenerateOptions
	KeepAlive KeepAlive
}

// GenerateResult carries the extracted answer text, the full provider
// envelope for audit, and the wall-clock call duration in seconds.
type GenerateResult struct {
	Text    string
	Raw     map[string]any
	Elapsed float64
}

// Client talks to an Ollama-style generation endpoint over one persistent
// HTTP connection. Transport failures (non-200 status, network errors) are
// retried with exponential backoff; after the retry budget is spent the call
// fails with a TransportError. Malformed-but-200 responses are not the
// client's problem: the parser and orchestrator handle those.
type Client struct {
	http       *http.Client
	url        string
	embedURL   string
	embedModel string
	retries    int
	retryDelay time.Duration
	runlog     *RunLogger
}

// NewClient builds a client from validated configuration.
func NewClient(cfg Config, runlog *RunLogger) *Client {
	return &Client{
		http:       &http.Client{Timeout: cfg.HTTPTimeout},
		url:        cfg.EndpointURL,
		embedURL:   cfg.EmbedURL,
		embedModel: cfg.EmbedModel,
		retries:    cfg.LLMRetries,
		retryDelay: cfg.RetryDelay,
		runlog:     runlog,
	}
}

// fencedJSON pulls the body of a ```json code fence out of model output.
var fencedJSON = regexp.MustCompile("(?s)```json\\n(.*)```")

// Generate posts the prompt and returns the model's answer text. If the raw
// response text contains a fenced ```json block, the fenced content is
// preferred over the full text.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	envelope := map[string]any{
		"model":  req.Model,
		"prompt": req.Prompt,
		"stream": false,
	}
	options := map[string]any{"temperature": req.Options.Temperature}
	if req.Options.NumPredict != nil {
		options["num_predict"] = *req.Options.NumPredict
	}
	if req.Options.TopK != nil {
		options["top_k"] = *req.Options.TopK
	}
	if req.Options.TopP != nil {
		options["top_p"] = *req.Options.TopP
	}
	envelope["options"] = options
	if v, ok := req.KeepAlive.Value(); ok {
		envelope["keep_alive"] = v
	}

	c.runlog.LogPrompt(req.Prompt)
	c.runlog.LogPayload(envelope)

	start := time.Now()
	raw, err := c.post(ctx, c.url, envelope)
	if err != nil {
		return GenerateResult{}, err
	}
	elapsed := time.Since(start).Seconds()

	// post only returns valid JSON, so this fails only on a non-object
	// envelope, which no retry would repair.
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return GenerateResult{}, fmt.Errorf("decode response envelope: %w", err)
	}
	content, _ := data["response"].(string)
	text := content
	if m := fencedJSON.FindStringSubmatch(content); m != nil {
		text = m[1]
	}

	VerboseLog("LLM response time (%s): %.2fs", req.Model, elapsed)
	c.runlog.LogResponse(data)

	return GenerateResult{Text: text, Raw: data, Elapsed: elapsed}, nil
}

// Embed vectorizes one text through the embed endpoint. Accepts both the
// batched {"embeddings": [[...]]} and the legacy {"embedding": [...]} reply
// shapes.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.embedURL == "" {
		return nil, &RetrievalError{Op: "embed", Err: fmt.Errorf("no embed endpoint configured")}
	}
	model := c.embedModel
	if model == "" {
		return nil, &RetrievalError{Op: "embed", Err: fmt.Errorf("no embed model configured")}
	}
	raw, err := c.post(ctx, c.embedURL, map[string]any{"model": model, "input": text})
	if err != nil {
		return nil, &RetrievalError{Op: "embed", Err: err}
	}
	var reply struct {
		Embeddings [][]float32 `json:"embeddings"`
		Embedding  []float32   `json:"embedding"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, &RetrievalError{Op: "embed", Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(reply.Embeddings) > 0 {
		return reply.Embeddings[0], nil
	}
	if len(reply.Embedding) > 0 {
		return reply.Embedding, nil
	}
	return nil, &RetrievalError{Op: "embed", Err: fmt.Errorf("empty embedding in response")}
}

// post sends one JSON request with the transport retry policy: on failure,
// wait delay * 2^attempt and try again, up to the configured budget. A
// non-200 status, a network error, and a 200 body that is not valid JSON all
// count as failures; a successful return is always a valid JSON document.
func (c *Client) post(ctx context.Context, url string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var lastErr error
	lastStatus := 0
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<(attempt-1))
			VerboseLog("Transport retry %d/%d after %s: %v", attempt, c.retries, delay, lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr, lastStatus = err, 0
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr, lastStatus = err, 0
			continue
		}
		if resp.StatusCode != http.StatusOK {
			snippet := data
			if len(snippet) > 200 {
				snippet = snippet[:200]
			}
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet)
			lastStatus = resp.StatusCode
			continue
		}
		if !json.Valid(data) {
			// A truncated or garbled 200 body is a transport fault like any
			// other; the next attempt may get the full reply.
			snippet := data
			if len(snippet) > 200 {
				snippet = snippet[:200]
			}
			lastErr = fmt.Errorf("unparseable response body: %q", snippet)
			lastStatus = 0
			continue
		}
		return data, nil
	}
	return nil, &TransportError{Status: lastStatus, Attempts: c.retries + 1, Err: lastErr}
}
