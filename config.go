package ragquiz

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults. Each one is stated exactly once; the resolver below is the only
// place fallbacks are applied.
const (
	DefaultCount         = 5
	DefaultQuizPath      = "quiz.json"
	DefaultAnswersPath   = "answer_key.json"
	DefaultValidatedPath = "validated_quiz.json"
	DefaultHistoryPath   = ".quiz_history.json"
	DefaultModel         = "mistral"
	DefaultTemperature   = 0.4
	DefaultSnippetChars  = -1 // -1 = unlimited
	DefaultCorpusChars   = -1
	DefaultRecentWindow  = 5
	DefaultMaxRetries    = 2
	DefaultLLMRetries    = 2
	DefaultRetryDelay    = time.Second
	DefaultRAGTopK       = 5
	DefaultHistoryKeep   = 100
)

// hardCorpusCeiling bounds the assembled corpus whenever a finite corpus cap
// is configured, regardless of how large that cap is.
const hardCorpusCeiling = 28000

// KeepAlive is the model keep-alive knob as a tri-state: absent (provider
// default), explicitly disabled, or a duration value like "5m".
type KeepAlive struct {
	state int // 0 absent, 1 disabled, 2 value
	value string
}

func KeepAliveValue(v string) KeepAlive { return KeepAlive{state: 2, value: v} }
func KeepAliveDisabled() KeepAlive      { return KeepAlive{state: 1} }

// ParseKeepAlive maps a config string to the tri-state. The empty string
// means absent; "none" and "off" mean explicitly disabled.
func ParseKeepAlive(s string) KeepAlive {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return KeepAlive{}
	case "none", "off":
		return KeepAliveDisabled()
	default:
		return KeepAliveValue(strings.TrimSpace(s))
	}
}

// Value returns the duration string and whether one should be sent at all.
// Disabled reports ("0", true) so the provider unloads the model promptly.
func (k KeepAlive) Value() (string, bool) {
	switch k.state {
	case 1:
		return "0", true
	case 2:
		return k.value, true
	default:
		return "", false
	}
}

// Config is the immutable run configuration. Build one via LoadConfig (or a
// struct literal in tests) and treat it as read-only afterwards.
type Config struct {
	Count         int
	QuizPath      string
	AnswersPath   string
	ValidatedPath string
	HistoryPath   string

	Model       string
	Temperature float64
	NumPredict  *int
	TopK        *int
	TopP        *float64
	CompactJSON bool
	KeepAlive   KeepAlive

	// Required; no hardcoded endpoint fallback so a misconfigured run fails
	// at startup instead of silently talking to the wrong host.
	EndpointURL string
	EmbedURL    string
	HTTPTimeout time.Duration

	SnippetChars int
	CorpusChars  int
	RecentWindow int
	MaxRetries   int // parse-failure retries per question
	LLMRetries   int // transport retries per call
	RetryDelay   time.Duration

	NoRAG       bool
	RAGPersist  string
	RAGTopK     int
	IncludeTags []string
	EmbedModel  string

	DBPath string

	DumpPromptPath   string
	DumpPayloadPath  string
	DumpResponsePath string
}

// Section names a params file section.
type Section string

const (
	SectionPrepare  Section = "prepare"
	SectionValidate Section = "validate"
)

// sectionParams mirrors one params.yaml section. Every field is a pointer so
// absence is distinguishable from a zero value.
type sectionParams struct {
	Count         *int     `yaml:"count"`
	Quiz          *string  `yaml:"quiz"`
	Answers       *string  `yaml:"answers"`
	ValidatedQuiz *string  `yaml:"validated_quiz"`
	History       *string  `yaml:"history"`
	Model         *string  `yaml:"model"`
	Temperature   *float64 `yaml:"temperature"`
	NumPredict    *int     `yaml:"num_predict"`
	TopK          *int     `yaml:"top_k"`
	TopP          *float64 `yaml:"top_p"`
	CompactJSON   *bool    `yaml:"compact_json"`
	KeepAlive     *string  `yaml:"keep_alive"`

	OllamaURL   *string `yaml:"ollama_url"`
	EmbedURL    *string `yaml:"embed_url"`
	HTTPTimeout *int    `yaml:"http_timeout"` // seconds

	SnippetChars      *int `yaml:"snippet_chars"`
	CorpusChars       *int `yaml:"corpus_chars"`
	AvoidRecentWindow *int `yaml:"avoid_recent_window"`
	MaxRetries        *int `yaml:"max_retries"`
	LLMRetries        *int `yaml:"llm_retries"`

	NoRAG       *bool    `yaml:"no_rag"`
	RAGPersist  *string  `yaml:"rag_persist"`
	RAGTopK     *int     `yaml:"rag_k"`
	IncludeTags []string `yaml:"include_tags"`
	EmbedModel  *string  `yaml:"embed_model"`

	SQLiteDB *string `yaml:"sqlite_db"`

	DumpPrompt   *string `yaml:"dump_ollama_prompt"`
	DumpPayload  *string `yaml:"dump_llm_payload"`
	DumpResponse *string `yaml:"dump_llm_response"`
}

// paramsFile is the whole params.yaml: root-level keys shared by both runs,
// plus per-run sections that override them.
type paramsFile struct {
	sectionParams `yaml:",inline"`
	Prepare       *sectionParams `yaml:"prepare"`
	Validate      *sectionParams `yaml:"validate"`
}

// pick resolves one knob: section-specific wins, then root-level, then the
// stated default.
func pick[T any](section, root *T, def T) T {
	if section != nil {
		return *section
	}
	if root != nil {
		return *root
	}
	return def
}

// pickPtr resolves an optional knob that stays absent when unset.
func pickPtr[T any](section, root *T) *T {
	if section != nil {
		return section
	}
	return root
}

// LoadConfig reads params.yaml (path may be empty for an all-defaults
// config), resolves the requested section over root-level keys, and
// validates the result. Missing endpoint or timeout is a hard ConfigError.
func LoadConfig(path string, section Section) (Config, error) {
	var pf paramsFile
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, &ConfigError{Field: "params", Reason: err.Error()}
		}
		if err := yaml.Unmarshal(data, &pf); err != nil {
			return Config{}, &ConfigError{Field: "params", Reason: fmt.Sprintf("parse %s: %v", path, err)}
		}
	}
	sec := pf.Prepare
	if section == SectionValidate {
		sec = pf.Validate
	}
	if sec == nil {
		sec = &sectionParams{}
	}
	cfg := resolveConfig(sec, &pf.sectionParams)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// resolveConfig is the single pure fallback pass: section over root over
// default, with no lookups anywhere else.
func resolveConfig(sec, root *sectionParams) Config {
	cfg := Config{
		Count:         pick(sec.Count, root.Count, DefaultCount),
		QuizPath:      pick(sec.Quiz, root.Quiz, DefaultQuizPath),
		AnswersPath:   pick(sec.Answers, root.Answers, DefaultAnswersPath),
		ValidatedPath: pick(sec.ValidatedQuiz, root.ValidatedQuiz, DefaultValidatedPath),
		HistoryPath:   pick(sec.History, root.History, DefaultHistoryPath),
		Model:         pick(sec.Model, root.Model, DefaultModel),
		Temperature:   pick(sec.Temperature, root.Temperature, DefaultTemperature),
		NumPredict:    pickPtr(sec.NumPredict, root.NumPredict),
		TopK:          pickPtr(sec.TopK, root.TopK),
		TopP:          pickPtr(sec.TopP, root.TopP),
		CompactJSON:   pick(sec.CompactJSON, root.CompactJSON, false),
		KeepAlive:     ParseKeepAlive(pick(sec.KeepAlive, root.KeepAlive, "")),

		EndpointURL: pick(sec.OllamaURL, root.OllamaURL, ""),
		EmbedURL:    pick(sec.EmbedURL, root.EmbedURL, ""),
		HTTPTimeout: time.Duration(pick(sec.HTTPTimeout, root.HTTPTimeout, 0)) * time.Second,

		SnippetChars: pick(sec.SnippetChars, root.SnippetChars, DefaultSnippetChars),
		CorpusChars:  pick(sec.CorpusChars, root.CorpusChars, DefaultCorpusChars),
		RecentWindow: pick(sec.AvoidRecentWindow, root.AvoidRecentWindow, DefaultRecentWindow),
		MaxRetries:   pick(sec.MaxRetries, root.MaxRetries, DefaultMaxRetries),
		LLMRetries:   pick(sec.LLMRetries, root.LLMRetries, DefaultLLMRetries),
		RetryDelay:   DefaultRetryDelay,

		NoRAG:       pick(sec.NoRAG, root.NoRAG, false),
		RAGPersist:  pick(sec.RAGPersist, root.RAGPersist, ""),
		RAGTopK:     pick(sec.RAGTopK, root.RAGTopK, DefaultRAGTopK),
		IncludeTags: sec.IncludeTags,
		EmbedModel:  pick(sec.EmbedModel, root.EmbedModel, ""),

		DBPath: pick(sec.SQLiteDB, root.SQLiteDB, ""),

		DumpPromptPath:   pick(sec.DumpPrompt, root.DumpPrompt, ""),
		DumpPayloadPath:  pick(sec.DumpPayload, root.DumpPayload, ""),
		DumpResponsePath: pick(sec.DumpResponse, root.DumpResponse, ""),
	}
	if len(cfg.IncludeTags) == 0 {
		cfg.IncludeTags = root.IncludeTags
	}
	if cfg.EmbedURL == "" {
		cfg.EmbedURL = deriveEmbedURL(cfg.EndpointURL)
	}
	return cfg
}

// deriveEmbedURL maps a generate endpoint onto its sibling embed endpoint.
// Returns empty (retrieval disabled) when the shape is unrecognized.
func deriveEmbedURL(generateURL string) string {
	if base, ok := strings.CutSuffix(generateURL, "/api/generate"); ok {
		return base + "/api/embed"
	}
	return ""
}

func (c Config) validate() error {
	if c.Count < 1 {
		return &ConfigError{Field: "count", Reason: "must be at least 1"}
	}
	if c.EndpointURL == "" {
		return &ConfigError{Field: "ollama_url", Reason: "required, no default endpoint"}
	}
	if c.HTTPTimeout <= 0 {
		return &ConfigError{Field: "http_timeout", Reason: "required, must be a positive number of seconds"}
	}
	if c.MaxRetries < 0 {
		return &ConfigError{Field: "max_retries", Reason: "must not be negative"}
	}
	return nil
}
