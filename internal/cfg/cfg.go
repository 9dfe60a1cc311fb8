package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Config adds intake-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string

	DatabaseURL    string
	OllamaEndpoint string
	EmbeddingModel string

	ClaudeAPIKey string
	ClaudeModel  string

	ServiceNowURL      string
	ServiceNowUser     string
	ServiceNowPassword string

	TeamsWebhookURL string

	SimilarityThreshold float64
	TopK                int
	MaxContextChars     int

	LLMTimeoutSeconds int
	LLMMaxTokens      int
	LLMTemperature    float64

	RetryMaxAttempts    int
	RetryBaseSeconds    int
	RetryMaxWaitSeconds int

	MaxConcurrent int
	ResultHistory int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on the ingest API (empty = auth disabled)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL for the pgvector knowledge index (empty = in-memory index)")
	fs.StringVar(&c.OllamaEndpoint, "ollama-endpoint", "http://localhost:11434", "Ollama endpoint used for query embeddings")
	fs.StringVar(&c.EmbeddingModel, "embedding-model", "nomic-embed-text", "Ollama embedding model name")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for accessing the Claude LLM provider")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model used for incident generation")
	fs.StringVar(&c.ServiceNowURL, "servicenow-url", "", "ServiceNow instance base URL")
	fs.StringVar(&c.ServiceNowUser, "servicenow-user", "", "ServiceNow API username")
	fs.StringVar(&c.ServiceNowPassword, "servicenow-password", "", "ServiceNow API password")
	fs.StringVar(&c.TeamsWebhookURL, "teams-webhook-url", "", "Microsoft Teams webhook URL for incident notifications (empty = disabled)")
	fs.Float64Var(&c.SimilarityThreshold, "similarity-threshold", 0.7, "minimum similarity score for knowledge-base matches (0..1)")
	fs.IntVar(&c.TopK, "top-k", 5, "maximum knowledge-base sources kept after ranking (1..50)")
	fs.IntVar(&c.MaxContextChars, "max-context-chars", 2000, "character budget for knowledge-base context in the generation prompt (>= 100)")
	fs.IntVar(&c.LLMTimeoutSeconds, "llm-timeout-seconds", 120, "timeout for a single generation call")
	fs.IntVar(&c.LLMMaxTokens, "llm-max-tokens", 512, "token budget for a generation response")
	fs.Float64Var(&c.LLMTemperature, "llm-temperature", 0.3, "generation sampling temperature (0..2)")
	fs.IntVar(&c.RetryMaxAttempts, "retry-max-attempts", 3, "maximum attempts per external call")
	fs.IntVar(&c.RetryBaseSeconds, "retry-base-seconds", 1, "base delay for exponential backoff between attempts")
	fs.IntVar(&c.RetryMaxWaitSeconds, "retry-max-wait-seconds", 10, "cap on the backoff delay between attempts")
	fs.IntVar(&c.MaxConcurrent, "max-concurrent", 8, "maximum workflow runs processed concurrently (1..256)")
	fs.IntVar(&c.ResultHistory, "result-history", 256, "workflow results retained in memory for the result endpoint")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// Embedding endpoint is required even with the in-memory index
	if c.OllamaEndpoint == "" {
		errs = append(errs, errors.New("OLLAMA_ENDPOINT is required"))
	}
	if c.EmbeddingModel == "" {
		errs = append(errs, errors.New("EMBEDDING_MODEL is required"))
	}

	// Claude credentials are required for incident generation
	if c.ClaudeAPIKey == "" {
		errs = append(errs, errors.New("CLAUDE_API_KEY is required"))
	}
	if c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required"))
	}

	// Ticket creation is the one step that cannot degrade, so the
	// ServiceNow connection must be fully configured
	if c.ServiceNowURL == "" {
		errs = append(errs, errors.New("SERVICENOW_URL is required"))
	}
	if c.ServiceNowUser == "" {
		errs = append(errs, errors.New("SERVICENOW_USER is required"))
	}
	if c.ServiceNowPassword == "" {
		errs = append(errs, errors.New("SERVICENOW_PASSWORD is required"))
	}

	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("invalid SIMILARITY_THRESHOLD %v (must be 0..1)", c.SimilarityThreshold))
	}
	if c.TopK <= 0 || c.TopK > 50 {
		errs = append(errs, fmt.Errorf("invalid TOP_K %d (must be 1..50)", c.TopK))
	}
	if c.MaxContextChars < 100 {
		errs = append(errs, fmt.Errorf("invalid MAX_CONTEXT_CHARS %d (must be >= 100)", c.MaxContextChars))
	}

	if c.LLMTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("invalid LLM_TIMEOUT_SECONDS %d (must be >= 1)", c.LLMTimeoutSeconds))
	}
	if c.LLMMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("invalid LLM_MAX_TOKENS %d (must be >= 1)", c.LLMMaxTokens))
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		errs = append(errs, fmt.Errorf("invalid LLM_TEMPERATURE %v (must be 0..2)", c.LLMTemperature))
	}

	if c.RetryMaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("invalid RETRY_MAX_ATTEMPTS %d (must be >= 1)", c.RetryMaxAttempts))
	}
	if c.RetryBaseSeconds <= 0 {
		errs = append(errs, fmt.Errorf("invalid RETRY_BASE_SECONDS %d (must be >= 1)", c.RetryBaseSeconds))
	}
	if c.RetryMaxWaitSeconds < c.RetryBaseSeconds {
		errs = append(errs, fmt.Errorf("RETRY_MAX_WAIT_SECONDS %d must be >= RETRY_BASE_SECONDS %d", c.RetryMaxWaitSeconds, c.RetryBaseSeconds))
	}

	if c.MaxConcurrent <= 0 || c.MaxConcurrent > 256 {
		errs = append(errs, fmt.Errorf("invalid MAX_CONCURRENT %d (must be 1..256)", c.MaxConcurrent))
	}
	if c.ResultHistory <= 0 {
		errs = append(errs, fmt.Errorf("invalid RESULT_HISTORY %d (must be >= 1)", c.ResultHistory))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
