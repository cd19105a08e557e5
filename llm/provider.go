package llm

import "net/http"

// Provider adapts one LLM wire format.
type Provider interface {
	// Name returns the provider identifier used in endpoint configs.
	Name() string

	// BuildURL constructs the full API endpoint URL.
	BuildURL(baseURL string) string

	// SetHeaders adds authentication and version headers.
	SetHeaders(req *http.Request, apiKey string)

	// BuildRequestBody creates the JSON request body.
	// temperature is nil to use the provider default.
	BuildRequestBody(model string, messages []Message, temperature *float64, maxTokens int) ([]byte, error)

	// ParseResponse extracts the completion from the provider's JSON.
	ParseResponse(body []byte, model string) (*Response, error)
}
