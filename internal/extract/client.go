package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/wonny/loflimit/pkg/config"
	"github.com/wonny/loflimit/pkg/httputil"
	"github.com/wonny/loflimit/pkg/logger"
	"github.com/wonny/loflimit/pkg/redis"
)

// OllamaClient talks to a local Ollama instance for announcement
// parsing. Generation is non-streaming; one call per announcement.
type OllamaClient struct {
	baseURL string
	model   string
	http    *httputil.Client
	log     *logger.Logger
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options,omitempty"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func NewOllamaClient(cfg *config.Config, limiter *redis.RateLimiter, log *logger.Logger) *OllamaClient {
	httpClient := httputil.NewWithTimeout(cfg, log, cfg.Ollama.Timeout)
	if limiter != nil {
		httpClient = httpClient.WithRateLimiter(limiter, redis.OllamaRateLimit)
	}
	return &OllamaClient{
		baseURL: strings.TrimSuffix(cfg.Ollama.BaseURL, "/"),
		model:   cfg.Ollama.Model,
		http:    httpClient,
		log:     log,
	}
}

// Generate sends one prompt and returns the raw model output.
func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	req := generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		// Extraction wants determinism over creativity.
		Options: generateOptions{Temperature: 0.1},
	}

	httpResp, err := c.http.PostJSON(ctx, c.baseURL+"/api/generate", req)
	if err != nil {
		return "", fmt.Errorf("ollama generate failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d", httpResp.StatusCode)
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read ollama response: %w", err)
	}

	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode ollama response: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("ollama error: %s", resp.Error)
	}
	if !resp.Done {
		return "", fmt.Errorf("ollama returned incomplete response")
	}

	return resp.Response, nil
}

// Available checks whether the Ollama endpoint responds.
func (c *OllamaClient) Available(ctx context.Context) bool {
	resp, err := c.http.Get(ctx, c.baseURL+"/api/tags")
	if err != nil {
		c.log.WithError(err).Warn("ollama not reachable")
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
