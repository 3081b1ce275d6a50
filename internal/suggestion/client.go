package suggestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vrcneta/topic-gateway/internal/apperr"
	"github.com/vrcneta/topic-gateway/internal/resilience"
)

const maxErrorBody = 64 << 10

// ClientConfig configures the generateContent client
type ClientConfig struct {
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Client calls the Gemini generateContent REST endpoint
type Client struct {
	config         ClientConfig
	httpClient     *http.Client
	circuitBreaker *resilience.CircuitBreaker
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// NewClient creates a client; circuitBreaker may be nil
func NewClient(config ClientConfig, circuitBreaker *resilience.CircuitBreaker) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Client{
		config:         config,
		httpClient:     &http.Client{Timeout: config.Timeout},
		circuitBreaker: circuitBreaker,
	}
}

// Generate sends prompt and returns the first candidate's text. Every error
// is an *apperr.Error with code SuggestionRequestFailed.
func (c *Client) Generate(ctx context.Context, apiKey, prompt string) (string, error) {
	if c.circuitBreaker == nil {
		return c.generate(ctx, apiKey, prompt)
	}

	var text string
	err := c.circuitBreaker.Call(func() error {
		var err error
		text, err = c.generate(ctx, apiKey, prompt)
		return err
	}, countsAsFailure)

	if errors.Is(err, resilience.ErrCircuitOpen) {
		return "", apperr.Wrap(err, apperr.SuggestionRequestFailed, "suggestion endpoint temporarily unavailable")
	}
	return text, err
}

// countsAsFailure keeps client errors (bad key, bad request) from tripping the breaker
func countsAsFailure(err error) bool {
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.StatusCode >= 400 && appErr.StatusCode < 500 && appErr.StatusCode != http.StatusTooManyRequests {
		return false
	}
	return true
}

func (c *Client) generate(ctx context.Context, apiKey, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     c.config.Temperature,
			MaxOutputTokens: c.config.MaxTokens,
		},
	})
	if err != nil {
		return "", apperr.Wrap(err, apperr.SuggestionRequestFailed, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(apiKey), bytes.NewReader(body))
	if err != nil {
		return "", apperr.Wrap(err, apperr.SuggestionRequestFailed, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error carries the request URL, which includes the key
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return "", apperr.Wrap(err, apperr.SuggestionRequestFailed, "send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", apperr.RequestFailed(resp.StatusCode, errorMessage(resp))
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", apperr.Wrap(err, apperr.SuggestionRequestFailed, "decode response")
	}

	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", apperr.New(apperr.SuggestionRequestFailed, "response contained no candidates")
	}

	var text strings.Builder
	for _, p := range decoded.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	return text.String(), nil
}

func (c *Client) endpoint(apiKey string) string {
	base := strings.TrimRight(c.config.BaseURL, "/")
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent?%s",
		base, url.PathEscape(c.config.Model), url.Values{"key": {apiKey}}.Encode())
}

// errorMessage extracts the endpoint's error message, falling back to the status text
func errorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err == nil && decoded.Error != nil && decoded.Error.Message != "" {
		return decoded.Error.Message
	}
	return http.StatusText(resp.StatusCode)
}
