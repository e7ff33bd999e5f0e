// Package gemini holds the wire-level client shared by the strategy
// and image generators: request/response shapes for generateContent,
// error classification, and payload extraction.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultTimeout = 120 * time.Second
)

var ErrAPIKeyRequired = errors.New("API key is required")

type Blob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type ImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

type GenerationConfig struct {
	ResponseMimeType string       `json:"responseMimeType,omitempty"`
	ResponseSchema   any          `json:"responseSchema,omitempty"`
	ImageConfig      *ImageConfig `json:"imageConfig,omitempty"`
}

type Request struct {
	Contents          []Content         `json:"contents"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

type Response struct {
	Candidates []struct {
		Content Content `json:"content"`
	} `json:"candidates"`
}

type apiErrorBody struct {
	Error *APIError `json:"error"`
}

// APIError is the structured error the backend returns; HTTPStatus is
// filled from the transport when the body carries no code.
type APIError struct {
	Code       int    `json:"code"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("backend error %d (%s): %s", e.statusCode(), e.Status, e.Message)
	}
	return fmt.Sprintf("backend error %d: %s", e.statusCode(), e.Message)
}

func (e *APIError) statusCode() int {
	if e.Code != 0 {
		return e.Code
	}
	return e.HTTPStatus
}

// Unavailable reports the authorization/availability error class that
// triggers the image tier fallback: 403/404 and their status strings.
func (e *APIError) Unavailable() bool {
	switch e.statusCode() {
	case http.StatusForbidden, http.StatusNotFound:
		return true
	}
	switch e.Status {
	case "PERMISSION_DENIED", "NOT_FOUND":
		return true
	}
	return false
}

// Retryable reports transient failures worth another attempt within
// the same tier: throttling and server-side errors.
func (e *APIError) Retryable() bool {
	code := e.statusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// ExtractMessage pulls a human-readable message out of an arbitrary
// error, unwrapping to the structured backend error when present.
func ExtractMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type Config struct {
	APIKey     string
	BaseURL    string
	TimeoutSec int
}

func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyRequired
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := defaultTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}

	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// GenerateContent issues one call to the named model. Non-2xx
// responses come back as *APIError so callers can classify them.
func (c *Client) GenerateContent(ctx context.Context, model string, req *Request) (*Response, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errBody apiErrorBody
		if err := json.Unmarshal(body, &errBody); err == nil && errBody.Error != nil {
			errBody.Error.HTTPStatus = resp.StatusCode
			return nil, errBody.Error
		}
		return nil, &APIError{HTTPStatus: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var apiResp Response
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &apiResp, nil
}

// ExtractText returns the first text part of the first candidate.
func ExtractText(resp *Response) (string, error) {
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				return part.Text, nil
			}
		}
	}
	return "", errors.New("no text data found in response")
}

// ExtractImage returns the first inline image of the first candidate
// as raw base64 plus its media type.
func ExtractImage(resp *Response) (string, string, error) {
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				return part.InlineData.Data, part.InlineData.MimeType, nil
			}
		}
	}
	return "", "", errors.New("no image data found in response")
}
