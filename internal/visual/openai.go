// Package visual implements backend.ImageGenerator with the OpenAI images API.
package visual

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"postforge/internal/config"
)

const (
	// DefaultModel is the image model used when none is configured.
	DefaultModel = "gpt-image-1"
	// DefaultSize is the landscape size used for post images.
	DefaultSize = "1536x1024"
	// DefaultBaseURL is the public OpenAI API endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"
)

// Client handles OpenAI image API interactions
type Client struct {
	apiKey     string
	model      string
	size       string
	baseURL    string
	httpClient *http.Client
}

// ImageRequest represents an image generation request
type ImageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

// ImageResponse represents an image generation response
type ImageResponse struct {
	Created int64         `json:"created"`
	Data    []ImageResult `json:"data"`
}

// ImageResult represents a single generated image
type ImageResult struct {
	B64JSON       string `json:"b64_json"`
	URL           string `json:"url,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// NewClient creates an image client from configuration
func NewClient(cfg config.OpenAIConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required. Set OPENAI_API_KEY environment variable or ai.openai.api_key in config file")
	}

	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 60 * time.Second
	}

	c := &Client{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		size:       cfg.Size,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.size == "" {
		c.size = DefaultSize
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	return c, nil
}

// Name implements backend.ImageGenerator.
func (c *Client) Name() string { return "openai" }

// ProduceImage generates one image for prompt and writes it to outputPath.
func (c *Client) ProduceImage(ctx context.Context, prompt, outputPath string) error {
	resp, err := c.GenerateImage(ctx, prompt)
	if err != nil {
		return err
	}
	if len(resp.Data) == 0 {
		return fmt.Errorf("image API returned no images")
	}

	result := resp.Data[0]
	if result.B64JSON != "" {
		return SaveBase64Image(result.B64JSON, outputPath)
	}
	if result.URL != "" {
		return c.DownloadImage(ctx, result.URL, outputPath)
	}
	return fmt.Errorf("image API returned neither data nor URL")
}

// GenerateImage calls the image generation endpoint
func (c *Client) GenerateImage(ctx context.Context, prompt string) (*ImageResponse, error) {
	request := ImageRequest{
		Model:  c.model,
		Prompt: prompt,
		N:      1,
		Size:   c.size,
	}

	reqBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/generations", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image API error (status %d): %s", resp.StatusCode, string(body))
	}

	var imageResp ImageResponse
	if err := json.Unmarshal(body, &imageResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &imageResp, nil
}

// SaveBase64Image saves a base64 encoded image to the specified path
func SaveBase64Image(base64Data, outputPath string) error {
	imageData, err := base64.StdEncoding.DecodeString(base64Data)
	if err != nil {
		return fmt.Errorf("failed to decode base64 image: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(outputPath, imageData, 0644); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}

	return nil
}

// DownloadImage downloads an image from a URL and saves it to the specified path
func (c *Client) DownloadImage(ctx context.Context, imageURL, outputPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := io.Copy(file, resp.Body); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}

	return nil
}
