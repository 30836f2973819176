package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// ImageClient generates images against a configured endpoint. Without an
// endpoint and key it degrades to deterministic placeholder results so
// workflows remain runnable offline.
type ImageClient struct {
	client   *resty.Client
	endpoint string
	model    string
	log      *slog.Logger
}

// ImageRequest describes one generation.
type ImageRequest struct {
	Prompt  string
	Size    string
	Quality string
	Style   string
}

// NewImageClient builds a client from a merged source config: `endpoint` or
// `base_url`, `model` (default dall-e-3), and the key via `api_key` or
// `api_key_env`.
func NewImageClient(cfg map[string]any, log *slog.Logger) (*ImageClient, error) {
	if log == nil {
		log = slog.Default()
	}
	model := configString(cfg, "model")
	if model == "" {
		model = "dall-e-3"
	}
	c := &ImageClient{model: model, log: log}

	endpoint := configString(cfg, "endpoint")
	if endpoint == "" {
		endpoint = configString(cfg, "base_url")
	}
	key := envOrDirect(cfg, "api_key")
	if endpoint == "" || key == "" {
		return c, nil
	}

	c.endpoint = endpoint
	c.client = resty.New().
		SetBaseURL(endpoint).
		SetTimeout(120 * time.Second).
		SetAuthToken(key)
	return c, nil
}

// Generate produces one image result. With a configured endpoint it calls
// the openai-style generations API; otherwise it returns a placeholder
// carrying the prompt and requested geometry.
func (c *ImageClient) Generate(ctx context.Context, req ImageRequest) (map[string]any, error) {
	size := req.Size
	if size == "" {
		size = "1024x1024"
	}
	if c.client == nil {
		return c.placeholder(req.Prompt, size), nil
	}

	body := map[string]any{
		"model":  c.model,
		"prompt": req.Prompt,
		"n":      1,
		"size":   size,
	}
	if req.Quality != "" {
		body["quality"] = req.Quality
	}
	if req.Style != "" {
		body["style"] = req.Style
	}

	var decoded struct {
		Data []struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&decoded).
		Post("/v1/images/generations")
	if err != nil {
		return nil, errors.Wrap(err, "image source: generation request")
	}
	if resp.StatusCode() >= 400 {
		return nil, errors.Errorf("image source: status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(decoded.Data) == 0 {
		return nil, errors.New("image source: empty response")
	}

	width, height := parseSize(size)
	return map[string]any{
		"type":   "generated",
		"url":    decoded.Data[0].URL,
		"prompt": req.Prompt,
		"model":  c.model,
		"size":   size,
		"width":  width,
		"height": height,
	}, nil
}

func (c *ImageClient) placeholder(prompt, size string) map[string]any {
	width, height := parseSize(size)
	c.log.Debug("image source not configured, returning placeholder", "prompt", prompt)
	return map[string]any{
		"type":   "placeholder",
		"url":    fmt.Sprintf("https://placehold.co/%dx%d?text=%s", width, height, url.QueryEscape(prompt)),
		"prompt": prompt,
		"model":  c.model,
		"size":   size,
		"width":  width,
		"height": height,
		"note":   "image generation not configured",
	}
}

func parseSize(size string) (int, int) {
	parts := strings.SplitN(strings.ToLower(size), "x", 2)
	if len(parts) == 2 {
		var w, h int
		if _, err := fmt.Sscanf(parts[0], "%d", &w); err == nil {
			if _, err := fmt.Sscanf(parts[1], "%d", &h); err == nil && w > 0 && h > 0 {
				return w, h
			}
		}
	}
	return 1024, 1024
}
