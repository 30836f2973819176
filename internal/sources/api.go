package sources

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// APIClient is a configured HTTP client for api-kind sources.
type APIClient struct {
	client  *resty.Client
	baseURL string
	log     *slog.Logger
}

// NewAPIClient builds a resty client from a merged source config: `base_url`
// (required), `headers`, `timeout` (seconds), `retries`, and `auth_type`
// api_key or bearer with the credential in `api_key`/`token` or the
// variable named by the matching *_env key.
func NewAPIClient(cfg map[string]any, log *slog.Logger) (*APIClient, error) {
	if log == nil {
		log = slog.Default()
	}
	baseURL := configString(cfg, "base_url")
	if baseURL == "" {
		return nil, errors.New("api source: base_url is required")
	}

	client := resty.New().SetBaseURL(baseURL)

	if secs, ok := configFloat(cfg, "timeout"); ok && secs > 0 {
		client.SetTimeout(time.Duration(secs * float64(time.Second)))
	} else {
		client.SetTimeout(30 * time.Second)
	}
	if retries, ok := configFloat(cfg, "retries"); ok && retries > 0 {
		client.SetRetryCount(int(retries))
	}

	if headers, ok := cfg["headers"].(map[string]any); ok {
		for name, value := range headers {
			if s, ok := value.(string); ok {
				client.SetHeader(name, s)
			}
		}
	}

	switch configString(cfg, "auth_type") {
	case "api_key":
		if key := envOrDirect(cfg, "api_key"); key != "" {
			header := configString(cfg, "api_key_header")
			if header == "" {
				header = "X-API-Key"
			}
			client.SetHeader(header, key)
		}
	case "bearer":
		if token := envOrDirect(cfg, "token"); token != "" {
			client.SetAuthToken(token)
		}
	}

	return &APIClient{client: client, baseURL: baseURL, log: log}, nil
}

// Get issues a GET and decodes the JSON response; non-JSON bodies come back
// as a string under "body".
func (c *APIClient) Get(ctx context.Context, path string, query map[string]string) (map[string]any, error) {
	resp, err := c.client.R().SetContext(ctx).SetQueryParams(query).Get(path)
	if err != nil {
		return nil, errors.Wrapf(err, "api source: GET %s", path)
	}
	return decodeResponse(resp)
}

// Post issues a JSON POST and decodes the response.
func (c *APIClient) Post(ctx context.Context, path string, body any) (map[string]any, error) {
	resp, err := c.client.R().SetContext(ctx).SetBody(body).Post(path)
	if err != nil {
		return nil, errors.Wrapf(err, "api source: POST %s", path)
	}
	return decodeResponse(resp)
}

// Probe checks reachability with a bare GET against the base URL.
func (c *APIClient) Probe(ctx context.Context) error {
	resp, err := c.client.R().SetContext(ctx).Get("")
	if err != nil {
		return errors.Wrapf(err, "api source: probing %s", c.baseURL)
	}
	if resp.StatusCode() >= 500 {
		return errors.Errorf("api source: %s answered %d", c.baseURL, resp.StatusCode())
	}
	return nil
}

// BaseURL reports the configured endpoint.
func (c *APIClient) BaseURL() string { return c.baseURL }

func decodeResponse(resp *resty.Response) (map[string]any, error) {
	if resp.StatusCode() >= 400 {
		return nil, errors.Errorf("api source: status %d: %s", resp.StatusCode(), resp.String())
	}
	var decoded map[string]any
	if err := json.Unmarshal(resp.Body(), &decoded); err != nil {
		return map[string]any{"body": resp.String()}, nil
	}
	return decoded, nil
}
