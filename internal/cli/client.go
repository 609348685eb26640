package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"license-service/internal/domain/license"
)

// Client talks to the public validation API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (c *Client) Validate(ctx context.Context, key, domain, action string) (*license.Verdict, error) {
	return c.post(ctx, "/api/v1/licenses/validate", license.ValidateRequest{
		LicenseKey: key,
		Domain:     domain,
		Action:     license.Action(action),
	})
}

func (c *Client) Deactivate(ctx context.Context, key, domain string) (*license.Verdict, error) {
	return c.post(ctx, "/api/v1/licenses/deactivate", license.DeactivateRequest{LicenseKey: key, Domain: domain})
}

// post returns the verdict for any answered request, including refusals.
// Transport failures, throttling and server errors come back as errors.
func (c *Client) post(ctx context.Context, path string, body interface{}) (*license.Verdict, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(raw))
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 || len(env.Data) == 0 {
		return nil, fmt.Errorf("server answered %d: %s", resp.StatusCode, firstNonEmpty(env.Error, env.Message))
	}

	var verdict license.Verdict
	if err := json.Unmarshal(env.Data, &verdict); err != nil {
		return nil, fmt.Errorf("parsing verdict: %w", err)
	}
	return &verdict, nil
}

func printVerdict(out io.Writer, v *license.Verdict) {
	if v.Valid {
		fmt.Fprintln(out, "License is valid")
	} else {
		fmt.Fprintf(out, "License is not valid (%s)\n", v.Reason)
	}
	if v.Product != "" {
		fmt.Fprintf(out, "  Product:      %s / %s\n", v.Product, v.Package)
	}
	if v.Status != "" {
		fmt.Fprintf(out, "  Status:       %s\n", v.Status)
	}
	if v.Activations != nil {
		limit := "unlimited"
		if v.Activations.Limit != nil {
			limit = fmt.Sprint(*v.Activations.Limit)
		}
		fmt.Fprintf(out, "  Activations:  %d / %s\n", v.Activations.Used, limit)
	}
	if v.ExpiresAt != nil {
		fmt.Fprintf(out, "  Expires:      %s\n", v.ExpiresAt.Format("2006-01-02"))
	} else if v.Valid {
		fmt.Fprintln(out, "  Expires:      Never")
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
