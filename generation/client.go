package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// DefaultTimeout bounds a single batch generation call. Generation of a full
// batch on CPU can be slow, so this is generous.
const DefaultTimeout = 10 * time.Minute

// Client is a Service backed by a JSON-over-HTTP generation server.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

var _ Service = &Client{}

// NewClient creates a client for the generation server at endpoint
// (e.g. "http://localhost:8090/generate").
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// WithHTTPClient replaces the underlying HTTP client, e.g. to change timeouts.
// It returns the modified Client, for chaining.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	c.httpClient = httpClient
	return c
}

// Generate posts the batch and decodes the generated ids.
func (c *Client) Generate(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, errors.Wrap(err, "failed to encode generation request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, errors.Wrapf(err, "failed to build request for %q", c.endpoint)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, errors.Wrapf(err, "generation request to %q failed", c.endpoint)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(httpResp.Body, 1024))
		return Response{}, errors.Errorf("generation server returned %s: %s", httpResp.Status, bytes.TrimSpace(msg))
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return Response{}, errors.Wrap(err, "failed to decode generation response")
	}
	if len(resp.OutputIDs) != len(req.SourceIDs) {
		return Response{}, errors.Errorf("generation server returned %d outputs for %d inputs",
			len(resp.OutputIDs), len(req.SourceIDs))
	}
	return resp, nil
}
