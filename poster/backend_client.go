package poster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/consus-energy/edge-controller/telemetry"
)

const postTimeout = 5 * time.Second

// BackendClient is the narrow surface Poster needs to ship data upstream. Kept as an interface so tests
// can swap in a fake without an HTTP server.
type BackendClient interface {
	PostTelemetry(samples []telemetry.Sample) error
	PostAlerts(alerts []telemetry.AlertEvent) error
}

// HTTPBackendClient posts plain JSON bodies to the backend's ingest and health endpoints.
// ingestBase and healthBase are the endpoints.ingest/endpoints.health values from Settings; /blob/ingest
// and /blob/health are appended per this design's External Interfaces.
type HTTPBackendClient struct {
	httpClient *http.Client
	ingestURL  string
	healthURL  string
}

func NewHTTPBackendClient(ingestBase, healthBase string) *HTTPBackendClient {
	return &HTTPBackendClient{
		httpClient: &http.Client{Timeout: postTimeout},
		ingestURL:  ingestBase + "/blob/ingest",
		healthURL:  healthBase + "/blob/health",
	}
}

func (c *HTTPBackendClient) PostTelemetry(samples []telemetry.Sample) error {
	return c.postJSON(c.ingestURL, samples)
}

func (c *HTTPBackendClient) PostAlerts(alerts []telemetry.AlertEvent) error {
	return c.postJSON(c.healthURL, alerts)
}

func (c *HTTPBackendClient) postJSON(url string, body interface{}) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), postTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("post to %s: unexpected status %d", url, resp.StatusCode)
	}
	return nil
}
