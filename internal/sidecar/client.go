// Package sidecar implements the HTTP protocol spoken to the local
// sidecar that fronts the message broker, the key-value state store, the
// one-shot job scheduler, and service-to-service invocation. Every error
// returned from this package is a transport error: the sidecar was
// unreachable, timed out, or answered with a non-success status.
package sidecar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pbaity/herald/internal/logger"
	"github.com/pbaity/herald/pkg/models"
)

// Client is an HTTP client for the local sidecar. It holds only
// configuration; it is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a sidecar client from settings.
func New(settings models.SidecarSettings) *Client {
	timeout := settings.Timeout.Duration
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(settings.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// PublishEvent delivers a serialized event body to the named topic.
// Any 2xx response counts as accepted by the broker.
func (c *Client) PublishEvent(ctx context.Context, pubsubName, topic string, body []byte) error {
	url := fmt.Sprintf("%s/v1.0/publish/%s/%s", c.baseURL, pubsubName, topic)

	resp, err := c.post(ctx, url, body)
	if err != nil {
		return fmt.Errorf("publish to topic %s: %w", topic, err)
	}
	defer drain(resp)

	if !is2xx(resp.StatusCode) {
		return fmt.Errorf("publish to topic %s: unexpected status %d", topic, resp.StatusCode)
	}
	return nil
}

// GetState fetches the value stored under key in the named state store.
// A missing key returns (nil, nil).
func (c *Client) GetState(ctx context.Context, store, key string) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/v1.0/state/%s/%s", c.baseURL, store, key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("get state %s: %w", key, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get state %s: %w", key, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("get state %s: read body: %w", key, err)
		}
		if len(data) == 0 {
			return nil, nil
		}
		return data, nil
	case resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("get state %s: unexpected status %d", key, resp.StatusCode)
	}
}

type stateEntry struct {
	Key      string            `json:"key"`
	Value    any               `json:"value"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SaveState writes value under key in the named state store. A positive
// ttlSeconds asks the store to expire the entry on its own.
func (c *Client) SaveState(ctx context.Context, store, key string, value any, ttlSeconds int) error {
	url := fmt.Sprintf("%s/v1.0/state/%s", c.baseURL, store)

	entry := stateEntry{Key: key, Value: value}
	if ttlSeconds > 0 {
		entry.Metadata = map[string]string{"ttlInSeconds": strconv.Itoa(ttlSeconds)}
	}

	body, err := json.Marshal([]stateEntry{entry})
	if err != nil {
		return fmt.Errorf("save state %s: marshal: %w", key, err)
	}

	resp, err := c.post(ctx, url, body)
	if err != nil {
		return fmt.Errorf("save state %s: %w", key, err)
	}
	defer drain(resp)

	if !is2xx(resp.StatusCode) {
		return fmt.Errorf("save state %s: unexpected status %d", key, resp.StatusCode)
	}
	return nil
}

// DeleteState removes the entry stored under key. Missing keys are not an
// error.
func (c *Client) DeleteState(ctx context.Context, store, key string) error {
	url := fmt.Sprintf("%s/v1.0/state/%s/%s", c.baseURL, store, key)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("delete state %s: %w", key, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete state %s: %w", key, err)
	}
	defer drain(resp)

	if !is2xx(resp.StatusCode) && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete state %s: unexpected status %d", key, resp.StatusCode)
	}
	return nil
}

// InvokeService calls method on the named application through the sidecar,
// posting body (JSON-marshaled) with the given extra headers. It returns
// the raw response body on 200/201.
func (c *Client) InvokeService(ctx context.Context, appID, method string, body any, headers map[string]string) ([]byte, error) {
	url := fmt.Sprintf("%s/v1.0/invoke/%s/method/%s", c.baseURL, appID, strings.TrimLeft(method, "/"))

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("invoke %s/%s: marshal: %w", appID, method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invoke %s/%s: %w", appID, method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke %s/%s: %w", appID, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("invoke %s/%s: unexpected status %d", appID, method, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

type jobSpec struct {
	Schedule string      `json:"schedule"`
	Data     any         `json:"data"`
	Callback jobCallback `json:"callback"`
}

type jobCallback struct {
	Method string `json:"method"`
}

// ScheduleJob registers a one-shot job that fires once at fireTime, posting
// data to callbackRoute.
func (c *Client) ScheduleJob(ctx context.Context, name string, fireTime time.Time, data any, callbackRoute string) error {
	url := fmt.Sprintf("%s/v1.0-alpha1/jobs/%s", c.baseURL, name)

	spec := jobSpec{
		Schedule: "@at " + fireTime.UTC().Format(time.RFC3339),
		Data:     data,
		Callback: jobCallback{Method: callbackRoute},
	}
	body, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("schedule job %s: marshal: %w", name, err)
	}

	resp, err := c.post(ctx, url, body)
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}
	defer drain(resp)

	if !is2xx(resp.StatusCode) {
		return fmt.Errorf("schedule job %s: unexpected status %d", name, resp.StatusCode)
	}
	logger.L().Debug("Scheduled one-shot job", "job_name", name, "fire_time", fireTime.UTC())
	return nil
}

// CancelJob deletes the job registered under name. A job that does not
// exist counts as cancelled.
func (c *Client) CancelJob(ctx context.Context, name string) error {
	url := fmt.Sprintf("%s/v1.0-alpha1/jobs/%s", c.baseURL, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("cancel job %s: %w", name, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cancel job %s: %w", name, err)
	}
	defer drain(resp)

	if !is2xx(resp.StatusCode) && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("cancel job %s: unexpected status %d", name, resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.httpClient.Do(req)
}

func is2xx(status int) bool {
	return status >= 200 && status < 300
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
