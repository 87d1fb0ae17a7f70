package sharehandler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ruteri/heirloom/api"
	"github.com/ruteri/heirloom/interfaces"
)

// Client is a remote ShareStore.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), httpClient: httpClient}
}

func (c *Client) Put(ctx context.Context, key string, share interfaces.Share) error {
	body, err := json.Marshal(api.ShareRequest{Share: share})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPut, sharePath(key), bytes.NewReader(body))
	return err
}

// Get returns the share under key. A missing key yields an error wrapping
// interfaces.ErrContentNotFound.
func (c *Client) Get(ctx context.Context, key string) (interfaces.Share, error) {
	data, err := c.do(ctx, http.MethodGet, sharePath(key), nil)
	if err != nil {
		return "", err
	}

	var resp api.ShareResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("could not parse share response: %w", err)
	}
	return resp.Share, nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.do(ctx, http.MethodDelete, sharePath(key), nil)
	return err
}

func (c *Client) ListKeys(ctx context.Context) ([]string, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/shares", nil)
	if err != nil {
		return nil, err
	}

	var resp api.ShareListResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("could not parse share list: %w", err)
	}
	return resp.Keys, nil
}

func sharePath(key string) string {
	return "/api/shares/" + url.PathEscape(key)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", interfaces.ErrContentNotFound, path)
	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, fmt.Errorf("%w: %s", interfaces.ErrBackendUnavailable, strings.TrimSpace(string(data)))
	case resp.StatusCode >= 300:
		return nil, &api.StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	return data, nil
}
