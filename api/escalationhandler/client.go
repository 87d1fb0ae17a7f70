package escalationhandler

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ruteri/heirloom/api"
	"github.com/ruteri/heirloom/escalation"
	"github.com/ruteri/heirloom/interfaces"
)

// Client talks to a remote escalation API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the API at baseURL, e.g. "http://127.0.0.1:8080".
// A nil httpClient uses http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), httpClient: httpClient}
}

func (c *Client) FileClaim(ctx context.Context, req escalation.ClaimRequest) (*api.EscalationResponse, error) {
	var resp api.EscalationResponse
	err := c.do(ctx, http.MethodPost, "/api/claims", req, &resp)
	return &resp, err
}

func (c *Client) ArmHeartbeat(ctx context.Context, req escalation.HeartbeatRequest) (*api.EscalationResponse, error) {
	var resp api.EscalationResponse
	err := c.do(ctx, http.MethodPost, "/api/heartbeats", req, &resp)
	return &resp, err
}

func (c *Client) Get(ctx context.Context, id string) (*api.EscalationResponse, error) {
	var resp api.EscalationResponse
	err := c.do(ctx, http.MethodGet, escalationPath(id, ""), nil, &resp)
	return &resp, err
}

func (c *Client) Events(ctx context.Context, id string) ([]escalation.Event, error) {
	var resp api.EventsResponse
	if err := c.do(ctx, http.MethodGet, escalationPath(id, "/events"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *Client) CheckIn(ctx context.Context, id string) (*api.EscalationResponse, error) {
	var resp api.EscalationResponse
	err := c.do(ctx, http.MethodPost, escalationPath(id, "/checkin"), nil, &resp)
	return &resp, err
}

// Respond submits a personal_sign signature of escalation.ResponseMessage(id).
func (c *Client) Respond(ctx context.Context, id string, signature []byte) (*api.EscalationResponse, error) {
	var resp api.EscalationResponse
	req := api.RespondRequest{Signature: "0x" + hex.EncodeToString(signature)}
	err := c.do(ctx, http.MethodPost, escalationPath(id, "/respond"), req, &resp)
	return &resp, err
}

func (c *Client) Reject(ctx context.Context, id, reason string) (*api.EscalationResponse, error) {
	var resp api.EscalationResponse
	err := c.do(ctx, http.MethodPost, escalationPath(id, "/reject"), api.RejectRequest{Reason: reason}, &resp)
	return &resp, err
}

// Release fetches the escrow share of a release-authorized escalation.
func (c *Client) Release(ctx context.Context, id string) (interfaces.Share, error) {
	var resp api.ReleaseResponse
	if err := c.do(ctx, http.MethodGet, escalationPath(id, "/release"), nil, &resp); err != nil {
		return "", err
	}
	return resp.EscrowShare, nil
}

func (c *Client) Protect(ctx context.Context, secret string, owner escalation.OwnerRequest) (*api.ProtectResponse, error) {
	var resp api.ProtectResponse
	err := c.do(ctx, http.MethodPost, "/api/secrets", api.ProtectRequest{Secret: secret, Owner: owner}, &resp)
	return &resp, err
}

func (c *Client) Forget(ctx context.Context, id interfaces.ContentID) error {
	return c.do(ctx, http.MethodDelete, "/api/secrets/"+id.String(), nil, nil)
}

func escalationPath(id, suffix string) string {
	return "/api/escalations/" + url.PathEscape(id) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else if method == http.MethodPost {
		reader = bytes.NewReader([]byte("{}"))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("could not initialize request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not request %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return &api.StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("could not parse response: %w", err)
	}
	return nil
}
