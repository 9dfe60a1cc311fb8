// Package servicenow creates incidents through the ServiceNow Table API.
package servicenow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/linnemanlabs/intake/internal/retry"
	"github.com/linnemanlabs/intake/internal/ticket"
)

const incidentTable = "/api/now/table/incident"

// Client talks to one ServiceNow instance with basic auth.
type Client struct {
	baseURL    string
	username   string
	password   string
	policy     retry.Policy
	httpClient *http.Client
}

// New creates a Client for the given instance base URL and credentials.
func New(baseURL, username, password string, policy retry.Policy) *Client {
	if policy.MaxAttempts <= 0 {
		policy = retry.Default()
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		policy:   policy,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type incidentFields struct {
	Number           string `json:"number"`
	SysID            string `json:"sys_id"`
	State            string `json:"state,omitempty"`
	ShortDescription string `json:"short_description,omitempty"`
}

type resultEnvelope struct {
	Result incidentFields `json:"result"`
}

// Incident is a read-back of an existing incident.
type Incident struct {
	Number           string
	SysID            string
	State            string
	ShortDescription string
}

// CreateIncident posts the ticket and returns the created record.
// Server-side failures are retried under the policy; payload rejections
// (4xx) are permanent.
func (c *Client) CreateIncident(ctx context.Context, t *ticket.Ticket) (*ticket.Record, error) {
	body, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal incident: %w", err)
	}

	env, err := retry.Do(ctx, c.policy, func() (*resultEnvelope, error) {
		return c.post(ctx, c.baseURL+incidentTable, body)
	})
	if err != nil {
		return nil, err
	}
	if env.Result.Number == "" || env.Result.SysID == "" {
		return nil, fmt.Errorf("servicenow returned an incomplete record: number=%q sys_id=%q",
			env.Result.Number, env.Result.SysID)
	}

	return &ticket.Record{
		Number: env.Result.Number,
		SysID:  env.Result.SysID,
		URL:    c.incidentURL(env.Result.SysID),
	}, nil
}

// GetIncident reads back an incident by sys_id.
func (c *Client) GetIncident(ctx context.Context, sysID string) (*Incident, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+incidentTable+"/"+url.PathEscape(sysID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call servicenow: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("incident %s not found", sysID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var env resultEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode incident: %w", err)
	}
	return &Incident{
		Number:           env.Result.Number,
		SysID:            env.Result.SysID,
		State:            env.Result.State,
		ShortDescription: env.Result.ShortDescription,
	}, nil
}

// CheckHealth verifies the instance responds and the credentials work.
func (c *Client) CheckHealth(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+incidentTable+"?sysparm_limit=1", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call servicenow: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("servicenow health returned %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, u string, body []byte) (*resultEnvelope, error) {
	req, err := c.newRequest(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call servicenow: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
		var env resultEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return nil, retry.Permanent(fmt.Errorf("decode create response: %w", err))
		}
		return &env, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// The instance rejected the payload or the credentials;
		// the same request will not succeed on a retry.
		return nil, retry.Permanent(statusError(resp))
	default:
		return nil, statusError(resp)
	}
}

func (c *Client) newRequest(ctx context.Context, method, u string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) incidentURL(sysID string) string {
	return fmt.Sprintf("%s/nav_to.do?uri=incident.do?sys_id=%s", c.baseURL, sysID)
}

func statusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("servicenow returned %d: %s", resp.StatusCode, snippet)
}
