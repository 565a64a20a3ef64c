package collabclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/venue-ops/collab/internal/app/identity"
	"github.com/venue-ops/collab/internal/app/lifecycle"
	"github.com/venue-ops/collab/internal/collab"
)

// APIError is a non-2xx reply. It unwraps to the collab sentinel matching
// the status code so callers can use errors.Is.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("collab api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("collab api: %d %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusForbidden:
		return collab.ErrNotAuthorized
	case http.StatusConflict:
		return collab.ErrInvalidTransition
	case http.StatusNotFound:
		return collab.ErrNotFound
	default:
		return nil
	}
}

// Result is the reply to a lifecycle mutation.
type Result struct {
	lifecycle.Result
	Warnings []string `json:"warnings,omitempty"`
}

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: httpClient}
}

// Login stores the access token on the client for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (identity.AuthResponse, error) {
	var resp identity.AuthResponse
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", body, &resp); err != nil {
		return identity.AuthResponse{}, err
	}
	c.Token = resp.AccessToken
	return resp, nil
}

func (c *Client) Register(ctx context.Context, reg identity.Registration) (identity.AuthResponse, error) {
	var resp identity.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/register", reg, &resp); err != nil {
		return identity.AuthResponse{}, err
	}
	c.Token = resp.AccessToken
	return resp, nil
}

func (c *Client) ScheduleEvent(ctx context.Context, name string, startsAt time.Time) (collab.Event, error) {
	var evt collab.Event
	body := map[string]any{"name": name, "starts_at": startsAt}
	err := c.do(ctx, http.MethodPost, "/api/v1/events", body, &evt)
	return evt, err
}

func (c *Client) CreateInvitation(ctx context.Context, f lifecycle.InvitationFields) (Result, error) {
	var res Result
	err := c.do(ctx, http.MethodPost, "/api/v1/invitations", f, &res)
	return res, err
}

func (c *Client) Snapshot(ctx context.Context, invitationID string) (lifecycle.Snapshot, error) {
	var snap lifecycle.Snapshot
	err := c.do(ctx, http.MethodGet, invitationPath(invitationID), nil, &snap)
	return snap, err
}

func (c *Client) Refresh(ctx context.Context, invitationID string) (Result, error) {
	var res Result
	err := c.do(ctx, http.MethodPost, invitationPath(invitationID)+"/refresh", nil, &res)
	return res, err
}

func (c *Client) ChangeStatus(ctx context.Context, invitationID string, target collab.Status) (Result, error) {
	var res Result
	body := map[string]string{"status": string(target)}
	err := c.do(ctx, http.MethodPost, invitationPath(invitationID)+"/status", body, &res)
	return res, err
}

func (c *Client) CreateMilestone(ctx context.Context, invitationID string, f lifecycle.MilestoneFields) (Result, error) {
	var res Result
	err := c.do(ctx, http.MethodPost, invitationPath(invitationID)+"/milestones", f, &res)
	return res, err
}

func (c *Client) UpdateMilestone(ctx context.Context, invitationID, milestoneID string, patch lifecycle.MilestonePatch) (Result, error) {
	var res Result
	err := c.do(ctx, http.MethodPatch, milestonePath(invitationID, milestoneID), patch, &res)
	return res, err
}

// DeleteMilestone succeeds on the empty 204 reply the API sends.
func (c *Client) DeleteMilestone(ctx context.Context, invitationID, milestoneID string) error {
	var ignored json.RawMessage
	err := c.do(ctx, http.MethodDelete, milestonePath(invitationID, milestoneID), nil, &ignored)
	if errors.Is(err, collab.ErrEmptyResponse) {
		return nil
	}
	return err
}

func (c *Client) PostMessage(ctx context.Context, invitationID, content string) (collab.Message, error) {
	var msg collab.Message
	body := map[string]string{"content": content}
	err := c.do(ctx, http.MethodPost, invitationPath(invitationID)+"/messages", body, &msg)
	return msg, err
}

func (c *Client) ShareFile(ctx context.Context, invitationID, fileName, fileURL, note string) (collab.Message, error) {
	var msg collab.Message
	body := map[string]string{"file_name": fileName, "file_url": fileURL, "note": note}
	err := c.do(ctx, http.MethodPost, invitationPath(invitationID)+"/files", body, &msg)
	return msg, err
}

func invitationPath(invitationID string) string {
	return "/api/v1/invitations/" + url.PathEscape(invitationID)
}

func milestonePath(invitationID, milestoneID string) string {
	return invitationPath(invitationID) + "/milestones/" + url.PathEscape(milestoneID)
}

// do sends payload as JSON and decodes the reply into out. An empty 2xx body
// returns collab.ErrEmptyResponse.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := strings.TrimSpace(c.Token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var decoded struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &decoded) == nil {
			apiErr.Message = decoded.Error
		}
		return apiErr
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return collab.ErrEmptyResponse
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
