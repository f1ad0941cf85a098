// Package wemake provides a client for the wemake messaging API.
package wemake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/David-Byun/wemake/internal/models"
)

// ErrUnauthenticated is returned when the server sends the request to the
// login page.
var ErrUnauthenticated = errors.New("wemake: not signed in")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("wemake error %d: %s %v", e.Status, e.Message, e.Fields)
	}
	return fmt.Sprintf("wemake error %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client is a wemake API client. Token is sent as a bearer token.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new client. Redirects are not followed so that a
// missing session surfaces as ErrUnauthenticated.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// doRequest performs an HTTP request and decodes a JSON response into out.
func (c *Client) doRequest(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusSeeOther || resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthenticated
	}
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error  string            `json:"error"`
			Fields map[string]string `json:"fields"`
		}
		_ = json.Unmarshal(respBody, &errResp)
		return &APIError{Status: resp.StatusCode, Message: errResp.Error, Fields: errResp.Fields}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// JoinResponse is the response from creating a profile.
type JoinResponse struct {
	ID         string `json:"profile_id"`
	Username   string `json:"username"`
	Token      string `json:"token"`
	ProfileURL string `json:"profile_url"`
}

// Join creates a profile and keeps the returned session token.
func (c *Client) Join(ctx context.Context, name, username string) (*JoinResponse, error) {
	req := map[string]string{"name": name, "username": username}

	var resp JoinResponse
	if err := c.doRequest(ctx, http.MethodPost, "/auth/join", req, &resp); err != nil {
		return nil, err
	}
	c.Token = resp.Token
	return &resp, nil
}

// Profile gets a public profile by username.
func (c *Client) Profile(ctx context.Context, username string) (*models.Profile, error) {
	var resp models.Profile
	if err := c.doRequest(ctx, http.MethodGet, "/users/"+url.PathEscape(username), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Me gets the signed-in user's profile.
func (c *Client) Me(ctx context.Context) (*models.Profile, error) {
	var resp models.Profile
	if err := c.doRequest(ctx, http.MethodGet, "/my/profile", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Settings is the editable part of a profile.
type Settings struct {
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
	Headline string `json:"headline,omitempty"`
	Bio      string `json:"bio,omitempty"`
}

// UpdateSettings edits the signed-in user's profile.
func (c *Client) UpdateSettings(ctx context.Context, s Settings) (*models.Profile, error) {
	var resp models.Profile
	if err := c.doRequest(ctx, http.MethodPost, "/my/settings", s, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendMessage sends a direct message to username and returns the id of the
// conversation it landed in.
func (c *Client) SendMessage(ctx context.Context, username, content string) (int64, error) {
	req := map[string]string{"content": content}
	path := "/users/" + url.PathEscape(username) + "/messages"

	var resp struct {
		ConversationID int64 `json:"conversation_id"`
	}
	if err := c.doRequest(ctx, http.MethodPost, path, req, &resp); err != nil {
		return 0, err
	}
	return resp.ConversationID, nil
}

// InboxResponse is the user's conversation list.
type InboxResponse struct {
	Conversations []models.ConversationSummary `json:"conversations"`
	Total         int                          `json:"total"`
}

// Inbox lists the user's conversations, most recent first.
func (c *Client) Inbox(ctx context.Context) (*InboxResponse, error) {
	var resp InboxResponse
	if err := c.doRequest(ctx, http.MethodGet, "/my/messages", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RoomResponse is one conversation and its history, oldest first.
type RoomResponse struct {
	ConversationID int64              `json:"conversation_id"`
	Participant    models.Participant `json:"participant"`
	Messages       []models.Message   `json:"messages"`
}

// Room loads a conversation.
func (c *Client) Room(ctx context.Context, conversationID int64) (*RoomResponse, error) {
	var resp RoomResponse
	if err := c.doRequest(ctx, http.MethodGet, roomPath(conversationID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Post appends a message to a conversation.
func (c *Client) Post(ctx context.Context, conversationID int64, content string) (*models.Message, error) {
	req := map[string]string{"content": content}

	var resp models.Message
	if err := c.doRequest(ctx, http.MethodPost, roomPath(conversationID), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Notifications lists the user's notifications, newest first.
func (c *Client) Notifications(ctx context.Context) ([]models.Notification, error) {
	var resp struct {
		Notifications []models.Notification `json:"notifications"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/my/notifications", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Notifications, nil
}

// UnseenCount returns how many notifications the user has not seen.
func (c *Client) UnseenCount(ctx context.Context) (int64, error) {
	var resp struct {
		Count int64 `json:"count"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/my/notifications/count", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// SeeNotification marks a notification as seen.
func (c *Client) SeeNotification(ctx context.Context, id int64) error {
	return c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/my/notifications/%d/see", id), nil, nil)
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Instance  string                 `json:"instance,omitempty"`
	Checks    map[string]interface{} `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health. A degraded server answers with a 503 APIError.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func roomPath(conversationID int64) string {
	return fmt.Sprintf("/my/messages/%d", conversationID)
}
