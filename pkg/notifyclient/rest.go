package notifyclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"
)

var (
	ErrNotFound       = errors.New("notification not found")
	ErrForbidden      = errors.New("not allowed to modify this notification")
	ErrUnauthorized   = errors.New("credentials rejected")
	ErrNoCredentials  = errors.New("channel has no credentials; call Connect first")
	ErrNotConnected   = errors.New("channel is not connected")
	ErrConnectFailed  = errors.New("could not connect to notification server")
	ErrAlreadyStarted = errors.New("channel already connected")
)

// APIError is a non-2xx REST response.
type APIError struct {
	Status   int
	Message  string
	Details  string
	sentinel error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("notification api: status %d", e.Status)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *APIError) Unwrap() error { return e.sentinel }

type listResponse struct {
	Data []Notification `json:"data"`
}

type countResponse struct {
	Count int `json:"count"`
}

type statsResponse struct {
	Total  int `json:"total"`
	Unread int `json:"unread"`
}

const refreshLimit = 100

// MarkAsRead marks id read on the server, then in the cache.
func (c *Channel) MarkAsRead(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodPatch, "/notifications/"+url.PathEscape(id)+"/read", nil); err != nil {
		return err
	}
	c.cache.markRead(id)
	return nil
}

// DeleteNotification deletes id on the server, then from the cache.
func (c *Channel) DeleteNotification(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/notifications/"+url.PathEscape(id), nil); err != nil {
		return err
	}
	c.cache.remove(id)
	return nil
}

// MarkAllAsRead returns how many notifications the server marked.
func (c *Channel) MarkAllAsRead(ctx context.Context) (int, error) {
	var out countResponse
	if err := c.do(ctx, http.MethodPatch, "/notifications/read-all", &out); err != nil {
		return 0, err
	}
	c.cache.markAllRead()
	return out.Count, nil
}

// Refresh reloads the newest notifications and the unread count from the server.
func (c *Channel) Refresh(ctx context.Context) error {
	since := c.cache.mark()

	var list listResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/notifications?limit=%d", refreshLimit), &list); err != nil {
		return err
	}
	var stats statsResponse
	if err := c.do(ctx, http.MethodGet, "/notifications/stats", &stats); err != nil {
		return err
	}
	c.cache.replace(list.Data, stats.Unread, since)
	return nil
}

func (c *Channel) do(ctx context.Context, method, path string, result any) error {
	token := c.credentials()
	if token == "" {
		return ErrNoCredentials
	}

	req, err := http.NewRequestWithContext(ctx, method, c.opts.BaseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp.StatusCode, body)
	}
	if result != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func apiError(status int, body []byte) *APIError {
	var payload struct {
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	_ = json.Unmarshal(body, &payload)

	e := &APIError{Status: status, Message: payload.Error, Details: payload.Details}
	switch status {
	case http.StatusNotFound:
		e.sentinel = ErrNotFound
	case http.StatusForbidden:
		e.sentinel = ErrForbidden
	case http.StatusUnauthorized:
		e.sentinel = ErrUnauthorized
	}
	return e
}
