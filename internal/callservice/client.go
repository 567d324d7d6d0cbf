// Package callservice talks to the media-side application that owns SIP
// subscriber records. Trunks authenticating with client credentials are
// backed by a subscriber there, keyed by username.
package callservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// Client is a thin JSON client for the call service's subscriber API.
// Username/Password are HTTP basic auth credentials; both may be empty
// for local setups that run the service without auth.
type Client struct {
	BaseURL    string
	Username   string
	Password   string
	HTTPClient *http.Client
}

// CreateSubscriber registers a credential pair. Creating a username that
// already exists replaces its password.
func (c *Client) CreateSubscriber(ctx context.Context, username, password string) error {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return fmt.Errorf("callservice: encode subscriber: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/services/subscribers", body)
}

// DeleteSubscriber removes a credential pair. Deleting an unknown
// username is not an error; the desired state is already in place.
func (c *Client) DeleteSubscriber(ctx context.Context, username string) error {
	err := c.do(ctx, http.MethodDelete, "/services/subscribers/"+username, nil)
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

// StatusError reports a non-2xx response from the call service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("callservice: unexpected status %d: %s", e.StatusCode, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(c.BaseURL, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("callservice: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Username != "" || c.Password != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("callservice: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}
