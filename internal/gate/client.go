package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client implements AccessReader and UserLinker against the backend's
// subscription endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Lookup fetches the subscription record for an email. A 404 means no
// record exists and returns (nil, nil).
func (c *Client) Lookup(ctx context.Context, email string) (*Access, error) {
	u := fmt.Sprintf("%s/api/subscriptions?email=%s", c.baseURL, url.QueryEscape(email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create lookup request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lookup request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var access Access
		if err := json.NewDecoder(resp.Body).Decode(&access); err != nil {
			return nil, fmt.Errorf("decode lookup response: %w", err)
		}
		return &access, nil
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("lookup: status %d", resp.StatusCode)
	}
}

type linkRequest struct {
	Email  string `json:"email"`
	UserID string `json:"user_id"`
}

// LinkUser back-fills the identity link on the subscription record.
func (c *Client) LinkUser(ctx context.Context, email, userID string) error {
	body, err := json.Marshal(linkRequest{Email: email, UserID: userID})
	if err != nil {
		return fmt.Errorf("marshal link request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/subscriptions/link", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create link request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("link request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("link: status %d", resp.StatusCode)
	}
	return nil
}
