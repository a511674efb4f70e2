package pushover

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/hubp2p/exchange-service/pkg/errors"
)

const defaultBaseURL = "https://api.pushover.net"

// Emergency-priority parameters: the provider keeps re-alerting every retry
// seconds until acknowledged or expire seconds have passed. Retry semantics
// live entirely on the provider side.
const (
	priorityEmergency = 2
	retrySeconds      = 60
	expireSeconds     = 3600
)

type Message struct {
	Title  string
	Body   string
	Urgent bool
}

// Client talks to the Pushover messages API.
type Client struct {
	baseURL    string
	token      string
	userKey    string
	httpClient *http.Client
}

func NewClient(baseURL, token, userKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		userKey:    userKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Configured reports whether API credentials are present.
func (c *Client) Configured() bool {
	return c.token != "" && c.userKey != ""
}

// Recipient identifies the destination for the notification audit log.
func (c *Client) Recipient() string {
	return c.userKey
}

func (c *Client) Send(ctx context.Context, msg Message) error {
	if !c.Configured() {
		return pkgerrors.ErrNotifierNotConfigured
	}

	form := url.Values{}
	form.Set("token", c.token)
	form.Set("user", c.userKey)
	form.Set("title", msg.Title)
	form.Set("message", msg.Body)
	if msg.Urgent {
		form.Set("priority", strconv.Itoa(priorityEmergency))
		form.Set("retry", strconv.Itoa(retrySeconds))
		form.Set("expire", strconv.Itoa(expireSeconds))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/1/messages.json", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", pkgerrors.ErrNotificationDispatch, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", pkgerrors.ErrNotificationDispatch, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Errors []string `json:"errors"`
		}
		if json.Unmarshal(body, &apiErr) == nil && len(apiErr.Errors) > 0 {
			return fmt.Errorf("%w: %s", pkgerrors.ErrNotificationDispatch, strings.Join(apiErr.Errors, "; "))
		}
		return fmt.Errorf("%w: status %d", pkgerrors.ErrNotificationDispatch, resp.StatusCode)
	}
	return nil
}
