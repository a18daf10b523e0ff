/*
client.go - HTTP client for the external store service

PURPOSE:
  The main store system owns purchases and user registration. This
  client pulls the two feeds the settlement job consumes:
    GET {base}/sync_orders?last_sync_date=...  orders placed after the cursor
    GET {base}/sync_users                      full user roster

RETRIES:
  The store service restarts during deploys, so every call retries with
  exponential backoff before the job gives up for the tick.

SEE ALSO:
  - job.go: the consumer of both feeds
*/
package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	"github.com/prism/loyalty-engine/loyalty"
)

// OrderRecord is one purchase as the external store reports it.
type OrderRecord struct {
	AccountID int64           `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	PlacedAt  time.Time       `json:"date"`
}

// UserRecord is one account as the external store reports it.
type UserRecord struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Admin   bool   `json:"is_admin"`
	Blocked bool   `json:"blocked"`
}

// Client talks to the external store service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries uint64
}

// NewClient creates a client for the store service at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: 3,
	}
}

// FetchOrders returns orders placed strictly after since.
func (c *Client) FetchOrders(ctx context.Context, since time.Time) ([]OrderRecord, error) {
	endpoint := fmt.Sprintf("%s/sync_orders?last_sync_date=%s",
		c.baseURL, url.QueryEscape(since.UTC().Format(time.RFC3339)))

	var orders []OrderRecord
	if err := c.getJSON(ctx, endpoint, &orders); err != nil {
		return nil, fmt.Errorf("failed to fetch orders: %w", err)
	}
	return orders, nil
}

// FetchUsers returns the full user roster.
func (c *Client) FetchUsers(ctx context.Context) ([]UserRecord, error) {
	var users []UserRecord
	if err := c.getJSON(ctx, c.baseURL+"/sync_users", &users); err != nil {
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}
	return users, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("store service returned %d: %s", resp.StatusCode, string(body))
		}
		return json.Unmarshal(body, out)
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	return backoff.Retry(operation, bo)
}

// toOrder converts a wire record into the domain order.
func (r OrderRecord) toOrder() loyalty.Order {
	return loyalty.Order{
		AccountID: loyalty.AccountID(r.AccountID),
		Amount:    r.Amount,
		PlacedAt:  r.PlacedAt.UTC(),
	}
}

// toAccount converts a wire record into the domain account.
func (r UserRecord) toAccount() loyalty.Account {
	return loyalty.Account{
		ID:      loyalty.AccountID(r.ID),
		Name:    r.Name,
		Email:   r.Email,
		Admin:   r.Admin,
		Blocked: r.Blocked,
	}
}
