package accounting

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/paydue/reminder-engine/internal/domain"
)

const defaultRequestTimeout = 10 * time.Second

// StatusResult is the authoritative invoice state reported by the accounting
// provider.
type StatusResult struct {
	Status       domain.InvoiceStatus
	Balance      float64
	LastModified time.Time
}

// StatusFetcher is the port the pre-dispatch verifier depends on.
type StatusFetcher interface {
	GetInvoiceStatus(ctx context.Context, invoiceID string) (*StatusResult, error)
}

type statusResponse struct {
	Status       string    `json:"status"`
	Balance      float64   `json:"balance"`
	LastModified time.Time `json:"lastModified"`
}

// Client talks to the accounting provider's invoice-status endpoint.
type Client struct {
	client  *resty.Client
	baseURL string
}

func NewClient(baseURL string) (*Client, error) {
	client := resty.New()
	client.SetTimeout(defaultRequestTimeout)
	client.SetRetryCount(0)

	return NewClientWithResty(baseURL, client)
}

func NewClientWithResty(baseURL string, client *resty.Client) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("accounting base url is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultRequestTimeout)
	}

	return &Client{
		client:  client,
		baseURL: trimmed,
	}, nil
}

func (c *Client) GetInvoiceStatus(ctx context.Context, invoiceID string) (*StatusResult, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("accounting client is not initialized")
	}
	if strings.TrimSpace(invoiceID) == "" {
		return nil, fmt.Errorf("invoice id is required")
	}

	var body statusResponse
	response, err := c.client.R().
		SetContext(ctx).
		SetResult(&body).
		Get(fmt.Sprintf("%s/invoices/%s/status", c.baseURL, invoiceID))
	if err != nil {
		return nil, fmt.Errorf("invoice status request failed: %w", err)
	}

	statusCode := response.StatusCode()
	if statusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: invoice %s", domain.ErrNotFound, invoiceID)
	}
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("invoice status request returned status %d", statusCode)
	}

	status, err := domain.ParseInvoiceStatusFromString(body.Status)
	if err != nil {
		return nil, fmt.Errorf("unrecognized invoice status from provider: %w", err)
	}

	return &StatusResult{
		Status:       status,
		Balance:      body.Balance,
		LastModified: body.LastModified,
	}, nil
}
