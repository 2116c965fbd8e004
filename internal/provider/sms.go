package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/paydue/reminder-engine/internal/domain"
)

const defaultSMSTimeout = 10 * time.Second

type smsSendRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
}

type smsSendResponse struct {
	Accepted  bool   `json:"accepted"`
	MessageID string `json:"messageId"`
	ErrorCode string `json:"errorCode"`
}

// SMSClient sends reminder texts through the SMS provider.
type SMSClient struct {
	client   *resty.Client
	endpoint string
}

func NewSMSClient(endpoint string, apiKey string) (*SMSClient, error) {
	client := resty.New()
	client.SetTimeout(defaultSMSTimeout)
	client.SetRetryCount(0)
	if strings.TrimSpace(apiKey) != "" {
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}

	return NewSMSClientWithResty(endpoint, client)
}

func NewSMSClientWithResty(endpoint string, client *resty.Client) (*SMSClient, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("sms endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid sms endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultSMSTimeout)
	}
	client.SetRetryCount(0)

	return &SMSClient{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (c *SMSClient) Send(ctx context.Context, phoneNumber string, message string) (*DispatchResult, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("sms client is not initialized")
	}
	if err := domain.ValidateE164(phoneNumber); err != nil {
		return nil, &ProviderError{
			Code:      "invalid_number",
			Message:   "refusing send to malformed phone number",
			Transient: false,
			Cause:     err,
		}
	}
	if message == "" {
		return nil, fmt.Errorf("message is required")
	}
	if messageLen := len([]rune(message)); messageLen > domain.MaxSMSContent {
		return nil, fmt.Errorf("message exceeds %d characters (got %d)", domain.MaxSMSContent, messageLen)
	}

	var body smsSendResponse
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(smsSendRequest{PhoneNumber: phoneNumber, Message: message}).
		SetResult(&body).
		Post(c.endpoint)
	if err != nil {
		return nil, &ProviderError{
			Message:   "sms send request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, &ProviderError{
			StatusCode: statusCode,
			Message:    fmt.Sprintf("sms provider returned status %d", statusCode),
			Transient:  isTransientHTTPStatus(statusCode),
		}
	}

	if !body.Accepted {
		return nil, &ProviderError{
			StatusCode: statusCode,
			Code:       body.ErrorCode,
			Message:    "sms provider rejected message",
			Transient:  ClassifySMSCode(body.ErrorCode),
		}
	}

	return &DispatchResult{
		Accepted:   true,
		ProviderID: body.MessageID,
	}, nil
}
