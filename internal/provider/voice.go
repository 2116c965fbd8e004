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

const defaultVoiceTimeout = 15 * time.Second

type voiceDispatchRequest struct {
	PhoneNumber string       `json:"phoneNumber"`
	Context     VoiceContext `json:"context"`
}

type voiceDispatchResponse struct {
	Accepted bool   `json:"accepted"`
	CallID   string `json:"callId"`
	Error    string `json:"error"`
}

// VoiceClient dispatches outbound collection calls through the voice-agent
// provider. Acceptance is provisional; the conversational outcome arrives via
// webhook.
type VoiceClient struct {
	client   *resty.Client
	endpoint string
}

func NewVoiceClient(endpoint string, apiKey string) (*VoiceClient, error) {
	client := resty.New()
	client.SetTimeout(defaultVoiceTimeout)
	client.SetRetryCount(0)
	if strings.TrimSpace(apiKey) != "" {
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}

	return NewVoiceClientWithResty(endpoint, client)
}

func NewVoiceClientWithResty(endpoint string, client *resty.Client) (*VoiceClient, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("voice endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid voice endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultVoiceTimeout)
	}
	client.SetRetryCount(0)

	return &VoiceClient{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (c *VoiceClient) Dispatch(ctx context.Context, phoneNumber string, callCtx VoiceContext) (*DispatchResult, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("voice client is not initialized")
	}
	if err := domain.ValidateE164(phoneNumber); err != nil {
		return nil, &ProviderError{
			Code:      "invalid_number",
			Message:   "refusing dispatch to malformed phone number",
			Transient: false,
			Cause:     err,
		}
	}

	var body voiceDispatchResponse
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(voiceDispatchRequest{PhoneNumber: phoneNumber, Context: callCtx}).
		SetResult(&body).
		Post(c.endpoint)
	if err != nil {
		return nil, &ProviderError{
			Message:   "voice dispatch request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, &ProviderError{
			StatusCode: statusCode,
			Message:    fmt.Sprintf("voice provider returned status %d", statusCode),
			Transient:  isTransientHTTPStatus(statusCode),
		}
	}

	if !body.Accepted {
		return nil, &ProviderError{
			StatusCode: statusCode,
			Message:    fmt.Sprintf("voice provider rejected dispatch: %s", body.Error),
			Transient:  true,
		}
	}

	return &DispatchResult{
		Accepted:   true,
		ProviderID: body.CallID,
	}, nil
}
