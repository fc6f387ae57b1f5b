/**
 * @description
 * This package provides a client for the external billing provider's
 * subscription API. It encapsulates authenticated HTTP requests for the three
 * operations the platform needs: cancelling, retrieving, and re-planning a
 * provider subscription.
 */
package billingclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a client for the billing provider API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new billing provider client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Subscription is the provider's view of a subscription.
type Subscription struct {
	ID               string `json:"id"`
	CustomerID       string `json:"customer_id"`
	PlanID           string `json:"plan_id"`
	Status           string `json:"status"`
	CurrentPeriodEnd string `json:"current_period_end"`
}

// APIError represents an error response from the billing provider.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("billing api error (status %d): %s - %s", e.StatusCode, e.Code, e.Detail)
	}
	return fmt.Sprintf("billing api error (status %d)", e.StatusCode)
}

// Transient reports whether the error is worth retrying: rate limits and
// provider-side failures are, rejected requests are not.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// CancelSubscription cancels a subscription at the provider. Cancelling a
// subscription the provider no longer knows about is treated as success so
// reruns converge.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) error {
	path := "/v1/subscriptions/" + subscriptionID
	err := c.doRequest(ctx, http.MethodDelete, path, nil, nil)
	if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

// RetrieveSubscription fetches the provider's current state of a subscription.
func (c *Client) RetrieveSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	var sub Subscription
	path := "/v1/subscriptions/" + subscriptionID
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpdateSubscription moves a subscription to a new plan.
func (c *Client) UpdateSubscription(ctx context.Context, subscriptionID, newPlanID string) (*Subscription, error) {
	payload := map[string]string{"plan_id": newPlanID}
	var sub Subscription
	path := "/v1/subscriptions/" + subscriptionID
	if err := c.doRequest(ctx, http.MethodPatch, path, payload, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// doRequest executes one authenticated request and decodes the response into
// out when provided. Non-2xx responses come back as *APIError.
func (c *Client) doRequest(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if len(bodyBytes) > 0 {
			_ = json.Unmarshal(bodyBytes, apiErr)
		}
		return apiErr
	}

	if out != nil && len(bodyBytes) > 0 {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
