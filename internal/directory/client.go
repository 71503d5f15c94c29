// Package directory queries the tenant-directory service for tenant
// contact details when they are not embedded in the event payload.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"caribou/internal/config"
	"caribou/internal/constants"
	"caribou/internal/tenant"
	"caribou/pkg/circuitbreaker"
	pkgerrors "caribou/pkg/errors"
	"caribou/pkg/metrics"
	"caribou/pkg/tracing"
)

type Contact struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
}

type ContactLookup interface {
	GetContact(ctx context.Context, tenantID string) (*Contact, error)
}

type Client struct {
	baseURL string
	client  *http.Client
	breaker *circuitbreaker.Wrapper
}

func NewClient(cfg config.DirectoryConfig, breaker *circuitbreaker.Wrapper) *Client {
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client: &http.Client{
			Timeout:   timeout,
			Transport: tracing.NewHTTPTransport(nil),
		},
		breaker: breaker,
	}
}

// GetContact fetches the tenant's contact record. Requests carry the
// ambient tenant identifier and the authorization forwarded from the
// triggering message. A 404 maps to the dependency-missing class: the
// directory may simply not have seen the tenant's registration yet.
func (c *Client) GetContact(ctx context.Context, tenantID string) (*Contact, error) {
	fetch := func() (interface{}, error) {
		return c.fetchContact(ctx, tenantID)
	}

	var result interface{}
	var err error
	if c.breaker != nil {
		result, err = c.breaker.ExecuteWithContext(ctx, fetch)
	} else {
		result, err = fetch()
	}

	if err != nil {
		metrics.DirectoryRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.DirectoryRequestsTotal.WithLabelValues("ok").Inc()
	return result.(*Contact), nil
}

func (c *Client) fetchContact(ctx context.Context, tenantID string) (*Contact, error) {
	url := fmt.Sprintf("%s/tenants/%s/contact", c.baseURL, tenantID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if ambient, ok := tenant.TenantID(ctx); ok {
		req.Header.Set(constants.HeaderTenantID, ambient)
	}
	if correlationID := tenant.CorrelationID(ctx); correlationID != "" {
		req.Header.Set(constants.HeaderCorrelationID, correlationID)
	}
	if authorization := tenant.Authorization(ctx); authorization != "" {
		req.Header.Set(constants.HeaderAuthorization, authorization)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, pkgerrors.ErrDependencyMissing.
			WithDetail("message", fmt.Sprintf("tenant '%s' not known to directory yet", tenantID))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("directory returned status: %d", resp.StatusCode)
	}

	var contact Contact
	if err := json.NewDecoder(resp.Body).Decode(&contact); err != nil {
		return nil, fmt.Errorf("failed to decode directory response: %w", err)
	}

	return &contact, nil
}
