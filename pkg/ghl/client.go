// Package ghl provides a minimal GoHighLevel (LeadConnector) REST client for
// contacts and opportunities.
package ghl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL    = "https://services.leadconnectorhq.com"
	defaultAPIVersion = "2021-07-28"
	defaultTimeout    = 30 * time.Second
)

// Client defines the GoHighLevel operations used by the webhook.
type Client interface {
	CreateContact(ctx context.Context, req ContactRequest) (*ContactResponse, error)
	SearchContactsByEmail(ctx context.Context, email string) ([]Contact, error)
	CreateOpportunity(ctx context.Context, req OpportunityRequest) (*OpportunityResponse, error)
}

// CustomField is a contact custom field value.
type CustomField struct {
	Key        string `json:"key"`
	FieldValue string `json:"field_value"`
}

// ContactRequest is the body for POST /contacts/.
type ContactRequest struct {
	LocationID   string        `json:"locationId"`
	Source       string        `json:"source,omitempty"`
	Email        string        `json:"email,omitempty"`
	FirstName    string        `json:"firstName,omitempty"`
	LastName     string        `json:"lastName"`
	Phone        string        `json:"phone,omitempty"`
	Tags         []string      `json:"tags"`
	CustomFields []CustomField `json:"customFields,omitempty"`
}

// Contact is a CRM contact as returned by the API.
type Contact struct {
	ID         string   `json:"id"`
	LocationID string   `json:"locationId,omitempty"`
	Email      string   `json:"email,omitempty"`
	FirstName  string   `json:"firstName,omitempty"`
	LastName   string   `json:"lastName,omitempty"`
	Phone      string   `json:"phone,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// ContactResponse is the response from POST /contacts/.
type ContactResponse struct {
	Contact Contact `json:"contact"`
}

type searchResponse struct {
	Contacts []Contact `json:"contacts"`
}

// OpportunityRequest is the body for POST /opportunities/.
type OpportunityRequest struct {
	LocationID    string  `json:"locationId"`
	Name          string  `json:"name"`
	PipelineID    string  `json:"pipelineId"`
	ContactID     string  `json:"contactId"`
	Status        string  `json:"status"`
	Source        string  `json:"source,omitempty"`
	MonetaryValue float64 `json:"monetaryValue"`
}

// Opportunity is a CRM opportunity as returned by the API.
type Opportunity struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	PipelineID string `json:"pipelineId,omitempty"`
	ContactID  string `json:"contactId,omitempty"`
	Status     string `json:"status,omitempty"`
}

// OpportunityResponse is the response from POST /opportunities/.
type OpportunityResponse struct {
	Opportunity Opportunity `json:"opportunity"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithAPIVersion overrides the Version header.
func WithAPIVersion(v string) Option {
	return func(c *httpClient) {
		c.version = v
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-call timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit paces outbound calls to rps requests per second.
// A burst equal to the integer portion of rps is allowed.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

type httpClient struct {
	apiKey     string
	locationID string
	baseURL    string
	version    string
	http       *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a GoHighLevel client for one location.
func NewClient(apiKey, locationID string, opts ...Option) Client {
	c := &httpClient{
		apiKey:     apiKey,
		locationID: locationID,
		baseURL:    defaultBaseURL,
		version:    defaultAPIVersion,
		http: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) CreateContact(ctx context.Context, req ContactRequest) (*ContactResponse, error) {
	if req.LocationID == "" {
		req.LocationID = c.locationID
	}
	var out ContactResponse
	if err := c.do(ctx, "create contact", http.MethodPost, "/contacts/", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) SearchContactsByEmail(ctx context.Context, email string) ([]Contact, error) {
	q := url.Values{}
	q.Set("locationId", c.locationID)
	q.Set("email", email)

	var out searchResponse
	if err := c.do(ctx, "search contacts", http.MethodGet, "/contacts/", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Contacts, nil
}

func (c *httpClient) CreateOpportunity(ctx context.Context, req OpportunityRequest) (*OpportunityResponse, error) {
	if req.LocationID == "" {
		req.LocationID = c.locationID
	}
	var out OpportunityResponse
	if err := c.do(ctx, "create opportunity", http.MethodPost, "/opportunities/", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do sends one request. Non-2xx responses come back as *APIError.
func (c *httpClient) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrapf(err, "ghl: %s: rate limit", op)
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return eris.Wrapf(err, "ghl: %s: marshal request", op)
		}
		reader = bytes.NewReader(data)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return eris.Wrapf(err, "ghl: %s: create request", op)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Version", c.version)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return eris.Wrapf(err, "ghl: %s: send request", op)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrapf(err, "ghl: %s: read response", op)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrapf(err, "ghl: %s: unmarshal response", op)
	}
	return nil
}
