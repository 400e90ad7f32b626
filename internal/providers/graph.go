package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const defaultGraphAPIVersion = "v19.0"

// LeadField is one answered question on a lead form. Values may arrive as
// a list or a single string.
type LeadField struct {
	Name   string          `json:"name"`
	Values json.RawMessage `json:"values"`
}

// First returns the first value of the field.
func (f LeadField) First() string {
	var list []string
	if err := json.Unmarshal(f.Values, &list); err == nil {
		if len(list) == 0 {
			return ""
		}
		return list[0]
	}
	var single string
	if err := json.Unmarshal(f.Values, &single); err == nil {
		return single
	}
	return ""
}

// LeadDetails is the Graph API view of a lead.
type LeadDetails struct {
	ID          string      `json:"id"`
	CreatedTime string      `json:"created_time"`
	FieldData   []LeadField `json:"field_data"`
}

// GraphClient reads lead-ads data from the Graph API.
type GraphClient struct {
	client      *http.Client
	apiBaseURL  string
	apiVersion  string
	accessToken string
	breaker     *Breaker
}

// NewGraphClient creates a client. A nil http client uses a 10 second timeout.
func NewGraphClient(apiBaseURL, apiVersion, accessToken string, breaker *Breaker, client *http.Client) *GraphClient {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	apiBaseURL = strings.TrimSpace(apiBaseURL)
	if apiBaseURL == "" {
		apiBaseURL = defaultWhatsAppAPIBaseURL
	}
	apiVersion = strings.Trim(strings.TrimSpace(apiVersion), "/")
	if apiVersion == "" {
		apiVersion = defaultGraphAPIVersion
	}
	return &GraphClient{
		client:      client,
		apiBaseURL:  strings.TrimRight(apiBaseURL, "/"),
		apiVersion:  apiVersion,
		accessToken: strings.TrimSpace(accessToken),
		breaker:     breaker,
	}
}

// FetchLead returns the submitted form fields for a lead.
func (c *GraphClient) FetchLead(ctx context.Context, leadgenID string) (*LeadDetails, error) {
	endpoint := fmt.Sprintf("%s/%s/%s", c.apiBaseURL, c.apiVersion, url.PathEscape(leadgenID))

	var details LeadDetails
	err := c.breaker.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("building graph request: %w", err)
		}
		// Header auth keeps the token out of url.Error text.
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("fetching lead: %w", err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			return statusError("graph", resp.StatusCode, body)
		}
		if err := json.Unmarshal(body, &details); err != nil {
			return fmt.Errorf("decoding lead: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &details, nil
}
