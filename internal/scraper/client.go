// Package scraper is the client for the product scraping backend.
package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hession/shopsearch/internal/query"
)

const genericFailure = "Failed to fetch product data."

// Error is a non-2xx answer from the backend.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return "Scraper Error: " + e.Message
}

// Client posts structured queries to {baseURL}/scrape.
type Client struct {
	httpClient *resty.Client
}

type scrapeRequest struct {
	BaseQuery string   `json:"base_query"`
	Filters   []string `json:"filters"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewClient creates a client. A zero timeout keeps resty's default of none.
func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &Client{httpClient: client}
}

// Scrape runs one scrape. A null or empty array is a valid empty result.
func (c *Client) Scrape(ctx context.Context, parsed query.ParsedQuery) ([]Product, error) {
	filters := parsed.Filters
	if filters == nil {
		filters = []string{}
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(scrapeRequest{BaseQuery: parsed.BaseQuery, Filters: filters}).
		Post("/scrape")
	if err != nil {
		return nil, fmt.Errorf("scraper request failed: %w", err)
	}

	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, &Error{StatusCode: resp.StatusCode(), Message: errorMessage(resp.Body())}
	}

	var products []Product
	if err := json.Unmarshal(resp.Body(), &products); err != nil {
		return nil, fmt.Errorf("failed to parse scraper response: %w", err)
	}
	if products == nil {
		products = []Product{}
	}
	return products, nil
}

func errorMessage(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err != nil || strings.TrimSpace(e.Error) == "" {
		return genericFailure
	}
	return e.Error
}
