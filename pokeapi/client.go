// Package pokeapi is a small client for the public PokéAPI.
package pokeapi

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultBaseURL is the public API host.
const DefaultBaseURL = "https://pokeapi.co"

// StatusError is returned for any non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Resource is a named link returned by list endpoints.
type Resource struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Pokemon holds the detail fields the listing prints.
type Pokemon struct {
	Name           string `json:"name"`
	BaseExperience int    `json:"base_experience"`
}

// Entry is one printed line of the listing.
type Entry struct {
	Name           string
	BaseExperience int
}

func (e Entry) String() string {
	return fmt.Sprintf("%s — Base Experience: %d", e.Name, e.BaseExperience)
}

type listResponse struct {
	Results []Resource `json:"results"`
}

// Client wraps a resty client bound to the API host.
type Client struct {
	http *resty.Client
}

// NewClient returns a client for baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetHeader("accept", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &Client{http: client}
}

// List returns the first limit pokémon resources.
func (c *Client) List(ctx context.Context, limit int) ([]Resource, error) {
	var out listResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&out).
		Get("/api/v2/pokemon")
	if err != nil {
		return nil, fmt.Errorf("list pokemon: %w", err)
	}
	if res.IsError() {
		return nil, &StatusError{URL: res.Request.URL, StatusCode: res.StatusCode()}
	}
	return out.Results, nil
}

// Get fetches a detail resource by its absolute URL.
func (c *Client) Get(ctx context.Context, detailURL string) (*Pokemon, error) {
	var out Pokemon
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get(detailURL)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", detailURL, err)
	}
	if res.IsError() {
		return nil, &StatusError{URL: detailURL, StatusCode: res.StatusCode()}
	}
	return &out, nil
}

// BaseExperiences lists limit pokémon and fetches each one's detail page in
// list order. The first failure aborts the listing.
func (c *Client) BaseExperiences(ctx context.Context, limit int) ([]Entry, error) {
	resources, err := c.List(ctx, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(resources))
	for _, r := range resources {
		detail, err := c.Get(ctx, r.URL)
		if err != nil {
			return nil, err
		}
		slog.Debug("fetched pokemon", slog.String("name", r.Name), slog.Int("base_experience", detail.BaseExperience))
		entries = append(entries, Entry{Name: r.Name, BaseExperience: detail.BaseExperience})
	}
	return entries, nil
}
