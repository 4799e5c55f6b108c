package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/ticktie/internal/models"
	"github.com/hyperjump/ticktie/internal/server"
)

// Client calls the HTTP API of a running ticktie server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for baseURL, e.g. "http://localhost:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Status fetches GET /api/v1/status.
func (c *Client) Status(ctx context.Context) (*server.StatusResponse, error) {
	var s server.StatusResponse
	if err := c.get(ctx, "/api/v1/status", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Search runs a keyword search on the server.
func (c *Client) Search(ctx context.Context, q models.SearchQuery) (*models.SearchResponse, error) {
	params := url.Values{}
	params.Set("q", q.Query)
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Fuzzy {
		params.Set("fuzzy", "true")
	}
	var resp models.SearchResponse
	if err := c.get(ctx, "/api/v1/search?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Documents fetches the document list and the field list that names its columns.
func (c *Client) Documents(ctx context.Context) ([]*models.Document, []models.FieldDefinition, error) {
	var docs struct {
		Documents []*models.Document `json:"documents"`
	}
	if err := c.get(ctx, "/api/v1/documents", &docs); err != nil {
		return nil, nil, err
	}
	var fields struct {
		Fields []models.FieldDefinition `json:"fields"`
	}
	if err := c.get(ctx, "/api/v1/fields", &fields); err != nil {
		return nil, nil, err
	}
	return docs.Documents, fields.Fields, nil
}
