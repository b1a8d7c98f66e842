// Package client is the REST client the view layer uses to reach the
// backend. Endpoints and body shapes are fixed; the client adds nothing
// beyond JSON plumbing and error surfacing.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"trellis/api/internal/hierarchy"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 90 * time.Second},
	}
}

// NewWithHTTPClient is used by tests to inject an httptest transport.
func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type LikeSuggestionRequest struct {
	ProjectID           string `json:"projectId"`
	Space               string `json:"space"`
	MessageID           string `json:"messageId"`
	SuggestionIndex     int    `json:"suggestionIndex"`
	Type                string `json:"type"`
	NodeID              string `json:"nodeId,omitempty"`
	CategoryID          string `json:"categoryId,omitempty"`
	Title               string `json:"title"`
	Description         string `json:"description"`
	CategoryTitle       string `json:"categoryTitle,omitempty"`
	CategoryDescription string `json:"categoryDescription,omitempty"`
}

type LikeImageRequest struct {
	ProjectID       string `json:"projectId"`
	MessageID       string `json:"messageId"`
	SuggestionIndex int    `json:"suggestionIndex"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	URL             string `json:"url"`
}

func (c *Client) SendChat(ctx context.Context, projectID, message string, attached *hierarchy.Value) error {
	return c.post(ctx, "/chat", map[string]any{
		"projectId": projectID,
		"message":   message,
		"hierarchy": attached,
	})
}

func (c *Client) SendTestChat(ctx context.Context, projectID, message string, attached *hierarchy.Value) error {
	return c.post(ctx, "/testchat", map[string]any{
		"projectId": projectID,
		"message":   message,
		"hierarchy": attached,
	})
}

// Create issues the manual-add request. The server derives what to create
// (category, node or entity) from the attached hierarchy's depth, by the same
// prefix rule the overlay uses for its form type.
func (c *Client) Create(ctx context.Context, projectID string, attached hierarchy.Value, title, description string) error {
	return c.post(ctx, "/addCategory", map[string]any{
		"projectId":   projectID,
		"space":       attached.Space,
		"title":       title,
		"description": description,
		"hierarchy":   attached,
	})
}

func (c *Client) GenerateImage(ctx context.Context, projectID, prompt string, n int, attached *hierarchy.Value, enhancePrompt bool) error {
	return c.post(ctx, "/generate-image", map[string]any{
		"projectId":         projectID,
		"prompt":            prompt,
		"n":                 n,
		"attachedHierarchy": attached,
		"enhancePrompt":     enhancePrompt,
	})
}

func (c *Client) LikeSuggestion(ctx context.Context, req LikeSuggestionRequest) error {
	return c.post(ctx, "/likeSuggestion", req)
}

func (c *Client) LikeImage(ctx context.Context, req LikeImageRequest) error {
	return c.post(ctx, "/likeImage", req)
}

func (c *Client) LikeEntity(ctx context.Context, projectID, entityID, messageID string) error {
	body := map[string]any{
		"projectId": projectID,
		"entityId":  entityID,
	}
	if messageID != "" {
		body["messageId"] = messageID
	}
	return c.post(ctx, "/likeEntity", body)
}

func (c *Client) CreateProject(ctx context.Context, name, description string, includeSampleData bool) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/projects", map[string]any{
		"name":              name,
		"description":       description,
		"includeSampleData": includeSampleData,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) DeleteProject(ctx context.Context, projectID string) error {
	return c.do(ctx, http.MethodDelete, "/projects/"+projectID, nil, nil)
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	return c.do(ctx, http.MethodPost, path, body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Surface the server's message verbatim so the UI can show it.
		var payload struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&payload); decodeErr == nil && payload.Error != "" {
			return errors.New(payload.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
