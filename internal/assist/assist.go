// Package assist proxies chat and image-generation calls to the upstream
// assistant service. The backend only relays; suggestion content comes from
// upstream.
package assist

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type NodeSuggestion struct {
	Title               string `json:"title"`
	Description         string `json:"description"`
	CategoryTitle       string `json:"categoryTitle,omitempty"`
	CategoryDescription string `json:"categoryDescription,omitempty"`
}

type EntitySuggestion struct {
	EntityID    string `json:"entityId,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type ImageSuggestion struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

type Suggestions struct {
	Nodes    []NodeSuggestion   `json:"nodes,omitempty"`
	Images   []ImageSuggestion  `json:"images,omitempty"`
	Entities []EntitySuggestion `json:"entities,omitempty"`
}

type Reply struct {
	Message     string      `json:"message"`
	Suggestions Suggestions `json:"suggestions"`
}

type GeneratedImage struct {
	Data        []byte
	ContentType string
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// Configured reports whether an upstream assistant is reachable by config.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// Chat relays one user message plus its attached hierarchy and returns the
// assistant reply. Without an upstream configured it degrades to the canned
// test reply so the chat flow stays usable in development.
func (c *Client) Chat(ctx context.Context, projectID, message string, attached json.RawMessage) (Reply, error) {
	if !c.Configured() {
		return c.TestChat(ctx, projectID, message, attached)
	}

	var reply Reply
	err := c.post(ctx, "/chat", map[string]any{
		"projectId": projectID,
		"message":   message,
		"hierarchy": attached,
	}, &reply)
	if err != nil {
		return Reply{}, fmt.Errorf("assistant chat: %w", err)
	}
	return reply, nil
}

// TestChat returns a canned reply without calling upstream.
func (c *Client) TestChat(_ context.Context, _, message string, _ json.RawMessage) (Reply, error) {
	return Reply{
		Message: "Test reply to: " + message,
		Suggestions: Suggestions{
			Nodes: []NodeSuggestion{
				{Title: "Sample node", Description: "A stand-in suggestion for testing the panel."},
			},
		},
	}, nil
}

// GenerateImages relays an image-generation request. Upstream returns the
// rendered images base64-encoded.
func (c *Client) GenerateImages(ctx context.Context, projectID, prompt string, n int, attached json.RawMessage, enhancePrompt bool) ([]GeneratedImage, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("image generation is not configured")
	}

	var payload struct {
		Images []struct {
			B64         string `json:"b64"`
			ContentType string `json:"contentType"`
		} `json:"images"`
	}
	err := c.post(ctx, "/generate-image", map[string]any{
		"projectId":         projectID,
		"prompt":            prompt,
		"n":                 n,
		"attachedHierarchy": attached,
		"enhancePrompt":     enhancePrompt,
	}, &payload)
	if err != nil {
		return nil, fmt.Errorf("generate images: %w", err)
	}

	out := make([]GeneratedImage, 0, len(payload.Images))
	for _, img := range payload.Images {
		data, err := base64.StdEncoding.DecodeString(img.B64)
		if err != nil {
			return nil, fmt.Errorf("decode generated image: %w", err)
		}
		contentType := img.ContentType
		if contentType == "" {
			contentType = "image/png"
		}
		out = append(out, GeneratedImage{Data: data, ContentType: contentType})
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("upstream status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
