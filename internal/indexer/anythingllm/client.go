// Package anythingllm is a client for the AnythingLLM developer API, used to
// hand finished transcripts to the knowledge base.
package anythingllm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
)

const (
	uploadPath     = "/api/v1/document/upload"
	embeddingsPath = "/api/v1/workspace/%s/update-embeddings"
	maxErrorBody   = 4 << 10
)

// Config configures the client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client implements archive.Indexer.
type Client struct {
	base  string
	token string
	http  *http.Client
}

var _ archive.Indexer = (*Client)(nil)

// New builds a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Client{
		base:  strings.TrimRight(cfg.BaseURL, "/"),
		token: cfg.Token,
		http:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type uploadResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Documents []struct {
		ID       string `json:"id"`
		Location string `json:"location"`
		Title    string `json:"title"`
	} `json:"documents"`
}

// UploadDocument uploads text as a plain-text file called name and returns
// the document location the workspace must reference.
func (c *Client) UploadDocument(ctx context.Context, name string, text []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	header.Set("Content-Type", "text/plain")
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(text); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	var resp uploadResponse
	if err := c.do(ctx, c.base+uploadPath, mw.FormDataContentType(), &body, &resp); err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	if !resp.Success {
		return "", fmt.Errorf("upload %s: rejected: %s", name, resp.Error)
	}
	if len(resp.Documents) == 0 || resp.Documents[0].Location == "" {
		return "", fmt.Errorf("upload %s: response has no document location", name)
	}
	return resp.Documents[0].Location, nil
}

type embeddingsRequest struct {
	Adds    []string `json:"adds"`
	Deletes []string `json:"deletes"`
}

// UpdateEmbeddings adds and removes documents from a workspace.
func (c *Client) UpdateEmbeddings(ctx context.Context, workspace string, adds, deletes []string) error {
	if workspace == "" {
		return errors.New("update embeddings: workspace is required")
	}
	if adds == nil {
		adds = []string{}
	}
	if deletes == nil {
		deletes = []string{}
	}
	payload, err := json.Marshal(embeddingsRequest{Adds: adds, Deletes: deletes})
	if err != nil {
		return fmt.Errorf("marshal embeddings request: %w", err)
	}
	endpoint := c.base + fmt.Sprintf(embeddingsPath, url.PathEscape(workspace))
	if err := c.do(ctx, endpoint, "application/json", bytes.NewReader(payload), nil); err != nil {
		return fmt.Errorf("update embeddings of %s: %w", workspace, err)
	}
	return nil
}

// do posts body and decodes a 200 response into out when out is non-nil.
// Network failures, 429 and 5xx answers are wrapped in archive.ErrTransient.
func (c *Client) do(ctx context.Context, endpoint, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", archive.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("%w: %w", archive.ErrTransient, err)
		}
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
