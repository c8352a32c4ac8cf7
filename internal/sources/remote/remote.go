// Package remote reads data files from another findash server (or any
// service speaking the same raw API) over HTTP.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"findash/internal/core"
	ports "findash/internal/sources"
)

const defaultTimeout = 15 * time.Second

// Client implements sources.Source against /files and /transactions/{name}.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ ports.Source = (*Client)(nil)

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) ListFiles(ctx context.Context) ([]core.FileInfo, error) {
	var files []core.FileInfo
	if err := c.get(ctx, "/files", &files); err != nil {
		return nil, err
	}
	if files == nil {
		files = []core.FileInfo{}
	}
	return files, nil
}

func (c *Client) FetchTransactions(ctx context.Context, filename string) ([]core.Transaction, error) {
	var txs []core.Transaction
	if err := c.get(ctx, "/transactions/"+url.PathEscape(filename), &txs); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	return txs, nil
}

type errorBody struct {
	Detail string `json:"detail"`
	Error  string `json:"error"`
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		return nil
	}

	var body errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	detail := body.Detail
	if detail == "" {
		detail = body.Error
	}
	return fmt.Errorf("%w: %s", statusError(resp.StatusCode, detail), detail)
}

// statusError maps the raw API's status codes back to source errors.
func statusError(status int, detail string) error {
	switch status {
	case http.StatusUnsupportedMediaType:
		return ports.ErrUnsupportedFile
	case http.StatusNotFound:
		return ports.ErrFileNotFound
	case http.StatusUnprocessableEntity:
		if strings.Contains(strings.ToLower(detail), "structure") {
			return ports.ErrInvalidStructure
		}
		return ports.ErrDataIntegrity
	}
	return fmt.Errorf("unexpected status %d", status)
}
