// Package google serves data files from a Google Sheets spreadsheet. Each
// tab is one file and its first row is the header.
package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"findash/internal/core"
	"findash/internal/log"
	ports "findash/internal/sources"
)

// Config selects the spreadsheet and the service account used to read it.
type Config struct {
	SpreadsheetID   string
	CredentialsJSON string
	CredentialsFile string
	// Options are appended to the service options, e.g. a test endpoint.
	Options []goption.ClientOption
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	logger        *log.Logger
}

var _ ports.Source = (*Client)(nil)

// New creates a read-only Sheets client. Credentials come from the config,
// falling back to GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSources)

	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: cfg.SpreadsheetID, logger: logger}, nil
}

func newSheetsService(ctx context.Context, cfg Config, logger *log.Logger) (*gsheet.Service, error) {
	opts := []goption.ClientOption{goption.WithScopes(gsheet.SpreadsheetsReadonlyScope)}

	if len(cfg.Options) == 0 {
		credentialsJSON, err := loadCredentials(cfg)
		if err != nil {
			return nil, err
		}
		logger.InfoContext(ctx, "Creating Google Sheets service with Service Account",
			"credentials_size", len(credentialsJSON))
		opts = append(opts,
			goption.WithCredentialsJSON(credentialsJSON),
			goption.WithHTTPClient(newHTTPClientWithPooling()),
		)
	}
	opts = append(opts, cfg.Options...)

	service, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func loadCredentials(cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.CredentialsJSON)
	file := strings.TrimSpace(cfg.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	}
	return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
}

// newHTTPClientWithPooling creates an HTTP client tuned for the Sheets API
// with connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// ListFiles returns one entry per tab with its data row count.
func (c *Client) ListFiles(ctx context.Context) ([]core.FileInfo, error) {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read spreadsheet %s: %w", c.spreadsheetID, err)
	}

	files := make([]core.FileInfo, 0, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties == nil || sh.Properties.Title == "" {
			continue
		}
		title := sh.Properties.Title
		rows, err := c.readRange(ctx, quote(title)+"!A:A")
		if err != nil {
			c.logger.WarnContext(ctx, "Skipping unreadable sheet", log.FieldFile, title, log.FieldError, err.Error())
			continue
		}
		count := 0
		for _, r := range rows[min(1, len(rows)):] {
			if len(r) > 0 && strings.TrimSpace(fmt.Sprint(r[0])) != "" {
				count++
			}
		}
		files = append(files, core.FileInfo{Name: title, TransactionsCount: count})
	}
	ports.SortBySize(files)
	return files, nil
}

// FetchTransactions reads and validates a whole tab.
func (c *Client) FetchTransactions(ctx context.Context, filename string) ([]core.Transaction, error) {
	values, err := c.readRange(ctx, quote(filename))
	if err != nil {
		return nil, err
	}
	txs, err := ports.ParseTable(toRows(values))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return txs, nil
}

func (c *Client) readRange(ctx context.Context, rng string) ([][]interface{}, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ports.ErrFileNotFound, rng)
		}
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

func isNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Unable to parse range") || strings.Contains(msg, "404")
}

// quote wraps a tab title for A1 notation.
func quote(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func toRows(values [][]interface{}) [][]string {
	rows := make([][]string, len(values))
	for i, v := range values {
		rows[i] = toStrings(v)
	}
	return rows
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
