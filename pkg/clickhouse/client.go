package clickhouse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethpandaops/medallion/pkg/observability"
	"github.com/sirupsen/logrus"
)

// Define static errors
var (
	ErrClickHouseResponse = errors.New("clickhouse error")
)

// Column describes one result column as reported by ClickHouse
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Result is a FORMAT JSON response. Data holds one JSON object per row.
type Result struct {
	Meta     []Column          `json:"meta"`
	Data     []json.RawMessage `json:"data"`
	Rows     int               `json:"rows"`
	RowsRead int               `json:"rows_read"` //nolint:tagliatelle // ClickHouse API uses snake_case
}

// ClientInterface defines the methods for interacting with ClickHouse
type ClientInterface interface {
	// Query executes a SELECT and returns the FORMAT JSON result
	Query(ctx context.Context, query string) (*Result, error)
	// Execute runs a statement and returns the raw response body
	Execute(ctx context.Context, query string) ([]byte, error)
	// InsertJSONEachRow inserts pre-encoded JSON objects, one per row
	InsertJSONEachRow(ctx context.Context, table string, rows [][]byte) error
	// Start checks connectivity
	Start() error
	// Stop closes idle connections
	Stop() error
}

// client implements the ClientInterface using HTTP
type client struct {
	log           logrus.FieldLogger
	httpClient    *http.Client
	baseURL       string
	debug         bool
	queryTimeout  time.Duration
	insertTimeout time.Duration
}

// NewClient creates a new HTTP-based ClickHouse client
func NewClient(logger logrus.FieldLogger, cfg *Config) (ClientInterface, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg.SetDefaults()

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     cfg.KeepAlive,
		DisableKeepAlives:   false,
	}

	httpClient := &http.Client{
		Transport: transport,
		Timeout:   0, // We'll set per-request timeouts
	}

	return &client{
		log:           logger.WithField("component", "clickhouse-http"),
		httpClient:    httpClient,
		baseURL:       strings.TrimRight(cfg.URL, "/"),
		debug:         cfg.Debug,
		queryTimeout:  cfg.QueryTimeout,
		insertTimeout: cfg.InsertTimeout,
	}, nil
}

func (c *client) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := c.Execute(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	c.log.Info("Connected to ClickHouse HTTP interface")

	return nil
}

func (c *client) Stop() error {
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}

	c.log.Info("Closed ClickHouse HTTP client")

	return nil
}

func (c *client) Query(ctx context.Context, query string) (*Result, error) {
	resp, err := c.executeHTTPRequest(ctx, query+" FORMAT JSON", "select", c.getTimeout(ctx, "query"))
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}

	var result Result
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &result, nil
}

func (c *client) Execute(ctx context.Context, query string) ([]byte, error) {
	body, err := c.executeHTTPRequest(ctx, query, "ddl", c.getTimeout(ctx, "query"))
	if err != nil {
		return nil, fmt.Errorf("execution failed: %w", err)
	}

	return body, nil
}

func (c *client) InsertJSONEachRow(ctx context.Context, table string, rows [][]byte) error {
	if len(rows) == 0 {
		return nil
	}

	var buf bytes.Buffer

	fmt.Fprintf(&buf, "INSERT INTO %s SETTINGS date_time_input_format = 'best_effort' FORMAT JSONEachRow\n", table)

	for _, row := range rows {
		buf.Write(row)
		buf.WriteByte('\n')
	}

	if _, err := c.executeHTTPRequest(ctx, buf.String(), "insert", c.getTimeout(ctx, "insert")); err != nil {
		return fmt.Errorf("bulk insert failed: %w", err)
	}

	return nil
}

func (c *client) executeHTTPRequest(ctx context.Context, query, queryType string, timeout time.Duration) (body []byte, err error) {
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}

		observability.RecordClickHouseQuery(queryType, status)
	}()

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL, strings.NewReader(query))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "text/plain")

	if c.debug {
		logQuery := query
		if len(query) > 1000 && strings.HasPrefix(query, "INSERT") {
			logQuery = query[:1000] + "... (truncated)"
		}

		c.log.WithField("query", logQuery).Debug("Executing ClickHouse query")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.log.WithError(closeErr).Debug("Failed to close response body")
		}
	}()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp struct {
			Exception string `json:"exception"`
		}

		if jsonErr := json.Unmarshal(body, &errorResp); jsonErr == nil && errorResp.Exception != "" {
			return nil, fmt.Errorf("%w (status %d): %s", ErrClickHouseResponse, resp.StatusCode, errorResp.Exception)
		}

		return nil, fmt.Errorf("%w (status %d): %s", ErrClickHouseResponse, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if c.debug && len(body) < 1000 {
		c.log.WithField("response", string(body)).Debug("ClickHouse response")
	}

	return body, nil
}

func (c *client) getTimeout(ctx context.Context, operation string) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		return time.Until(deadline)
	}

	switch operation {
	case "insert":
		return c.insertTimeout
	default:
		return c.queryTimeout
	}
}
