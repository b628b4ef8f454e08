package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"postgrator/internal/model"
)

// Artifacts lists the report files the server exposes per job.
var Artifacts = []string{"schema.sql", "rowcount.csv", "errors.log"}

// ImportRequest describes an upload of a SQL Server backup.
type ImportRequest struct {
	FilePath string
	PgURI    string
	Schema   string
}

// ImportResponse is returned by POST /import and POST /import/demo.
type ImportResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
	Demo   bool   `json:"demo,omitempty"`
}

type tablesResponse struct {
	Tables []model.TableMetadata `json:"tables"`
}

type errorResponse struct {
	Detail  any    `json:"detail"`
	Message string `json:"message"`
}

// Client talks to the migration server's pull API.
type Client struct {
	baseURL string
	log     logrus.FieldLogger

	// http never retries; snapshot polling decides on its own when to re-fetch.
	http *resty.Client
	// retrying is used for one-shot commands (import, listing, downloads).
	retrying *resty.Client
	// upload carries the backup body; its timeout is separate from the others.
	upload *resty.Client
}

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	timeout       time.Duration
	uploadTimeout time.Duration
	retryCount    int
	log           logrus.FieldLogger
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// WithUploadTimeout bounds a whole backup upload. Zero, the default, leaves
// it to the caller's context.
func WithUploadTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.uploadTimeout = d
	}
}

// WithRetryCount sets how many times one-shot commands retry on 429/5xx.
func WithRetryCount(n int) Option {
	return func(c *clientConfig) {
		c.retryCount = n
	}
}

// WithLogger attaches a logger for request diagnostics.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *clientConfig) {
		c.log = l
	}
}

// NewClient creates a client for a normalized server URL (without /api).
func NewClient(serverURL string, opts ...Option) *Client {
	cfg := clientConfig{
		timeout:    30 * time.Second,
		retryCount: 3,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		cfg.log = l
	}

	base := strings.TrimRight(serverURL, "/") + "/api"
	c := &Client{baseURL: base, log: cfg.log}

	c.http = newResty(base, cfg)
	c.upload = newResty(base, cfg).SetTimeout(cfg.uploadTimeout)
	c.retrying = newResty(base, cfg).
		SetRetryCount(cfg.retryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if r == nil {
				return err != nil
			}
			return r.StatusCode() == 429 || (r.StatusCode() >= 500 && r.StatusCode() <= 504)
		})
	return c
}

func newResty(base string, cfg clientConfig) *resty.Client {
	return resty.New().
		SetBaseURL(base).
		SetTimeout(cfg.timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "postgrator-cli").
		SetLogger(cfg.log).
		OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			r.SetHeader("X-Request-ID", uuid.NewString())
			return nil
		})
}

// BaseURL returns the API root, including the /api prefix.
func (c *Client) BaseURL() string { return c.baseURL }

// FetchStatus pulls the full status snapshot of a job. It never retries.
func (c *Client) FetchStatus(ctx context.Context, jobID string) (*model.JobStatus, error) {
	var out model.JobStatus
	req := c.http.R().
		SetContext(ctx).
		SetPathParam("jobId", jobID).
		SetResult(&out)
	if _, err := c.do(req, "GET", "/jobs/{jobId}", "fetch status"); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTables returns the tables migrated by a job.
func (c *Client) ListTables(ctx context.Context, jobID string) ([]model.TableMetadata, error) {
	var out tablesResponse
	req := c.retrying.R().
		SetContext(ctx).
		SetPathParam("jobId", jobID).
		SetResult(&out)
	if _, err := c.do(req, "GET", "/jobs/{jobId}/tables", "list tables"); err != nil {
		return nil, err
	}
	return out.Tables, nil
}

// FetchRows fetches one page of a table. A page past the end of the table
// yields an *OutOfRangeError carrying the current page count.
func (c *Client) FetchRows(ctx context.Context, jobID, table string, page, pageSize int) (*model.RowPage, error) {
	if page < 1 {
		return nil, &OutOfRangeError{Page: page}
	}
	if pageSize <= 0 {
		return nil, fmt.Errorf("invalid page size %d", pageSize)
	}
	var out model.RowPage
	req := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"jobId": jobID, "table": table}).
		SetQueryParams(map[string]string{
			"page":     strconv.Itoa(page),
			"pageSize": strconv.Itoa(pageSize),
		}).
		SetResult(&out)
	resp, err := c.do(req, "GET", "/jobs/{jobId}/tables/{table}/rows", "fetch rows")
	if err != nil {
		if resp != nil && resp.StatusCode() == 416 {
			return nil, &OutOfRangeError{Page: page}
		}
		return nil, err
	}

	totalPages := TotalPages(out.Total, pageSize)
	if page > 1 && page > totalPages {
		return nil, &OutOfRangeError{Page: page, TotalPages: totalPages, Total: out.Total, Counted: true}
	}
	if fixed := out.Normalize(); fixed > 0 {
		c.log.WithFields(logrus.Fields{"job_id": jobID, "table": table, "rows": fixed}).
			Warn("row width did not match column count; normalized")
	}
	return &out, nil
}

// DownloadArtifact streams a report file into w and returns the byte count.
func (c *Client) DownloadArtifact(ctx context.Context, jobID, name string, w io.Writer) (int64, error) {
	if !IsArtifact(name) {
		return 0, fmt.Errorf("%w: %q (valid: %s)", ErrInvalidArtifact, name, strings.Join(Artifacts, "|"))
	}
	req := c.retrying.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"jobId": jobID, "name": name}).
		SetDoNotParseResponse(true)
	resp, err := c.do(req, "GET", "/jobs/{jobId}/artifacts/{name}", "download artifact")
	if err != nil {
		return 0, err
	}
	body := resp.RawBody()
	defer body.Close()
	n, err := io.Copy(w, body)
	if err != nil {
		return n, &TransportError{Op: "download artifact", URL: resp.Request.URL, Err: err}
	}
	return n, nil
}

// Import uploads a .bak file and starts a migration job.
func (c *Client) Import(ctx context.Context, in ImportRequest) (ImportResponse, error) {
	if !strings.EqualFold(filepath.Ext(in.FilePath), ".bak") {
		return ImportResponse{}, fmt.Errorf("only .bak files are supported: %q", in.FilePath)
	}
	if strings.TrimSpace(in.PgURI) == "" {
		return ImportResponse{}, fmt.Errorf("PostgreSQL URI is required")
	}
	schema := in.Schema
	if schema == "" {
		schema = "public"
	}
	f, err := os.Open(in.FilePath)
	if err != nil {
		return ImportResponse{}, fmt.Errorf("open backup: %w", err)
	}
	defer f.Close()

	var out ImportResponse
	// No retry: the body reader cannot be replayed.
	req := c.upload.R().
		SetContext(ctx).
		SetFileReader("file", filepath.Base(in.FilePath), f).
		SetFormData(map[string]string{"pgUri": in.PgURI, "schema": schema}).
		SetResult(&out)
	if _, err := c.do(req, "POST", "/import", "import"); err != nil {
		return ImportResponse{}, err
	}
	if out.JobID == "" {
		return ImportResponse{}, fmt.Errorf("import: server returned no job id")
	}
	return out, nil
}

// ImportDemo starts a simulated migration job on the server.
func (c *Client) ImportDemo(ctx context.Context) (ImportResponse, error) {
	var out ImportResponse
	req := c.retrying.R().SetContext(ctx).SetResult(&out)
	if _, err := c.do(req, "POST", "/import/demo", "import demo"); err != nil {
		return ImportResponse{}, err
	}
	if out.JobID == "" {
		return ImportResponse{}, fmt.Errorf("import demo: server returned no job id")
	}
	return out, nil
}

// Ping checks that the API root answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(c.retrying.R().SetContext(ctx), "GET", "/", "ping")
	return err
}

func (c *Client) do(req *resty.Request, method, path, op string) (*resty.Response, error) {
	resp, err := req.Execute(method, path)
	if err != nil {
		url := c.baseURL + path
		if resp != nil && resp.Request != nil && resp.Request.URL != "" {
			url = resp.Request.URL
		}
		return resp, &TransportError{Op: op, URL: url, Err: err}
	}
	if !resp.IsSuccess() {
		te := &TransportError{Op: op, URL: resp.Request.URL, StatusCode: resp.StatusCode()}
		te.Detail = errorDetail(resp.Body())
		if rb := resp.RawBody(); te.Detail == "" && rb != nil {
			b, _ := io.ReadAll(io.LimitReader(rb, 4096))
			_ = rb.Close()
			te.Detail = errorDetail(b)
		}
		return resp, te
	}
	return resp, nil
}

func errorDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		switch d := er.Detail.(type) {
		case string:
			return d
		case nil:
		default:
			if b, err := json.Marshal(d); err == nil {
				return string(b)
			}
		}
		if er.Message != "" {
			return er.Message
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "…"
	}
	return s
}

// IsArtifact reports whether name is a downloadable report file.
func IsArtifact(name string) bool {
	for _, a := range Artifacts {
		if a == name {
			return true
		}
	}
	return false
}

// TotalPages returns ceil(total/pageSize).
func TotalPages(total int64, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(pageSize)))
}
