package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postgrator/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, WithRetryCount(0))
}

func TestFetchStatus(t *testing.T) {
	t.Run("Should decode a full snapshot", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/jobs/job-1", r.URL.Path)
			assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
			writeJSON(w, 200, map[string]any{
				"jobId":   "job-1",
				"status":  "running",
				"stage":   "data_copy",
				"percent": 40,
				"stats":   map[string]any{"tablesDone": 2, "tablesTotal": 8, "elapsedSec": 12.5},
				"error":   nil,
			})
		}))

		st, err := c.FetchStatus(context.Background(), "job-1")
		require.NoError(t, err)
		assert.Equal(t, model.StageDataCopy, st.Stage)
		assert.Equal(t, 40.0, st.ClampedPercent())
		assert.Equal(t, 8, st.Stats.TablesTotal)
		assert.Equal(t, 12.5, st.Stats.ElapsedSec)
		assert.Empty(t, st.Error)
	})

	t.Run("Should treat a missing percent as zero", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, 200, map[string]any{"stage": "verify", "stats": map[string]any{}})
		}))

		st, err := c.FetchStatus(context.Background(), "job-1")
		require.NoError(t, err)
		assert.Nil(t, st.Percent)
		assert.Equal(t, 0.0, st.ClampedPercent())
	})

	t.Run("Should return a TransportError on 5xx without retrying", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			writeJSON(w, 503, map[string]any{"detail": "busy"})
		}))
		defer srv.Close()
		c := NewClient(srv.URL, WithRetryCount(3))

		_, err := c.FetchStatus(context.Background(), "job-1")
		var te *TransportError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, 503, te.StatusCode)
		assert.Equal(t, "busy", te.Detail)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "snapshot fetches must not retry")
	})

	t.Run("Should return a TransportError when the server is down", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		c := NewClient(url)

		_, err := c.FetchStatus(context.Background(), "job-1")
		var te *TransportError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, 0, te.StatusCode)
	})
}

func TestListTables(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/jobs/j/tables", r.URL.Path)
		writeJSON(w, 200, map[string]any{"tables": []map[string]any{
			{"schema": "dbo", "name": "Orders", "rowCount": 830, "copied": true},
			{"schema": "dbo", "name": "Broken", "rowCount": 0, "copied": false, "error": "boom"},
		}})
	}))

	tables, err := c.ListTables(context.Background(), "j")
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.True(t, tables[0].Succeeded())
	assert.False(t, tables[1].Succeeded())
	assert.Equal(t, int64(830), tables[0].RowCount)
}

func TestFetchRows(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/jobs/j/tables/Order Details/rows", r.URL.Path)
		page := r.URL.Query().Get("page")
		rows := [][]any{{1, "a"}, {2}}
		if page == "9" {
			rows = [][]any{}
		}
		writeJSON(w, 200, map[string]any{
			"columns":  []string{"id", "name"},
			"rows":     rows,
			"total":    250,
			"pageSize": 100,
		})
	})

	t.Run("Should normalize rows to the column count", func(t *testing.T) {
		c := newTestClient(t, handler)
		p, err := c.FetchRows(context.Background(), "j", "Order Details", 1, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(250), p.Total)
		for _, row := range p.Rows {
			assert.Len(t, row, len(p.Columns))
		}
		assert.Equal(t, "NULL", model.Cell(p.Rows[1][1]))
	})

	t.Run("Should report OutOfRange beyond the last page", func(t *testing.T) {
		c := newTestClient(t, handler)
		_, err := c.FetchRows(context.Background(), "j", "Order Details", 9, 100)
		require.ErrorIs(t, err, ErrOutOfRange)
		var oor *OutOfRangeError
		require.True(t, errors.As(err, &oor))
		assert.Equal(t, 3, oor.TotalPages)
		assert.True(t, oor.Counted)
	})

	t.Run("Should reject invalid arguments locally", func(t *testing.T) {
		c := newTestClient(t, handler)
		_, err := c.FetchRows(context.Background(), "j", "Order Details", 0, 100)
		assert.ErrorIs(t, err, ErrOutOfRange)
		_, err = c.FetchRows(context.Background(), "j", "Order Details", 1, 0)
		assert.Error(t, err)
	})
}

func TestFetchRowsRangeStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusRequestedRangeNotSatisfiable, map[string]any{"detail": "no such page"})
	}))
	_, err := c.FetchRows(context.Background(), "j", "t", 4, 10)
	assert.ErrorIs(t, err, ErrOutOfRange)
	var oor *OutOfRangeError
	require.True(t, errors.As(err, &oor))
	assert.False(t, oor.Counted, "a bare 416 carries no row count")
}

func TestDownloadArtifact(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/jobs/j/artifacts/errors.log" {
			writeJSON(w, 404, map[string]any{"detail": "missing"})
			return
		}
		assert.Equal(t, "/api/jobs/j/artifacts/schema.sql", r.URL.Path)
		_, _ = io.WriteString(w, "CREATE TABLE t (id int);\n")
	}))

	var buf bytes.Buffer
	n, err := c.DownloadArtifact(context.Background(), "j", "schema.sql", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.Contains(t, buf.String(), "CREATE TABLE")

	_, err = c.DownloadArtifact(context.Background(), "j", "../etc/passwd", &buf)
	assert.ErrorIs(t, err, ErrInvalidArtifact)

	_, err = c.DownloadArtifact(context.Background(), "j", "errors.log", &buf)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.True(t, te.NotFound())
	assert.Equal(t, "missing", te.Detail)
}

func TestImport(t *testing.T) {
	dir := t.TempDir()
	bak := filepath.Join(dir, "northwind.bak")
	require.NoError(t, os.WriteFile(bak, []byte("backup-bytes"), 0o644))

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/import":
			if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
				w.WriteHeader(400)
				return
			}
			assert.Equal(t, "postgresql://u:p@db/x", r.FormValue("pgUri"))
			assert.Equal(t, "public", r.FormValue("schema"))
			f, hdr, err := r.FormFile("file")
			if !assert.NoError(t, err) {
				w.WriteHeader(400)
				return
			}
			defer f.Close()
			assert.Equal(t, "northwind.bak", hdr.Filename)
			writeJSON(w, 200, map[string]any{"jobId": "new-job", "status": "queued"})
		case "/api/import/demo":
			writeJSON(w, 200, map[string]any{"jobId": "demo-job", "status": "queued", "demo": true})
		default:
			w.WriteHeader(404)
		}
	}))

	res, err := c.Import(context.Background(), ImportRequest{FilePath: bak, PgURI: "postgresql://u:p@db/x"})
	require.NoError(t, err)
	assert.Equal(t, "new-job", res.JobID)

	_, err = c.Import(context.Background(), ImportRequest{FilePath: filepath.Join(dir, "x.sql"), PgURI: "u"})
	assert.Error(t, err)

	demo, err := c.ImportDemo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "demo-job", demo.JobID)
	assert.True(t, demo.Demo)
}

func TestImportOutlivesRequestTimeout(t *testing.T) {
	dir := t.TempDir()
	bak := filepath.Join(dir, "big.bak")
	require.NoError(t, os.WriteFile(bak, bytes.Repeat([]byte("x"), 20<<10), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		time.Sleep(300 * time.Millisecond)
		writeJSON(w, 200, map[string]any{"jobId": "slow-job", "status": "queued"})
	}))
	t.Cleanup(srv.Close)

	t.Run("Should not apply the request timeout to uploads", func(t *testing.T) {
		c := NewClient(srv.URL, WithRetryCount(0), WithTimeout(100*time.Millisecond))
		res, err := c.Import(context.Background(), ImportRequest{FilePath: bak, PgURI: "postgresql://u:p@db/x"})
		require.NoError(t, err)
		assert.Equal(t, "slow-job", res.JobID)
	})

	t.Run("Should honor an explicit upload timeout", func(t *testing.T) {
		c := NewClient(srv.URL, WithRetryCount(0), WithUploadTimeout(100*time.Millisecond))
		_, err := c.Import(context.Background(), ImportRequest{FilePath: bak, PgURI: "postgresql://u:p@db/x"})
		var te *TransportError
		require.True(t, errors.As(err, &te))
		assert.Zero(t, te.StatusCode)
	})
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		total    int64
		pageSize int
		want     int
	}{
		{250, 100, 3},
		{200, 100, 2},
		{1, 100, 1},
		{0, 100, 0},
		{10, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TotalPages(tt.total, tt.pageSize), "total=%d pageSize=%d", tt.total, tt.pageSize)
	}
}
