package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer is a minimal migration server for job-1 with one table.
func fakeServer(t *testing.T, events []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/", "/api":
			fmt.Fprint(w, `{"status":"ok"}`)
		case "/api/jobs/job-1":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"jobId":"job-1","status":"running","stage":"data_copy","percent":40}`)
		case "/api/jobs/job-1/tables":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"tables":[{"schema":"public","name":"orders","rowCount":250,"copied":true}]}`)
		case "/api/jobs/job-1/tables/orders/rows":
			w.Header().Set("Content-Type", "application/json")
			if r.URL.Query().Get("page") != "1" {
				fmt.Fprint(w, `{"columns":["id"],"rows":[],"total":2}`)
				return
			}
			fmt.Fprint(w, `{"columns":["id","note"],"rows":[[1,"a"],[2,null]],"total":2}`)
		case "/api/jobs/job-1/artifacts/schema.sql":
			fmt.Fprint(w, "CREATE TABLE orders (id int);\n")
		case "/api/jobs/job-1/stream":
			c, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer c.Close()
			for _, ev := range events {
				if err := c.WriteMessage(websocket.TextMessage, []byte(ev)); err != nil {
					return
				}
			}
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					return
				}
			}
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"detail":"Job not found"}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, "data"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(home, "state"))

	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return -1
}

func TestDoctor(t *testing.T) {
	srv := fakeServer(t, nil)
	out, err := execute(t, "doctor", "--server", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "reachable")
	assert.Contains(t, out, "/api/jobs/<jobId>/stream")
}

func TestDoctorUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := execute(t, "doctor", "--server", url, "--timeout", "1s")
	assert.Equal(t, ExitUnreachable, exitCode(err))
}

func TestTables(t *testing.T) {
	srv := fakeServer(t, nil)
	out, err := execute(t, "tables", "job-1", "--server", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "orders")
	assert.Contains(t, out, "1 tables • 250 rows • 1 ok • 0 failed")
}

func TestRowsClampsOutOfRangePage(t *testing.T) {
	srv := fakeServer(t, nil)
	out, err := execute(t, "rows", "job-1", "orders", "--server", srv.URL, "--page", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "NULL")
	assert.Contains(t, out, "showing page 1")
	assert.Contains(t, out, "page 1/1 • 2 rows")
}

func TestArtifact(t *testing.T) {
	srv := fakeServer(t, nil)
	dir := t.TempDir()
	out, err := execute(t, "artifact", "job-1", "schema.sql", "--server", srv.URL, "-o", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved:")

	data, err := os.ReadFile(filepath.Join(dir, "schema.sql"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "CREATE TABLE orders")

	_, err = execute(t, "artifact", "job-1", "passwd", "--server", srv.URL, "-o", dir)
	assert.Equal(t, ExitCLIError, exitCode(err))
}

func TestWatchPlainCompletes(t *testing.T) {
	srv := fakeServer(t, []string{
		`{"t":"stage","v":"data_copy"}`,
		`{"t":"log","level":"info","msg":"copying orders"}`,
		`{"t":"table_progress","table":"orders","rows":250,"total":250,"percent":100}`,
		`{"t":"done","success":true}`,
	})
	out, err := execute(t, "watch", "job-1", "--server", srv.URL, "--no-ui", "--grace-delay", "10ms")
	require.NoError(t, err)
	assert.Contains(t, out, "==> Copy data (5/8)")
	assert.Contains(t, out, "[info] copying orders")
	assert.Contains(t, out, "orders: 250/250 rows (100%)")
	assert.Contains(t, out, "Migration complete")
	assert.Contains(t, out, "1 tables • 250 rows")
	assert.Equal(t, 1, strings.Count(out, "Migration complete"))
}

func TestWatchPlainServerError(t *testing.T) {
	srv := fakeServer(t, []string{`{"t":"error","msg":"disk full"}`})
	_, err := execute(t, "watch", "job-1", "--server", srv.URL, "--no-ui")
	assert.Equal(t, ExitJobFailed, exitCode(err))
	assert.Contains(t, err.Error(), "disk full")
}

func TestWatchUnknownJob(t *testing.T) {
	srv := fakeServer(t, nil)
	_, err := execute(t, "watch", "job-404", "--server", srv.URL, "--no-ui")
	assert.Equal(t, ExitCLIError, exitCode(err))
	assert.Contains(t, err.Error(), "not found")
}

func TestImportRejectsNonBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.sql")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	_, err := execute(t, "import", path, "--pg-uri", "postgres://x")
	assert.Equal(t, ExitCLIError, exitCode(err))
}
