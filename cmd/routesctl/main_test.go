package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flagroutes/internal/api"
	"flagroutes/internal/metrics"
	"flagroutes/internal/store"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "flagroutes "), out)
}

func TestEventsURL(t *testing.T) {
	tests := []struct {
		server string
		route  int64
		want   string
		err    bool
	}{
		{server: "http://localhost:8080", want: "ws://localhost:8080/v1/events/ws"},
		{server: "https://routes.example.org", route: 7, want: "wss://routes.example.org/v1/routes/7/events/ws"},
		{server: "ftp://nope", err: true},
		{server: "http://localhost", route: -1, err: true},
	}
	for _, tt := range tests {
		got, err := eventsURL(tt.server, tt.route)
		if tt.err {
			assert.Error(t, err, tt.server)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestUninstallRequiresConfirmation(t *testing.T) {
	_, err := run(t, "uninstall")
	assert.ErrorContains(t, err, "--yes")
}

func TestAdminCommandsNeedDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := run(t, "routes")
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestInstallListUninstall(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "routes.db")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", dsn)

	out, err := run(t, "install")
	require.NoError(t, err)
	assert.Contains(t, out, "route tables installed (sqlite)")

	ctx := context.Background()
	db, err := store.OpenSQL(ctx, store.DialectSQLite, dsn)
	require.NoError(t, err)
	_, err = db.CreateRoute(ctx, "North Hills", "weekly", time.Now())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	out, err = run(t, "routes")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "North Hills")

	_, err = run(t, "roster", "abc")
	assert.Error(t, err)

	out, err = run(t, "uninstall", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "dropped")
}

func TestTail(t *testing.T) {
	log, _ := test.NewNullLogger()
	s := api.NewServer(store.NewMemory(), nil, api.Options{Log: log})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	gauge := metrics.StreamSubscribers.WithLabelValues("ws")
	before := testutil.ToFloat64(gauge)

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := run(t, "tail", "--server", srv.URL, "-n", "1")
		done <- result{out, err}
	}()
	require.Eventually(t, func() bool { return testutil.ToFloat64(gauge) > before }, 3*time.Second, 10*time.Millisecond)

	resp, err := http.Post(srv.URL+"/v1/routes", "application/json", strings.NewReader(`{"name":"Route T"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Contains(t, r.out, "route.created")
		assert.Contains(t, r.out, "route=1")
	case <-time.After(5 * time.Second):
		t.Fatal("tail did not return")
	}
}

func TestHistogram(t *testing.T) {
	assert.Equal(t, "-", histogram(nil))
	assert.Equal(t, "cotton=1, nylon=2", histogram(map[string]int{"nylon": 2, "cotton": 1}))
}
