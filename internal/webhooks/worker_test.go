package webhooks

import (
	"context"
	"crypto/hmac"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flagroutes/internal/metrics"
	"flagroutes/internal/model"
)

type received struct {
	mu    sync.Mutex
	sigs  []string
	types []string
	ok    []bool
}

func newForwarder(t *testing.T, cfg Config) (*Forwarder, *test.Hook) {
	t.Helper()
	log, hook := test.NewNullLogger()
	f := NewForwarder(cfg, log)
	f.backoff = func(int) time.Duration { return time.Millisecond }
	return f, hook
}

func TestForwardSignsAndDelivers(t *testing.T) {
	rec := &received{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.sigs = append(rec.sigs, r.Header.Get(SignatureHeader))
		rec.types = append(rec.types, r.Header.Get("X-Event-Type"))
		rec.ok = append(rec.ok, verifySignature("secret", body, r.Header.Get(SignatureHeader)))
		rec.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	f, _ := newForwarder(t, Config{URLs: []string{srv.URL}, Secret: "secret"})
	ch := make(chan model.RouteEvent, 2)
	ch <- model.RouteEvent{ID: "e1", Type: model.EventClientAssigned, RouteID: 3, ClientID: 9}
	close(ch)
	f.Run(context.Background(), ch)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.types, 1)
	assert.Equal(t, model.EventClientAssigned, rec.types[0])
	assert.NotEmpty(t, rec.sigs[0])
	assert.True(t, rec.ok[0], "signature verifies with the shared secret")
}

func TestForwardRetriesThenGivesUp(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f, hook := newForwarder(t, Config{URLs: []string{srv.URL}, MaxAttempts: 3})
	ch := make(chan model.RouteEvent, 1)
	ch <- model.RouteEvent{ID: "e2", Type: model.EventRouteDeleted, RouteID: 1}
	close(ch)
	f.Run(context.Background(), ch)

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "webhook delivery abandoned", hook.LastEntry().Message)
}

func TestForwardRecoversOnRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f, hook := newForwarder(t, Config{URLs: []string{srv.URL}})
	require.NoError(t, f.deliver(context.Background(), srv.URL, "route.created", []byte(`{}`)))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Empty(t, hook.Entries)
}

func TestRunStopsOnCancel(t *testing.T) {
	f, _ := newForwarder(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Run(ctx, make(chan model.RouteEvent))
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, nextBackoff(-1))
	assert.Equal(t, 8*time.Second, nextBackoff(3))
	assert.Equal(t, 1024*time.Second, nextBackoff(50))
}

// verifySignature is what a receiving service does with the header.
func verifySignature(secret string, body []byte, provided string) bool {
	b, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	return hmac.Equal(sum(secret, body), b)
}

func TestSignHMAC(t *testing.T) {
	assert.Equal(t, "c38edc8815c8489f64738978f44008f8596345545f0baa68ef6fcf5c53e57189", SignHMAC("k", []byte("x")))
	assert.False(t, verifySignature("k", []byte("x"), "not-hex"))
	assert.False(t, verifySignature("k", []byte("x"), SignHMAC("other", []byte("x"))))
}

func TestSlowTargetDoesNotStallSubscription(t *testing.T) {
	var got int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&got, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f, hook := newForwarder(t, Config{URLs: []string{srv.URL}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan model.RouteEvent)
	go f.Run(ctx, ch)

	// Unbuffered: every send completes only once the forwarder has taken the
	// event, so a stalled reader would hold this loop far past the deadline.
	start := time.Now()
	for i := 0; i < 30; i++ {
		ch <- model.RouteEvent{ID: fmt.Sprintf("e%d", i), Type: model.EventClientAssigned, RouteID: 1}
	}
	assert.Less(t, time.Since(start), 200*time.Millisecond)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&got) == 30 }, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, hook.Entries)
}

func TestQueueOverflowIsCountedAndLogged(t *testing.T) {
	release := make(chan struct{})
	var got int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		atomic.AddInt32(&got, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dropped := metrics.WebhookDeliveries.WithLabelValues("dropped")
	before := testutil.ToFloat64(dropped)

	f, hook := newForwarder(t, Config{URLs: []string{srv.URL}, QueueSize: 2})
	ch := make(chan model.RouteEvent)
	done := make(chan struct{})
	go func() {
		f.Run(context.Background(), ch)
		close(done)
	}()
	for i := 0; i < 10; i++ {
		ch <- model.RouteEvent{ID: fmt.Sprintf("e%d", i), Type: model.EventRouteUpdated, RouteID: 4}
	}
	close(ch)

	require.Eventually(t, func() bool { return testutil.ToFloat64(dropped)-before >= 1 }, time.Second, 5*time.Millisecond)
	close(release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not drain")
	}

	drops := int(testutil.ToFloat64(dropped) - before)
	assert.Equal(t, 10, drops+int(atomic.LoadInt32(&got)))
	var warned int
	for _, e := range hook.AllEntries() {
		if e.Message == "webhook queue full, route event dropped" {
			warned++
			assert.Equal(t, int64(4), e.Data["route_id"])
		}
	}
	assert.Equal(t, drops, warned)
}
