package events

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flagroutes/internal/metrics"
	"flagroutes/internal/model"
)

func receive(t *testing.T, ch chan model.RouteEvent) model.RouteEvent {
	t.Helper()
	select {
	case got := <-ch:
		return got
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	return model.RouteEvent{}
}

func TestMemoryPublishSubscribe(t *testing.T) {
	b := NewMemory()
	route := b.Subscribe(7)
	all := b.Subscribe(AllRoutes)
	other := b.Subscribe(8)

	evt := model.RouteEvent{ID: "e1", Type: model.EventClientAssigned, RouteID: 7, ClientID: 3}
	require.NoError(t, b.Publish(context.Background(), evt))

	assert.Equal(t, evt, receive(t, route))
	assert.Equal(t, evt, receive(t, all))
	select {
	case got := <-other:
		t.Fatalf("unexpected event on other route: %+v", got)
	default:
	}

	b.Unsubscribe(7, route)
	_, ok := <-route
	assert.False(t, ok, "channel closed after unsubscribe")
	b.Unsubscribe(7, route) // second unsubscribe is a no-op
}

func TestMemoryDropsWhenFull(t *testing.T) {
	log, hook := test.NewNullLogger()
	b := NewMemory().WithLogger(log)
	ch := b.Subscribe(1)
	dropped := metrics.EventsDropped.WithLabelValues("memory")
	before := testutil.ToFloat64(dropped)
	for i := 0; i < 20; i++ {
		require.NoError(t, b.Publish(context.Background(), model.RouteEvent{RouteID: 1, Type: model.EventClientAssigned}))
	}
	assert.Len(t, ch, cap(ch))
	assert.Equal(t, float64(20-cap(ch)), testutil.ToFloat64(dropped)-before)
	require.Len(t, hook.Entries, 20-cap(ch))
	assert.Equal(t, "subscriber buffer full, route event dropped", hook.LastEntry().Message)
	assert.Equal(t, int64(1), hook.LastEntry().Data["route_id"])
}

func TestRedisChannelNames(t *testing.T) {
	b, err := NewRedis("redis://localhost:6379/0", "flagroutes:", nil)
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, "flagroutes:route:12", b.channel(12))
	assert.Equal(t, "flagroutes:route:all", b.channel(AllRoutes))

	_, err = NewRedis("://nope", "", nil)
	assert.Error(t, err)
}

func TestRedisRoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set; skipping redis broker test")
	}
	b, err := NewRedis(url, "test:", nil)
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, b.Ping(context.Background()))

	ch := b.Subscribe(AllRoutes)
	defer b.Unsubscribe(AllRoutes, ch)
	evt := model.RouteEvent{ID: "e2", Type: model.EventRouteCreated, RouteID: 4, TS: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, b.Publish(context.Background(), evt))
	got := receive(t, ch)
	assert.Equal(t, evt.ID, got.ID)
	assert.True(t, evt.TS.Equal(got.TS))
}
