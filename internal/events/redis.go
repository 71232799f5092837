package events

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"flagroutes/internal/metrics"
	"flagroutes/internal/model"
)

// Redis implements Broker over Redis Pub/Sub so every API replica sees
// changes made through any other.
type Redis struct {
	rdb    *redis.Client
	prefix string
	log    logrus.FieldLogger

	mu  sync.Mutex
	pss map[chan model.RouteEvent]*redis.PubSub
}

// NewRedis connects using a redis:// URL. Channels are named <prefix>route:<id>.
func NewRedis(url, prefix string, log logrus.FieldLogger) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Redis{rdb: redis.NewClient(opt), prefix: prefix, log: log, pss: map[chan model.RouteEvent]*redis.PubSub{}}, nil
}

func (b *Redis) Subscribe(routeID int64) chan model.RouteEvent {
	ch := make(chan model.RouteEvent, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.channel(routeID))
	// initial consume to ensure subscription
	if _, err := ps.Receive(ctx); err != nil {
		b.log.WithError(err).WithField("route_id", routeID).Warn("redis subscribe failed")
	}
	b.mu.Lock()
	b.pss[ch] = ps
	b.mu.Unlock()
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt model.RouteEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				b.log.WithError(err).Debug("dropping undecodable route event")
				continue
			}
			select {
			case ch <- evt:
			default:
				metrics.EventsDropped.WithLabelValues("redis").Inc()
				b.log.WithFields(logrus.Fields{"event": evt.Type, "event_id": evt.ID, "route_id": evt.RouteID}).
					Warn("subscriber buffer full, route event dropped")
			}
		}
	}()
	return ch
}

// Unsubscribe closes the Pub/Sub; ch is closed once its reader goroutine exits.
func (b *Redis) Unsubscribe(_ int64, ch chan model.RouteEvent) {
	b.mu.Lock()
	ps := b.pss[ch]
	delete(b.pss, ch)
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
}

func (b *Redis) Publish(ctx context.Context, evt model.RouteEvent) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	data, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "encode route event")
	}
	pipe := b.rdb.Pipeline()
	pipe.Publish(ctx, b.channel(evt.RouteID), data)
	if evt.RouteID != AllRoutes {
		pipe.Publish(ctx, b.channel(AllRoutes), data)
	}
	_, err = pipe.Exec(ctx)
	return errors.Wrap(err, "publish route event")
}

func (b *Redis) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

func (b *Redis) Close() error { return b.rdb.Close() }

func (b *Redis) channel(routeID int64) string {
	if routeID == AllRoutes {
		return b.prefix + "route:all"
	}
	return b.prefix + "route:" + strconv.FormatInt(routeID, 10)
}
