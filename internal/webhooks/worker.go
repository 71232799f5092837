// Package webhooks forwards route change events to external HTTP endpoints,
// such as the billing system's admin callbacks.
package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"flagroutes/internal/metrics"
	"flagroutes/internal/model"
)

type Config struct {
	URLs        []string `yaml:"urls"`
	Secret      string   `yaml:"secret"`
	MaxAttempts int      `yaml:"maxAttempts"`
	// QueueSize bounds events waiting behind a slow target. Overflow is
	// dropped and counted.
	QueueSize int `yaml:"queueSize"`
}

// Forwarder POSTs each event to every configured URL, retrying with
// exponential backoff. Events are delivered one at a time in arrival order.
type Forwarder struct {
	cfg     Config
	http    *http.Client
	log     logrus.FieldLogger
	backoff func(attempts int) time.Duration
}

func NewForwarder(cfg Config, log logrus.FieldLogger) *Forwarder {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	return &Forwarder{
		cfg:     cfg,
		http:    &http.Client{Timeout: 5 * time.Second},
		log:     log,
		backoff: nextBackoff,
	}
}

// Run drains events until ctx is done or the channel closes. The
// subscription is read without waiting on delivery so a slow target backs up
// into the forwarder's queue, not the broker's subscriber buffer.
func (f *Forwarder) Run(ctx context.Context, events <-chan model.RouteEvent) {
	queue := make(chan model.RouteEvent, f.cfg.QueueSize)
	go f.pump(ctx, events, queue)
	for evt := range queue {
		if ctx.Err() != nil {
			return
		}
		f.forward(ctx, evt)
	}
}

func (f *Forwarder) pump(ctx context.Context, events <-chan model.RouteEvent, queue chan<- model.RouteEvent) {
	defer close(queue)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			select {
			case queue <- evt:
			default:
				metrics.WebhookDeliveries.WithLabelValues("dropped").Add(float64(len(f.cfg.URLs)))
				f.log.WithFields(logrus.Fields{"event": evt.Type, "event_id": evt.ID, "route_id": evt.RouteID}).
					Warn("webhook queue full, route event dropped")
			}
		}
	}
}

func (f *Forwarder) forward(ctx context.Context, evt model.RouteEvent) {
	body, err := json.Marshal(evt)
	if err != nil {
		f.log.WithError(err).WithField("event", evt.Type).Error("encode webhook payload")
		return
	}
	for _, url := range f.cfg.URLs {
		err := f.deliver(ctx, url, evt.Type, body)
		metrics.WebhookDeliveries.WithLabelValues(metrics.Outcome(err)).Inc()
		if err != nil && ctx.Err() == nil {
			f.log.WithError(err).WithFields(logrus.Fields{"url": url, "event": evt.Type, "event_id": evt.ID}).
				Warn("webhook delivery abandoned")
		}
	}
}

func (f *Forwarder) deliver(ctx context.Context, url, eventType string, body []byte) error {
	var last error
	for attempt := 0; attempt < f.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(f.backoff(attempt - 1)):
			}
		}
		if last = f.post(ctx, url, eventType, body); last == nil {
			return nil
		}
	}
	return errors.Wrapf(last, "after %d attempts", f.cfg.MaxAttempts)
}

func (f *Forwarder) post(ctx context.Context, url, eventType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", eventType)
	if f.cfg.Secret != "" {
		req.Header.Set(SignatureHeader, SignHMAC(f.cfg.Secret, body))
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "post")
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
