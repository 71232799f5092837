// Package address resolves the delivery address shown for a client.
package address

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"flagroutes/internal/jsoncfg"
	"flagroutes/internal/model"
	"flagroutes/internal/store"
)

// NotAvailable is returned when no address can be found.
const NotAvailable = "N/A"

// Source is the slice of store.Store the resolver reads.
type Source interface {
	LatestFlagOrder(ctx context.Context, clientID int64) (model.Order, error)
	ClientAddress(ctx context.Context, clientID int64) (model.PostalAddress, error)
}

type Resolver struct {
	src Source
}

func NewResolver(src Source) *Resolver {
	return &Resolver{src: src}
}

// Resolve returns the address for a client. The latest flag order's service
// address wins over its delivery address, then its generic address, then the
// client's own postal address. Storage failures are returned; missing rows are not.
func (r *Resolver) Resolve(ctx context.Context, clientID int64) (string, error) {
	o, err := r.src.LatestFlagOrder(ctx, clientID)
	switch {
	case err == nil:
		if cfg, ok := jsoncfg.Parse(o.Config); ok {
			if s, ok := FromConfig(cfg); ok {
				return s, nil
			}
		}
	case !errors.Is(err, store.ErrNotFound):
		return "", errors.Wrapf(err, "resolve address of client %d", clientID)
	}

	a, err := r.src.ClientAddress(ctx, clientID)
	if errors.Is(err, store.ErrNotFound) {
		return NotAvailable, nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "resolve address of client %d", clientID)
	}
	if s := FromPostal(a); s != "" {
		return s, nil
	}
	return NotAvailable, nil
}

// FromConfig picks the address out of an order configuration. Tier keys
// count when present with a non-null value, even an empty one; only the
// joined service parts are filtered for emptiness.
func FromConfig(cfg map[string]any) (string, bool) {
	if svc, ok := present(cfg, "service_address"); ok {
		parts := make([]string, 0, 3)
		if svc != "" {
			parts = append(parts, svc)
		}
		for _, k := range []string{"service_city", "service_zip_code"} {
			if v, ok := jsoncfg.String(cfg, k); ok {
				parts = append(parts, v)
			}
		}
		return strings.Join(parts, ", "), true
	}
	for _, k := range []string{"delivery_address", "address"} {
		if v, ok := present(cfg, k); ok {
			return v, true
		}
	}
	return "", false
}

func present(cfg map[string]any, key string) (string, bool) {
	v, ok := jsoncfg.Value(cfg, key)
	if !ok {
		return "", false
	}
	s, _ := jsoncfg.Scalar(v)
	return s, true
}

// FromPostal joins the non-empty stored address fields.
func FromPostal(a model.PostalAddress) string {
	parts := make([]string, 0, 5)
	for _, p := range []string{a.Address1, a.Address2, a.City, a.State, a.Postcode} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
