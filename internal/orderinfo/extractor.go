// Package orderinfo mines flag details out of order and addon configuration.
package orderinfo

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"flagroutes/internal/jsoncfg"
	"flagroutes/internal/metrics"
	"flagroutes/internal/model"
	"flagroutes/internal/store"
)

// Flag info labels produced from order-level configuration.
const (
	LabelUSFlags  = "US Flags"
	LabelFlagType = "Flag Type"
	LabelFlagSize = "Flag Size"
)

const instructionsKey = "service_instructions"

// rule copies the first present key into label.
type rule struct {
	keys  []string
	label string
}

var orderRules = []rule{
	{keys: []string{"us_flag_quantity", "quantity"}, label: LabelUSFlags},
	{keys: []string{"flag_type"}, label: LabelFlagType},
	{keys: []string{"flag_size"}, label: LabelFlagSize},
}

// addonRule copies key into "<addon title><suffix>".
type addonRule struct {
	key    string
	suffix string
}

var addonRules = []addonRule{
	{key: "flag_type", suffix: " Type"},
	{key: "quantity", suffix: " Qty"},
}

// Source is the slice of store.Store the extractor reads.
type Source interface {
	GetOrder(ctx context.Context, orderID int64) (model.Order, error)
	OrderAddons(ctx context.Context, orderID int64) ([]model.Addon, error)
}

type Extractor struct {
	src Source
	log logrus.FieldLogger
}

func NewExtractor(src Source, log logrus.FieldLogger) *Extractor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Extractor{src: src, log: log}
}

// Extract never fails: an absent id, a missing order, or any error while
// reading or decoding yields model.EmptyOrderFlagDetail.
func (e *Extractor) Extract(ctx context.Context, orderID int64) (d model.OrderFlagDetail) {
	if orderID <= 0 {
		return model.EmptyOrderFlagDetail()
	}
	defer func() {
		if r := recover(); r != nil {
			e.fail(orderID, "panic", fmt.Errorf("%v", r))
			d = model.EmptyOrderFlagDetail()
		}
	}()

	o, err := e.src.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		e.log.WithField("order_id", orderID).Debug("order not found")
		return model.EmptyOrderFlagDetail()
	}
	if err != nil {
		e.fail(orderID, "storage", err)
		return model.EmptyOrderFlagDetail()
	}
	var cfg map[string]any
	if o.Config != "" {
		if cfg, err = jsoncfg.Decode(o.Config); err != nil {
			e.fail(orderID, "decode", err)
			return model.EmptyOrderFlagDetail()
		}
	}
	addons, err := e.src.OrderAddons(ctx, orderID)
	if err != nil {
		e.fail(orderID, "storage", err)
		return model.EmptyOrderFlagDetail()
	}
	for i := range addons {
		if parsed, ok := jsoncfg.Parse(addons[i].Config); ok {
			addons[i].Parsed = parsed
		}
	}

	d = model.EmptyOrderFlagDetail()
	d.Order = &o
	d.Addons = addons
	d.ServiceInstructions, d.FlagInfo = Mine(cfg, addons)
	return d
}

func (e *Extractor) fail(orderID int64, reason string, err error) {
	metrics.ExtractionFailures.WithLabelValues(reason).Inc()
	e.log.WithError(err).WithFields(logrus.Fields{"order_id": orderID, "reason": reason}).
		Warn("order detail extraction failed; using empty detail")
}

// Mine applies the extraction rules to a decoded order configuration and to
// addons whose Parsed config is set. Addons are processed in slice order and a
// later addon overwrites an earlier one's label.
func Mine(cfg map[string]any, addons []model.Addon) (string, model.FlagInfo) {
	info := model.FlagInfo{}
	var instructions string
	if v, ok := jsoncfg.Value(cfg, instructionsKey); ok {
		instructions, _ = jsoncfg.Scalar(v)
	}
	for _, r := range orderRules {
		for _, k := range r.keys {
			if v, ok := jsoncfg.Value(cfg, k); ok {
				info[r.label] = v
				break
			}
		}
	}
	for _, a := range addons {
		if a.Parsed == nil {
			continue
		}
		for _, r := range addonRules {
			if v, ok := jsoncfg.Value(a.Parsed, r.key); ok {
				info[a.Title+r.suffix] = v
			}
		}
	}
	return instructions, info
}
