// Package flags rolls a roster's flag info into route totals.
package flags

import (
	"fmt"
	"math"
	"strings"

	"flagroutes/internal/model"
)

// Options tunes the aggregation.
type Options struct {
	// AddonQuantitiesAdditive adds flag-titled addon quantities on top of the
	// "US Flag" flag-info values, so a client carrying both is counted twice.
	// When false, addon quantities only count for clients without a "US Flag" entry.
	AddonQuantitiesAdditive bool `yaml:"addonQuantitiesAdditive"`
}

func DefaultOptions() Options {
	return Options{AddonQuantitiesAdditive: true}
}

// Summarize aggregates with DefaultOptions.
func Summarize(clients []model.EnrichedClient) model.RouteFlagSummary {
	return DefaultOptions().Summarize(clients)
}

func (o Options) Summarize(clients []model.EnrichedClient) model.RouteFlagSummary {
	s := model.RouteFlagSummary{FlagTypes: map[string]int{}, FlagSizes: map[string]int{}}
	for _, c := range clients {
		counted := false
		for k, v := range c.FlagInfo {
			key := strings.ToLower(k)
			if strings.Contains(key, "us flag") {
				s.TotalUSFlags += Int(v)
				counted = true
			}
			if v == nil {
				continue
			}
			if strings.Contains(key, "type") {
				s.FlagTypes[fmt.Sprint(v)]++
			}
			if strings.Contains(key, "size") {
				s.FlagSizes[fmt.Sprint(v)]++
			}
		}
		if counted && !o.AddonQuantitiesAdditive {
			continue
		}
		for _, a := range c.Addons {
			if !strings.Contains(strings.ToLower(a.Title), "flag") {
				continue
			}
			if q, ok := addonQuantity(a); ok {
				s.TotalUSFlags += q
			}
		}
	}
	return s
}

// addonQuantity prefers the quantity column and falls back to the parsed config.
func addonQuantity(a model.Addon) (int, bool) {
	if a.Quantity != nil {
		return int(*a.Quantity), true
	}
	if v, ok := a.Parsed["quantity"]; ok && v != nil {
		return Int(v), true
	}
	return 0, false
}

// Int coerces a flag-info value to an integer. Strings contribute their
// leading integer ("12 flags" is 12); anything non-numeric is 0.
func Int(v any) int {
	switch t := v.(type) {
	case int64:
		return int(t)
	case int:
		return t
	case float64:
		switch {
		case math.IsNaN(t):
			return 0
		case t >= math.MaxInt:
			return math.MaxInt
		case t <= math.MinInt:
			return math.MinInt
		}
		return int(t)
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		return leadingInt(t)
	}
	return 0
}

func leadingInt(s string) int {
	s = strings.TrimLeft(s, " \t\n\r\v\f")
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	n := 0
	for i := 0; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		if n > (math.MaxInt-9)/10 {
			break
		}
		n = n*10 + int(s[i]-'0')
	}
	if neg {
		return -n
	}
	return n
}
