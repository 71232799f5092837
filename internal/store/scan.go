package store

import (
	"fmt"
	"time"
)

// nullTime scans timestamps from any of the supported drivers. pgx and
// go-sql-driver/mysql (parseTime=true) hand back time.Time; sqlite may return
// the stored text when the column affinity does not convert it.
type nullTime struct {
	Time  time.Time
	Valid bool
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func (n *nullTime) Scan(v any) error {
	switch t := v.(type) {
	case nil:
		n.Time, n.Valid = time.Time{}, false
		return nil
	case time.Time:
		n.Time, n.Valid = t, true
		return nil
	case string:
		return n.parse(t)
	case []byte:
		return n.parse(string(t))
	case int64:
		n.Time, n.Valid = time.Unix(t, 0).UTC(), true
		return nil
	}
	return fmt.Errorf("store: cannot scan %T into time", v)
}

func (n *nullTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			n.Time, n.Valid = t, true
			return nil
		}
	}
	return fmt.Errorf("store: unrecognised time %q", s)
}

func (n nullTime) ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}
