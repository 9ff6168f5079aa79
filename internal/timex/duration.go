// Package timex holds time helpers shared by config loading and schedulers.
package timex

import (
	"encoding/json"
	"fmt"
	"time"
	_ "time/tzdata"
)

// Duration is a time.Duration that unmarshals from JSON either as a Go
// duration string ("90s", "6h") or as integer nanoseconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
}

// Pacific is the zone used for user-facing timestamps. It falls back to a
// fixed UTC-8 offset when the tz database is unavailable.
func Pacific() *time.Location {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		return time.FixedZone("PST", -8*60*60)
	}
	return loc
}
