package rounds

import (
	"log"

	"github.com/dag-upb/ts-arena-core/internal/duration"
)

// Resolution is one of the three continuous-aggregate granularities exposed
// by the time-series views this system reads from.
type Resolution string

const (
	Resolution15Min Resolution = "15min"
	Resolution1Hour Resolution = "1h"
	Resolution1Day  Resolution = "1d"
)

// ViewName returns the concrete relation name for a resolution, e.g.
// "time_series_data_15min".
func (r Resolution) ViewName() string {
	return "time_series_data_" + string(r)
}

// ResolveFrequency maps a round/definition frequency to a resolution,
// defaulting to 1h with a logged warning for any frequency that doesn't
// match one of the three known granularities exactly.
func ResolveFrequency(freq duration.Duration) Resolution {
	switch freq.Seconds() {
	case 15 * 60:
		return Resolution15Min
	case 3600:
		return Resolution1Hour
	case 86400:
		return Resolution1Day
	default:
		log.Printf("[Rounds] WARNING: unrecognized frequency %s, defaulting resolution to 1h", freq.RenderISO8601())
		return Resolution1Hour
	}
}
