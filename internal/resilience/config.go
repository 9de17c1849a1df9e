package resilience

import (
	"time"

	"github.com/sells-group/assessment-cli/internal/config"
)

// FromConfig converts fetch config values to a Policy. Zero or negative
// values keep the defaults.
func FromConfig(cfg config.FetchConfig) Policy {
	p := DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	setMillis(&p.ThrottleBase, cfg.ThrottleBaseMs)
	setMillis(&p.ThrottleStep, cfg.ThrottleStepMs)
	setMillis(&p.FlatDelay, cfg.FlatDelayMs)
	setMillis(&p.NetworkBase, cfg.NetworkBaseMs)
	setMillis(&p.NetworkStep, cfg.NetworkStepMs)
	return p
}

func setMillis(d *time.Duration, ms int) {
	if ms > 0 {
		*d = time.Duration(ms) * time.Millisecond
	}
}
