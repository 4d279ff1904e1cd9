package httpclient

import (
	"errors"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Default backoff policy: 500ms doubling to a 30s ceiling with ±20% jitter.
const (
	DefaultBaseDelay = 500 * time.Millisecond
	DefaultMaxDelay  = 30 * time.Second
	DefaultFactor    = 2.0
	DefaultJitter    = 0.2
)

// Backoff computes retry delays.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64 // fraction of the delay, 0.2 means ±20%

	// rand returns a value in [0, 1). nil uses math/rand/v2.
	rand func() float64
}

// DefaultBackoff returns the stock retry policy.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:   DefaultBaseDelay,
		Max:    DefaultMaxDelay,
		Factor: DefaultFactor,
		Jitter: DefaultJitter,
	}
}

func (b Backoff) withDefaults() Backoff {
	if b.Base <= 0 {
		b.Base = DefaultBaseDelay
	}
	if b.Max <= 0 {
		b.Max = DefaultMaxDelay
	}
	if b.Max < b.Base {
		b.Max = b.Base
	}
	if b.Factor < 1 {
		b.Factor = DefaultFactor
	}
	if b.Jitter < 0 || b.Jitter >= 1 {
		b.Jitter = DefaultJitter
	}
	return b
}

// Delay returns the sleep before retry number retry (0-based).
func (b Backoff) Delay(retry int) time.Duration {
	b = b.withDefaults()
	if retry < 0 {
		retry = 0
	}

	d := float64(b.Base) * math.Pow(b.Factor, float64(retry))
	if d > float64(b.Max) {
		d = float64(b.Max)
	}

	if b.Jitter > 0 {
		r := rand.Float64
		if b.rand != nil {
			r = b.rand
		}
		d *= 1 + b.Jitter*(2*r()-1)
	}
	return time.Duration(d)
}

// MaxRetryAfter caps server-supplied Retry-After hints.
const MaxRetryAfter = time.Hour

// RetryAfter parses a Retry-After header given as integer delta-seconds or an
// HTTP-date. Hints beyond MaxRetryAfter are clamped to it.
func RetryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil || errors.Is(err, strconv.ErrRange) {
		if secs < 0 {
			return 0, false
		}
		if err != nil || secs > int64(MaxRetryAfter/time.Second) {
			return MaxRetryAfter, true
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := min(t.Sub(now), MaxRetryAfter)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
