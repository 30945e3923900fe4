package outbox

import (
	"time"
	"unicode/utf8"
)

// retryDelay is 1s doubled per failed attempt, capped at MaxBackoff, plus up
// to JitterMax of random spread.
func (o *RelayOptions) retryDelay(attempts int) time.Duration {
	if attempts <= 0 {
		return 0
	}
	d := o.MaxBackoff
	if attempts < 32 {
		if step := time.Second << (attempts - 1); step < d {
			d = step
		}
	}
	if o.JitterMax > 0 && o.Rand != nil {
		d += time.Duration(o.Rand.Int63n(int64(o.JitterMax) + 1)) //nolint:gosec
	}
	return d
}

// lastError is err's message cut to at most maxBytes on a rune boundary.
func lastError(err error, maxBytes int) string {
	if err == nil || maxBytes <= 0 {
		return ""
	}
	s := err.Error()
	if len(s) <= maxBytes {
		return s
	}
	s = s[:maxBytes]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
