package outbox

import (
	"cmp"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

type RelayOptions struct {
	// PollInterval is the pause between Run's drain-and-prune cycles.
	PollInterval time.Duration
	BatchSize    int
	// LockTTL is how long a claim is honoured before another relay may take
	// the message over.
	LockTTL     time.Duration
	MaxAttempts int
	MaxBackoff  time.Duration
	JitterMax   time.Duration
	// LastErrorMaxLen bounds the dispatch error kept in last_error.
	LastErrorMaxLen int
	DispatchTimeout time.Duration
	// Retention is how long published rows are kept; zero disables pruning.
	Retention time.Duration

	Logger *logrus.Entry
	Rand   *rand.Rand
}

func (o *RelayOptions) setDefaults() {
	o.PollInterval = cmp.Or(o.PollInterval, time.Second)
	o.BatchSize = cmp.Or(o.BatchSize, 100)
	o.LockTTL = cmp.Or(o.LockTTL, time.Minute)
	o.MaxAttempts = cmp.Or(o.MaxAttempts, 25)
	o.MaxBackoff = cmp.Or(o.MaxBackoff, time.Minute)
	o.JitterMax = cmp.Or(o.JitterMax, 200*time.Millisecond)
	o.LastErrorMaxLen = cmp.Or(o.LastErrorMaxLen, 2048)
	o.DispatchTimeout = cmp.Or(o.DispatchTimeout, 30*time.Second)
	if o.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		o.Logger = logrus.NewEntry(l)
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec
	}
}
