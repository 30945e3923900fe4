package outbox

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	enqueued   *prometheus.CounterVec
	dispatched *prometheus.CounterVec
	dead       *prometheus.CounterVec
	pruned     *prometheus.CounterVec
}

var getMetrics = sync.OnceValue(func() *metrics {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wholesale",
			Subsystem: "outbox",
			Name:      name,
			Help:      help,
		}, labels)
	}
	return &metrics{
		enqueued:   counter("enqueued_total", "Messages written to an outbox table.", "table", "topic"),
		dispatched: counter("dispatched_total", "Delivery attempts by result.", "table", "topic", "result"),
		dead:       counter("dead_total", "Messages that ran out of attempts.", "table", "topic"),
		pruned:     counter("pruned_total", "Published messages deleted after retention.", "table"),
	}
})
