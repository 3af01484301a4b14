// Package metrics holds the Prometheus collectors updated by heaps and bucket heaps.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bucketheap"

// Collector - Counters and gauges for one heap. Role tells whether the heap is a plain heap,
// the main bucket heap or the overflow heap of a bucket heap.
type Collector struct {
	BlockReads       prometheus.Counter
	BlockWrites      prometheus.Counter
	RecordsInserted  prometheus.Counter
	RecordsDeleted   prometheus.Counter
	OverflowAppended prometheus.Counter
	OverflowUnlinked prometheus.Counter
	Blocks           prometheus.Gauge
	registerer       prometheus.Registerer
}

// New - Returns a new Collector registered on registerer. If registerer is nil the collectors are
// registered on a private registry, i.e. values are maintained but never exposed. If registration fails
// nothing is left registered.
func New(registerer prometheus.Registerer, heapName, role string) (collector *Collector, err error) {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}

	labels := prometheus.Labels{"heap": heapName, "role": role}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	collector = &Collector{
		BlockReads:       counter("block_reads_total", "Number of blocks read from the data file."),
		BlockWrites:      counter("block_writes_total", "Number of blocks written to the data file."),
		RecordsInserted:  counter("records_inserted_total", "Number of records inserted."),
		RecordsDeleted:   counter("records_deleted_total", "Number of records deleted."),
		OverflowAppended: counter("overflow_nodes_appended_total", "Number of overflow blocks appended to the overflow file."),
		OverflowUnlinked: counter("overflow_nodes_unlinked_total", "Number of overflow blocks emptied and detached from a chain."),
		Blocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "blocks",
			Help:        "Number of blocks in the data file.",
			ConstLabels: labels,
		}),
		registerer: registerer,
	}

	for i, c := range collector.collectors() {
		if err = registerer.Register(c); err != nil {
			collector.unregister(i)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				err = fmt.Errorf("metrics for heap %s with role %s already registered", heapName, role)
			} else {
				err = fmt.Errorf("error while registering metrics: %s", err)
			}
			collector = nil
			return
		}
	}

	return
}

// Unregister - Removes all collectors from the registerer they were registered on, after which a Collector
// for the same heap and role can be registered again
func (C *Collector) Unregister() {
	C.unregister(len(C.collectors()))
}

// unregister - Removes the first n collectors
func (C *Collector) unregister(n int) {
	for _, c := range C.collectors()[:n] {
		C.registerer.Unregister(c)
	}
}

func (C *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		C.BlockReads,
		C.BlockWrites,
		C.RecordsInserted,
		C.RecordsDeleted,
		C.OverflowAppended,
		C.OverflowUnlinked,
		C.Blocks,
	}
}
