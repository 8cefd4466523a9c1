// Package metrics implements ports.MetricsSink via
// prometheus/client_golang, grounded on the pack's own
// simulation/metrics.go (package-level collectors registered once in
// init, mirroring its tick-latency/goroutine-count gauges) rather than
// a hand-rolled counter map.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"samedaydispatch/internal/timeutil"
)

var (
	simulationTicksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "samedaydispatch_simulation_ticks_total",
		Help: "Number of 1-second simulation ticks processed.",
	})

	packagesDeliveredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "samedaydispatch_packages_delivered_total",
		Help: "Number of packages delivered, by truck id.",
	}, []string{"truck_id"})

	packagesLateTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "samedaydispatch_packages_late_total",
		Help: "Number of packages delivered after their deadline, by truck id.",
	}, []string{"truck_id"})

	fleetMileageMiles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "samedaydispatch_fleet_mileage_miles",
		Help: "Cumulative miles driven, by truck id.",
	}, []string{"truck_id"})
)

func init() {
	prometheus.MustRegister(simulationTicksTotal, packagesDeliveredTotal, packagesLateTotal, fleetMileageMiles)
}

// Sink is the package-level ports.MetricsSink backed by the
// collectors above.
type Sink struct{}

func NewSink() *Sink { return &Sink{} }

func (s *Sink) ObserveTick(at timeutil.TimeOfDay) {
	simulationTicksTotal.Inc()
}

func (s *Sink) ObserveDelivery(truckID int, late bool) {
	label := prometheus.Labels{"truck_id": truckIDLabel(truckID)}
	packagesDeliveredTotal.With(label).Inc()
	if late {
		packagesLateTotal.With(label).Inc()
	}
}

func (s *Sink) ObserveMileage(truckID int, miles float64) {
	fleetMileageMiles.With(prometheus.Labels{"truck_id": truckIDLabel(truckID)}).Add(miles)
}

func truckIDLabel(truckID int) string {
	return strconv.Itoa(truckID)
}
