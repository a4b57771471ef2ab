package traversal

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	engineLabel  = "engine"
	channelLabel = "channel"
)

var (
	megatextureOccupied = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voxstream_megatexture_occupied_slots",
		Help: "The number of occupied megatexture slots.",
	}, []string{engineLabel, channelLabel})

	megatextureCapacity = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voxstream_megatexture_capacity_slots",
		Help: "The number of megatexture slots.",
	}, []string{engineLabel, channelLabel})

	tileRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxstream_tile_requests_total",
		Help: "The number of tile requests submitted.",
	}, []string{engineLabel})

	tileFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxstream_tile_failures_total",
		Help: "The number of tile requests that failed.",
	}, []string{engineLabel})

	tileStale = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxstream_tile_stale_total",
		Help: "The number of tile completions discarded as stale.",
	}, []string{engineLabel})

	tileCancellations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxstream_tile_cancellations_total",
		Help: "The number of in-flight tile requests cancelled.",
	}, []string{engineLabel})

	tileEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxstream_tile_evictions_total",
		Help: "The number of resident tiles evicted.",
	}, []string{engineLabel})

	tileDiscards = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxstream_tile_discards_total",
		Help: "The number of received tiles dropped for lack of a slot.",
	}, []string{engineLabel})

	updateLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "voxstream_update_latency",
		Help: "The time spent in one traversal update.",
	}, []string{engineLabel})
)

func instrumentOccupancy(engine, channel string, occupied, capacity int) {
	labels := prometheus.Labels{engineLabel: engine, channelLabel: channel}
	megatextureOccupied.With(labels).Set(float64(occupied))
	megatextureCapacity.With(labels).Set(float64(capacity))
}

func instrumentRequest(engine string) {
	tileRequests.With(prometheus.Labels{engineLabel: engine}).Inc()
}

func instrumentFailure(engine string) {
	tileFailures.With(prometheus.Labels{engineLabel: engine}).Inc()
}

func instrumentStale(engine string) {
	tileStale.With(prometheus.Labels{engineLabel: engine}).Inc()
}

func instrumentCancellation(engine string) {
	tileCancellations.With(prometheus.Labels{engineLabel: engine}).Inc()
}

func instrumentEviction(engine string) {
	tileEvictions.With(prometheus.Labels{engineLabel: engine}).Inc()
}

func instrumentDiscard(engine string) {
	tileDiscards.With(prometheus.Labels{engineLabel: engine}).Inc()
}

func instrumentUpdateLatency(engine string, start time.Time) {
	updateLatency.With(prometheus.Labels{engineLabel: engine}).Observe(time.Since(start).Seconds())
}

// uninstrument drops every series of a closed engine.
func uninstrument(engine string) {
	labels := prometheus.Labels{engineLabel: engine}
	megatextureOccupied.DeletePartialMatch(labels)
	megatextureCapacity.DeletePartialMatch(labels)
	for _, vec := range []*prometheus.CounterVec{
		tileRequests,
		tileFailures,
		tileStale,
		tileCancellations,
		tileEvictions,
		tileDiscards,
	} {
		vec.Delete(labels)
	}
	updateLatency.Delete(labels)
}
