package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.mongodb.org/mongo-driver/event"
)

var (
	MongoConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mongo_pool_connections",
			Help: "Connections currently open in the MongoDB pool",
		},
	)

	MongoConnectionsCheckedOut = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mongo_pool_connections_in_use",
			Help: "Connections currently checked out of the MongoDB pool",
		},
	)

	MongoPoolEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mongo_pool_events_total",
			Help: "MongoDB connection pool events by type",
		},
		[]string{"type"},
	)
)

// MongoPoolMonitor feeds pool events into the connection gauges.
func MongoPoolMonitor() *event.PoolMonitor {
	return &event.PoolMonitor{
		Event: func(evt *event.PoolEvent) {
			MongoPoolEvents.WithLabelValues(evt.Type).Inc()
			switch evt.Type {
			case event.ConnectionCreated:
				MongoConnections.Inc()
			case event.ConnectionClosed:
				MongoConnections.Dec()
			case event.GetSucceeded:
				MongoConnectionsCheckedOut.Inc()
			case event.ConnectionReturned:
				MongoConnectionsCheckedOut.Dec()
			}
		},
	}
}
