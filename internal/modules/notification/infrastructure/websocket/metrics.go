package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultDelivered     = "delivered"
	resultDropped       = "dropped"
	resultNoConnections = "no_connections"
)

var (
	realtimeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_connections",
		Help: "Number of joined realtime connections.",
	})

	realtimeDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_deliveries_total",
		Help: "Realtime frames handed to connections, by result.",
	}, []string{"result"})
)
