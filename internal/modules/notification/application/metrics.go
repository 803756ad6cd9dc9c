package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var notificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "notifications_created_total",
	Help: "Total number of notifications created.",
}, []string{"type"})
