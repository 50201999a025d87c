package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dashvault_saved_objects_requests_total",
	Help: "Saved-object operations by outcome; status is \"ok\" or the HTTP error code.",
}, []string{"operation", "status"})
