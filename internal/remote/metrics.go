package remote

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalRequests tracks round trips to the analysis service by operation.
	TotalRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webaudit_remote_requests_total",
		Help: "The total number of requests sent to the analysis service.",
	}, []string{"operation"})
	// TotalRequestErrors tracks round trips that resulted in an error.
	TotalRequestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webaudit_remote_request_errors_total",
		Help: "The total number of failed analysis service requests.",
	}, []string{"operation"})
)
