// Package middleware contains the Gin middleware shared by the booking API.
//
// This file exposes Prometheus HTTP instrumentation. Labels use the
// registered route template, never the raw URL, so slot ids and dates in
// paths cannot explode cardinality. Contention answers (409 slot or hold
// conflicts, 410 expired holds) get their own counter because they are the
// headline signal for how often customers lose a race for a slot.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	httpContention = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_contention_responses_total",
			Help: "Requests answered 409 or 410 by route.",
		},
		[]string{"route", "status"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpContention)
}

// Metrics instruments every request. Mount /metrics separately with promhttp.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		route := routeOf(c)
		code := c.Writer.Status()
		status := strconv.Itoa(code)

		httpReqs.WithLabelValues(c.Request.Method, route, status).Inc()
		httpLat.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
		if code == http.StatusConflict || code == http.StatusGone {
			httpContention.WithLabelValues(route, status).Inc()
		}
	}
}
