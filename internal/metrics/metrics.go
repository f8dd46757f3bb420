// Package metrics declares the Prometheus collectors exposed on
// /metrics. Collectors are package-level so every component increments
// the same series without plumbing a registry around.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ddlarr_http_requests_total",
		Help: "HTTP requests served, by method, route and status code",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ddlarr_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	Searches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ddlarr_searches_total",
		Help: "Torznab searches served, by site",
	}, []string{"site"})

	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ddlarr_search_duration_seconds",
		Help:    "Time spent scraping and filtering one search",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	ReleasesReturned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ddlarr_releases_returned_total",
		Help: "Releases returned to automation clients",
	})

	PlaceholdersDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ddlarr_placeholders_dispatched_total",
		Help: "Placeholder files decoded and handed to a download client",
	})

	PlaceholderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ddlarr_placeholder_failures_total",
		Help: "Placeholder files moved to the failed directory, by reason",
	}, []string{"reason"})

	Downloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ddlarr_downloads_total",
		Help: "Download jobs reaching a terminal state, by outcome",
	}, []string{"outcome"})

	ActiveTransfers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ddlarr_active_transfers",
		Help: "Download subprocesses currently running",
	})
)
