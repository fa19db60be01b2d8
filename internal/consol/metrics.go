package consol

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheMetricsMu          sync.Mutex
	cacheMetricsInitialized bool

	cacheHitCounter   *prometheus.CounterVec
	cacheMissCounter  *prometheus.CounterVec
	runBuildHistogram *prometheus.HistogramVec
	cacheMetricsError error
)

// SetupMetrics registers Prometheus metrics of the consolidation cache and builds.
// The registration is performed once and subsequent calls are ignored.
func SetupMetrics(reg prometheus.Registerer) error {
	cacheMetricsMu.Lock()
	defer cacheMetricsMu.Unlock()
	if cacheMetricsInitialized {
		return cacheMetricsError
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	cacheHitCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_consol_cache_hits_total",
		Help: "Number of cache hits for consolidation runs.",
	}, []string{"company"})
	cacheMissCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_consol_cache_miss_total",
		Help: "Number of cache misses for consolidation runs.",
	}, []string{"company"})
	runBuildHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_consol_build_duration_seconds",
		Help:    "Duration required to compute a consolidation run.",
		Buckets: prometheus.DefBuckets,
	}, []string{"company"})

	for _, collector := range []prometheus.Collector{cacheHitCounter, cacheMissCounter, runBuildHistogram} {
		if err := reg.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				switch c := already.ExistingCollector.(type) {
				case *prometheus.CounterVec:
					if collector == cacheHitCounter {
						cacheHitCounter = c
					} else {
						cacheMissCounter = c
					}
				case *prometheus.HistogramVec:
					runBuildHistogram = c
				default:
					cacheMetricsError = fmt.Errorf("consol metrics: unexpected collector type %T", c)
				}
				continue
			}
			cacheMetricsError = err
			cacheHitCounter = nil
			cacheMissCounter = nil
			runBuildHistogram = nil
			cacheMetricsInitialized = true
			return cacheMetricsError
		}
	}

	cacheMetricsInitialized = true
	return cacheMetricsError
}

func recordCacheHit(companyID int64) {
	if cacheHitCounter == nil {
		return
	}
	cacheHitCounter.WithLabelValues(strconv.FormatInt(companyID, 10)).Inc()
}

func recordCacheMiss(companyID int64) {
	if cacheMissCounter == nil {
		return
	}
	cacheMissCounter.WithLabelValues(strconv.FormatInt(companyID, 10)).Inc()
}

func observeBuildDuration(companyID int64, duration time.Duration) {
	if runBuildHistogram == nil {
		return
	}
	runBuildHistogram.WithLabelValues(strconv.FormatInt(companyID, 10)).Observe(duration.Seconds())
}
