package metrics

import (
	"net/http"
	_ "net/http/pprof"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qaconsole",
		Subsystem: "eventlog",
		Name:      "events_ingested_total",
		Help:      "Total wallet events appended to the ingestion channel",
	}, []string{"event_type"})

	ResolverLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qaconsole",
		Subsystem: "resolver",
		Name:      "lookups_total",
		Help:      "Status resolutions answered, partitioned by the source that answered",
	}, []string{"source"})

	ResolverUnknown = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qaconsole",
		Subsystem: "resolver",
		Name:      "unknown_total",
		Help:      "Resolutions degraded to unknown after a failed or missing source",
	})

	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qaconsole",
		Subsystem: "resolver",
		Name:      "cache_evictions_total",
		Help:      "Status cache entries evicted by the LRU bound",
	})

	WalletStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qaconsole",
		Subsystem: "registry",
		Name:      "wallet_starts_total",
		Help:      "Wallet start attempts by outcome",
	}, []string{"result"})

	AddressOverwrites = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qaconsole",
		Subsystem: "addressindex",
		Name:      "cross_wallet_overwrites_total",
		Help:      "Address index writes that reassigned an address to a different wallet",
	})
)

func StartPromServer(logger *zap.Logger, port string) {
	logger.Info("serving prom stats on " + port)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(port, nil); err != nil {
			logger.Error("prom server stopped", zap.Error(err))
		}
	}()
}
