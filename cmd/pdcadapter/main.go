// Command pdcadapter connects to one or more synchrophasor devices,
// decodes their data streams, and maps measurements into batches keyed
// by a pre-provisioned measurement catalog.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/gridmetric/phasoradapter/configcache"
	"github.com/gridmetric/phasoradapter/configsource"
	"github.com/gridmetric/phasoradapter/mapper"
	"github.com/gridmetric/phasoradapter/metrics"
)

const appVersion = "dev"

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := setupLogging(cfg.LogLevel)
	logger.WithFields(log.Fields{
		"version":       appVersion,
		"adapter_count": len(cfg.Adapters),
	}).Info("starting phasor adapter")

	source, err := configsource.OpenSQLiteSource(cfg.Database.DSN)
	if err != nil {
		logger.WithError(err).Fatal("failed to open configuration source")
	}
	defer source.Close()

	cache, err := configcache.New(cfg.ConfigCache.Dir, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open configuration cache")
	}
	defer cache.Close()

	recorder := metrics.New()
	sink := NewLoggingSink(logger)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
		logger.WithField("address", addr).Info("starting metrics server")
		http.Handle("/metrics", promhttp.Handler())
		http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.WithError(err).Fatal("metrics server failed")
		}
	}()

	mappers := make([]*mapper.Mapper, 0, len(cfg.Adapters))
	for _, a := range cfg.Adapters {
		adapterLogger := logger.WithField("adapter", a.Name).Logger
		m := mapper.New(a.Name, a.Address, source, cache, sink, recorder, adapterLogger)

		if err := m.Initialize(a.ConnectionString); err != nil {
			logger.WithError(err).WithField("adapter", a.Name).Error("failed to initialize adapter, skipping")
			continue
		}
		m.LogConfiguration()
		if err := m.AttemptConnection(); err != nil {
			logger.WithError(err).WithField("adapter", a.Name).Warn("initial connection attempt failed, will retry")
		}
		mappers = append(mappers, m)
	}

	if len(mappers) == 0 {
		logger.Fatal("no adapters initialized successfully")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	for _, m := range mappers {
		m.Close()
	}
}
