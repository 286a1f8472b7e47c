// Command registryd boots a shard registry with the default hot/cold
// processor factories wired in, loads its configuration the way the
// teacher's daemons do (YAML + SHARDREGISTRY_ env overlay), and serves
// until it receives SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notyesbut/shardregistry/internal/config"
	"github.com/notyesbut/shardregistry/internal/logging"
	"github.com/notyesbut/shardregistry/internal/persistence"
	"github.com/notyesbut/shardregistry/internal/record"
	"github.com/notyesbut/shardregistry/internal/registry"
)

func main() {
	cfgPath := flag.String("config", "", "path to a registry config YAML file")
	dataPath := flag.String("data", "", "BuntDB data file path (\":memory:\" if empty)")
	flag.Parse()

	logging.SetLevel(os.Getenv("SHARDREGISTRY_LOG_LEVEL"))
	log := logging.For("registryd", nil)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.WithField("err", err.Error()).Fatal("failed to load registry configuration")
	}

	store, err := persistence.NewDefault(*dataPath)
	if err != nil {
		log.WithField("err", err.Error()).Fatal("failed to open persistence store")
	}

	reg := registry.New(cfg,
		registry.WithMetrics(prometheus.DefaultRegisterer),
		registry.WithPersistence(store),
	)
	reg.RegisterDefaultFactories()

	seedDefaultProcessors(reg, log)

	reg.StartMaintenance()
	reg.StartClassifier()
	reg.StartRetentionSweep()

	log.Info("registry started")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), cfg.DrainGracePeriod)
	defer cancel()
	if err := reg.Shutdown(shCtx); err != nil {
		log.WithField("err", err.Error()).Error("shutdown did not complete cleanly")
	}
}

// seedDefaultProcessors registers one hot and one cold processor per
// domain so the daemon is immediately queryable after boot.
func seedDefaultProcessors(reg *registry.Registry, log logging.Logger) {
	domains := []record.Domain{record.DomainUser, record.DomainChat, record.DomainStats, record.DomainLogs}
	for _, d := range domains {
		if _, err := reg.RegisterProcessor(registry.RegisterInput{Domain: d, Tier: record.TierHot, Config: config.DefaultHot()}); err != nil {
			log.WithField("domain", string(d)).WithField("err", err.Error()).Error("failed to seed hot processor")
		}
		if _, err := reg.RegisterProcessor(registry.RegisterInput{Domain: d, Tier: record.TierCold, Config: config.DefaultCold()}); err != nil {
			log.WithField("domain", string(d)).WithField("err", err.Error()).Error("failed to seed cold processor")
		}
	}
}
