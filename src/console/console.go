package console

import (
	"context"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hathorqa/qaconsole/src/addressindex"
	"github.com/hathorqa/qaconsole/src/common"
	"github.com/hathorqa/qaconsole/src/eventlog"
	"github.com/hathorqa/qaconsole/src/hathorapi"
	"github.com/hathorqa/qaconsole/src/metrics"
	"github.com/hathorqa/qaconsole/src/model"
	"github.com/hathorqa/qaconsole/src/postgres"
	"github.com/hathorqa/qaconsole/src/registry"
	"github.com/hathorqa/qaconsole/src/resolver"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	supervisorInterval = 10 * time.Second
	archiveBacklog     = 256
)

type Config struct {
	common.CommonConfig `yaml:",inline"`

	ListenPort      string `yaml:"listen_port"`
	DaemonAddress   string `yaml:"daemon_address"`
	Network         string `yaml:"network"`
	FundingWalletID string `yaml:"funding_wallet"`
	TestWalletID    string `yaml:"test_wallet"`
	Mock            bool   `yaml:"use_mock"`
	LogFile         string `yaml:"log_file"`
}

func configureRedis(addr string) (*redis.Client, error) {
	rd := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0, // use default DB
	})
	if err := rd.Ping(context.Background()); err.Err() != nil {
		return nil, errors.Wrap(err.Err(), "failed to ping redis")
	}
	return rd, nil
}

func ListenAndServe(cfg Config) error {
	logger := common.ConfigureZap(zap.InfoLevel)
	if cfg.LogFile != "" {
		fileLogger, cleanup, err := common.ConfigureZapWithFile(zap.InfoLevel, cfg.LogFile)
		if err != nil {
			return errors.Wrap(err, "failed opening log file")
		}
		defer cleanup()
		logger = fileLogger
	}
	if cfg.PromPort != "" {
		metrics.StartPromServer(logger, cfg.PromPort)
	}

	log := eventlog.NewLog(logger)
	if cfg.PostgresConfig != "" {
		postgres.ConfigurePostgres(cfg.PostgresConfig)
		log.AddSink(eventlog.NewBufferedSink(logger, archiveBacklog, func(ev *eventlog.WalletEvent) {
			if err := postgres.PutWalletEvent(context.Background(), ev); err != nil {
				logger.Warn("failed archiving wallet event", zap.Uint64("seq", ev.Seq), zap.Error(err))
			}
		}))
	}

	var store addressindex.KeyedStore = addressindex.NewMemoryStore()
	if cfg.RedisAddress != "" {
		rd, err := configureRedis(cfg.RedisAddress)
		if err != nil {
			return errors.Wrap(err, "failed connecting to redis")
		}
		store = addressindex.NewRedisStore(rd)
	}
	index := addressindex.NewIndex(store, logger)

	var connector hathorapi.Connector
	if cfg.Mock {
		connector = hathorapi.NewMockConnector()
	} else {
		connector = hathorapi.NewDaemonConnector(cfg.DaemonAddress, logger)
	}

	reg := registry.NewRegistry(connector, log, index, logger)
	cache := resolver.NewStatusCache()
	res := resolver.NewResolver(log, cache, reg, logger)
	sup := registry.NewSupervisor(reg, logger)
	reg.SetChangeHook(sup.Kick)

	designateSlot(reg, sup, logger, "funding", cfg.FundingWalletID, cfg.Network)
	designateSlot(reg, sup, logger, "test", cfg.TestWalletID, cfg.Network)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx, supervisorInterval)

	if cfg.HealthCheckPort != "" {
		logger.Info("enabling health check on port " + cfg.HealthCheckPort)
		beginReadyzHandler(cfg)
	}

	srv := newAPIServer(reg, res, index, logger)
	logger.Info("serving qa console api on " + cfg.ListenPort)
	return http.ListenAndServe(cfg.ListenPort, srv.routes())
}

// designateSlot makes sure the designated wallet has a record, then hands the
// slot to the supervisor. A pre-existing record is fine; a missing id is
// simply left unassigned.
func designateSlot(reg *registry.Registry, sup *registry.Supervisor, logger *zap.Logger, slot, walletID, network string) {
	if walletID == "" {
		return
	}
	if reg.Get(walletID) == nil {
		_, err := reg.AddWithID(walletID, model.WalletMetadata{
			FriendlyName: slot + " wallet",
			Network:      network,
		})
		if err != nil {
			logger.Warn("failed creating designated wallet record",
				zap.String("slot", slot), zap.String("wallet", walletID), zap.Error(err))
		}
	}
	sup.AssignSlot(slot, walletID)
}

func beginReadyzHandler(cfg Config) {
	http.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if postgres.Configured() {
			pg, err := postgres.GetConnection(r.Context())
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(errors.Wrap(err, "failed pinging postgres").Error()))
				return
			}
			defer pg.Close(r.Context())
			if err := pg.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(errors.Wrap(err, "failed pinging postgres").Error()))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	go http.ListenAndServe(cfg.HealthCheckPort, nil)
}
