package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"creaturecore/internal/archive"
	"creaturecore/internal/blob"
	"creaturecore/internal/config"
	"creaturecore/internal/core"
	"creaturecore/internal/host"
	"creaturecore/internal/infra/events"
	"creaturecore/internal/infra/persistence/memory"
	"creaturecore/internal/infra/randomness"
	"creaturecore/internal/infra/stake"
	"creaturecore/pkg/domain"
)

const appName = "creaturectl"

// snapshotStore is implemented by every persistent store through the
// embedded memory store.
type snapshotStore interface {
	domain.PersistentStore
	ExportState() memory.Snapshot
	ImportState(memory.Snapshot) error
}

type runtime struct {
	cfg      config.Config
	logger   *core.ZerologLogger
	store    snapshotStore
	ledger   *stake.Ledger
	beacon   *randomness.Beacon
	registry *core.Registry
	executor *host.Executor
	eventLog *events.JSONLSink
	stream   *events.StreamHub
	server   *http.Server
	arch     *archive.Archiver
}

func openRuntime(ctx context.Context, configPath string, logOut io.Writer) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: core.NewConsoleLogger(logOut, appName, cfg.Log.Level)}

	ps, err := core.OpenPersistentStore(ctx, cfg.StorageOptions(), core.NewDefaultRulesEngine())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	store, ok := ps.(snapshotStore)
	if !ok {
		_ = ps.Close()
		return nil, fmt.Errorf("store %T does not support snapshots", ps)
	}
	rt.store = store

	if cfg.Beacon.Seed != "" {
		rt.beacon = randomness.NewDeterministicBeacon([]byte(cfg.Beacon.Seed))
	} else if rt.beacon, err = randomness.NewBeacon(); err != nil {
		rt.Close()
		return nil, err
	}
	rt.ledger = stake.NewLedger(cfg.GenesisBalances())

	sinks := events.Fanout{events.NewLogSink(rt.logger.Zerolog())}
	if cfg.Events.Dir != "" {
		rt.eventLog = events.NewJSONLSink(cfg.Events.Dir, cfg.Events.Prefix, func(err error) {
			rt.logger.Warn("event log write failed", "error", err)
		})
		sinks = append(sinks, rt.eventLog)
	}

	promReg := prometheus.NewRegistry()
	recorder, err := core.NewPrometheusMetricsRecorder(promReg)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	if cfg.Metrics.Addr != "" {
		rt.stream = events.NewStreamHub(0)
		sinks = append(sinks, rt.stream)
		if err := rt.serveHTTP(cfg.Metrics.Addr, promReg); err != nil {
			rt.Close()
			return nil, err
		}
	}

	rt.registry = core.NewRegistry(store, rt.ledger, rt.beacon,
		core.WithReserve(cfg.Reserve()),
		core.WithLogger(rt.logger),
		core.WithMetricsRecorder(recorder),
		core.WithEventSink(sinks),
	)
	rt.executor = host.NewExecutor(rt.registry, rt.beacon, host.WithLogger(rt.logger), host.WithStartBlock(rt.beacon.Block()))
	rt.logger.Debug("runtime ready", "storage", cfg.Storage.Driver, "reserve", uint64(cfg.Reserve()))
	return rt, nil
}

// serveHTTP exposes /metrics, /health and the /events WebSocket stream.
func (rt *runtime) serveHTTP(addr string, reg *prometheus.Registry) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("GET /events", rt.stream)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})
	rt.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := rt.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error("http server stopped", "error", err)
		}
	}()
	rt.logger.Info("serving http", "addr", ln.Addr().String())
	return nil
}

func (rt *runtime) archiver(ctx context.Context) (*archive.Archiver, error) {
	if rt.arch != nil {
		return rt.arch, nil
	}
	store, err := blob.Open(ctx, rt.cfg.BlobConfig())
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	rt.arch = archive.New(store, rt.cfg.Archive.Prefix)
	return rt.arch, nil
}

func (rt *runtime) archive(ctx context.Context) (blob.Info, error) {
	arch, err := rt.archiver(ctx)
	if err != nil {
		return blob.Info{}, err
	}
	return arch.Export(ctx, rt.store)
}

func (rt *runtime) restore(ctx context.Context, key string) error {
	arch, err := rt.archiver(ctx)
	if err != nil {
		return err
	}
	if key == "latest" {
		info, err := arch.Latest(ctx)
		if err != nil {
			return err
		}
		key = info.Key
	}
	hdr, err := arch.Restore(ctx, key, rt.store)
	if err != nil {
		return err
	}
	rt.logger.Info("snapshot restored", "key", key, "creatures", uint32(hdr.Count))
	return nil
}

func (rt *runtime) records(ctx context.Context, account string) ([]domain.Record, error) {
	var out []domain.Record
	err := rt.store.View(ctx, func(v domain.TransactionView) error {
		if account == "" {
			out = v.ListRecords()
			return nil
		}
		for _, id := range v.OwnedBy(domain.AccountID(account)) {
			if rec, ok := v.FindRecord(id); ok {
				out = append(out, rec)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (rt *runtime) Close() {
	if rt.stream != nil {
		rt.stream.Close()
	}
	if rt.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = rt.server.Shutdown(ctx)
		cancel()
	}
	if rt.eventLog != nil {
		if err := rt.eventLog.Close(); err != nil {
			rt.logger.Warn("close event log", "error", err)
		}
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.logger.Warn("close store", "error", err)
		}
	}
}
