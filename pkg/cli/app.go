// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-shiftsync.
//
// go-shiftsync is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package cli assembles the shiftsync components for the command line and
// formats command output.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/jeremyhahn/go-shiftsync/pkg/adapters"
	"github.com/jeremyhahn/go-shiftsync/pkg/audit"
	"github.com/jeremyhahn/go-shiftsync/pkg/changelog"
	"github.com/jeremyhahn/go-shiftsync/pkg/clients"
	"github.com/jeremyhahn/go-shiftsync/pkg/config"
	"github.com/jeremyhahn/go-shiftsync/pkg/conflict"
	"github.com/jeremyhahn/go-shiftsync/pkg/events"
	"github.com/jeremyhahn/go-shiftsync/pkg/metrics"
	"github.com/jeremyhahn/go-shiftsync/pkg/persist"
	"github.com/jeremyhahn/go-shiftsync/pkg/server"
	"github.com/jeremyhahn/go-shiftsync/pkg/server/middleware"
	"github.com/jeremyhahn/go-shiftsync/pkg/server/rest"
	"github.com/jeremyhahn/go-shiftsync/pkg/server/ws"
	"github.com/jeremyhahn/go-shiftsync/pkg/snapshot"
	"github.com/jeremyhahn/go-shiftsync/pkg/state"
)

// ShutdownNotice is the reason carried by the system event sent to every
// client before the server stops.
const ShutdownNotice = "server_shutdown"

// Options configures NewApp.
type Options struct {
	// ConfigFile is watched for strategy and heartbeat changes when set.
	ConfigFile string

	// RestoreFrom names a snapshot (file path or S3 key) loaded before
	// serving. It is applied after persisted state.
	RestoreFrom string

	Logger      adapters.Logger
	AuditLogger audit.AuditLogger

	// GinMode overrides the server's gin mode.
	GinMode string
}

// SnapshotStore exports and imports snapshots.
type SnapshotStore interface {
	snapshot.Exporter
	snapshot.Importer
}

// App is a fully wired shiftsync server.
type App struct {
	Config      *config.Config
	Logger      adapters.Logger
	Metrics     *metrics.Metrics
	Registry    *clients.Manager
	Resolver    *conflict.Resolver
	ChangeLog   *changelog.Log
	Store       *state.Manager
	Persister   persist.Persister
	WriteBehind *persist.WriteBehind
	Snapshots   SnapshotStore
	Server      *rest.Server

	configFile string
	watcher    *config.Watcher
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	closeOnce  sync.Once
	closeErr   error
}

// NewApp builds every component from cfg and loads persisted state. Nothing
// is listening until Run is called.
func NewApp(ctx context.Context, cfg *config.Config, opts Options) (app *App, err error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = adapters.NewLogger(os.Stderr, adapters.ParseLevel(cfg.LogLevel))
	}
	auditLogger := opts.AuditLogger
	if auditLogger == nil {
		if cfg.Server.Audit {
			auditLogger = audit.NewDefaultAuditLogger()
		} else {
			auditLogger = audit.NewNoOpAuditLogger()
		}
	}

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Metrics:    metrics.NewMetrics(),
		configFile: opts.ConfigFile,
	}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	a.Registry = clients.NewManager(clients.Config{
		HeartbeatWindow: cfg.Clients.Heartbeat,
		QueueSize:       cfg.Clients.QueueSize,
		SendTimeout:     cfg.Clients.SendTimeout,
		Logger:          logger,
		Metrics:         a.Metrics,
	})
	a.Resolver = conflict.NewResolver(cfg.Conflict.Strategy, logger)

	logConfig := changelog.Config{Logger: logger}
	if cfg.ChangeLog.File != "" {
		sink, err := changelog.NewJSONLSink(cfg.ChangeLog.File, cfg.ChangeLog.MaxSize)
		if err != nil {
			return nil, fmt.Errorf("open change log file: %w", err)
		}
		logConfig.Sink = sink
	}
	a.ChangeLog = changelog.New(logConfig)

	a.Persister, err = persist.Open(ctx, cfg.Persist.Driver, cfg.Persist.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("open persistence: %w", err)
	}

	storeConfig := state.Config{
		Registry:  a.Registry,
		ChangeLog: a.ChangeLog,
		Logger:    logger,
		Metrics:   a.Metrics,
	}
	if a.Persister != nil {
		a.WriteBehind = persist.NewWriteBehind(persist.WriteBehindConfig{
			Persister:   a.Persister,
			WorkerCount: cfg.Persist.Workers,
			QueueSize:   cfg.Persist.QueueSize,
			Logger:      logger,
			Metrics:     a.Metrics,
		})
		storeConfig.WriteThrough = a.WriteBehind
	}
	a.Store = state.NewManager(storeConfig)

	if a.Persister != nil {
		members, clock, err := a.Persister.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load persisted staff: %w", err)
		}
		if err := a.Store.Restore(members, clock); err != nil {
			return nil, err
		}
		logger.Info(ctx, "Loaded persisted staff",
			adapters.Field{Key: "staff", Value: len(members)},
			adapters.Field{Key: "clock", Value: clock})
	}

	a.Snapshots, err = NewSnapshotStore(ctx, cfg.Snapshot)
	if err != nil {
		return nil, err
	}
	if opts.RestoreFrom != "" {
		if err := a.restore(ctx, opts.RestoreFrom); err != nil {
			return nil, err
		}
	}

	wsHandler := ws.NewHandler(ws.Config{
		Registry:       a.Registry,
		Subscriber:     a.Store,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		PingInterval:   cfg.Clients.Heartbeat / 2,
		Logger:         logger,
		AuditLogger:    auditLogger,
	})

	serverConfig := rest.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.EnableCORS = cfg.Server.EnableCORS
	serverConfig.AllowedOrigins = cfg.Server.AllowedOrigins
	serverConfig.EnableRateLimit = cfg.Server.RateLimit > 0
	serverConfig.RateLimitConfig = &middleware.RateLimitConfig{
		RequestsPerSecond: cfg.Server.RateLimit,
		Burst:             cfg.Server.RateBurst,
		PerIP:             true,
		IdleTTL:           10 * time.Minute,
	}
	serverConfig.EnableAudit = cfg.Server.Audit
	serverConfig.AuditLogger = auditLogger
	serverConfig.Logger = logger
	if opts.GinMode != "" {
		serverConfig.Mode = opts.GinMode
	}
	serverConfig.TLSConfig = adapters.NewTLSConfig(cfg.Server.TLSCert, cfg.Server.TLSKey, cfg.Server.TLSClientCA)
	if cfg.AuthEnabled() {
		serverConfig.Authenticator = adapters.NewTokenAuthenticator(cfg.Server.Tokens, cfg.Server.ReadTokens)
	}

	a.Server, err = rest.NewServer(rest.HandlerConfig{
		Store:     a.Store,
		Registry:  a.Registry,
		Resolver:  a.Resolver,
		Metrics:   a.Metrics,
		Logger:    logger,
		WebSocket: wsHandler,
	}, serverConfig)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// restore replaces the loaded state with the snapshot at location. The
// persisted rows are rewritten before the store is swapped, stamped with a
// clock past both the snapshot and the loaded state.
func (a *App) restore(ctx context.Context, location string) error {
	doc, err := a.Snapshots.Import(ctx, location)
	if err != nil {
		return fmt.Errorf("import snapshot %s: %w", location, err)
	}
	current, stored := a.Store.Snapshot()
	var clock int64
	if a.Persister != nil {
		clock, err = writeSnapshot(ctx, a.Persister, current, stored, doc)
		if err != nil {
			return fmt.Errorf("restore snapshot %s: %w", location, err)
		}
	} else {
		clock = max(stored, doc.Clock) + 1
	}
	if err := a.Store.Restore(doc.Staff, clock); err != nil {
		return fmt.Errorf("restore snapshot %s: %w", location, err)
	}
	a.Logger.Info(ctx, "Restored snapshot",
		adapters.Field{Key: "location", Value: location},
		adapters.Field{Key: "staff", Value: len(doc.Staff)},
		adapters.Field{Key: "clock", Value: clock})
	return nil
}

// Run starts the background loops and serves until ctx is done or the
// server fails, then shuts everything down. A nil listener binds the
// configured address.
func (a *App) Run(ctx context.Context, ln net.Listener) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.Registry.Run(runCtx, a.Config.Clients.SweepInterval)
	}()
	go func() {
		defer a.wg.Done()
		snapshot.Run(runCtx, a.Config.Snapshot.Interval, a.Store, a.Snapshots, a.Logger)
	}()

	if a.configFile != "" {
		w, err := config.NewWatcher(config.WatcherConfig{
			Path:     a.configFile,
			Logger:   a.Logger,
			OnChange: a.Reload,
		})
		if err != nil {
			a.Logger.Warn(ctx, "Config hot reload disabled", adapters.ErrField(err))
		} else {
			a.watcher = w
		}
	}

	errCh := make(chan error, 1)
	go func() {
		if ln != nil {
			errCh <- a.Server.Serve(ln)
			return
		}
		errCh <- a.Server.Start()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), server.ShutdownTimeout*time.Second)
	defer stop()
	return errors.Join(serveErr, a.Shutdown(shutdownCtx))
}

// Reload applies the settings that can change at runtime.
func (a *App) Reload(cfg *config.Config) {
	ctx := context.Background()
	if err := a.Resolver.SetStrategy(cfg.Conflict.Strategy); err != nil {
		a.Logger.Warn(ctx, "Ignoring conflict strategy", adapters.ErrField(err))
	}
	a.Registry.SetHeartbeatWindow(cfg.Clients.Heartbeat)
	if cfg.LogLevel != "" {
		a.Logger.SetLevel(adapters.ParseLevel(cfg.LogLevel))
	}
	a.Logger.Info(ctx, "Applied configuration",
		adapters.Field{Key: "conflict_strategy", Value: string(a.Resolver.GetStrategy())},
		adapters.Field{Key: "heartbeat", Value: a.Registry.HeartbeatWindow().String()})
}

// Shutdown notifies clients, stops the server and background loops, drains
// pending writes and closes every resource. It is safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.Registry.BroadcastEvent(events.New(events.TopicSystem, a.Store.GetVersion(),
			map[string]any{"reason": ShutdownNotice}))
		if err := a.Registry.Flush(ctx); err != nil {
			a.Logger.Warn(ctx, "Shutdown notice not delivered to every client", adapters.ErrField(err))
		}

		var errs []error
		if err := a.Server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
		}
		if a.watcher != nil {
			if err := a.watcher.Stop(); err != nil {
				errs = append(errs, err)
			}
		}
		if a.cancel != nil {
			a.cancel()
		}
		a.wg.Wait()
		errs = append(errs, a.release())
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

// release closes the components that hold goroutines or files.
func (a *App) release() error {
	var errs []error
	if a.Registry != nil {
		a.Registry.Close()
	}
	if a.WriteBehind != nil {
		a.WriteBehind.Shutdown()
	}
	if a.Persister != nil {
		if err := a.Persister.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close persistence: %w", err))
		}
	}
	if a.ChangeLog != nil {
		if err := a.ChangeLog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close change log: %w", err))
		}
	}
	return errors.Join(errs...)
}
