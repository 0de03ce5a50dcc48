package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/alanyoungcy/simlink/internal/blob/s3"
	"github.com/alanyoungcy/simlink/internal/cache/redis"
	"github.com/alanyoungcy/simlink/internal/config"
	"github.com/alanyoungcy/simlink/internal/domain"
	"github.com/alanyoungcy/simlink/internal/link"
	"github.com/alanyoungcy/simlink/internal/platform/simulator"
	"github.com/alanyoungcy/simlink/internal/relay"
	"github.com/alanyoungcy/simlink/internal/server"
	"github.com/alanyoungcy/simlink/internal/server/handler"
	"github.com/alanyoungcy/simlink/internal/server/ws"
	"github.com/alanyoungcy/simlink/internal/session"
)

const (
	// relayBuffer is the number of events queued between the engine and
	// the sinks before events are dropped.
	relayBuffer = 1024

	// controlLimit caps manual reconnect/disconnect calls per client.
	controlLimit  = 10
	controlWindow = time.Minute

	shutdownTimeout = 5 * time.Second
)

// linkRuntime is the running link and the pieces built around it.
type linkRuntime struct {
	binder *session.Binder
	engine *link.Engine
	relay  *relay.Relay
	// hub is nil when the HTTP server is disabled.
	hub *ws.Hub
}

// StreamMode runs the link engine, republishes its events on Redis, keeps the
// latest state in the cache and serves the HTTP API.
func (a *App) StreamMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting stream mode")
	return a.runLink(ctx, deps, false)
}

// FullMode adds the Postgres connection journal and the periodic S3 snapshot
// archive to stream mode.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	return a.runLink(ctx, deps, true)
}

func (a *App) runLink(ctx context.Context, deps *Dependencies, full bool) error {
	rt, release, err := a.buildLink(ctx, deps, full)
	if err != nil {
		return err
	}
	defer release()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return rt.relay.Run(gctx)
	})

	if full {
		archiver := s3blob.NewArchiver(
			s3blob.ArchiverConfig{
				Prefix:    a.cfg.S3.ArchivePrefix,
				Interval:  a.cfg.S3.ArchiveInterval.Duration,
				Retention: a.cfg.S3.ArchiveRetention.Duration,
			},
			func() (domain.Snapshot, string) { return rt.engine.Snapshot(), rt.binder.DeviceID() },
			deps.BlobWriter,
			deps.BlobReader,
			deps.ArchiveIndex,
			a.logger,
		)
		g.Go(func() error {
			return archiver.Run(gctx)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(gctx, g, deps, rt, full)
	}

	// The engine stops when the context ends; Dispose closes the socket
	// with a normal closure.
	g.Go(func() error {
		<-gctx.Done()
		rt.engine.Dispose()
		return nil
	})

	rt.engine.Start()

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// buildLink initialises the session, takes the device lock and builds the
// engine with its relay. The returned release func drops the device lock.
func (a *App) buildLink(ctx context.Context, deps *Dependencies, full bool) (*linkRuntime, func(), error) {
	binder := session.NewBinder(deps.DeviceStore, deps.Tokens, session.Config{
		Refresher: deps.Refresher,
		CSRFToken: a.cfg.Simulator.CSRFToken,
		SessionID: a.cfg.Simulator.SessionID,
	}, a.logger)
	if err := binder.Init(ctx); err != nil {
		return nil, nil, fmt.Errorf("app: session init: %w", err)
	}
	deviceID := binder.DeviceID()

	unlock, err := deps.LockManager.Acquire(ctx, "device:"+deviceID, a.cfg.Device.LockTTL.Duration)
	if errors.Is(err, domain.ErrLockHeld) {
		return nil, nil, fmt.Errorf("app: device %s is already linked by another process", deviceID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("app: device lock: %w", err)
	}

	client := simulator.NewClient(a.cfg.Simulator.WsURL, binder, a.logger)
	engine := link.NewEngine(a.cfg.LinkOptions(), client, binder, a.logger)

	sinks := []relay.Sink{
		relay.BusSink{Bus: deps.SignalBus},
		relay.CacheSink{Cache: deps.SnapshotCache, Device: binder.DeviceID},
		relay.NotifySink{Notifier: deps.Notifier, Device: binder.DeviceID},
		relay.FuncSink{SinkName: "log", Fn: a.logEvent},
	}
	if full {
		sinks = append(sinks, relay.JournalSink{
			Store:  deps.Journal,
			Device: binder.DeviceID,
			Status: func() domain.Status { return engine.Status().Status },
		})
	}
	var hub *ws.Hub
	if a.cfg.Server.Enabled {
		var hubSinks []relay.Sink
		hub, hubSinks = newHub(a.cfg.Server.WSSource, deps.SignalBus, engine.Status, a.logger)
		sinks = append(sinks, hubSinks...)
	}
	rel := relay.New(relayBuffer, a.logger, sinks...)
	engine.Subscribe(rel.Enqueue)

	a.logger.InfoContext(ctx, "link ready",
		slog.String("device_id", deviceID),
		slog.String("ws_url", a.cfg.Simulator.WsURL),
		slog.Int("sinks", len(sinks)),
	)

	return &linkRuntime{binder: binder, engine: engine, relay: rel, hub: hub}, unlock, nil
}

// newHub builds the /ws hub. A redis hub reads the shared event channel, so
// clients of any instance see every event. A direct hub is fed by this
// process's relay and is returned as an extra sink.
func newHub(source string, bus domain.SignalBus, status func() domain.Connection, logger *slog.Logger) (*ws.Hub, []relay.Sink) {
	cfg := ws.Config{Status: status, StartedAt: time.Now().UTC()}
	if source == config.WSSourceDirect {
		hub := ws.NewHub(cfg, logger)
		return hub, []relay.Sink{hub}
	}
	cfg.Bus = bus
	cfg.Channel = redis.EventChannel
	return ws.NewHub(cfg, logger), nil
}

// logEvent writes lifecycle events to the process log. Data updates are
// left to the cache and the event bus.
func (a *App) logEvent(ctx context.Context, ev domain.Event) error {
	switch {
	case ev.Terminal():
		a.logger.ErrorContext(ctx, "link halted",
			slog.String("event", ev.Kind.String()),
			slog.String("reason", ev.Reason),
			slog.String("error", ev.Err),
		)
	case ev.Kind == domain.EventStateChange && ev.Connection != nil:
		a.logger.InfoContext(ctx, "link state",
			slog.String("status", string(ev.Connection.Status)),
			slog.String("quality", ev.Connection.Quality.String()),
			slog.String("circuit", string(ev.Connection.Circuit)),
			slog.Int("recovery_attempt", ev.Connection.RecoveryAttempt),
		)
	case ev.Kind == domain.EventReconnecting:
		a.logger.InfoContext(ctx, "link reconnecting",
			slog.Int("attempt", ev.Attempt),
			slog.Int("max_attempts", ev.MaxAttempts),
			slog.Duration("delay", ev.Delay),
		)
	case ev.Kind == domain.EventCircuitOpen, ev.Kind == domain.EventProtocolError,
		ev.Kind == domain.EventAuthError, ev.Kind == domain.EventHandlerError:
		a.logger.WarnContext(ctx, "link fault",
			slog.String("event", ev.Kind.String()),
			slog.String("error", ev.Err),
			slog.Duration("remaining", ev.Remaining),
		)
	}
	return nil
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, rt *linkRuntime, full bool) {
	hub := rt.hub

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(rt.engine.Status, a.logger),
		Link:   handler.NewLinkHandler(rt.engine, a.logger),
	}
	if full {
		handlers.Journal = handler.NewJournalHandler(deps.Journal, deps.ArchiveIndex, rt.binder.DeviceID, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:          a.cfg.Server.Port,
		CORSOrigins:   a.cfg.Server.CORSOrigins,
		APIKey:        a.cfg.Server.ApiKey,
		ControlLimit:  controlLimit,
		ControlWindow: controlWindow,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return hub.Run(ctx)
	})

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
