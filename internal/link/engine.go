package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/simlink/internal/delta"
	"github.com/alanyoungcy/simlink/internal/domain"
	"github.com/alanyoungcy/simlink/internal/platform/simulator"
)

// Transport is one physical channel to the simulator.
type Transport interface {
	Connect(ctx context.Context) (bool, error)
	Send(v any) bool
	Disconnect(code int, reason string)
	Subscribe(h func(domain.TransportEvent)) domain.Subscription
}

var _ Transport = (*simulator.Client)(nil)

// Session tracks the binding between this client and a server session.
type Session interface {
	DeviceID() string
	Binding() domain.SessionBinding
	// Bind records the serving session and pod. transferred is true when
	// the pod changed under a stable session id.
	Bind(sessionID, podName string) (previous domain.SessionBinding, transferred bool)
	Invalidate(ctx context.Context) error
	RefreshToken(ctx context.Context) error
}

// Options holds every tunable of the engine.
type Options struct {
	Heartbeat      HeartbeatOptions
	Breaker        BreakerOptions
	Backoff        BackoffOptions
	Quality        Thresholds
	DialTimeout    time.Duration
	RefreshTimeout time.Duration
}

// DefaultOptions returns the standard link tuning.
func DefaultOptions() Options {
	return Options{
		Heartbeat: HeartbeatOptions{Interval: 30 * time.Second, Timeout: 10 * time.Second, DeadAfter: 2},
		Breaker:   BreakerOptions{Threshold: 5, Cooldown: 60 * time.Second},
		Backoff: BackoffOptions{
			BaseDelay:      time.Second,
			MaxDelay:       30 * time.Second,
			MaxAttempts:    15,
			JitterFraction: 0.2,
		},
		Quality:        Thresholds{Good: 250 * time.Millisecond, Degraded: 750 * time.Millisecond},
		DialTimeout:    20 * time.Second,
		RefreshTimeout: 15 * time.Second,
	}
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces the system clock.
func WithClock(c domain.Clock) Option { return func(e *Engine) { e.clock = c } }

// WithSpawn replaces how blocking work is started. The default runs f on a
// new goroutine.
func WithSpawn(spawn func(func())) Option { return func(e *Engine) { e.spawn = spawn } }

// WithRand replaces the jitter source. r must return values in [0,1).
func WithRand(r func() float64) Option { return func(e *Engine) { e.rand = r } }

type connectResult struct {
	ok  bool
	err error
}

// Engine is the resilient link. Create it with NewEngine, start it with
// Connect or Start, and release it with Dispose.
type Engine struct {
	opts      Options
	transport Transport
	session   Session
	clock     domain.Clock
	spawn     func(func())
	rand      func() float64
	logger    *slog.Logger
	bus       *Bus
	tasks     *serial
	scope     Scope

	ctx    context.Context
	cancel context.CancelFunc

	disposed atomic.Bool
	// connMu orders connection publication against Dispose so a task
	// already running cannot overwrite the final disposed state.
	connMu   sync.Mutex
	conn     atomic.Pointer[domain.Connection]
	snap     atomic.Pointer[domain.Snapshot]
	stats    atomic.Pointer[delta.Stats]

	// Everything below is owned by the task queue.
	breaker     *Breaker
	sched       *Scheduler
	hb          *Heartbeat
	state       *StateMachine
	recon       *delta.Reconstructor
	socketID    uint64
	connecting  bool
	waiters     []chan connectResult
	intentional bool
	loggedOut   bool
	authRetried bool
	refreshing  bool
}

// NewEngine wires the link components around transport and session.
func NewEngine(opts Options, transport Transport, session Session, logger *slog.Logger, options ...Option) *Engine {
	e := &Engine{
		opts:      opts,
		transport: transport,
		session:   session,
		clock:     domain.SystemClock{},
		spawn:     func(f func()) { go f() },
		rand:      rand.Float64,
		logger:    logger.With(slog.String("component", "link_engine")),
	}
	for _, o := range options {
		o(e)
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.tasks = newSerial(e.logger)
	e.bus = NewBus(logger)

	e.breaker = NewBreaker(opts.Breaker)
	e.sched = NewScheduler(opts.Backoff, e.clock, e.rand, e.post)
	e.hb = NewHeartbeat(opts.Heartbeat, e.clock, e.post, e.sendHeartbeat, e.onHeartbeatTimeout, e.onHeartbeatDead)
	e.state = NewStateMachine(opts.Quality)
	e.recon = delta.NewReconstructor(e.clock.Now)

	conn := e.state.Connection()
	e.conn.Store(&conn)
	snap := e.recon.Snapshot()
	e.snap.Store(&snap)
	stats := e.recon.Stats()
	e.stats.Store(&stats)

	e.scope.Add(transport.Subscribe(e.onTransportEvent))
	return e
}

// --------------------------------------------------------------------------
// Public API
// --------------------------------------------------------------------------

// Connect opens the link and waits for the outcome. Calls made while a
// connect is in flight share its result. Connect must not be called from an
// event handler; use Start there.
func (e *Engine) Connect(ctx context.Context) (bool, error) {
	reply := make(chan connectResult, 1)
	e.tasks.post(func() {
		if e.disposed.Load() {
			reply <- connectResult{err: domain.ErrDisposed}
			return
		}
		e.beginConnect(reply)
	})
	select {
	case r := <-reply:
		return r.ok, r.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Start opens the link without waiting.
func (e *Engine) Start() {
	e.post(func() { e.beginConnect(nil) })
}

// Disconnect closes the link on purpose. No reconnect follows, and the
// breaker and connection state return to their defaults.
func (e *Engine) Disconnect() {
	e.post(e.disconnect)
}

// ManualReconnect clears retry exhaustion and connects again. It is the way
// out of max_reconnect_attempts and logged_out; a deactivated session cannot
// be reconnected.
func (e *Engine) ManualReconnect() {
	e.post(e.manualReconnect)
}

// Dispose cancels every timer, closes the socket with a normal closure,
// publishes the reset connection and makes the engine permanently inert.
// The socket is closed before Dispose returns even when another goroutine
// is draining the task queue. Later calls are no-ops.
func (e *Engine) Dispose() {
	if !e.disposed.CompareAndSwap(false, true) {
		return
	}
	e.cancel()
	e.transport.Disconnect(domain.CloseNormal, "disposed")

	e.connMu.Lock()
	prev := *e.conn.Load()
	reset := NewStateMachine(e.opts.Quality)
	conn, _ := reset.Update(func(in *Inputs) { in.Deactivated = prev.Deactivated })
	e.conn.Store(&conn)
	e.connMu.Unlock()
	if conn != prev {
		e.publish(domain.Event{Kind: domain.EventStateChange, Connection: &conn})
	}

	e.tasks.post(e.teardown)
}

// Status returns the latest published connection.
func (e *Engine) Status() domain.Connection { return *e.conn.Load() }

// Snapshot returns the latest reconstructed state. Callers must not mutate
// it.
func (e *Engine) Snapshot() domain.Snapshot { return *e.snap.Load() }

// DeltaStats returns reconstruction counters.
func (e *Engine) DeltaStats() delta.Stats { return *e.stats.Load() }

// Subscribe registers h for the given event kinds, or all kinds when none
// are given.
func (e *Engine) Subscribe(h Handler, kinds ...domain.EventKind) domain.Subscription {
	return e.bus.Subscribe(h, kinds...)
}

// Disposed reports whether Dispose has been called.
func (e *Engine) Disposed() bool { return e.disposed.Load() }

// --------------------------------------------------------------------------
// Task queue
// --------------------------------------------------------------------------

// post runs f on the task queue unless the engine has been disposed.
func (e *Engine) post(f func()) {
	e.tasks.post(func() {
		if e.disposed.Load() {
			return
		}
		f()
	})
}

func (e *Engine) onTransportEvent(ev domain.TransportEvent) {
	e.post(func() { e.handleTransport(ev) })
}

func (e *Engine) handleTransport(ev domain.TransportEvent) {
	switch ev.Kind {
	case domain.TransportConnected:
		e.onConnected(ev.SocketID)
	case domain.TransportDisconnected:
		e.onDisconnected(ev)
	case domain.TransportMessage:
		e.onMessage(ev)
	case domain.TransportError:
		e.logger.Warn("transport error", slog.Uint64("socket", ev.SocketID), slog.Any("error", ev.Err))
	default:
		e.logger.Warn("unknown transport event", slog.Int("kind", int(ev.Kind)))
	}
}

// --------------------------------------------------------------------------
// Connecting
// --------------------------------------------------------------------------

func (e *Engine) beginConnect(reply chan connectResult) {
	switch {
	case e.state.Inputs().Deactivated:
		sendResult(reply, false, fmt.Errorf("link: connect: %w", domain.ErrDeactivated))
		return
	case e.loggedOut:
		sendResult(reply, false, fmt.Errorf("link: connect: %w", domain.ErrLoggedOut))
		return
	case e.socketID != 0:
		sendResult(reply, true, nil)
		return
	case e.connecting:
		if reply != nil {
			e.waiters = append(e.waiters, reply)
		}
		return
	}

	now := e.clock.Now()
	d := e.breaker.Allow(now)
	if !d.Allowed {
		e.logger.Warn("connect rejected, circuit open", slog.Duration("remaining", d.Remaining))
		e.publish(domain.Event{Kind: domain.EventCircuitOpen, Remaining: d.Remaining})
		if e.state.Inputs().Recovering {
			wait := d.Remaining
			if wait <= 0 {
				wait = e.opts.Backoff.BaseDelay
			}
			e.sched.Defer(wait, e.attemptReconnect)
		}
		sendResult(reply, false, fmt.Errorf("link: connect: %w", domain.ErrCircuitOpen))
		return
	}
	if d.HalfOpened {
		e.logger.Info("circuit half-open, probing")
		e.publish(domain.Event{Kind: domain.EventCircuitHalfOpen})
	}

	e.intentional = false
	e.connecting = true
	if reply != nil {
		e.waiters = append(e.waiters, reply)
	}
	e.updateState(func(in *Inputs) { in.Transport = domain.StatusConnecting })

	ctx, cancel := context.WithTimeout(e.ctx, e.opts.DialTimeout)
	e.spawn(func() {
		defer cancel()
		ok, err := e.transport.Connect(ctx)
		if ok && e.disposed.Load() {
			e.transport.Disconnect(domain.CloseNormal, "disposed")
			return
		}
		if !ok && err == nil {
			err = domain.ErrNotConnected
		}
		e.post(func() { e.finishConnect(err) })
	})
}

func (e *Engine) attemptReconnect() {
	e.logger.Info("reconnect attempt", slog.Int("attempt", e.sched.Attempt()))
	e.beginConnect(nil)
}

// finishConnect handles the dial outcome. Success is handled by the
// connected event, which the transport emits before Connect returns.
func (e *Engine) finishConnect(err error) {
	if err == nil || !e.connecting {
		return
	}
	e.connecting = false
	e.resolveWaiters(false, err)
	e.updateState(func(in *Inputs) { in.Transport = domain.StatusDisconnected })

	if errors.Is(err, domain.ErrUnauthorized) || errors.Is(err, domain.ErrAuthMissing) {
		e.breaker.Release()
		e.handleAuthFault(err)
		return
	}
	if e.halted() {
		e.breaker.Release()
		return
	}

	now := e.clock.Now()
	e.logger.Warn("connect failed", slog.String("error", err.Error()))
	if e.breaker.RecordFailure(now) {
		remaining := e.breaker.Remaining(now)
		e.logger.Warn("circuit opened", slog.Int("failures", e.breaker.State().ConsecutiveFailures))
		e.publish(domain.Event{Kind: domain.EventCircuitOpen, Remaining: remaining})
	}
	e.updateState(nil)
	e.enterRecovery(e.breaker.Remaining(now))
}

func (e *Engine) onConnected(id uint64) {
	if e.halted() {
		e.connecting = false
		e.transport.Disconnect(domain.CloseNormal, "link closed")
		e.resolveWaiters(false, domain.ErrNotConnected)
		return
	}

	e.connecting = false
	e.socketID = id
	if e.breaker.RecordSuccess() {
		e.logger.Info("circuit closed")
		e.publish(domain.Event{Kind: domain.EventCircuitClosed})
	}
	e.sched.Reset()
	e.authRetried = false

	// Sequence numbers are only meaningful within one socket session.
	e.recon.Reset()
	e.storeSnapshot(e.recon.Snapshot())

	e.hb.Start()
	e.updateState(func(in *Inputs) {
		in.Transport = domain.StatusConnected
		in.Recovering = false
		in.RecoveryAttempt = 0
		in.Latency = -1
	})
	e.logger.Info("link connected", slog.Uint64("socket", id))
	e.publish(domain.Event{Kind: domain.EventConnected})
	e.resolveWaiters(true, nil)
}

func (e *Engine) onDisconnected(ev domain.TransportEvent) {
	if ev.SocketID != e.socketID {
		return
	}
	// Heartbeat timers go first so none can fire against a replaced socket.
	e.hb.Stop()
	e.socketID = 0
	e.updateState(func(in *Inputs) {
		in.Transport = domain.StatusDisconnected
		in.Latency = -1
	})
	e.publish(domain.Event{Kind: domain.EventDisconnected, Code: ev.Code, Reason: ev.Reason, WasClean: ev.WasClean})

	if e.halted() {
		return
	}
	if ev.Code == domain.CloseNormal {
		e.logger.Info("link closed normally", slog.String("reason", ev.Reason))
		return
	}
	e.logger.Warn("link lost", slog.Int("code", ev.Code), slog.String("reason", ev.Reason))
	e.enterRecovery(0)
}

// halted reports whether the link must stay down until a consumer acts.
func (e *Engine) halted() bool {
	return e.intentional || e.loggedOut || e.state.Inputs().Deactivated
}

func (e *Engine) enterRecovery(minDelay time.Duration) {
	res := e.sched.Schedule(minDelay, e.attemptReconnect)
	switch {
	case res.Pending:
		return
	case res.Exhausted:
		e.logger.Error("reconnect attempts exhausted", slog.Int("attempts", res.Attempt))
		e.updateState(func(in *Inputs) {
			in.Recovering = false
			in.RecoveryAttempt = res.Attempt
		})
		e.publish(domain.Event{
			Kind:        domain.EventMaxReconnectAttempts,
			Attempt:     res.Attempt,
			MaxAttempts: e.opts.Backoff.MaxAttempts,
			Err:         domain.ErrMaxReconnects.Error(),
		})
	default:
		e.updateState(func(in *Inputs) {
			in.Recovering = true
			in.RecoveryAttempt = res.Attempt
		})
		e.publish(domain.Event{
			Kind:        domain.EventReconnecting,
			Attempt:     res.Attempt,
			MaxAttempts: e.opts.Backoff.MaxAttempts,
			Delay:       res.Delay,
		})
	}
}

// --------------------------------------------------------------------------
// Frames
// --------------------------------------------------------------------------

func (e *Engine) onMessage(ev domain.TransportEvent) {
	if ev.SocketID != e.socketID {
		return
	}
	frame, err := simulator.ParseFrame(ev.Data)
	if err != nil {
		e.protocolFault(err)
		return
	}

	switch frame.Kind {
	case simulator.FrameHeartbeatAck:
		e.onHeartbeatAck(*frame.Ack)
	case simulator.FrameExchangeData:
		e.onExchangeData(*frame.Delta)
	case simulator.FrameDeviceIDInvalidated:
		e.invalidate(frame.Reason)
	case simulator.FrameSessionInfo:
		e.bind(frame.Session.SessionID, frame.Session.PodName)
	default:
		e.logger.Debug("ignoring frame", slog.String("type", frame.Type))
	}
}

func (e *Engine) onHeartbeatAck(ack simulator.HeartbeatAck) {
	if ack.DeviceIDValid != nil && !*ack.DeviceIDValid {
		e.invalidate("device id rejected by heartbeat")
		return
	}
	latency, matched := e.hb.Ack(ack.ClientTimestamp)
	if ack.PodName != "" {
		e.bind(ack.SessionID, ack.PodName)
	}
	now := e.clock.Now()
	e.updateState(func(in *Inputs) {
		if matched {
			in.Latency = latency
			in.LastHeartbeat = now
		}
		if ack.SimulatorStatus != "" {
			in.SimulatorStatus = ack.SimulatorStatus
		}
	})
}

func (e *Engine) onExchangeData(msg delta.Message) {
	snap, err := e.recon.Apply(msg)
	stats := e.recon.Stats()
	e.stats.Store(&stats)
	if err == nil {
		e.storeSnapshot(snap)
		return
	}

	if delta.IsRefreshFault(err) {
		e.requestFullRefresh(err)
		return
	}
	e.protocolFault(err)
}

func (e *Engine) requestFullRefresh(cause error) {
	e.logger.Warn("discarding update", slog.String("error", cause.Error()))
	if !e.recon.MarkRefreshRequested() {
		return
	}
	req := simulator.NewFullRefreshRequest(e.recon.LastSequence(), e.session.DeviceID(), e.clock.Now().UnixMilli())
	if !e.transport.Send(req) {
		e.logger.Warn("full refresh request not sent")
	}
	e.publish(domain.Event{Kind: domain.EventFullRefreshRequested, Err: cause.Error()})
}

// protocolFault tears the socket down. The reconnect that follows starts a
// fresh session, which begins with a FULL snapshot.
func (e *Engine) protocolFault(err error) {
	e.logger.Error("protocol fault", slog.String("error", err.Error()))
	e.publish(domain.Event{Kind: domain.EventProtocolError, Err: err.Error()})
	e.hb.Stop()
	e.transport.Disconnect(domain.CloseProtocolError, "protocol error")
}

func (e *Engine) bind(sessionID, podName string) {
	if sessionID == "" {
		sessionID = e.session.Binding().SessionID
	}
	prev, transferred := e.session.Bind(sessionID, podName)
	e.updateState(func(in *Inputs) { in.PodName = podName })
	if transferred {
		cur := e.session.Binding()
		e.logger.Info("pod transfer",
			slog.String("session", sessionID),
			slog.String("from", prev.PodName),
			slog.String("to", podName),
		)
		e.publish(domain.Event{Kind: domain.EventPodTransfer, Binding: &cur, PreviousPod: prev.PodName})
	}
}

// --------------------------------------------------------------------------
// Heartbeat callbacks
// --------------------------------------------------------------------------

func (e *Engine) sendHeartbeat(ts int64) bool {
	return e.transport.Send(simulator.NewHeartbeat(ts, e.session.DeviceID()))
}

func (e *Engine) onHeartbeatTimeout(misses int) {
	e.logger.Warn("heartbeat timeout", slog.Int("misses", misses))
	e.publish(domain.Event{Kind: domain.EventHeartbeatTimeout, Attempt: misses})
}

func (e *Engine) onHeartbeatDead() {
	e.logger.Error("heartbeat dead, forcing reconnect")
	e.publish(domain.Event{Kind: domain.EventHeartbeatTimeout, Attempt: e.opts.Heartbeat.DeadAfter})
	e.transport.Disconnect(domain.CloseHeartbeatDead, "heartbeat timeout")
}

// --------------------------------------------------------------------------
// Terminal conditions
// --------------------------------------------------------------------------

// invalidate handles a security invalidation of the device id. It is
// terminal: the scheduler is never consulted.
func (e *Engine) invalidate(reason string) {
	if e.state.Inputs().Deactivated {
		return
	}
	e.logger.Error("device id invalidated", slog.String("reason", reason))
	e.intentional = true
	e.hb.Stop()
	e.sched.Cancel()
	e.updateState(func(in *Inputs) {
		in.Deactivated = true
		in.Recovering = false
	})
	e.publish(domain.Event{Kind: domain.EventDeviceIDInvalidated, Reason: reason})
	e.transport.Disconnect(domain.CloseDeactivated, "device id invalidated")

	ctx, cancel := context.WithTimeout(e.ctx, e.opts.RefreshTimeout)
	e.spawn(func() {
		defer cancel()
		if err := e.session.Invalidate(ctx); err != nil {
			e.logger.Error("clear device id", slog.String("error", err.Error()))
		}
	})
	e.publish(domain.Event{Kind: domain.EventSessionDeactivated, Reason: reason})
	e.resolveWaiters(false, domain.ErrDeactivated)
}

// handleAuthFault allows exactly one token refresh per fault. A refresh that
// succeeds reconnects; anything else logs out.
func (e *Engine) handleAuthFault(err error) {
	e.logger.Warn("authentication rejected", slog.String("error", err.Error()))
	e.publish(domain.Event{Kind: domain.EventAuthError, Err: err.Error()})
	if e.refreshing {
		return
	}
	if e.authRetried {
		e.logout(err)
		return
	}
	e.authRetried = true
	e.refreshing = true

	ctx, cancel := context.WithTimeout(e.ctx, e.opts.RefreshTimeout)
	e.spawn(func() {
		defer cancel()
		rerr := e.session.RefreshToken(ctx)
		e.post(func() {
			e.refreshing = false
			if rerr != nil {
				e.logout(rerr)
				return
			}
			e.logger.Info("token refreshed, reconnecting")
			e.reconnectNow()
		})
	})
}

func (e *Engine) logout(cause error) {
	e.logger.Error("logging out", slog.String("error", cause.Error()))
	e.loggedOut = true
	e.intentional = true
	e.hb.Stop()
	e.sched.Cancel()
	e.updateState(func(in *Inputs) { in.Recovering = false })
	e.transport.Disconnect(domain.CloseNormal, "logged out")
	e.publish(domain.Event{Kind: domain.EventLoggedOut, Err: cause.Error()})
	e.resolveWaiters(false, domain.ErrLoggedOut)
}

// --------------------------------------------------------------------------
// Consumer actions
// --------------------------------------------------------------------------

func (e *Engine) disconnect() {
	e.logger.Info("disconnect requested")
	e.intentional = true
	e.hb.Stop()
	e.sched.Reset()
	e.breaker.Reset()
	e.transport.Disconnect(domain.CloseNormal, "client disconnect")
	deactivated := e.state.Inputs().Deactivated
	e.updateState(func(in *Inputs) {
		*in = DefaultInputs()
		in.Deactivated = deactivated
	})
	e.resolveWaiters(false, domain.ErrNotConnected)
}

func (e *Engine) manualReconnect() {
	if e.state.Inputs().Deactivated {
		e.logger.Warn("manual reconnect ignored, session deactivated")
		return
	}
	e.loggedOut = false
	e.authRetried = false
	e.reconnectNow()
}

func (e *Engine) reconnectNow() {
	e.intentional = false
	e.sched.Reset()
	e.updateState(func(in *Inputs) {
		in.Recovering = false
		in.RecoveryAttempt = 0
	})
	if e.socketID != 0 || e.connecting {
		return
	}
	e.beginConnect(nil)
}

// teardown releases what the task queue owns. The published connection was
// already reset by Dispose, so the state machine is reset silently.
func (e *Engine) teardown() {
	e.hb.Stop()
	e.sched.Cancel()
	e.breaker.Reset()
	e.intentional = true
	e.socketID = 0
	e.connecting = false
	deactivated := e.state.Inputs().Deactivated
	e.state.Update(func(in *Inputs) {
		*in = DefaultInputs()
		in.Deactivated = deactivated
	})
	e.resolveWaiters(false, domain.ErrDisposed)
	e.transport.Disconnect(domain.CloseNormal, "disposed")
	e.scope.Close()
	e.logger.Info("link disposed")
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// updateState is the only path that changes the published connection. The
// circuit state is always copied from the breaker.
func (e *Engine) updateState(fn func(*Inputs)) {
	conn, changed := e.state.Update(func(in *Inputs) {
		if fn != nil {
			fn(in)
		}
		in.Circuit = e.breaker.State().State
	})
	if !changed {
		return
	}
	e.connMu.Lock()
	if e.disposed.Load() {
		e.connMu.Unlock()
		return
	}
	e.conn.Store(&conn)
	e.connMu.Unlock()
	e.publish(domain.Event{Kind: domain.EventStateChange, Connection: &conn})
}

func (e *Engine) storeSnapshot(snap domain.Snapshot) {
	e.snap.Store(&snap)
	e.publish(domain.Event{Kind: domain.EventDataUpdated, Snapshot: &snap})
}

func (e *Engine) publish(ev domain.Event) {
	ev.At = e.clock.Now()
	e.bus.Publish(ev)
}

func (e *Engine) resolveWaiters(ok bool, err error) {
	for _, w := range e.waiters {
		sendResult(w, ok, err)
	}
	e.waiters = nil
}

func sendResult(ch chan connectResult, ok bool, err error) {
	if ch == nil {
		return
	}
	select {
	case ch <- connectResult{ok: ok, err: err}:
	default:
	}
}
