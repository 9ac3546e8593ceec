// Package bridge maintains a live model of a LEAP bridge: its areas,
// devices, zones, buttons, occupancy groups and scenes, kept current from
// streamed status updates, with an API for issuing commands and observing
// changes.
package bridge

import (
	"context"
	"crypto/tls"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/lutron-community/leap-go/internal/pkg/leap"
	"github.com/lutron-community/leap-go/internal/pkg/model"
)

const (
	pingInterval = 60 * time.Second
	pingURL      = "/server/1/status/ping"
)

// State is the engine's lifecycle phase.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateHandshaking
	StateBootstrapping
	StateLive
	StateReconnecting
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateBootstrapping:
		return "bootstrapping"
	case StateLive:
		return "live"
	case StateReconnecting:
		return "reconnecting"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

// Dialer opens a transport session to the bridge.
type Dialer func(ctx context.Context) (*leap.Connection, error)

// Config configures a Bridge.
type Config struct {
	Host string
	Port int
	TLS  *tls.Config

	// Dialer overrides Host/Port/TLS; tests connect over pipes this way.
	Dialer Dialer

	// Logger defaults to a no-op logger. The engine never touches the
	// process-global logger.
	Logger *zap.Logger

	// RequestTimeout bounds each request; zero means the default 5s.
	RequestTimeout time.Duration

	// OnConnected is invoked once per successful bootstrap, including
	// after reconnects.
	OnConnected func()
}

// Bridge is the LEAP client engine. Entity maps are mutated in place across
// reconnects so pointers handed out stay valid; ids the bridge stops
// reporting are pruned on the next bootstrap.
type Bridge struct {
	logger         *zap.Logger
	dial           Dialer
	requestTimeout time.Duration
	onConnected    func()

	mu              sync.RWMutex
	requester       *leap.Requester
	flavor          flavor
	rootAreaID      string
	areas           map[string]*model.Area
	devices         map[string]*model.Device
	zones           map[string]*model.Zone
	buttonGroups    map[string]*model.ButtonGroup
	buttons         map[string]*model.Button
	occupancyGroups map[string]*model.OccupancyGroup
	scenes          map[string]*model.Scene
	ledOwners       map[string]string // LED id -> device id

	deviceSubs    *registry[func()]
	buttonSubs    *registry[func(model.ButtonEventType, string)]
	occupancySubs *registry[func()]

	backoffInitial time.Duration

	state     atomic.Int32
	readyOnce sync.Once
	ready     chan struct{}
	cancel    context.CancelFunc
	done      chan struct{}
	started   bool
}

// New builds an engine. Connect starts it.
func New(cfg Config) *Bridge {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dial := cfg.Dialer
	if dial == nil {
		host, port, tlsCfg := cfg.Host, cfg.Port, cfg.TLS
		dial = func(ctx context.Context) (*leap.Connection, error) {
			return leap.Dial(ctx, host, port, tlsCfg, logger)
		}
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = leap.DefaultRequestTimeout
	}
	return &Bridge{
		logger:          logger,
		dial:            dial,
		requestTimeout:  timeout,
		onConnected:     cfg.OnConnected,
		areas:           make(map[string]*model.Area),
		devices:         make(map[string]*model.Device),
		zones:           make(map[string]*model.Zone),
		buttonGroups:    make(map[string]*model.ButtonGroup),
		buttons:         make(map[string]*model.Button),
		occupancyGroups: make(map[string]*model.OccupancyGroup),
		scenes:          make(map[string]*model.Scene),
		ledOwners:       make(map[string]string),
		deviceSubs:      newRegistry[func()](),
		buttonSubs:      newRegistry[func(model.ButtonEventType, string)](),
		occupancySubs:   newRegistry[func()](),
		backoffInitial:  time.Second,
		ready:           make(chan struct{}),
		done:            make(chan struct{}),
	}
}

// State returns the engine's current lifecycle phase.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// IsConnected reports whether the engine is live.
func (b *Bridge) IsConnected() bool {
	return b.State() == StateLive
}

func (b *Bridge) setState(s State) {
	b.state.Store(int32(s))
}

// Connect starts the supervisor and blocks until the first bootstrap
// completes or ctx is cancelled. The engine keeps reconnecting on its own
// afterwards.
func (b *Bridge) Connect(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		select {
		case <-b.ready:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	b.started = true
	runCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.mu.Unlock()

	go b.run(runCtx)

	select {
	case <-b.ready:
		return nil
	case <-b.done:
		return leap.ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the engine. Pending requests resolve with
// leap.ErrConnectionClosed. Closing is terminal.
func (b *Bridge) Close() {
	b.setState(StateClosing)
	b.mu.Lock()
	cancel := b.cancel
	requester := b.requester
	b.mu.Unlock()
	if requester != nil {
		requester.Close()
	}
	if cancel != nil {
		cancel()
		<-b.done
	}
}

// run is the supervisor: dial, bootstrap, stay live, and on any failure
// back off exponentially (1s initial, doubling, ±20% jitter, 60s cap)
// before trying again.
func (b *Bridge) run(ctx context.Context) {
	defer close(b.done)
	defer b.setState(StateClosing)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.backoffInitial
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.2
	bo.MaxInterval = 60 * time.Second
	bo.MaxElapsedTime = 0

	for {
		err := b.session(ctx, bo)
		if ctx.Err() != nil {
			return
		}
		wait := bo.NextBackOff()
		b.logger.Warn("session ended, reconnecting",
			zap.Error(err), zap.Duration("backoff", wait))
		b.setState(StateReconnecting)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}

// session owns one connection from dial to teardown.
func (b *Bridge) session(ctx context.Context, bo *backoff.ExponentialBackOff) error {
	b.setState(StateConnecting)
	b.setState(StateHandshaking)
	conn, err := b.dial(ctx)
	if err != nil {
		return err
	}

	requester := leap.NewRequester(conn, b.logger, leap.WithRequestTimeout(b.requestTimeout))
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runDone := make(chan error, 1)
	go func() {
		runDone <- requester.Run(sessionCtx)
	}()

	b.mu.Lock()
	b.requester = requester
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.requester = nil
		b.mu.Unlock()
		requester.Close()
		<-runDone
	}()

	b.setState(StateBootstrapping)
	if err := b.bootstrap(sessionCtx, requester); err != nil {
		return err
	}
	bo.Reset()
	b.setState(StateLive)
	b.readyOnce.Do(func() {
		close(b.ready)
	})
	if b.onConnected != nil {
		b.onConnected()
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-runDone:
			runDone <- err
			return err
		case <-sessionCtx.Done():
			return sessionCtx.Err()
		case <-ticker.C:
			if _, err := b.request(sessionCtx, leap.ReadRequest, pingURL, nil); err != nil {
				b.logger.Warn("ping was not answered, closing connection", zap.Error(err))
				return err
			}
		}
	}
}

// request issues one request on the current session and folds a non-2xx
// status into the returned error.
func (b *Bridge) request(ctx context.Context, ct leap.CommuniqueType, url string, body any) (*leap.Message, error) {
	b.mu.RLock()
	requester := b.requester
	b.mu.RUnlock()
	if requester == nil {
		return nil, leap.ErrConnectionClosed
	}
	msg, err := requester.Request(ctx, ct, url, body)
	if err != nil {
		return nil, err
	}
	if err := msg.CheckStatus(); err != nil {
		return msg, err
	}
	return msg, nil
}

// AddSubscriber registers an observer invoked whenever the device's state
// changes. Observers run on the engine's dispatch path and must not block.
func (b *Bridge) AddSubscriber(deviceID string, fn func()) Unsubscribe {
	return b.deviceSubs.add(deviceID, fn)
}

// AddButtonSubscriber registers an observer for a button's press and
// release events.
func (b *Bridge) AddButtonSubscriber(buttonID string, fn func(model.ButtonEventType, string)) Unsubscribe {
	return b.buttonSubs.add(buttonID, fn)
}

// AddOccupancySubscriber registers an observer for an occupancy group's
// status changes.
func (b *Bridge) AddOccupancySubscriber(groupID string, fn func()) Unsubscribe {
	return b.occupancySubs.add(groupID, fn)
}

// safeCall shields event delivery from a misbehaving observer.
func (b *Bridge) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber callback panicked", zap.Any("panic", r))
		}
	}()
	fn()
}
