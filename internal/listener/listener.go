// Package listener maintains the push-channel connection of one session and
// feeds the status events it receives to a handler, reconnecting when the
// connection drops.
package listener

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/profile-desk/backend/internal/models"
)

const (
	DefaultPongWait   = 60 * time.Second
	DefaultPingPeriod = (DefaultPongWait * 9) / 10
)

var (
	ErrAlreadyStarted = eris.New("listener already started")
	ErrGaveUp         = eris.New("listener gave up reconnecting")
)

// Config is everything a listener needs; nothing is read from globals.
type Config struct {
	BaseURL  string
	ClientID string
	Policy   Policy

	// OnEvent receives every decoded event, in arrival order, on the
	// listener goroutine.
	OnEvent func(models.StatusEvent)

	// OnState is told about connected/disconnected transitions.
	OnState func(models.ConnectionState)

	Dialer         *websocket.Dialer
	MaxMessageSize int64

	// PingPeriod and PongWait detect half-open connections: the listener
	// pings every PingPeriod and drops the connection when nothing, pongs
	// included, arrives for PongWait.
	PingPeriod time.Duration
	PongWait   time.Duration
}

// Listener owns one push-channel connection.
type Listener struct {
	cfg    Config
	url    string
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	state  models.ConnectionState

	connects atomic.Int64
	dials    atomic.Int64
}

// New validates cfg and creates a listener. It does not connect.
func New(cfg Config) (*Listener, error) {
	if cfg.ClientID == "" {
		return nil, eris.New("listener: client id is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, eris.Wrap(err, "listener: parse base url")
	}
	switch base.Scheme {
	case "ws", "wss":
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	default:
		return nil, eris.Errorf("listener: unsupported scheme %q", base.Scheme)
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = DefaultPongWait
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = (cfg.PongWait * 9) / 10
	}
	if cfg.OnEvent == nil {
		cfg.OnEvent = func(models.StatusEvent) {}
	}
	if cfg.OnState == nil {
		cfg.OnState = func(models.ConnectionState) {}
	}

	return &Listener{
		cfg:    cfg,
		url:    base.String() + "/" + url.PathEscape(cfg.ClientID),
		logger: zap.L().With(zap.String("client_id", cfg.ClientID)),
		state:  models.ConnectionConnecting,
	}, nil
}

// URL returns the push-channel address for this session.
func (l *Listener) URL() string {
	return l.url
}

// State returns the last reported connection state.
func (l *Listener) State() models.ConnectionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Connects returns how many connections have been opened so far.
func (l *Listener) Connects() int64 {
	return l.connects.Load()
}

// Start runs the listener in the background until Close is called or ctx is
// canceled.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})

	go func() {
		defer close(l.done)
		if err := l.Run(runCtx); err != nil && !eris.Is(err, context.Canceled) {
			l.logger.Warn("push channel listener stopped", zap.Error(err))
		}
	}()
	return nil
}

// Close closes the connection, cancels any pending reconnect and waits for
// the listener goroutine to exit. It is safe to call more than once.
func (l *Listener) Close() error {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Run connects and reads until ctx is done or the policy gives up. A drop
// or failed dial schedules exactly one reconnect after the policy delay.
func (l *Listener) Run(ctx context.Context) error {
	attempt := 0
	for {
		conn, err := l.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.setState(models.ConnectionDisconnected)
				return ctx.Err()
			}
			l.logger.Warn("push channel connect failed", zap.String("url", l.url), zap.Error(err))
		} else {
			attempt = 0
			l.connects.Add(1)
			l.setState(models.ConnectionConnected)
			l.logger.Info("push channel connected", zap.String("url", l.url))

			l.readLoop(ctx, conn)
			conn.Close()
		}

		l.setState(models.ConnectionDisconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay, ok := l.cfg.Policy.Next(attempt)
		if !ok {
			return eris.Wrapf(ErrGaveUp, "after %d attempts", attempt)
		}
		attempt++
		l.logger.Info("push channel reconnect scheduled", zap.Duration("delay", delay), zap.Int("attempt", attempt))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *Listener) dial(ctx context.Context) (*websocket.Conn, error) {
	l.dials.Add(1)
	conn, resp, err := l.cfg.Dialer.DialContext(ctx, l.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, eris.Wrap(err, "listener: dial")
	}
	if l.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(l.cfg.MaxMessageSize)
	}
	return conn, nil
}

// readLoop dispatches messages until the connection fails, goes silent for
// longer than PongWait, or ctx is done.
func (l *Listener) readLoop(ctx context.Context, conn *websocket.Conn) {
	stop := make(chan struct{})
	defer close(stop)
	go l.pingLoop(ctx, conn, stop)

	conn.SetReadDeadline(time.Now().Add(l.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(l.cfg.PongWait))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			switch {
			case ctx.Err() != nil:
			case errors.As(err, &netErr) && netErr.Timeout():
				l.logger.Warn("push channel went silent", zap.Duration("pong_wait", l.cfg.PongWait))
			case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				l.logger.Warn("push channel read failed", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(l.cfg.PongWait))
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		var ev models.StatusEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			l.logger.Warn("ignoring malformed push message", zap.Error(err), zap.Int("bytes", len(data)))
			continue
		}
		l.cfg.OnEvent(ev)
	}
}

// pingLoop is the only writer on conn. It closes the connection on teardown
// or when a ping cannot be written.
func (l *Listener) pingLoop(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(l.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(l.cfg.PingPeriod)); err != nil {
				l.logger.Debug("push channel ping failed", zap.Error(err))
				conn.Close()
				return
			}
		}
	}
}

func (l *Listener) setState(state models.ConnectionState) {
	l.mu.Lock()
	changed := l.state != state
	l.state = state
	l.mu.Unlock()

	if changed {
		l.cfg.OnState(state)
	}
}
