// Package ws connects devices and map clients over websockets. Devices push
// position fixes to the PositionFeed; map clients receive render commands and
// danger episodes from the Hub.
package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-escape-service/internal/domain"
)

const (
	readLimit  = 1 << 16
	pongWait   = 60 * time.Second
	pingPeriod = 20 * time.Second
	writeWait  = 5 * time.Second
)

// Option configures the websocket endpoints.
type Option func(*websocket.Upgrader)

// WithAllowedOrigins restricts browser connections to the listed origins, for
// example "https://map.example.org". A "*" entry accepts any origin. Without
// this option only same-host origins are accepted; requests that carry no
// Origin header, such as native device clients, are always allowed.
func WithAllowedOrigins(origins []string) Option {
	return func(u *websocket.Upgrader) {
		if len(origins) == 0 {
			return
		}
		allowed := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			allowed[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
		}
		u.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if _, ok := allowed["*"]; ok {
				return true
			}
			_, ok := allowed[strings.ToLower(origin)]
			return ok
		}
	}
}

// newUpgrader leaves CheckOrigin nil by default, which makes gorilla reject
// cross-origin requests.
func newUpgrader(opts []Option) *websocket.Upgrader {
	u := &websocket.Upgrader{}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// deviceMessage is what a device sends: either a fix or a positioning error.
type deviceMessage struct {
	Lat      *float64 `json:"lat,omitempty"`
	Lon      *float64 `json:"lon,omitempty"`
	Accuracy float64  `json:"accuracy,omitempty"`
	Error    string   `json:"error,omitempty"`
}

type fix struct {
	pos domain.Position
	at  time.Time
}

type fixResult struct {
	pos domain.Position
	err error
}

// conn serializes writes to one websocket connection.
type conn struct {
	ws  *websocket.Conn
	wmu sync.Mutex
}

func (c *conn) writeJSON(v any) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

// PositionFeed implements domain.Positioner over device websocket connections.
type PositionFeed struct {
	timeout  time.Duration
	maxAge   time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	upgrader *websocket.Upgrader

	mu       sync.Mutex
	last     *fix
	waiters  map[chan fixResult]struct{}
	watchers map[chan domain.Position]struct{}
	devices  map[*conn]struct{}
}

// NewPositionFeed creates a feed. A single-shot request is served from the
// last fix when it is at most maxAge old, otherwise it waits up to timeout
// for a new one.
func NewPositionFeed(timeout, maxAge time.Duration, clock clockwork.Clock, logger *slog.Logger, opts ...Option) *PositionFeed {
	return &PositionFeed{
		timeout:  timeout,
		maxAge:   maxAge,
		clock:    clock,
		logger:   logger,
		upgrader: newUpgrader(opts),
		waiters:  make(map[chan fixResult]struct{}),
		watchers: make(map[chan domain.Position]struct{}),
		devices:  make(map[*conn]struct{}),
	}
}

// CurrentPosition returns a fresh fix or fails with ErrPositionTimeout,
// ErrPermissionDenied or ErrNoFix.
func (f *PositionFeed) CurrentPosition(ctx context.Context) (domain.Position, error) {
	f.mu.Lock()
	if f.last != nil && f.clock.Since(f.last.at) <= f.maxAge {
		pos := f.last.pos
		f.mu.Unlock()
		return pos, nil
	}
	ch := make(chan fixResult, 1)
	f.waiters[ch] = struct{}{}
	devices := f.deviceList()
	f.mu.Unlock()

	for _, d := range devices {
		if err := d.writeJSON(map[string]string{"type": "locate"}); err != nil {
			f.logger.Debug("locate request failed", "error", err)
		}
	}

	select {
	case r := <-ch:
		return r.pos, r.err
	case <-f.clock.After(f.timeout):
		f.dropWaiter(ch)
		return domain.Position{}, domain.ErrPositionTimeout
	case <-ctx.Done():
		f.dropWaiter(ch)
		return domain.Position{}, fmt.Errorf("%w: %w", domain.ErrPositionUnavailable, ctx.Err())
	}
}

// WatchPositions streams every fix until ctx ends. Slow readers miss fixes.
func (f *PositionFeed) WatchPositions(ctx context.Context) (<-chan domain.Position, error) {
	ch := make(chan domain.Position, 16)
	f.mu.Lock()
	f.watchers[ch] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.watchers, ch)
		close(ch)
		f.mu.Unlock()
	}()
	return ch, nil
}

// Update records a fix and hands it to waiters and watchers.
func (f *PositionFeed) Update(pos domain.Position) error {
	if !pos.Valid() {
		return fmt.Errorf("invalid position (%f, %f)", pos.Lat, pos.Lon)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.last = &fix{pos: pos, at: f.clock.Now()}
	for ch := range f.waiters {
		ch <- fixResult{pos: pos}
		delete(f.waiters, ch)
	}
	for ch := range f.watchers {
		select {
		case ch <- pos:
		default:
		}
	}
	return nil
}

// ReportError fails every pending single-shot request with err.
func (f *PositionFeed) ReportError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.waiters {
		ch <- fixResult{err: err}
		delete(f.waiters, ch)
	}
}

func (f *PositionFeed) dropWaiter(ch chan fixResult) {
	f.mu.Lock()
	delete(f.waiters, ch)
	f.mu.Unlock()
}

func (f *PositionFeed) deviceList() []*conn {
	out := make([]*conn, 0, len(f.devices))
	for d := range f.devices {
		out = append(out, d)
	}
	return out
}

// ServeHTTP upgrades a device connection and reads fixes until it closes.
func (f *PositionFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("device websocket upgrade failed", "error", err)
		return
	}
	c := &conn{ws: wsConn}
	defer func() { _ = wsConn.Close() }()

	f.mu.Lock()
	f.devices[c] = struct{}{}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		delete(f.devices, c)
		f.mu.Unlock()
	}()

	f.logger.Info("device connected", "remote", r.RemoteAddr)

	wsConn.SetReadLimit(readLimit)
	_ = wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error { return wsConn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		var msg deviceMessage
		if err := wsConn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				f.logger.Warn("device connection lost", "error", err)
			}
			return
		}
		_ = wsConn.SetReadDeadline(time.Now().Add(pongWait))
		f.handle(c, msg)
	}
}

func (f *PositionFeed) handle(c *conn, msg deviceMessage) {
	switch {
	case msg.Error != "":
		err := deviceError(msg.Error)
		f.logger.Warn("device reported positioning error", "error", err)
		f.ReportError(err)
	case msg.Lat != nil && msg.Lon != nil:
		if err := f.Update(domain.Position{Lat: *msg.Lat, Lon: *msg.Lon}); err != nil {
			_ = c.writeJSON(map[string]string{"type": "error", "message": err.Error()})
		}
	default:
		_ = c.writeJSON(map[string]string{"type": "error", "message": "expected lat/lon or error"})
	}
}

func deviceError(code string) error {
	switch code {
	case "permission_denied":
		return domain.ErrPermissionDenied
	case "timeout":
		return domain.ErrPositionTimeout
	default:
		return fmt.Errorf("%w: %s", domain.ErrNoFix, code)
	}
}
