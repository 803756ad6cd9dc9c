package notifyclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateDisconnected
	// StateFailed means reconnect attempts are exhausted. The channel stays
	// down until Connect is called again.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	DefaultMaxAttempts = 5
	DefaultRetryDelay  = time.Second
)

type Options struct {
	// BaseURL is the server root, e.g. "https://api.example.com".
	BaseURL    string
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	// MaxAttempts bounds reconnects after one connection is lost, and dials
	// during Connect. Defaults to DefaultMaxAttempts.
	MaxAttempts int
	Backoff     Backoff

	OnAlert        func(Alert)
	OnAnnouncement func(Alert)
	OnStateChange  func(State)
	OnServerError  func(ServerError)

	Logger *zerolog.Logger
}

// Channel is safe for concurrent use.
type Channel struct {
	opts   Options
	cache  *cache
	logger zerolog.Logger

	mu     sync.Mutex
	token  string
	state  State
	conn   *websocket.Conn
	gen    uint64
	timer  *time.Timer
	ctx    context.Context
	cancel context.CancelFunc

	// Callbacks run in order, one at a time, never under mu. Whichever
	// goroutine finds the queue idle drains it, so a callback may call back
	// into the channel.
	cbMu      sync.Mutex
	cbQueue   []func()
	cbRunning bool
}

func New(opts Options) *Channel {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Backoff == nil {
		opts.Backoff = FixedBackoff(DefaultRetryDelay)
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Channel{
		opts:   opts,
		cache:  newCache(),
		logger: logger.With().Str("component", "notifyclient").Logger(),
	}
}

// Connect opens the realtime connection with token, retrying up to
// MaxAttempts times, then loads the cache over REST. userID only labels
// logs; the server binds the connection to the token's subject.
func (c *Channel) Connect(ctx context.Context, userID, token string) error {
	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateConnected, StateReconnecting:
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.token = token
	c.ctx, c.cancel = context.WithCancel(context.Background())
	lifetime := c.ctx
	c.state = StateConnecting
	c.mu.Unlock()
	c.emitState(StateConnecting)
	c.logger.Debug().Str("user_id", userID).Msg("connecting")

	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				c.abort(lifetime, StateDisconnected)
				return ctx.Err()
			case <-lifetime.Done():
				return ErrNotConnected
			case <-time.After(c.opts.Backoff(attempt - 1)):
			}
		}

		conn, err := c.dial(ctx, lifetime)
		if err == nil {
			if !c.attach(lifetime, conn) {
				return ErrNotConnected
			}
			if err := c.Refresh(ctx); err != nil {
				c.logger.Warn().Err(err).Msg("initial refresh failed")
			}
			return nil
		}
		if lifetime.Err() != nil {
			return ErrNotConnected
		}
		lastErr = err
		c.logger.Debug().Err(err).Int("attempt", attempt).Msg("dial failed")
		if isAuthFailure(err) {
			break
		}
	}

	if !c.abort(lifetime, StateFailed) {
		return ErrNotConnected
	}
	return fmt.Errorf("%w: %w", ErrConnectFailed, lastErr)
}

// Disconnect closes the connection and cancels any pending reconnect. It is
// a no-op when the channel is not connected.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if c.cancel == nil {
		c.mu.Unlock()
		return
	}
	conn := c.teardown()
	changed := c.state != StateDisconnected
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	if changed {
		c.emitState(StateDisconnected)
	}
}

// IsConnected reports whether a live connection is attached right now.
func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.state == StateConnected
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Notifications returns the cached notifications, newest first.
func (c *Channel) Notifications() []Notification {
	return c.cache.list()
}

func (c *Channel) Notification(id string) (Notification, bool) {
	return c.cache.get(id)
}

func (c *Channel) Stats() Stats {
	return c.cache.stats()
}

func (c *Channel) UnreadCount() int {
	return c.cache.stats().Unread
}

func (c *Channel) credentials() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Channel) wsURL() (string, error) {
	u, err := url.Parse(c.opts.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

type dialError struct {
	status int
	err    error
}

func (e *dialError) Error() string {
	if e.status != 0 {
		return fmt.Sprintf("websocket dial failed (HTTP %d): %v", e.status, e.err)
	}
	return fmt.Sprintf("websocket dial: %v", e.err)
}

func (e *dialError) Unwrap() error { return e.err }

func isAuthFailure(err error) bool {
	de, ok := err.(*dialError)
	return ok && (de.status == http.StatusUnauthorized || de.status == http.StatusForbidden)
}

// dial opens a connection for session. It is abandoned as soon as either ctx
// or session is done.
func (c *Channel) dial(ctx, session context.Context) (*websocket.Conn, error) {
	target, err := c.wsURL()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	header := http.Header{"Authorization": []string{"Bearer " + c.token}}
	c.mu.Unlock()

	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(session, cancel)
	defer stop()

	conn, resp, err := c.opts.Dialer.DialContext(dialCtx, target, header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		de := &dialError{err: err}
		if resp != nil {
			de.status = resp.StatusCode
		}
		return nil, de
	}
	return conn, nil
}

// live reports whether session is the channel's current session. Callers
// hold mu.
func (c *Channel) live(session context.Context) bool {
	return c.cancel != nil && c.ctx == session && session.Err() == nil
}

// attach installs conn as the live connection of session and starts its
// reader. It returns false, closing conn, if session is no longer current.
func (c *Channel) attach(session context.Context, conn *websocket.Conn) bool {
	c.mu.Lock()
	if !c.live(session) || c.conn != nil {
		c.mu.Unlock()
		_ = conn.Close()
		return false
	}
	c.gen++
	gen := c.gen
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	c.logger.Info().Uint64("generation", gen).Msg("connected")
	go c.readLoop(conn, gen)
	c.emitState(StateConnected)
	return true
}

func (c *Channel) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen
}

// teardown clears connection state. Callers hold mu.
func (c *Channel) teardown() *websocket.Conn {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	conn := c.conn
	c.conn = nil
	c.gen++
	return conn
}

// abort ends session in state final. It reports false, changing nothing, when
// session was already replaced or disconnected.
func (c *Channel) abort(session context.Context, final State) bool {
	c.mu.Lock()
	if c.cancel == nil || c.ctx != session {
		c.mu.Unlock()
		return false
	}
	conn := c.teardown()
	c.state = final
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	c.emitState(final)
	return true
}

func (c *Channel) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.lost(conn, gen, err)
			return
		}
		if !c.current(gen) {
			_ = conn.Close()
			return
		}
		var msg envelope
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("malformed server message")
			continue
		}
		c.handle(msg)
	}
}

// lost starts reconnecting when the current connection drops unexpectedly.
func (c *Channel) lost(conn *websocket.Conn, gen uint64, err error) {
	_ = conn.Close()

	c.mu.Lock()
	if gen != c.gen || c.cancel == nil {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	session := c.ctx
	c.mu.Unlock()

	c.logger.Warn().Err(err).Msg("connection lost")
	c.scheduleReconnect(session, 1)
}

func (c *Channel) scheduleReconnect(session context.Context, attempt int) {
	c.mu.Lock()
	if !c.live(session) {
		c.mu.Unlock()
		return
	}
	if attempt > c.opts.MaxAttempts {
		c.mu.Unlock()
		c.logger.Error().Int("attempts", c.opts.MaxAttempts).Msg("giving up reconnecting")
		c.abort(session, StateFailed)
		return
	}
	gen := c.gen
	changed := c.state != StateReconnecting
	c.state = StateReconnecting
	c.timer = time.AfterFunc(c.opts.Backoff(attempt), func() { c.reconnect(session, attempt, gen) })
	c.mu.Unlock()

	if changed {
		c.emitState(StateReconnecting)
	}
}

func (c *Channel) reconnect(session context.Context, attempt int, gen uint64) {
	c.mu.Lock()
	if !c.live(session) || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	conn, err := c.dial(session, session)
	if err != nil {
		c.logger.Debug().Err(err).Int("attempt", attempt).Msg("reconnect failed")
		if session.Err() != nil {
			return
		}
		c.scheduleReconnect(session, attempt+1)
		return
	}
	if !c.attach(session, conn) {
		return
	}
	if err := c.Refresh(session); err != nil {
		c.logger.Warn().Err(err).Msg("refresh after reconnect failed")
	}
}

func (c *Channel) handle(msg envelope) {
	switch msg.Type {
	case eventNotification:
		var n Notification
		if err := json.Unmarshal(msg.Data, &n); err != nil || n.ID == "" {
			c.logger.Warn().Err(err).Msg("malformed notification event")
			return
		}
		if !c.cache.add(n) {
			return
		}
		if c.opts.OnAlert != nil {
			c.emit(func() { c.opts.OnAlert(AlertFor(n)) })
		}

	case eventSystemAnnouncement:
		var message string
		if err := json.Unmarshal(msg.Data, &message); err != nil {
			c.logger.Warn().Err(err).Msg("malformed announcement event")
			return
		}
		if c.opts.OnAnnouncement != nil {
			c.emit(func() { c.opts.OnAnnouncement(AnnouncementAlert(message)) })
		}

	case eventNotificationRead:
		var p idPayload
		if json.Unmarshal(msg.Data, &p) == nil {
			c.cache.markRead(p.ID)
		}

	case eventNotificationsReadAll:
		c.cache.markAllRead()

	case eventNotificationDeleted:
		var p idPayload
		if json.Unmarshal(msg.Data, &p) == nil {
			c.cache.remove(p.ID)
		}

	case eventNotifications:
		var items []Notification
		if json.Unmarshal(msg.Data, &items) == nil {
			for _, n := range items {
				c.cache.add(n)
			}
		}

	case eventError:
		var se ServerError
		if err := json.Unmarshal(msg.Data, &se); err != nil {
			return
		}
		c.logger.Warn().Str("code", se.Code).Str("ref", se.Ref).Msg(se.Message)
		if c.opts.OnServerError != nil {
			c.emit(func() { c.opts.OnServerError(se) })
		}

	case eventPong:

	default:
		c.logger.Debug().Str("event", msg.Type).Msg("ignoring unknown event")
	}
}

func (c *Channel) emitState(s State) {
	if c.opts.OnStateChange != nil {
		c.emit(func() { c.opts.OnStateChange(s) })
	}
}

func (c *Channel) emit(fn func()) {
	c.cbMu.Lock()
	c.cbQueue = append(c.cbQueue, fn)
	if c.cbRunning {
		c.cbMu.Unlock()
		return
	}
	c.cbRunning = true
	for len(c.cbQueue) > 0 {
		next := c.cbQueue[0]
		c.cbQueue[0] = nil
		c.cbQueue = c.cbQueue[1:]
		c.cbMu.Unlock()
		c.run(next)
		c.cbMu.Lock()
	}
	c.cbRunning = false
	c.cbMu.Unlock()
}

func (c *Channel) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("callback panicked")
		}
	}()
	fn()
}
