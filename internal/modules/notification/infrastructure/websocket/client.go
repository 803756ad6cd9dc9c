package websocket

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/saransh1220/blueprint-notify/internal/modules/notification/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
	inboundTimeout   = 5 * time.Second
)

// Inbound handles client-originated requests. The user id passed in is always
// the one bound at handshake time.
type Inbound interface {
	MarkAsRead(ctx context.Context, id, userID string) (bool, error)
	DeleteNotification(ctx context.Context, id, userID string) (bool, error)
	MarkAllAsRead(ctx context.Context, userID string) (int, error)
	GetNotifications(ctx context.Context, filter domain.Filter) ([]domain.Notification, error)
}

var clientIDCounter atomic.Uint64

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	id      uint64
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	userID  string
	inbound Inbound
	logger  zerolog.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, userID string, inbound Inbound) *Client {
	id := clientIDCounter.Add(1)
	return &Client{
		id:      id,
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, hub.settings.SendBuffer),
		done:    make(chan struct{}),
		userID:  userID,
		inbound: inbound,
		logger:  hub.logger.With().Uint64("client_id", id).Str("user_id", userID).Logger(),
	}
}

// enqueue never blocks. It reports false when the buffer is full or the client is closed.
func (c *Client) enqueue(message []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Client) readPump() {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stop:
		}
		c.close()
		_ = c.conn.Close()
	}()

	settings := c.hub.settings
	c.conn.SetReadLimit(settings.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(settings.PongWait)); err != nil {
		c.logger.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(settings.PongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("unexpected websocket close")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.replyError(codeBadRequest, "malformed message", "")
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *Client) handle(ctx context.Context, msg Message) {
	ctx, cancel := context.WithTimeout(ctx, inboundTimeout)
	defer cancel()

	switch msg.Type {
	case domain.EventPing:
		c.reply(domain.EventPong, nil)

	case domain.EventMarkNotificationRead:
		id, ok := c.decodeID(msg)
		if !ok {
			return
		}
		found, err := c.inbound.MarkAsRead(ctx, id, c.userID)
		c.replyMutation(found, err, id)

	case domain.EventDeleteNotification:
		id, ok := c.decodeID(msg)
		if !ok {
			return
		}
		found, err := c.inbound.DeleteNotification(ctx, id, c.userID)
		c.replyMutation(found, err, id)

	case domain.EventMarkAllRead:
		if _, err := c.inbound.MarkAllAsRead(ctx, c.userID); err != nil {
			c.logger.Error().Err(err).Msg("mark all read failed")
			c.replyError(codeInternal, "could not mark notifications as read", "")
		}

	case domain.EventGetNotifications:
		var lf listFilter
		if len(msg.Data) > 0 && string(msg.Data) != "null" {
			if err := json.Unmarshal(msg.Data, &lf); err != nil {
				c.replyError(codeBadRequest, "malformed filter", "")
				return
			}
		}
		items, err := c.inbound.GetNotifications(ctx, c.scopedFilter(lf))
		if err != nil {
			if errors.Is(err, domain.ErrInvalidFilter) {
				c.replyError(codeBadRequest, err.Error(), "")
				return
			}
			c.logger.Error().Err(err).Msg("get notifications failed")
			c.replyError(codeInternal, "could not load notifications", "")
			return
		}
		c.reply(domain.EventNotifications, items)

	default:
		c.replyError(codeUnknownEvent, "unknown event "+msg.Type, "")
	}
}

func (c *Client) scopedFilter(lf listFilter) domain.Filter {
	userID := c.userID
	limit := lf.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return domain.Filter{UserID: &userID, Type: lf.Type, Read: lf.Read, Limit: limit, Offset: lf.Offset}
}

// decodeID accepts either a bare JSON string or {"id": "..."}.
func (c *Client) decodeID(msg Message) (string, bool) {
	var id string
	if err := json.Unmarshal(msg.Data, &id); err != nil {
		var obj domain.ReadEcho
		if err := json.Unmarshal(msg.Data, &obj); err != nil {
			c.replyError(codeBadRequest, "notification id is required", "")
			return "", false
		}
		id = obj.ID
	}
	id = strings.TrimSpace(id)
	if id == "" {
		c.replyError(codeBadRequest, "notification id is required", "")
		return "", false
	}
	return id, true
}

// replyMutation only answers failures; success is echoed to every connection
// of the user by the service.
func (c *Client) replyMutation(found bool, err error, id string) {
	var authErr *domain.AuthorizationError
	switch {
	case errors.As(err, &authErr):
		c.logger.Warn().Str("notification_id", id).Msg(authErr.Error())
		c.replyError(codeUnauthorized, authErr.Error(), id)
	case err != nil:
		c.logger.Error().Err(err).Str("notification_id", id).Msg("inbound request failed")
		c.replyError(codeInternal, "request failed", id)
	case !found:
		c.replyError(codeNotFound, domain.ErrNotificationNotFound.Error(), id)
	}
}

func (c *Client) replyError(code, message, ref string) {
	c.reply(domain.EventError, ErrorPayload{Code: code, Message: message, Ref: ref})
}

func (c *Client) reply(event string, payload any) {
	msg, err := encode(event, payload)
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("encode reply failed")
		return
	}
	if !c.enqueue(msg) {
		c.logger.Warn().Str("event", event).Msg("reply dropped")
	}
}

func (c *Client) writePump() {
	settings := c.hub.settings
	ticker := time.NewTicker(settings.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(settings.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(settings.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(settings.WriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (h *Hub) upgrader() websocket.Upgrader {
	allowed := h.settings.AllowedOrigins
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowed) == 0 {
				return true
			}
			for _, o := range allowed {
				if o == "*" || strings.EqualFold(strings.TrimSpace(o), origin) {
					return true
				}
			}
			return false
		},
	}
}

// ServeWs upgrades an authenticated request and joins the connection to the
// user's room. userID must come from the verified credential.
func ServeWs(hub *Hub, inbound Inbound, w http.ResponseWriter, r *http.Request, userID string) {
	up := hub.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn().Err(err).Str("user_id", userID).Msg("websocket upgrade failed")
		return
	}

	client := newClient(hub, conn, userID, inbound)
	select {
	case hub.register <- client:
	case <-hub.stop:
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
