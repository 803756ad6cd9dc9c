package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/saransh1220/blueprint-notify/internal/modules/notification/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inboundMock struct {
	mu          sync.Mutex
	markFn      func(context.Context, string, string) (bool, error)
	deleteFn    func(context.Context, string, string) (bool, error)
	markAllFn   func(context.Context, string) (int, error)
	listFn      func(context.Context, domain.Filter) ([]domain.Notification, error)
	lastFilter  domain.Filter
	lastUserIDs []string
}

func (m *inboundMock) record(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUserIDs = append(m.lastUserIDs, userID)
}

func (m *inboundMock) MarkAsRead(ctx context.Context, id, userID string) (bool, error) {
	m.record(userID)
	return m.markFn(ctx, id, userID)
}

func (m *inboundMock) DeleteNotification(ctx context.Context, id, userID string) (bool, error) {
	m.record(userID)
	return m.deleteFn(ctx, id, userID)
}

func (m *inboundMock) MarkAllAsRead(ctx context.Context, userID string) (int, error) {
	m.record(userID)
	return m.markAllFn(ctx, userID)
}

func (m *inboundMock) GetNotifications(ctx context.Context, f domain.Filter) ([]domain.Notification, error) {
	m.mu.Lock()
	m.lastFilter = f
	m.mu.Unlock()
	return m.listFn(ctx, f)
}

func dial(t *testing.T, hub *Hub, inbound Inbound, userID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, inbound, w, r, userID)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return hub.ConnectionCount(userID) > 0 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, body, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(body, &msg))
	return msg
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := encode(event, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func readError(t *testing.T, conn *websocket.Conn) ErrorPayload {
	t.Helper()
	msg := readMessage(t, conn)
	require.Equal(t, domain.EventError, msg.Type)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Data, &p))
	return p
}

func TestServeWs_EndToEndUnicast(t *testing.T) {
	hub := newTestHub()
	go hub.Run()
	defer hub.Stop()

	conn := dial(t, hub, &inboundMock{}, "user-1")

	n := domain.Notification{ID: "n1", UserID: "user-1", Type: domain.NotificationTypeInfo, Title: "T", Message: "M"}
	require.NoError(t, hub.SendNotificationToUser("user-1", n))

	msg := readMessage(t, conn)
	assert.Equal(t, domain.EventNotification, msg.Type)
	var got domain.Notification
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "T", got.Title)
	assert.Equal(t, "M", got.Message)
}

func TestServeWs_PingPong(t *testing.T) {
	hub := newTestHub()
	go hub.Run()
	defer hub.Stop()

	conn := dial(t, hub, &inboundMock{}, "u1")
	send(t, conn, domain.EventPing, nil)
	assert.Equal(t, domain.EventPong, readMessage(t, conn).Type)
}

func TestServeWs_InboundUsesBoundUser(t *testing.T) {
	hub := newTestHub()
	go hub.Run()
	defer hub.Stop()

	inbound := &inboundMock{
		markFn: func(context.Context, string, string) (bool, error) { return true, nil },
		listFn: func(_ context.Context, f domain.Filter) ([]domain.Notification, error) {
			return []domain.Notification{{ID: "n1", UserID: *f.UserID}}, nil
		},
	}
	conn := dial(t, hub, inbound, "bound-user")

	send(t, conn, domain.EventGetNotifications, map[string]any{"userId": "someone-else", "limit": 500})
	msg := readMessage(t, conn)
	require.Equal(t, domain.EventNotifications, msg.Type)
	var items []domain.Notification
	require.NoError(t, json.Unmarshal(msg.Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "bound-user", items[0].UserID)

	inbound.mu.Lock()
	assert.Equal(t, "bound-user", *inbound.lastFilter.UserID)
	assert.Equal(t, maxListLimit, inbound.lastFilter.Limit)
	inbound.mu.Unlock()

	send(t, conn, domain.EventMarkNotificationRead, "n1")
	assert.Eventually(t, func() bool {
		inbound.mu.Lock()
		defer inbound.mu.Unlock()
		return len(inbound.lastUserIDs) == 1 && inbound.lastUserIDs[0] == "bound-user"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServeWs_InboundFailuresReplyOnConnection(t *testing.T) {
	hub := newTestHub()
	go hub.Run()
	defer hub.Stop()

	inbound := &inboundMock{
		markFn: func(_ context.Context, id, _ string) (bool, error) {
			if id == "theirs" {
				return false, &domain.AuthorizationError{Action: domain.ActionMarkAsRead}
			}
			return false, nil
		},
		deleteFn: func(context.Context, string, string) (bool, error) {
			return false, &domain.AuthorizationError{Action: domain.ActionDelete}
		},
	}
	conn := dial(t, hub, inbound, "u1")

	send(t, conn, domain.EventMarkNotificationRead, "missing")
	p := readError(t, conn)
	assert.Equal(t, codeNotFound, p.Code)
	assert.Equal(t, "missing", p.Ref)

	send(t, conn, domain.EventMarkNotificationRead, map[string]string{"id": "theirs"})
	p = readError(t, conn)
	assert.Equal(t, codeUnauthorized, p.Code)
	assert.Equal(t, "Unauthorized to mark this notification as read", p.Message)

	send(t, conn, domain.EventDeleteNotification, "theirs")
	p = readError(t, conn)
	assert.Equal(t, "Unauthorized to delete this notification", p.Message)

	send(t, conn, domain.EventMarkNotificationRead, "")
	assert.Equal(t, codeBadRequest, readError(t, conn).Code)

	send(t, conn, "shout", nil)
	assert.Equal(t, codeUnknownEvent, readError(t, conn).Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, codeBadRequest, readError(t, conn).Code)
}

func TestServeWs_DisconnectRemovesBinding(t *testing.T) {
	hub := newTestHub()
	go hub.Run()
	defer hub.Stop()

	conn := dial(t, hub, &inboundMock{}, "u1")
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool { return hub.ConnectionCount("u1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServeWs_UpgradeFailure(t *testing.T) {
	hub := newTestHub()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	w := httptest.NewRecorder()

	ServeWs(hub, &inboundMock{}, w, req, "u1")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServeWs_RejectsDisallowedOrigin(t *testing.T) {
	hub := NewHub(Settings{AllowedOrigins: []string{"https://app.example.com"}}, newTestHub().logger)
	go hub.Run()
	defer hub.Stop()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, &inboundMock{}, w, r, "u1")
	}))
	defer srv.Close()

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
