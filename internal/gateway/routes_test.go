package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/saransh1220/blueprint-notify/internal/gateway/middleware"
	"github.com/saransh1220/blueprint-notify/internal/modules/notification/application"
	"github.com/saransh1220/blueprint-notify/internal/modules/notification/domain"
	"github.com/saransh1220/blueprint-notify/internal/modules/notification/infrastructure/memory"
	"github.com/saransh1220/blueprint-notify/internal/modules/notification/infrastructure/websocket"
	notification_http "github.com/saransh1220/blueprint-notify/internal/modules/notification/interfaces/http"
	"github.com/saransh1220/blueprint-notify/internal/shared/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "routes-test-secret"

func newTestRoutes(t *testing.T, checks map[string]HealthCheck) (http.Handler, *application.NotificationService) {
	t.Helper()
	hub := websocket.NewHub(websocket.Settings{}, zerolog.Nop())
	go hub.Run()
	t.Cleanup(hub.Stop)

	svc := application.NewNotificationService(memory.NewStore(), application.WithPublisher(hub))
	handler := SetupRoutes(RouterConfig{
		Logger:              zerolog.Nop(),
		AuthMiddleware:      middleware.NewAuthMiddleware(testSecret),
		NotificationHandler: notification_http.NewNotificationHandler(svc, hub, zerolog.Nop()),
		HealthChecks:        checks,
	})
	return handler, svc
}

func bearer(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := utils.GenerateToken(userID, "", role, testSecret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func do(h http.Handler, method, path, auth, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestSetupRoutes_HealthCheck(t *testing.T) {
	h, _ := newTestRoutes(t, map[string]HealthCheck{
		"store": func(context.Context) error { return nil },
	})

	w := do(h, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"store":"ok"}}`, w.Body.String())
}

func TestSetupRoutes_HealthCheckDegraded(t *testing.T) {
	h, _ := newTestRoutes(t, map[string]HealthCheck{
		"redis": func(context.Context) error { return errors.New("dial tcp: refused") },
	})

	w := do(h, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
}

func TestSetupRoutes_MetricsEndpoint(t *testing.T) {
	h, _ := newTestRoutes(t, nil)

	do(h, http.MethodGet, "/health", "", "")
	w := do(h, http.MethodGet, "/metrics", "", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestSetupRoutes_NotificationsRequireAuth(t *testing.T) {
	h, _ := newTestRoutes(t, nil)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/notifications"},
		{http.MethodPost, "/notifications"},
		{http.MethodGet, "/notifications/stats"},
		{http.MethodPatch, "/notifications/abc/read"},
		{http.MethodDelete, "/notifications/abc"},
		{http.MethodGet, "/ws"},
	} {
		w := do(h, tc.method, tc.path, "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", tc.method, tc.path)
	}
}

func TestSetupRoutes_NotificationLifecycle(t *testing.T) {
	h, _ := newTestRoutes(t, nil)
	producer := bearer(t, "producer", "user")
	owner := bearer(t, "owner", "user")

	w := do(h, http.MethodPost, "/notifications", producer, `{"userId":"owner","type":"warning","title":"Disk","message":"Almost full"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created domain.Notification
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = do(h, http.MethodGet, "/notifications/unread-count", owner, "")
	assert.JSONEq(t, `{"count":1}`, w.Body.String())

	w = do(h, http.MethodPatch, "/notifications/"+created.ID+"/read", producer, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(h, http.MethodPatch, "/notifications/"+created.ID+"/read", owner, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(h, http.MethodGet, "/notifications?read=true", owner, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data []domain.Notification `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	assert.True(t, list.Data[0].Read)

	w = do(h, http.MethodPatch, "/notifications/read-all", owner, "")
	assert.JSONEq(t, `{"count":0}`, w.Body.String())

	w = do(h, http.MethodDelete, "/notifications/"+created.ID, owner, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(h, http.MethodDelete, "/notifications/"+created.ID, owner, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetupRoutes_AnnouncementsAdminOnly(t *testing.T) {
	h, _ := newTestRoutes(t, nil)

	w := do(h, http.MethodPost, "/notifications/announcements", bearer(t, "u1", "user"), `{"message":"hi"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(h, http.MethodPost, "/notifications/announcements", bearer(t, "root", middleware.RoleAdmin), `{"message":"hi"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
}
