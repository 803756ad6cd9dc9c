package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/saransh1220/blueprint-notify/internal/gateway/middleware"
	"github.com/saransh1220/blueprint-notify/internal/modules/notification/application"
	"github.com/saransh1220/blueprint-notify/internal/modules/notification/domain"
	"github.com/saransh1220/blueprint-notify/internal/modules/notification/infrastructure/websocket"
	"github.com/saransh1220/blueprint-notify/internal/shared/infrastructure/logging"
	"github.com/saransh1220/blueprint-notify/internal/shared/utils"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
	maxBodyBytes     = 1 << 20
)

type NotificationHandler struct {
	service      *application.NotificationService
	hub          *websocket.Hub
	logger       zerolog.Logger
	defaultLimit int
	maxLimit     int
}

type HandlerOption func(*NotificationHandler)

// WithListLimits overrides the default and maximum page size for list requests.
func WithListLimits(defaultLimit, maxLimit int) HandlerOption {
	return func(h *NotificationHandler) {
		if defaultLimit > 0 {
			h.defaultLimit = defaultLimit
		}
		if maxLimit > 0 {
			h.maxLimit = maxLimit
		}
	}
}

func NewNotificationHandler(service *application.NotificationService, hub *websocket.Hub, logger zerolog.Logger, opts ...HandlerOption) *NotificationHandler {
	h := &NotificationHandler{
		service:      service,
		hub:          hub,
		logger:       logger,
		defaultLimit: defaultListLimit,
		maxLimit:     maxListLimit,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type createRequest struct {
	UserID string `json:"userId"`
	application.CreatePayload
}

type systemRequest struct {
	application.SystemPayload
	UserIDs []string `json:"userIds"`
}

type announcementRequest struct {
	Message string `json:"message"`
}

// Subscribe upgrades the request to a realtime connection bound to the caller.
func (h *NotificationHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	websocket.ServeWs(h.hub, h.service, w, r, userID)
}

func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}

	var req createRequest
	if !h.decode(w, r, &req) {
		return
	}

	n, err := h.service.Create(r.Context(), strings.TrimSpace(req.UserID), req.CreatePayload)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to create notification")
		return
	}
	utils.WriteJSON(w, http.StatusCreated, n)
}

func (h *NotificationHandler) CreateSystem(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}

	var req systemRequest
	if !h.decode(w, r, &req) {
		return
	}

	created, err := h.service.CreateSystemNotification(r.Context(), req.SystemPayload, req.UserIDs)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to create system notification")
		return
	}
	utils.WriteJSON(w, http.StatusCreated, map[string]any{"data": created})
}

func (h *NotificationHandler) Announce(w http.ResponseWriter, r *http.Request) {
	var req announcementRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.BroadcastAnnouncement(r.Context(), req.Message); err != nil {
		h.writeServiceError(w, r, err, "failed to broadcast announcement")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	filter, err := h.parseFilter(r, userID)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid query parameters", err)
		return
	}

	notifications, err := h.service.GetNotifications(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to fetch notifications")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{"data": notifications})
}

func (h *NotificationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	stats, err := h.service.GetNotificationStats(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to get notification stats")
		return
	}
	utils.WriteJSON(w, http.StatusOK, stats)
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	count, err := h.service.UnreadCount(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to get unread count")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	found, err := h.service.MarkAsRead(r.Context(), chi.URLParam(r, "id"), userID)
	h.writeMutation(w, r, found, err, "failed to mark notification as read")
}

func (h *NotificationHandler) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	count, err := h.service.MarkAllAsRead(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to mark all notifications as read")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	found, err := h.service.DeleteNotification(r.Context(), chi.URLParam(r, "id"), userID)
	h.writeMutation(w, r, found, err, "failed to delete notification")
}

func (h *NotificationHandler) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return "", false
	}
	return userID, true
}

func (h *NotificationHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}

func (h *NotificationHandler) parseFilter(r *http.Request, userID string) (domain.Filter, error) {
	q := r.URL.Query()
	filter := domain.Filter{UserID: &userID, Limit: h.defaultLimit}

	if v := q.Get("type"); v != "" {
		t := domain.NotificationType(v)
		filter.Type = &t
	}
	if v := q.Get("read"); v != "" {
		read, err := strconv.ParseBool(v)
		if err != nil {
			return domain.Filter{}, errors.New("read must be true or false")
		}
		filter.Read = &read
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return domain.Filter{}, errors.New("limit must be a positive integer")
		}
		filter.Limit = min(limit, h.maxLimit)
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return domain.Filter{}, errors.New("offset must be a non-negative integer")
		}
		filter.Offset = offset
	}
	return filter, nil
}

func (h *NotificationHandler) writeMutation(w http.ResponseWriter, r *http.Request, found bool, err error, failure string) {
	switch {
	case err != nil:
		h.writeServiceError(w, r, err, failure)
	case !found:
		utils.WriteError(w, http.StatusNotFound, domain.ErrNotificationNotFound.Error(), nil)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *NotificationHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, failure string) {
	var authErr *domain.AuthorizationError
	var createErr *domain.CreationError
	switch {
	case errors.As(err, &authErr):
		utils.WriteError(w, http.StatusForbidden, authErr.Error(), nil)
	case errors.As(err, &createErr):
		utils.WriteError(w, http.StatusBadRequest, createErr.Reason, nil)
	case errors.Is(err, domain.ErrInvalidFilter):
		utils.WriteError(w, http.StatusBadRequest, "invalid filter", err)
	default:
		logger := logging.FromContext(r.Context(), h.logger)
		logger.Error().Err(err).Str("path", r.URL.Path).Msg(failure)
		utils.WriteError(w, http.StatusInternalServerError, failure, nil)
	}
}
