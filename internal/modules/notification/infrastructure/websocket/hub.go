package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/saransh1220/blueprint-notify/internal/modules/notification/domain"
	"github.com/thejerf/suture/v4"
)

var (
	ErrHubStopped = errors.New("realtime hub stopped")
	ErrHubBusy    = errors.New("realtime hub queue full")
)

// Settings tunes connection behaviour. Zero values fall back to defaults.
type Settings struct {
	SendBuffer     int
	QueueSize      int
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
	AllowedOrigins []string
}

func DefaultSettings() Settings {
	return Settings{
		SendBuffer:     256,
		QueueSize:      1024,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		MaxMessageSize: 64 * 1024,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.SendBuffer <= 0 {
		s.SendBuffer = d.SendBuffer
	}
	if s.QueueSize <= 0 {
		s.QueueSize = d.QueueSize
	}
	if s.WriteWait <= 0 {
		s.WriteWait = d.WriteWait
	}
	if s.PongWait <= 0 {
		s.PongWait = d.PongWait
	}
	if s.MaxMessageSize <= 0 {
		s.MaxMessageSize = d.MaxMessageSize
	}
	return s
}

func (s Settings) pingPeriod() time.Duration {
	return (s.PongWait * 9) / 10
}

type UnicastMessage struct {
	UserID  string
	Message []byte
}

type countRequest struct {
	userID string
	reply  chan int
}

// Hub maintains the set of joined clients, indexed by user, and fans
// messages out to them. All client bookkeeping happens on the Run goroutine.
type Hub struct {
	clients map[*Client]bool
	byUser  map[string]map[*Client]struct{}

	broadcast  chan []byte
	unicast    chan UnicastMessage
	register   chan *Client
	unregister chan *Client
	counts     chan countRequest

	stop     chan struct{}
	stopOnce sync.Once

	settings Settings
	logger   zerolog.Logger
}

func NewHub(settings Settings, logger zerolog.Logger) *Hub {
	settings = settings.withDefaults()
	return &Hub{
		clients:    make(map[*Client]bool),
		byUser:     make(map[string]map[*Client]struct{}),
		broadcast:  make(chan []byte, settings.QueueSize),
		unicast:    make(chan UnicastMessage, settings.QueueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		counts:     make(chan countRequest),
		stop:       make(chan struct{}),
		settings:   settings,
		logger:     logger,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.add(client)
			h.logger.Debug().Str("user_id", client.userID).Uint64("client_id", client.id).Msg("client joined")
		case client := <-h.unregister:
			if h.remove(client) {
				h.logger.Debug().Str("user_id", client.userID).Uint64("client_id", client.id).Msg("client left")
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				h.deliver(client, message)
			}
		case msg := <-h.unicast:
			targets := h.byUser[msg.UserID]
			if len(targets) == 0 {
				realtimeDeliveries.WithLabelValues(resultNoConnections).Inc()
				continue
			}
			for client := range targets {
				h.deliver(client, msg.Message)
			}
		case req := <-h.counts:
			if req.userID == "" {
				req.reply <- len(h.clients)
			} else {
				req.reply <- len(h.byUser[req.userID])
			}
		case <-h.stop:
			h.logger.Info().Int("clients", len(h.clients)).Msg("stopping realtime hub")
			for client := range h.clients {
				h.remove(client)
			}
			return
		}
	}
}

// Serve runs the hub until ctx is cancelled. It satisfies suture.Service; a
// hub stopped directly is not restarted.
func (h *Hub) Serve(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			h.Stop()
		case <-h.stop:
		}
	}()
	h.Run()
	if err := ctx.Err(); err != nil {
		return err
	}
	return suture.ErrDoNotRestart
}

func (h *Hub) String() string { return "realtime-hub" }

func (h *Hub) add(client *Client) {
	h.clients[client] = true
	set, ok := h.byUser[client.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.byUser[client.userID] = set
	}
	set[client] = struct{}{}
	realtimeConnections.Inc()
}

func (h *Hub) remove(client *Client) bool {
	if _, ok := h.clients[client]; !ok {
		return false
	}
	delete(h.clients, client)
	if set, ok := h.byUser[client.userID]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.byUser, client.userID)
		}
	}
	client.close()
	realtimeConnections.Dec()
	return true
}

// deliver never blocks; a client whose buffer is full is dropped so one slow
// consumer cannot stall the others.
func (h *Hub) deliver(client *Client, message []byte) {
	if client.enqueue(message) {
		realtimeDeliveries.WithLabelValues(resultDelivered).Inc()
		return
	}
	realtimeDeliveries.WithLabelValues(resultDropped).Inc()
	h.logger.Warn().Str("user_id", client.userID).Uint64("client_id", client.id).Msg("dropping slow client")
	h.remove(client)
}

func (h *Hub) BroadcastMessage(message []byte) error {
	select {
	case <-h.stop:
		return ErrHubStopped
	default:
	}
	select {
	case h.broadcast <- message:
		return nil
	case <-h.stop:
		return ErrHubStopped
	default:
		return ErrHubBusy
	}
}

// SendToUser queues message for every connection bound to userID. It does not
// wait for delivery; zero live connections is not an error.
func (h *Hub) SendToUser(userID string, message []byte) error {
	select {
	case <-h.stop:
		return ErrHubStopped
	default:
	}
	select {
	case h.unicast <- UnicastMessage{UserID: userID, Message: message}:
		return nil
	case <-h.stop:
		return ErrHubStopped
	default:
		return ErrHubBusy
	}
}

func (h *Hub) SendNotificationToUser(userID string, n domain.Notification) error {
	return h.SendEventToUser(userID, domain.EventNotification, n)
}

func (h *Hub) SendEventToUser(userID, event string, payload any) error {
	msg, err := encode(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	return h.SendToUser(userID, msg)
}

func (h *Hub) BroadcastAnnouncement(message string) error {
	msg, err := encode(domain.EventSystemAnnouncement, message)
	if err != nil {
		return fmt.Errorf("encode announcement: %w", err)
	}
	return h.BroadcastMessage(msg)
}

// ConnectionCount reports joined connections for userID, or all of them when
// userID is empty. It returns 0 once the hub has stopped.
func (h *Hub) ConnectionCount(userID string) int {
	req := countRequest{userID: userID, reply: make(chan int, 1)}
	select {
	case h.counts <- req:
		return <-req.reply
	case <-h.stop:
		return 0
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
}
