package notification

import (
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/saransh1220/blueprint-notify/internal/modules/notification/application"
	"github.com/saransh1220/blueprint-notify/internal/modules/notification/domain"
	"github.com/saransh1220/blueprint-notify/internal/modules/notification/infrastructure/audit"
	"github.com/saransh1220/blueprint-notify/internal/modules/notification/infrastructure/instrument"
	"github.com/saransh1220/blueprint-notify/internal/modules/notification/infrastructure/memory"
	"github.com/saransh1220/blueprint-notify/internal/modules/notification/infrastructure/persistence/postgres"
	"github.com/saransh1220/blueprint-notify/internal/modules/notification/infrastructure/websocket"
	notification_http "github.com/saransh1220/blueprint-notify/internal/modules/notification/interfaces/http"
	"github.com/saransh1220/blueprint-notify/internal/shared/infrastructure/config"
	"github.com/saransh1220/blueprint-notify/internal/shared/infrastructure/logging"
	"github.com/thejerf/suture/v4"
)

var ErrMissingDependency = errors.New("notification module dependency missing")

// Deps are the external resources the module may use. DB is required for the
// postgres store and Redis for the redis audit sink.
type Deps struct {
	DB     *sqlx.DB
	Redis  audit.StreamAdder
	Logger zerolog.Logger
}

type Module struct {
	service  *application.NotificationService
	handler  *notification_http.NotificationHandler
	hub      *websocket.Hub
	sweeper  *application.Sweeper
	auditJob *audit.RedisStreamSink
}

func NewModule(cfg config.Config, deps Deps) (*Module, error) {
	logger := deps.Logger

	store, err := newStore(cfg.Store, deps)
	if err != nil {
		return nil, err
	}
	store = instrument.NewStore(store, logging.Component(logger, "store"))

	hub := websocket.NewHub(websocket.Settings{
		SendBuffer:     cfg.Realtime.SendBuffer,
		QueueSize:      cfg.Realtime.QueueSize,
		WriteWait:      cfg.Realtime.WriteWait,
		PongWait:       cfg.Realtime.PongWait,
		MaxMessageSize: cfg.Realtime.MaxMessageSize,
		AllowedOrigins: cfg.Server.Origins(),
	}, logging.Component(logger, "realtime"))

	m := &Module{hub: hub}

	sink, err := m.newAuditSink(cfg.Audit, deps)
	if err != nil {
		return nil, err
	}

	m.service = application.NewNotificationService(store,
		application.WithPublisher(hub),
		application.WithAuditSink(sink),
		application.WithLogger(logging.Component(logger, "notification-service")),
	)
	m.sweeper = application.NewSweeper(m.service, cfg.Store.SweepInterval, logging.Component(logger, "sweeper"))
	m.handler = notification_http.NewNotificationHandler(m.service, hub, logging.Component(logger, "notification-http"),
		notification_http.WithListLimits(cfg.Store.DefaultLimit, cfg.Store.MaxLimit),
	)
	return m, nil
}

func newStore(cfg config.StoreConfig, deps Deps) (domain.NotificationStore, error) {
	switch cfg.Driver {
	case config.StorePostgres:
		if deps.DB == nil {
			return nil, fmt.Errorf("%w: postgres store needs a database", ErrMissingDependency)
		}
		return postgres.NewNotificationStore(deps.DB), nil
	case config.StoreMemory, "":
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func (m *Module) newAuditSink(cfg config.AuditConfig, deps Deps) (application.AuditSink, error) {
	switch cfg.Sink {
	case config.AuditRedis:
		if deps.Redis == nil {
			return nil, fmt.Errorf("%w: redis audit sink needs a redis client", ErrMissingDependency)
		}
		m.auditJob = audit.NewRedisStreamSink(deps.Redis, audit.RedisStreamConfig{
			Stream: cfg.Stream,
			MaxLen: cfg.MaxLen,
			Buffer: cfg.Buffer,
		}, logging.Component(deps.Logger, "audit"))
		return m.auditJob, nil
	case config.AuditLog, "":
		return audit.NewLogSink(logging.Component(deps.Logger, "audit")), nil
	case config.AuditNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown audit sink %q", cfg.Sink)
	}
}

func (m *Module) HTTPHandler() *notification_http.NotificationHandler {
	return m.handler
}

func (m *Module) Service() *application.NotificationService {
	return m.service
}

func (m *Module) Hub() *websocket.Hub {
	return m.hub
}

// BackgroundServices returns the long-running workers the module needs supervised.
func (m *Module) BackgroundServices() []suture.Service {
	services := []suture.Service{m.hub, m.sweeper}
	if m.auditJob != nil {
		services = append(services, m.auditJob)
	}
	return services
}
