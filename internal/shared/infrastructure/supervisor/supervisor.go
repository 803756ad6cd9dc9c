package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

type Config struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree supervises the long-running pieces of the server: the realtime hub,
// the expiry sweeper, the audit sink worker and the HTTP server.
type Tree struct {
	root       *suture.Supervisor
	background *suture.Supervisor
	api        *suture.Supervisor
}

func New(name string, logger zerolog.Logger, cfg Config) *Tree {
	d := DefaultConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = d.FailureThreshold
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = d.FailureDecay
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = d.FailureBackoff
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = d.ShutdownTimeout
	}

	spec := suture.Spec{
		EventHook:        EventHook(logger),
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	childSpec := spec
	childSpec.EventHook = nil

	root := suture.New(name, spec)
	background := suture.New("background", childSpec)
	api := suture.New("api", childSpec)
	root.Add(background)
	root.Add(api)

	return &Tree{root: root, background: background, api: api}
}

// EventHook logs supervisor events through zerolog.
func EventHook(logger zerolog.Logger) suture.EventHook {
	return func(e suture.Event) {
		evt := logger.Warn()
		if e.Type() == suture.EventTypeServicePanic {
			evt = logger.Error()
		}
		evt.Fields(e.Map()).Msg(e.String())
	}
}

func (t *Tree) AddBackground(svc suture.Service) suture.ServiceToken {
	return t.background.Add(svc)
}

func (t *Tree) AddAPI(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
