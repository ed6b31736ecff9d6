package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/presenced/internal/bridge"
	"github.com/dokzlo13/presenced/internal/config"
	"github.com/dokzlo13/presenced/internal/db"
	"github.com/dokzlo13/presenced/internal/eventbus"
	"github.com/dokzlo13/presenced/internal/feed"
	"github.com/dokzlo13/presenced/internal/hue"
	"github.com/dokzlo13/presenced/internal/kv"
	"github.com/dokzlo13/presenced/internal/proximity"
	"github.com/dokzlo13/presenced/internal/stores"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB      *db.DB
	Pairing *stores.PairingStore
	Names   *stores.NameStore

	// Bridge connection
	Connector *bridge.Connector
	Session   *bridge.Session
	Hue       *hue.Client

	// Proximity automation
	Bus        *eventbus.Bus
	Controller *proximity.Controller
	Feed       *feed.Server
}

// NewServices creates all services with proper dependency injection.
// The bridge session and fixture client are created in Start, once the
// connection flow has produced an authorized session.
func NewServices(cfg *config.Config, prompter bridge.Prompter) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	// Typed stores on KV buckets
	s.Pairing = stores.NewPairingStore(kv.NewSQLiteBucket(database.DB, "bridge"))
	s.Names = stores.NewNameStore(kv.NewSQLiteBucket(database.DB, "fixture_names"))

	// Bridge connector with the persistent pairing cache
	s.Connector = bridge.NewConnector(bridge.ConnectorOptions{
		PortalURL: cfg.Discovery.PortalURL,
		Timeout:   cfg.Discovery.Timeout.Duration(),
		Prompter:  prompter,
		Cache:     s.Pairing,
		Address:   cfg.Bridge.Address,
		Token:     cfg.Bridge.Token,
	})

	// Event bus for sample batch delivery
	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	// Advertisement feed server
	if cfg.Feed.Enabled {
		s.Feed = feed.NewServer(cfg.Feed.Host, cfg.Feed.Port, s.Bus)
	}

	return s, nil
}

// Start runs the bridge connection flow and starts all background services.
func (s *Services) Start(ctx context.Context) error {
	session, err := s.Connector.Connect(ctx)
	if err != nil {
		var connErr *bridge.ConnectionError
		if errors.As(err, &connErr) {
			log.Error().Err(connErr.Err).Stringer("stage", connErr.Stage).Msg(connErr.UserMessage())
		}
		return err
	}
	s.Session = session

	s.Hue = hue.NewClient(session, s.cfg.Bridge.Timeout.Duration()).WithNamer(s.Names)

	lights, err := s.Hue.Lights(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("lights", len(lights)).Msg("Fixture enumeration complete")

	s.Controller = proximity.NewController(
		s.Hue,
		s.cfg.Proximity.CommandDelay.Duration(),
		s.cfg.Proximity.SettleDelay.Duration(),
	)

	// Deliver sample batches to the controller. The bus runs a single
	// worker by default, so batches arrive strictly one at a time.
	s.Bus.Subscribe(eventbus.EventTypeProximity, func(e eventbus.Event) {
		if err := s.Controller.HandleBatch(ctx, e.Samples); err != nil {
			log.Error().Err(err).Msg("Proximity batch failed")
		}
	})

	if s.Feed != nil {
		go func() {
			if err := s.Feed.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
				log.Error().Err(err).Msg("Feed server error")
			}
		}()
	}

	return nil
}

// ClearPairing forgets the stored bridge pairing.
func (s *Services) ClearPairing() error {
	return s.Pairing.Clear()
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		defer cancel()
		s.Bus.Close(ctx)
	}
	if s.Hue != nil {
		s.Hue.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
