// Package samcore wires a complete hub together: settings store, stream
// layer, router, journal and status service.
package samcore

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samnetworks/samcore/src/config"
	"github.com/samnetworks/samcore/src/hub"
	"github.com/samnetworks/samcore/src/net"
	"github.com/samnetworks/samcore/src/service"
	"github.com/samnetworks/samcore/src/settings"
)

// SamCore is the top-level engine behind the samcore command.
type SamCore struct {
	Config   *config.Config
	Settings *settings.Store
	Layer    net.StreamLayer
	Journal  *hub.Journal
	Hub      *hub.Hub
	Service  *service.Service

	// OnConnect runs at the hub's transition to Open, just before the
	// green light is flipped.
	OnConnect func()
}

// NewSamCore returns an uninitialised engine.
func NewSamCore(conf *config.Config) *SamCore {
	return &SamCore{
		Config: conf,
	}
}

func (s *SamCore) initSettings() error {
	store, err := settings.NewStore(s.Config.SettingsFile(), true)
	if err != nil {
		return err
	}

	s.Settings = store

	return nil
}

func (s *SamCore) initLayer() error {
	switch s.Config.Transport {
	case "unix", "":
		layer, err := net.NewUnixStreamLayer(s.Config.SocketPath())
		if err != nil {
			return err
		}
		s.Layer = layer

	case "ws":
		layer, err := net.NewWSStreamLayer(s.Config.WSAddr)
		if err != nil {
			return err
		}
		s.Layer = layer

	default:
		return fmt.Errorf("unknown transport %q", s.Config.Transport)
	}

	return nil
}

func (s *SamCore) initJournal() error {
	if !s.Config.Journal {
		return nil
	}

	journal, err := hub.NewJournal(s.Config.JournalDir)
	if err != nil {
		return err
	}

	s.Journal = journal

	return nil
}

func (s *SamCore) initHub() error {
	s.Hub = hub.NewHub(
		s.Config,
		s.Settings,
		s.Layer,
		s.Journal,
		s.OnConnect,
		s.Config.Logger(),
	)

	return s.Hub.Init()
}

func (s *SamCore) initService() error {
	if s.Config.ServiceAddr != "" {
		s.Service = service.NewService(s.Config.ServiceAddr, s.Hub, s.Config.Logger())
	}
	return nil
}

// Init prepares all the components in dependency order. A corrupt settings
// file fails here, before anything binds.
func (s *SamCore) Init() error {
	if err := s.initSettings(); err != nil {
		return err
	}

	if err := s.initLayer(); err != nil {
		return err
	}

	if err := s.initJournal(); err != nil {
		return err
	}

	if err := s.initHub(); err != nil {
		return err
	}

	if err := s.initService(); err != nil {
		return err
	}

	return nil
}

// Run starts the status service and the hub, and blocks until a SIGINT or
// SIGTERM winds everything down.
func (s *SamCore) Run() {
	if s.Service != nil {
		go s.Service.Serve()
	}

	sigintCh := make(chan os.Signal, 1)
	signal.Notify(sigintCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigintCh
		s.Shutdown()
	}()

	s.Hub.Run()
}

// Shutdown stops the hub.
func (s *SamCore) Shutdown() {
	s.Hub.Shutdown()
}
