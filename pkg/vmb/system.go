package vmb

import (
	"context"
	"fmt"
	"io/fs"
	"sync"

	"github.com/EtchedChampion/drd-VmbPy/internal/log"
	"github.com/EtchedChampion/drd-VmbPy/internal/vmbc"
	"github.com/EtchedChampion/drd-VmbPy/internal/vmbc/sim"
)

// DriverType selects the transport layer implementation backing the
// system.
type DriverType string

const (
	// DriverTypeSim is the in-process simulated transport layer.
	DriverTypeSim DriverType = "sim"
)

// Config is the configuration of a VmbSystem.
type Config struct {
	// Driver defaults to DriverTypeSim.
	Driver DriverType
	// ProfileFS and ProfilePath point at a YAML camera profile for the
	// simulated driver. The driver falls back to a built-in camera set
	// when unset.
	ProfileFS   fs.FS
	ProfilePath string
	Logger      log.Logger
}

func (c *Config) defaults() error {
	if c.Driver == "" {
		c.Driver = DriverTypeSim
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "vmb.System"})
	return nil
}

// VmbSystem is the entry point of the library. It owns every camera and
// interface and is itself the feature container of the system scope.
// Cameras and frame capture are only usable between Startup and Shutdown.
type VmbSystem struct {
	*FeatureContainer
	api    vmbc.API
	logger log.Logger

	mu         sync.Mutex
	started    bool
	cameras    []*Camera
	interfaces []*Interface
}

// New creates a VmbSystem from the configuration.
func New(cfg Config) (*VmbSystem, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	api, err := newDriver(cfg)
	if err != nil {
		return nil, err
	}
	return newSystem(api, cfg.Logger), nil
}

func newDriver(cfg Config) (vmbc.API, error) {
	switch cfg.Driver {
	case DriverTypeSim:
		var specs []sim.CameraSpec
		if cfg.ProfileFS != nil && cfg.ProfilePath != "" {
			var err error
			specs, err = sim.LoadProfile(cfg.ProfileFS, cfg.ProfilePath)
			if err != nil {
				return nil, fmt.Errorf("loading camera profile: %w", err)
			}
		}
		return sim.NewDriver(sim.DriverConfig{Cameras: specs, Logger: cfg.Logger})
	}
	return nil, fmt.Errorf("unknown driver type %q: %w", cfg.Driver, ErrNotValid)
}

func newSystem(api vmbc.API, logger log.Logger) *VmbSystem {
	return &VmbSystem{
		FeatureContainer: newFeatureContainer(api, logger),
		api:              api,
		logger:           logger,
	}
}

// Version returns the transport layer version.
func (s *VmbSystem) Version() string { return s.api.Version() }

// Startup starts the transport layer and discovers interfaces and
// cameras. Starting a started system fails.
func (s *VmbSystem) Startup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("system is already started: %w", ErrNotValid)
	}

	if err := s.api.Startup(ctx); err != nil {
		return fmt.Errorf("starting transport layer: %w", wrapStatus(err))
	}

	if err := s.attach(vmbc.SystemHandle); err != nil {
		_ = s.api.Shutdown(ctx)
		return fmt.Errorf("discovering system features: %w", err)
	}

	ifaceInfos, err := s.api.InterfacesList(ctx)
	if err != nil {
		s.detach()
		_ = s.api.Shutdown(ctx)
		return fmt.Errorf("listing interfaces: %w", wrapStatus(err))
	}
	interfaces := make([]*Interface, 0, len(ifaceInfos))
	for _, info := range ifaceInfos {
		iface := newInterface(s.api, info, s.logger)
		if err := iface.open(ctx); err != nil {
			s.logger.Warningf("Opening interface %s: %v", info.ID, err)
			continue
		}
		interfaces = append(interfaces, iface)
	}

	camInfos, err := s.api.CamerasList(ctx)
	if err != nil {
		for _, iface := range interfaces {
			iface.close(ctx)
		}
		s.detach()
		_ = s.api.Shutdown(ctx)
		return fmt.Errorf("listing cameras: %w", wrapStatus(err))
	}
	cameras := make([]*Camera, 0, len(camInfos))
	for _, info := range camInfos {
		cameras = append(cameras, newCamera(s.api, info, s.logger))
	}

	s.interfaces = interfaces
	s.cameras = cameras
	s.started = true
	s.logger.Infof("System started: %d interfaces, %d cameras", len(interfaces), len(cameras))
	return nil
}

// Shutdown closes every open camera and stops the transport layer.
// Shutting down a stopped system is a no-op.
func (s *VmbSystem) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	for _, cam := range s.cameras {
		if err := cam.Close(ctx); err != nil {
			s.logger.Warningf("Closing camera %s: %v", cam.ID(), err)
		}
	}
	for _, iface := range s.interfaces {
		iface.close(ctx)
	}
	s.detach()

	if err := s.api.Shutdown(ctx); err != nil {
		s.logger.Warningf("Stopping transport layer: %v", err)
	}

	s.started = false
	s.cameras = nil
	s.interfaces = nil
	s.logger.Infof("System stopped")
	return nil
}

// Cameras returns every camera known to the started system.
func (s *VmbSystem) Cameras() ([]*Camera, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil, fmt.Errorf("system is not started: %w", ErrScope)
	}
	return append([]*Camera(nil), s.cameras...), nil
}

// CameraByID returns the camera with the given id.
func (s *VmbSystem) CameraByID(id string) (*Camera, error) {
	cams, err := s.Cameras()
	if err != nil {
		return nil, err
	}
	for _, cam := range cams {
		if cam.ID() == id {
			return cam, nil
		}
	}
	return nil, fmt.Errorf("%w: camera %q not found", ErrCamera, id)
}

// Interfaces returns every interface known to the started system.
func (s *VmbSystem) Interfaces() ([]*Interface, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil, fmt.Errorf("system is not started: %w", ErrScope)
	}
	return append([]*Interface(nil), s.interfaces...), nil
}

// InterfaceByID returns the interface with the given id.
func (s *VmbSystem) InterfaceByID(id string) (*Interface, error) {
	ifaces, err := s.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if iface.ID() == id {
			return iface, nil
		}
	}
	return nil, fmt.Errorf("%w: interface %q not found", ErrInterface, id)
}
