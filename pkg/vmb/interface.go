package vmb

import (
	"context"
	"fmt"

	"github.com/EtchedChampion/drd-VmbPy/internal/log"
	"github.com/EtchedChampion/drd-VmbPy/internal/vmbc"
)

// Interface is one transport interface (bus adapter, frame grabber) known
// to the system. Its feature scope is open for the lifetime of the started
// system.
type Interface struct {
	*FeatureContainer
	api    vmbc.API
	info   vmbc.InterfaceInfo
	handle vmbc.Handle
}

func newInterface(api vmbc.API, info vmbc.InterfaceInfo, logger log.Logger) *Interface {
	return &Interface{
		FeatureContainer: newFeatureContainer(api, logger.WithValues(log.Kv{"interface": info.ID})),
		api:              api,
		info:             info,
	}
}

func (i *Interface) open(ctx context.Context) error {
	handle, err := i.api.InterfaceOpen(ctx, i.info.ID)
	if err != nil {
		return fmt.Errorf("%w: opening interface %s: %v", ErrInterface, i.info.ID, err)
	}
	if err := i.attach(handle); err != nil {
		_ = i.api.InterfaceClose(ctx, handle)
		return fmt.Errorf("discovering features of interface %s: %w", i.info.ID, err)
	}
	i.handle = handle
	return nil
}

func (i *Interface) close(ctx context.Context) {
	i.detach()
	if err := i.api.InterfaceClose(ctx, i.handle); err == nil {
		i.handle = ""
	}
}

// ID returns the unique interface id.
func (i *Interface) ID() string { return i.info.ID }

// Name returns the human readable interface name.
func (i *Interface) Name() string { return i.info.Name }

// TransportType returns the transport technology of the interface.
func (i *Interface) TransportType() string { return i.info.Type }

func (i *Interface) String() string {
	return fmt.Sprintf("Interface(id=%s, type=%s)", i.info.ID, i.info.Type)
}
