package vmb

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/EtchedChampion/drd-VmbPy/internal/log"
	"github.com/EtchedChampion/drd-VmbPy/internal/vmbc"
)

// FeatureContainer is the feature registry of one handle scope (system,
// interface, camera, stream or chunk scope). Discovery order is preserved
// by every listing operation.
type FeatureContainer struct {
	api    vmbc.API
	logger log.Logger

	mu     sync.RWMutex
	open   bool
	handle vmbc.Handle
	feats  []*Feature
	byName map[string]*Feature
}

func newFeatureContainer(api vmbc.API, logger log.Logger) *FeatureContainer {
	return &FeatureContainer{
		api:    api,
		logger: logger,
		byName: map[string]*Feature{},
	}
}

// attach binds the container to a live handle and discovers its features.
func (c *FeatureContainer) attach(handle vmbc.Handle) error {
	infos, err := c.api.FeaturesList(handle)
	if err != nil {
		return wrapStatus(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.handle = handle
	c.feats = make([]*Feature, 0, len(infos))
	c.byName = make(map[string]*Feature, len(infos))
	for _, info := range infos {
		f := newFeature(c.api, c, handle, info, c.logger)
		c.feats = append(c.feats, f)
		c.byName[info.Name] = f
	}
	c.open = true

	c.logger.Debugf("Discovered %d features", len(infos))
	return nil
}

// detach drops every change handler and closes the feature scope. Feature
// access afterwards fails with ErrScope.
func (c *FeatureContainer) detach() {
	c.mu.Lock()
	feats := c.feats
	c.open = false
	c.feats = nil
	c.byName = map[string]*Feature{}
	c.mu.Unlock()

	for _, f := range feats {
		f.unregisterAllChangeHandlers()
	}
}

func (c *FeatureContainer) alive() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.open {
		return fmt.Errorf("feature container is closed: %w", ErrScope)
	}
	return nil
}

// Features returns every feature of the scope in discovery order.
func (c *FeatureContainer) Features() ([]*Feature, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.open {
		return nil, fmt.Errorf("feature container is closed: %w", ErrScope)
	}
	return append([]*Feature(nil), c.feats...), nil
}

// FeatureByName returns the feature with the given name.
func (c *FeatureContainer) FeatureByName(name string) (*Feature, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.open {
		return nil, fmt.Errorf("feature container is closed: %w", ErrScope)
	}
	f, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("feature %q: %w", name, ErrFeatureNotFound)
	}
	return f, nil
}

// FeaturesByType returns the features exposing the given interface, in
// discovery order.
func (c *FeatureContainer) FeaturesByType(t FeatureType) ([]*Feature, error) {
	all, err := c.Features()
	if err != nil {
		return nil, err
	}

	var feats []*Feature
	for _, f := range all {
		if f.Type() == t {
			feats = append(feats, f)
		}
	}
	return feats, nil
}

// FeaturesByCategory returns the features in the given category, in
// discovery order.
func (c *FeatureContainer) FeaturesByCategory(category string) ([]*Feature, error) {
	all, err := c.Features()
	if err != nil {
		return nil, err
	}

	var feats []*Feature
	for _, f := range all {
		if f.Category() == category {
			feats = append(feats, f)
		}
	}
	return feats, nil
}

// FeaturesSelectedBy returns the features selected by f, in discovery
// order. f must belong to this container.
func (c *FeatureContainer) FeaturesSelectedBy(f *Feature) ([]*Feature, error) {
	return c.relatedFeatures(f, c.api.FeatureListSelected)
}

// FeaturesAffectedBy returns the features invalidated by writing f, in
// discovery order. f must belong to this container.
func (c *FeatureContainer) FeaturesAffectedBy(f *Feature) ([]*Feature, error) {
	return c.relatedFeatures(f, c.api.FeatureListAffected)
}

func (c *FeatureContainer) relatedFeatures(f *Feature, query func(vmbc.Handle, string) ([]string, error)) ([]*Feature, error) {
	if err := c.alive(); err != nil {
		return nil, err
	}
	if f == nil || f.owner != c {
		return nil, fmt.Errorf("feature does not belong to this container: %w", ErrNotValid)
	}

	names, err := query(c.handle, f.info.Name)
	if err != nil {
		return nil, wrapStatus(err)
	}
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}

	all, err := c.Features()
	if err != nil {
		return nil, err
	}
	var feats []*Feature
	for _, other := range all {
		if wanted[other.info.Name] {
			feats = append(feats, other)
		}
	}
	return feats, nil
}

// PersistableFeatureContainer is a feature container whose state can be
// saved to and restored from an XML settings file.
type PersistableFeatureContainer struct {
	*FeatureContainer
}

func newPersistableFeatureContainer(api vmbc.API, logger log.Logger) *PersistableFeatureContainer {
	return &PersistableFeatureContainer{FeatureContainer: newFeatureContainer(api, logger)}
}

// SettingsOptions tunes settings persistence.
type SettingsOptions struct {
	// PersistType defaults to PersistAll.
	PersistType PersistType
	// Flags select which module scopes participate. Defaults to the
	// remote device module only.
	Flags PersistFlags
	// MaxIterations bounds the retry passes used to resolve order
	// dependent features on load. Defaults to 5.
	MaxIterations int
}

func (o *SettingsOptions) defaults() {
	if o.Flags == PersistFlagNone {
		o.Flags = PersistFlagRemote
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = 5
	}
}

func (o SettingsOptions) toPersistSettings() vmbc.PersistSettings {
	return vmbc.PersistSettings{
		Type:          vmbc.PersistType(o.PersistType),
		Flags:         vmbc.PersistFlags(o.Flags),
		MaxIterations: o.MaxIterations,
	}
}

// SaveSettings writes the current feature values to an XML file. The path
// must end in ".xml".
func (p *PersistableFeatureContainer) SaveSettings(ctx context.Context, path string, opts SettingsOptions) error {
	if !strings.HasSuffix(path, ".xml") {
		return fmt.Errorf("settings path %q must end in .xml: %w", path, ErrNotValid)
	}
	if err := p.alive(); err != nil {
		return err
	}
	opts.defaults()

	p.mu.RLock()
	handle := p.handle
	p.mu.RUnlock()

	if err := p.api.SettingsSave(ctx, handle, path, opts.toPersistSettings()); err != nil {
		return wrapStatus(err)
	}
	p.logger.Infof("Saved settings to %s", path)
	return nil
}

// LoadSettings restores feature values from an XML file previously written
// by SaveSettings. The file must exist and the path must end in ".xml".
func (p *PersistableFeatureContainer) LoadSettings(ctx context.Context, path string, opts SettingsOptions) error {
	if !strings.HasSuffix(path, ".xml") {
		return fmt.Errorf("settings path %q must end in .xml: %w", path, ErrNotValid)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("settings file %q is not accessible: %w", path, ErrNotValid)
	}
	if err := p.alive(); err != nil {
		return err
	}
	opts.defaults()

	p.mu.RLock()
	handle := p.handle
	p.mu.RUnlock()

	if err := p.api.SettingsLoad(ctx, handle, path, opts.toPersistSettings()); err != nil {
		return wrapStatus(err)
	}
	p.logger.Infof("Loaded settings from %s", path)
	return nil
}
