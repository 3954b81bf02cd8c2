// Package plugin implements the dynamic extension loader (C4): it
// discovers plugin shared objects named in configuration, opens them
// with the standard library's plugin package, and scopes each one's
// handler registrations to an attach/detach lifecycle. Grounded on the
// reference codebase's registry.Registry (a named-entry table read from
// a config-driven list) for discovery-by-name, adapted from HTTP/file
// service records to on-disk .so paths.
package plugin

import (
	stdplugin "plugin"
	"sort"
	"strings"

	"twine.work/common"
	"twine.work/config"
	"twine.work/twine"
	"twine.work/twineerr"
)

// AttachFunc is the symbol every plugin .so must export as "Attach":
// called once while the registry is in that plugin's attach scope, so
// any Register* call inside it is accepted.
type AttachFunc func(ctx *twine.Context) error

// DetachFunc is the shape of a plug-in's optional "Detach" symbol. The
// Loader does not look up or call it: detaching a plug-in only removes
// its registry entries via Registry.Detach.
type DetachFunc func(ctx *twine.Context) error

// Descriptor names one configured plugin: Name is both its owner token
// in the registry and the base name used to resolve a path if one
// isn't given explicitly.
type Descriptor struct {
	Name string
	Path string
}

// Loader owns the set of currently-attached plugins and can load more
// or detach all of them (in reverse load order, per §4.1).
type Loader struct {
	ctx     *twine.Context
	loaded  []string
}

// NewLoader builds a Loader that attaches plugins into ctx's registry.
func NewLoader(ctx *twine.Context) *Loader {
	return &Loader{ctx: ctx}
}

// DescriptorsFromConfig reads the repeatable `<app>:plugin` keys (see
// SUPPLEMENTED FEATURES) into a list of plugin names to load, and the
// matching `plugin:<name>` path override if present. Descriptors are
// returned sorted by config key, so the load order is the same on every
// run.
func DescriptorsFromConfig(cfg *config.Accessor, appSection string) []Descriptor {
	names := cfg.Section(appSection)
	paths := cfg.Section("plugin")

	keys := make([]string, 0, len(names))
	for key := range names {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var descriptors []Descriptor
	for _, key := range keys {
		if !strings.HasPrefix(key, "plugin") {
			continue
		}
		name := names[key]
		path := paths[name]
		if path == "" {
			path = name + ".so"
		}
		descriptors = append(descriptors, Descriptor{Name: name, Path: path})
	}
	return descriptors
}

// Load opens the plugin at d.Path, opens its Attach symbol within an
// attach scope (so the plugin's Register* calls succeed), and records
// it for later detach. A plugin missing the Attach symbol is a
// BadConfig error; a plugin that fails its own attach is detached
// immediately so it leaves no partial registrations behind.
func (l *Loader) Load(d Descriptor) error {
	p, err := stdplugin.Open(d.Path)
	if err != nil {
		return twineerr.New(twineerr.BadConfig, "plugin.Load", err)
	}

	attachSym, err := p.Lookup("Attach")
	if err != nil {
		return twineerr.Newf(twineerr.BadConfig, "plugin.Load", "%s: missing Attach symbol: %v", d.Name, err)
	}
	attach, ok := attachSym.(func(*twine.Context) error)
	if !ok {
		return twineerr.Newf(twineerr.BadConfig, "plugin.Load", "%s: Attach has the wrong signature", d.Name)
	}

	registry := l.ctx.Registry()
	registry.BeginAttach(d.Name)
	err = attach(l.ctx)
	registry.EndAttach(d.Name)
	if err != nil {
		registry.Detach(d.Name)
		return twineerr.Newf(twineerr.BadConfig, "plugin.Load", "%s: attach failed: %v", d.Name, err)
	}

	l.ctx.RecordAttach(d.Name)
	l.loaded = append(l.loaded, d.Name)
	common.Logger.WithField("plugin", d.Name).Info("attached plugin")
	return nil
}

// LoadAll loads every descriptor in order, stopping at the first failure.
func (l *Loader) LoadAll(descriptors []Descriptor) error {
	for _, d := range descriptors {
		if err := l.Load(d); err != nil {
			return err
		}
	}
	return nil
}

// DetachAll detaches every loaded plugin in reverse load order, per the
// Context destroy contract in §4.1.
func (l *Loader) DetachAll() {
	l.ctx.DetachAll()
	l.loaded = nil
}
