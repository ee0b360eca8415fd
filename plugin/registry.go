package plugin

import "sync"

// PluginFactory creates a new instance of a plugin.
//nolint:revive // keep for backwards compatibility
type PluginFactory func() Plugin

// pluginRegistry is the global registry of plugin factories, populated by
// built-in plugin packages' init() via blank import. Guarded by
// pluginRegistryMu since registration can race with gateway startup
// reading RegisteredPlugins for diagnostics.
var (
	pluginRegistry   = map[string]PluginFactory{}
	pluginRegistryMu sync.Mutex
)

// RegisterFactory registers a plugin factory by name.
func RegisterFactory(name string, factory PluginFactory) {
	pluginRegistryMu.Lock()
	defer pluginRegistryMu.Unlock()
	pluginRegistry[name] = factory
}

// GetFactory returns a plugin factory by name.
func GetFactory(name string) (PluginFactory, bool) {
	pluginRegistryMu.Lock()
	defer pluginRegistryMu.Unlock()
	f, ok := pluginRegistry[name]
	return f, ok
}

// RegisteredPlugins returns the names of all registered plugin factories.
func RegisteredPlugins() []string {
	pluginRegistryMu.Lock()
	defer pluginRegistryMu.Unlock()
	names := make([]string, 0, len(pluginRegistry))
	for name := range pluginRegistry {
		names = append(names, name)
	}
	return names
}
