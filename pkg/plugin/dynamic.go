//go:build plugindyn && linux

package plugin

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"
	"strings"
)

// LoadDynamicPlugins loads .so provider plugins from dir. An empty dir
// falls back to CALLPIPE_PLUGIN_PATH, then to the system default. Each .so
// must export a RegisterPlugins() error function that registers its
// providers with the global registry.
func LoadDynamicPlugins(dir string) error {
	if dir == "" {
		dir = os.Getenv("CALLPIPE_PLUGIN_PATH")
		if dir == "" {
			dir = "/usr/local/lib/callpipe/plugins"
		}
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		// No plugin directory means nothing to load.
		return nil
	}

	soFiles, err := filepath.Glob(filepath.Join(dir, "*.so"))
	if err != nil {
		return fmt.Errorf("plugin: scan %s: %w", dir, err)
	}

	for _, soFile := range soFiles {
		if err := loadPlugin(soFile); err != nil {
			return fmt.Errorf("plugin: load %s: %w", soFile, err)
		}
	}

	if len(soFiles) > 0 {
		slog.Info("loaded dynamic plugins",
			slog.Int("count", len(soFiles)),
			slog.String("directory", dir))
	}
	return nil
}

func loadPlugin(soFile string) error {
	p, err := plugin.Open(soFile)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}

	sym, err := p.Lookup("RegisterPlugins")
	if err != nil {
		return fmt.Errorf("plugin does not export RegisterPlugins: %w", err)
	}
	register, ok := sym.(func() error)
	if !ok {
		return fmt.Errorf("RegisterPlugins has signature %T, want func() error", sym)
	}
	if err := register(); err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	slog.Info("loaded plugin",
		slog.String("name", strings.TrimSuffix(filepath.Base(soFile), ".so")))
	return nil
}
