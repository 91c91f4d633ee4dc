//go:build !plugindyn || !linux

package plugin

import "fmt"

// LoadDynamicPlugins reports that dynamic loading is unavailable in this
// build. It is only supported on Linux with the plugindyn build tag.
func LoadDynamicPlugins(dir string) error {
	return fmt.Errorf("plugin: dynamic loading requires linux and the plugindyn build tag")
}
