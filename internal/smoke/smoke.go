// Package smoke evaluates an emitted CommonJS bundle in an embedded
// JavaScript runtime to check that it loads.
package smoke

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
)

// Load requires the CommonJS file at path. Every name in modules is
// registered as an empty native module so that imports left unresolved by
// the bundler do not fail; only the bundle's own top-level code runs.
func Load(path string, modules []string) error {
	vm := goja.New()
	registry := require.NewRegistry()
	for _, name := range modules {
		registry.RegisterNativeModule(name, func(*goja.Runtime, *goja.Object) {})
	}
	req := registry.Enable(vm)
	console.Enable(vm)

	process := vm.NewObject()
	_ = process.Set("env", vm.NewObject())
	_ = process.Set("platform", runtime.GOOS)
	_ = process.Set("argv", []string{"dualpack", path})
	vm.Set("process", process)

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := req.Require(filepath.ToSlash(abs)); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
