// SPDX-License-Identifier: AGPL-3.0-or-later
package indexer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// ModuleInfo describes one candidate module executable.
type ModuleInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// DiscoveryError captures an entry that could not be inspected.
type DiscoveryError struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// Result bundles discovered modules and any errors encountered.
type Result struct {
	Modules []ModuleInfo     `json:"modules"`
	Errors  []DiscoveryError `json:"errors,omitempty"`
}

// skipSuffixes are files that live next to CLI modules but are not modules.
var skipSuffixes = []string{".xml", ".so", ".dylib", ".dll", ".txt", ".py", ".pyc", ".json"}

// Discover lists executable regular files directly under root, sorted by
// name. A missing root yields an empty result.
func Discover(root string) (Result, error) {
	var res Result

	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return res, nil
		}
		return res, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return res, fmt.Errorf("root %s is not a directory", root)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return res, fmt.Errorf("read root: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || entry.IsDir() || skipped(name) {
			continue
		}
		path := filepath.Join(root, name)
		// Stat follows symlinks so linked modules are listed by their link name.
		fi, err := os.Stat(path)
		if err != nil {
			res.Errors = append(res.Errors, DiscoveryError{Path: path, Err: err.Error()})
			continue
		}
		if !fi.Mode().IsRegular() || !executable(name, fi.Mode()) {
			continue
		}
		res.Modules = append(res.Modules, ModuleInfo{
			Name: moduleName(name),
			Path: path,
			Size: fi.Size(),
		})
	}
	sort.Slice(res.Modules, func(i, j int) bool { return res.Modules[i].Name < res.Modules[j].Name })
	return res, nil
}

// Lookup returns the module called name from res.
func (r Result) Lookup(name string) (ModuleInfo, bool) {
	for _, m := range r.Modules {
		if m.Name == name {
			return m, true
		}
	}
	return ModuleInfo{}, false
}

func skipped(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range skipSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

func executable(name string, mode os.FileMode) bool {
	if runtime.GOOS == "windows" {
		return strings.EqualFold(filepath.Ext(name), ".exe")
	}
	return mode.Perm()&0o111 != 0
}

func moduleName(name string) string {
	if runtime.GOOS == "windows" {
		return strings.TrimSuffix(name, filepath.Ext(name))
	}
	return name
}
