package core

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"sync"
)

// moduleIDPattern is "namespace.name", lowercase, e.g. "tools.web".
var moduleIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*\.[a-z][a-z0-9_.]*$`)

// registry maps module IDs to their info. Modules add themselves from
// init(); the config loader and the App read it afterwards.
type registry struct {
	mu      sync.RWMutex
	entries map[ModuleID]ModuleInfo
}

func (r *registry) add(info ModuleInfo) error {
	if !moduleIDPattern.MatchString(string(info.ID)) {
		return fmt.Errorf("invalid module ID %q (want namespace.name)", info.ID)
	}
	if info.New == nil {
		return fmt.Errorf("module %s: New function must not be nil", info.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.entries[info.ID]; dup {
		return fmt.Errorf("module already registered: %s", info.ID)
	}
	r.entries[info.ID] = info
	return nil
}

func (r *registry) get(id ModuleID) (ModuleInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.entries[id]
	return info, ok
}

// list returns the entries accepted by keep, sorted by ID.
func (r *registry) list(keep func(ModuleID) bool) []ModuleInfo {
	r.mu.RLock()
	out := make([]ModuleInfo, 0, len(r.entries))
	for id, info := range r.entries {
		if keep(id) {
			out = append(out, info)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b ModuleInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

var modules = &registry{entries: make(map[ModuleID]ModuleInfo)}

// RegisterModule records instance's ModuleInfo. Call it from init(); a
// malformed or duplicate ID is a programming error and panics.
func RegisterModule(instance Module) {
	if err := modules.add(instance.ModuleInfo()); err != nil {
		panic(err)
	}
}

// GetModule looks a module up by ID.
func GetModule(id string) (ModuleInfo, bool) {
	return modules.get(ModuleID(id))
}

// GetModules returns every registered module, sorted by ID.
func GetModules() []ModuleInfo {
	return modules.list(func(ModuleID) bool { return true })
}

// GetModulesByNamespace returns the modules of one namespace: "tools"
// matches "tools.web".
func GetModulesByNamespace(namespace string) []ModuleInfo {
	return modules.list(func(id ModuleID) bool { return id.Namespace() == namespace })
}

func resetRegistry() {
	modules.mu.Lock()
	defer modules.mu.Unlock()
	clear(modules.entries)
}
