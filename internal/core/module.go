// Package core provides the module system that assembles the bot: modules
// register themselves from init(), the App loads the ones named in the
// configuration and drives their lifecycle.
package core

import "strings"

// ModuleID identifies a module, namespaced with a dot ("channel.telegram",
// "provider.openai", "mcp.servers").
type ModuleID string

// Namespace returns the part of the ID before the first dot.
func (id ModuleID) Namespace() string {
	ns, _, _ := strings.Cut(string(id), ".")
	return ns
}

// Name returns the part of the ID after the namespace.
func (id ModuleID) Name() string {
	_, name, _ := strings.Cut(string(id), ".")
	return name
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	ID  ModuleID
	New func() Module
}

// Module is the minimal interface every module implements.
type Module interface {
	ModuleInfo() ModuleInfo
}
