package core

// ModuleID identifies a module with a dotted namespace, e.g. "memory.sqlite"
// or "gateway.http". The first segment is the namespace.
type ModuleID string

// Namespace returns the part of the ID before the first dot.
func (id ModuleID) Namespace() string {
	for i := 0; i < len(id); i++ {
		if id[i] == '.' {
			return string(id[:i])
		}
	}
	return string(id)
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	ID  ModuleID
	New func() Module
}

// Module is the minimal interface every mimir module implements.
// Lifecycle hooks are discovered through the optional interfaces in
// lifecycle.go.
type Module interface {
	ModuleInfo() ModuleInfo
}
