package config

import (
	"cmp"
	"slices"

	"github.com/flemzord/mimir/internal/core"
)

// namespacePriority orders module namespaces: stores are published before
// telemetry installs its provider, both before the chat engine looks them
// up, and everything else comes last.
var namespacePriority = map[string]int{
	"memory":    0,
	"telemetry": 1,
	"chat":      2,
}

// RequiredModules are loaded even when the configuration has no section
// for them.
var RequiredModules = []string{"chat.engine"}

// Resolve returns the module IDs to load, in load order. The order is
// deterministic: by namespace priority, then alphabetically.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules)+len(RequiredModules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	for _, id := range RequiredModules {
		if _, configured := cfg.Modules[id]; configured {
			continue
		}
		if _, registered := core.GetModule(id); registered {
			ids = append(ids, id)
		}
	}

	slices.SortFunc(ids, func(a, b string) int {
		if c := cmp.Compare(priority(a), priority(b)); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return ids
}

func priority(id string) int {
	if p, ok := namespacePriority[core.ModuleID(id).Namespace()]; ok {
		return p
	}
	return len(namespacePriority)
}
