package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Configurable is implemented by modules that accept YAML configuration.
// Called after instantiation and before Provision().
// The node contains the raw YAML for this module's config section.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner is implemented by modules that need setup after instantiation.
// Modules open their backends here and publish them with RegisterService.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator is implemented by modules that can verify their configuration
// is complete and correct. Called after Provision().
type Validator interface {
	Validate() error
}

// Starter is implemented by modules that need to start background work
// (listeners, schedulers). Called after every module has been provisioned,
// so services registered by any module can be resolved here.
type Starter interface {
	Start() error
}

// Stopper is implemented by modules that need to clean up resources.
// Called during shutdown in reverse order of Start().
type Stopper interface {
	Stop(ctx context.Context) error
}

// Reloader is implemented by modules that support live configuration reload.
// The context carries the new configuration; Reload reads its own section
// with ModuleConfig and applies what can change without a restart.
type Reloader interface {
	Reload(ctx *AppContext) error
}
