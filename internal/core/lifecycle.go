package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Optional module hooks, in the order LoadModule and App call them.
type (
	// Configurable decodes the module's section of the config file.
	// Modules without a section are not configured at all.
	Configurable interface {
		Configure(node *yaml.Node) error
	}

	// Provisioner applies defaults, opens resources and publishes
	// services on the AppContext.
	Provisioner interface {
		Provision(ctx *AppContext) error
	}

	// Validator rejects an unusable module before anything starts.
	Validator interface {
		Validate() error
	}

	// Starter launches background work. Every module is provisioned
	// before the first Start.
	Starter interface {
		Start() error
	}

	// Stopper is called in reverse start order with a shared deadline.
	Stopper interface {
		Stop(ctx context.Context) error
	}
)
