package gateway

import (
	"github.com/pkg/errors"

	"github.com/gatelink/gogate/internal/domain"
	"github.com/gatelink/gogate/pkg/ratelimit"
)

// Constructor builds a handle from a descriptor.
type Constructor func(desc domain.GatewayDescriptor, limits *ratelimit.Manager) (Handle, error)

// Factory instantiates handles polymorphically over the backend type tag.
type Factory struct {
	constructors map[domain.BackendType]Constructor
}

// NewFactory returns a factory with the built-in backends registered.
func NewFactory() *Factory {
	f := &Factory{
		constructors: make(map[domain.BackendType]Constructor),
	}
	f.Register(domain.BackendREST, func(desc domain.GatewayDescriptor, limits *ratelimit.Manager) (Handle, error) {
		return NewRESTHandle(desc, limits), nil
	})
	f.Register(domain.BackendWS, func(desc domain.GatewayDescriptor, limits *ratelimit.Manager) (Handle, error) {
		return NewWSHandle(desc, limits), nil
	})
	f.Register(domain.BackendSim, func(desc domain.GatewayDescriptor, limits *ratelimit.Manager) (Handle, error) {
		return NewSimHandle(desc), nil
	})
	return f
}

// Register adds or replaces a backend constructor.
func (f *Factory) Register(backendType domain.BackendType, ctor Constructor) {
	f.constructors[backendType] = ctor
}

// Build constructs a handle for the descriptor. Unknown backend types are a
// configuration error.
func (f *Factory) Build(desc domain.GatewayDescriptor, limits *ratelimit.Manager) (Handle, error) {
	ctor, ok := f.constructors[desc.BackendType]
	if !ok {
		return nil, errors.Wrapf(domain.ErrConfiguration,
			"gateway %s: unknown backend type %q", desc.Name, desc.BackendType)
	}
	return ctor(desc, limits)
}
