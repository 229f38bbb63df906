package domain

import (
	"github.com/pkg/errors"
)

// Error taxonomy. Callers classify with errors.Is; wrapping sites add
// context with errors.Wrapf.
var (
	// ErrConfiguration: bad descriptor or rule, rejected at initialize.
	ErrConfiguration = errors.New("configuration error")

	// ErrConnection: connect/disconnect failure, drives health state.
	ErrConnection = errors.New("connection error")

	// ErrGatewayUnavailable: operation addressed to a non-active gateway.
	ErrGatewayUnavailable = errors.New("gateway unavailable")

	// ErrOrderNotFound: cancel whose owning gateway cannot be resolved.
	ErrOrderNotFound = errors.New("order not found")

	// ErrOperationTimeout: handle call exceeded its timeout budget.
	ErrOperationTimeout = errors.New("operation timeout")

	// ErrHandler: a subscriber or alert callback failed; logged, isolated.
	ErrHandler = errors.New("handler error")

	// ErrBusStopped: publish on a stopped event bus.
	ErrBusStopped = errors.New("event bus stopped")
)
