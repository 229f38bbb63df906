package gateway

import (
	"context"

	"github.com/gatelink/gogate/internal/domain"
)

// Callbacks bridges adapter-level events to the orchestrator, which fans
// them onto the event bus. Any field may be nil.
type Callbacks struct {
	OnConnect    func(gateway string)
	OnDisconnect func(gateway string, reason string)
	OnOrder      func(gateway string, orderID string, status string)
	OnTrade      func(gateway string, orderID string, payload interface{})
	OnPosition   func(gateway string, position domain.Position)
	OnAccount    func(gateway string, account domain.AccountInfo)
	OnError      func(gateway string, err error)
}

// Handle is the capability set every concrete broker adapter implements.
//
// Contracts: Connect and Disconnect are idempotent no-ops when already in
// the target state; all operations are safe to invoke concurrently for
// different orders/queries on the same handle. Callers wrap every call in a
// timeout context; adapters must honor ctx cancellation.
type Handle interface {
	Name() string

	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	// Authenticate is optional; adapters without an auth step return nil.
	Authenticate(ctx context.Context) error

	SubmitOrder(ctx context.Context, spec domain.OrderSpec) (orderID string, err error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)

	QueryAccount(ctx context.Context) (*domain.AccountInfo, error)
	QueryPositions(ctx context.Context) ([]domain.Position, error)

	SubscribeMarketData(ctx context.Context, symbols []string) (bool, error)

	// Ping is a best-effort liveness probe used by the heartbeat loop.
	Ping(ctx context.Context) error

	// SetCallbacks installs the event bridge. Must be called before Connect.
	SetCallbacks(cb Callbacks)

	Connected() bool
}
