// Package ordertable maps broker order ids to the gateway that owns them,
// so cancels route without a gateway hint.
package ordertable

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/gatelink/gogate/internal/domain"
)

// Table is the order id -> gateway name index.
type Table interface {
	Put(orderID, gateway string) error
	Get(orderID string) (gateway string, err error)
	Delete(orderID string) error
	Close() error
}

// MemoryTable is the default process-lifetime index.
type MemoryTable struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewMemoryTable() *MemoryTable {
	return &MemoryTable{entries: make(map[string]string)}
}

func (t *MemoryTable) Put(orderID, gateway string) error {
	t.mu.Lock()
	t.entries[orderID] = gateway
	t.mu.Unlock()
	return nil
}

func (t *MemoryTable) Get(orderID string) (string, error) {
	t.mu.RLock()
	gw, ok := t.entries[orderID]
	t.mu.RUnlock()
	if !ok {
		return "", errors.Wrapf(domain.ErrOrderNotFound, "order %s", orderID)
	}
	return gw, nil
}

func (t *MemoryTable) Delete(orderID string) error {
	t.mu.Lock()
	delete(t.entries, orderID)
	t.mu.Unlock()
	return nil
}

func (t *MemoryTable) Close() error { return nil }
