package orchestrator

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/gatelink/gogate/internal/domain"
	"github.com/gatelink/gogate/internal/gateway"
	"github.com/gatelink/gogate/pkg/taskpool"
)

// fanOutHealthy runs fn against every connected gateway in the subset (all
// registered gateways when names is empty) and returns the per-gateway
// errors (nil entry = success). Disconnected or unknown gateways are
// reported as unavailable without being called.
func (o *Orchestrator) fanOutHealthy(ctx context.Context, opName string, names []string,
	fn func(ctx context.Context, m *gateway.Managed) error) map[string]error {

	var list []*gateway.Managed
	results := make(map[string]error)
	var resMu sync.Mutex
	var wg sync.WaitGroup

	if len(names) == 0 {
		list = o.managedList()
	} else {
		for _, name := range names {
			m := o.managedByName(name)
			if m == nil {
				results[name] = errors.Wrapf(domain.ErrGatewayUnavailable, "%s: unknown gateway %q", opName, name)
				continue
			}
			list = append(list, m)
		}
	}

	for _, m := range list {
		m := m
		name := m.Name()
		if !m.Healthy() {
			resMu.Lock()
			results[name] = errors.Wrapf(domain.ErrGatewayUnavailable, "%s: gateway %s not connected", opName, name)
			resMu.Unlock()
			continue
		}

		timeout := m.Descriptor().QueryTimeout
		if timeout <= 0 {
			timeout = defaultQueryTimeout
		}

		wg.Add(1)
		submitted := o.pool.Submit(taskpool.Task{
			Name:    opName + ":" + name,
			Timeout: timeout,
			Do: func(taskCtx context.Context) {
				defer wg.Done()
				err := fn(taskCtx, m)
				if err != nil {
					err = wrapTimeout(err, "%s on %s", opName, name)
				}
				resMu.Lock()
				results[name] = err
				resMu.Unlock()
			},
		})
		if !submitted {
			wg.Done()
			resMu.Lock()
			results[name] = errors.Errorf("%s %s: task pool saturated", opName, name)
			resMu.Unlock()
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return results
	case <-ctx.Done():
		// Late tasks may still write into the shared map; hand the caller
		// a private copy instead.
		out := make(map[string]error, len(list))
		resMu.Lock()
		for name, err := range results {
			out[name] = err
		}
		resMu.Unlock()
		for _, m := range list {
			if _, ok := out[m.Name()]; !ok {
				out[m.Name()] = wrapTimeout(ctx.Err(), "%s %s", opName, m.Name())
			}
		}
		return out
	}
}

// SubscribeMarketData fans the subscription out to the named gateways, or to
// every connected gateway when none are named, and reports the per-gateway
// outcome.
func (o *Orchestrator) SubscribeMarketData(ctx context.Context, symbols []string, gateways ...string) map[string]error {
	return o.fanOutHealthy(ctx, "subscribe", gateways, func(ctx context.Context, m *gateway.Managed) error {
		ok, err := m.Handle().SubscribeMarketData(ctx, symbols)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Errorf("subscription rejected")
		}
		return nil
	})
}

// QueryAllAccounts queries every connected gateway concurrently. Both maps
// are keyed by gateway name; a gateway appears in exactly one of them.
func (o *Orchestrator) QueryAllAccounts(ctx context.Context) (map[string]domain.AccountInfo, map[string]error) {
	accounts := make(map[string]domain.AccountInfo)
	var accMu sync.Mutex

	errs := o.fanOutHealthy(ctx, "query_accounts", nil, func(ctx context.Context, m *gateway.Managed) error {
		acct, err := m.Handle().QueryAccount(ctx)
		if err != nil {
			return err
		}
		accMu.Lock()
		accounts[m.Name()] = *acct
		accMu.Unlock()
		return nil
	})

	for name, err := range errs {
		if err == nil {
			delete(errs, name)
		}
	}
	return accounts, errs
}

// QueryAllPositions is the positions analogue of QueryAllAccounts.
func (o *Orchestrator) QueryAllPositions(ctx context.Context) (map[string][]domain.Position, map[string]error) {
	positions := make(map[string][]domain.Position)
	var posMu sync.Mutex

	errs := o.fanOutHealthy(ctx, "query_positions", nil, func(ctx context.Context, m *gateway.Managed) error {
		list, err := m.Handle().QueryPositions(ctx)
		if err != nil {
			return err
		}
		posMu.Lock()
		positions[m.Name()] = list
		posMu.Unlock()
		return nil
	})

	for name, err := range errs {
		if err == nil {
			delete(errs, name)
		}
	}
	return positions, errs
}
