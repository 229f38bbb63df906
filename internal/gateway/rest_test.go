package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/gatelink/gogate/internal/domain"
	"github.com/gatelink/gogate/pkg/ratelimit"
)

// fakeBridge is a minimal broker bridge for the REST adapter.
type fakeBridge struct {
	mux       *http.ServeMux
	healthy   atomic.Bool
	orderSeq  atomic.Int64
	lastOrder atomic.Value // domain.OrderSpec
}

func newFakeBridge() *fakeBridge {
	b := &fakeBridge{mux: http.NewServeMux()}
	b.healthy.Store(true)

	b.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if !b.healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	b.mux.HandleFunc("POST /session", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	b.mux.HandleFunc("POST /orders", func(w http.ResponseWriter, r *http.Request) {
		var spec domain.OrderSpec
		if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b.lastOrder.Store(spec)
		id := b.orderSeq.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"orderId": "ord-" + strconv.FormatInt(id, 10)})
	})
	b.mux.HandleFunc("DELETE /orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		canceled := r.PathValue("id") != "ghost"
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"canceled": canceled})
	})
	b.mux.HandleFunc("GET /account", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(domain.AccountInfo{Currency: "USD", Balance: decimal.NewFromInt(5000)})
	})
	b.mux.HandleFunc("GET /positions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]domain.Position{{Symbol: "MKT-1", Quantity: decimal.NewFromInt(3)}})
	})
	b.mux.HandleFunc("POST /subscriptions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return b
}

func newRESTUnderTest(t *testing.T) (*RESTHandle, *fakeBridge) {
	t.Helper()
	bridge := newFakeBridge()
	srv := httptest.NewServer(bridge.mux)
	t.Cleanup(srv.Close)

	limits := ratelimit.NewManager()
	limits.RegisterGateway("alpha")
	h := NewRESTHandle(domain.GatewayDescriptor{
		Name:        "alpha",
		BackendType: domain.BackendREST,
		Endpoint:    srv.URL,
	}, limits)
	return h, bridge
}

func TestRESTConnectLifecycle(t *testing.T) {
	h, bridge := newRESTUnderTest(t)
	ctx := context.Background()

	connects := 0
	h.SetCallbacks(Callbacks{OnConnect: func(string) { connects++ }})

	if err := h.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.Connect(ctx); err != nil { // idempotent
		t.Fatal(err)
	}
	if connects != 1 {
		t.Fatalf("OnConnect fired %d times, want 1", connects)
	}
	if err := h.Authenticate(ctx); err != nil {
		t.Fatal(err)
	}
	if !h.Connected() {
		t.Fatal("not connected")
	}

	if err := h.Disconnect(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.Disconnect(ctx); err != nil { // idempotent
		t.Fatal(err)
	}

	bridge.healthy.Store(false)
	if err := h.Connect(ctx); !errors.Is(err, domain.ErrConnection) {
		t.Fatalf("err = %v, want ErrConnection", err)
	}
}

func TestRESTOrderRoundTrip(t *testing.T) {
	h, bridge := newRESTUnderTest(t)
	ctx := context.Background()
	if err := h.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	spec := domain.OrderSpec{
		Symbol:   "MKT-1",
		Side:     domain.SideBuy,
		Type:     domain.OrderTypeLimit,
		Price:    decimal.NewFromFloat(0.35),
		Quantity: decimal.NewFromInt(20),
	}
	id, err := h.SubmitOrder(ctx, spec)
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("empty order id")
	}
	sent := bridge.lastOrder.Load().(domain.OrderSpec)
	if sent.Symbol != "MKT-1" || !sent.Quantity.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("bridge saw %+v", sent)
	}

	ok, err := h.CancelOrder(ctx, id)
	if err != nil || !ok {
		t.Fatalf("cancel = %v, %v", ok, err)
	}
	ok, err = h.CancelOrder(ctx, "ghost")
	if err != nil || ok {
		t.Fatalf("ghost cancel = %v, %v, want false without error", ok, err)
	}
}

func TestRESTQueries(t *testing.T) {
	h, _ := newRESTUnderTest(t)
	ctx := context.Background()
	if err := h.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	acct, err := h.QueryAccount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if acct.Gateway != "alpha" || !acct.Balance.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("account = %+v", acct)
	}

	positions, err := h.QueryPositions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 1 || positions[0].Gateway != "alpha" {
		t.Fatalf("positions = %+v", positions)
	}

	ok, err := h.SubscribeMarketData(ctx, []string{"MKT-1"})
	if err != nil || !ok {
		t.Fatalf("subscribe = %v, %v", ok, err)
	}

	if err := h.Ping(ctx); err != nil {
		t.Fatal(err)
	}
}
