package cart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"storefront-proxy/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeBackend is an in-memory Store API style cart engine that records the
// order of calls it receives.
type fakeBackend struct {
	mu     sync.Mutex
	lines  []StoreAPIItem
	nextID int
	calls  []string

	failNext error
	failOn   string // when set, failNext fires on this call only
	block    chan struct{}
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) record(call string) error {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	var err error
	if f.failOn == "" || f.failOn == call {
		err = f.failNext
		f.failNext = nil
	}
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return err
}

func (f *fakeBackend) payload() Payload {
	items := make([]StoreAPIItem, len(f.lines))
	copy(items, f.lines)
	return FromStoreAPI(&StoreAPICart{Items: items, Totals: StoreAPITotals{CurrencyMinorUnit: intPtr(2)}})
}

func (f *fakeBackend) GetCart(ctx context.Context) (Payload, error) {
	if err := f.record("get"); err != nil {
		return Payload{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payload(), nil
}

func (f *fakeBackend) AddItem(ctx context.Context, in AddItemInput) (Payload, error) {
	if err := f.record(fmt.Sprintf("add:%d", in.ProductID)); err != nil {
		return Payload{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.lines = append(f.lines, StoreAPIItem{
		Key:      fmt.Sprintf("key-%d", f.nextID),
		ID:       in.ProductID,
		Name:     fmt.Sprintf("Product %d", in.ProductID),
		Quantity: Quantity(in.Quantity),
		Prices:   StoreAPIPrices{Price: "1050"},
	})
	return f.payload(), nil
}

func (f *fakeBackend) UpdateQuantity(ctx context.Context, key string, quantity int) (Payload, error) {
	if err := f.record("update:" + key); err != nil {
		return Payload{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.lines {
		if f.lines[i].Key == key {
			f.lines[i].Quantity = Quantity(quantity)
		}
	}
	return f.payload(), nil
}

func (f *fakeBackend) RemoveItem(ctx context.Context, key string) (Payload, error) {
	if err := f.record("remove:" + key); err != nil {
		return Payload{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLocked(key)
	return f.payload(), nil
}

func (f *fakeBackend) Clear(ctx context.Context, keys []string) (Payload, error) {
	if err := f.record("clear"); err != nil {
		return Payload{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		f.removeLocked(k)
	}
	return f.payload(), nil
}

func (f *fakeBackend) removeLocked(key string) {
	kept := f.lines[:0]
	for _, l := range f.lines {
		if l.Key != key {
			kept = append(kept, l)
		}
	}
	f.lines = kept
}

func (f *fakeBackend) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeSessions struct{ cleared int }

func (f *fakeSessions) ClearSessionToken() { f.cleared++ }

func newTestStore(backend Backend) (*Store, *fakeSessions) {
	sessions := &fakeSessions{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStore(backend, NewNormalizer(""), sessions, logger), sessions
}

func TestAddItemSyncsCart(t *testing.T) {
	backend := &fakeBackend{}
	store, _ := newTestStore(backend)

	got, err := store.AddItem(context.Background(), AddItemInput{ProductID: 7, Quantity: 2})
	if err != nil {
		t.Fatalf("AddItem() error: %v", err)
	}
	if len(got.Items) != 1 || got.TotalItemCount != 2 {
		t.Fatalf("cart = %+v", got)
	}
	if !got.TotalPrice.Equal(dec("21")) {
		t.Errorf("total = %s, want 21", got.TotalPrice)
	}
	if diff := cmp.Diff(got, store.Snapshot(), decimalComparer); diff != "" {
		t.Errorf("snapshot differs from returned cart:\n%s", diff)
	}
}

func TestUpdateQuantityIdempotent(t *testing.T) {
	backend := &fakeBackend{}
	store, _ := newTestStore(backend)
	ctx := context.Background()

	c, err := store.AddItem(ctx, AddItemInput{ProductID: 7, Quantity: 1})
	if err != nil {
		t.Fatalf("AddItem() error: %v", err)
	}
	key := c.Items[0].Key

	first, err := store.UpdateQuantity(ctx, key, 3)
	if err != nil {
		t.Fatalf("UpdateQuantity() error: %v", err)
	}
	second, err := store.UpdateQuantity(ctx, key, 3)
	if err != nil {
		t.Fatalf("UpdateQuantity() error: %v", err)
	}

	if diff := cmp.Diff(first, second, decimalComparer); diff != "" {
		t.Errorf("second update changed the cart (-first +second):\n%s", diff)
	}
	if second.TotalItemCount != 3 {
		t.Errorf("count = %d, want 3", second.TotalItemCount)
	}
}

func TestUpdateQuantityZeroRemoves(t *testing.T) {
	backend := &fakeBackend{}
	store, _ := newTestStore(backend)
	ctx := context.Background()

	c, _ := store.AddItem(ctx, AddItemInput{ProductID: 7, Quantity: 1})
	key := c.Items[0].Key

	got, err := store.UpdateQuantity(ctx, key, 0)
	if err != nil {
		t.Fatalf("UpdateQuantity() error: %v", err)
	}
	if !got.IsEmpty() {
		t.Errorf("cart not empty: %+v", got)
	}
	calls := backend.callLog()
	if calls[len(calls)-1] != "remove:"+key {
		t.Errorf("last call = %q, want remove", calls[len(calls)-1])
	}
}

func TestValidation(t *testing.T) {
	store, _ := newTestStore(&fakeBackend{})
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"negative quantity", func() error { _, err := store.UpdateQuantity(ctx, "k", -1); return err }},
		{"empty key", func() error { _, err := store.UpdateQuantity(ctx, "", 1); return err }},
		{"remove empty key", func() error { _, err := store.RemoveItem(ctx, ""); return err }},
		{"zero product", func() error { _, err := store.AddItem(ctx, AddItemInput{Quantity: 1}); return err }},
		{"zero add quantity", func() error { _, err := store.AddItem(ctx, AddItemInput{ProductID: 1}); return err }},
		{"bad variation", func() error {
			_, err := store.BuyNow(ctx, AddItemInput{ProductID: 1, Quantity: 1, VariationID: intPtr(0)})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if !errors.Is(err, model.ErrInvalidRequest) {
				t.Errorf("error = %v, want validation error", err)
			}
		})
	}
}

func TestFailedMutationLeavesStateUntouched(t *testing.T) {
	backend := &fakeBackend{}
	store, _ := newTestStore(backend)
	ctx := context.Background()

	before, _ := store.AddItem(ctx, AddItemInput{ProductID: 7, Quantity: 1})

	backend.failNext = errors.New("upstream 500")
	if _, err := store.AddItem(ctx, AddItemInput{ProductID: 8, Quantity: 1}); err == nil {
		t.Fatal("expected error")
	}

	if diff := cmp.Diff(before, store.Snapshot(), decimalComparer); diff != "" {
		t.Errorf("failed mutation changed held cart:\n%s", diff)
	}
}

func TestBuyNowClearsBeforeAdd(t *testing.T) {
	backend := &fakeBackend{}
	store, _ := newTestStore(backend)
	ctx := context.Background()

	store.AddItem(ctx, AddItemInput{ProductID: 1, Quantity: 1})
	store.AddItem(ctx, AddItemInput{ProductID: 2, Quantity: 1})

	got, err := store.BuyNow(ctx, AddItemInput{ProductID: 3, Quantity: 1})
	if err != nil {
		t.Fatalf("BuyNow() error: %v", err)
	}

	want := []string{"add:1", "add:2", "get", "clear", "add:3"}
	if diff := cmp.Diff(want, backend.callLog()); diff != "" {
		t.Errorf("call order (-want +got):\n%s", diff)
	}
	if len(got.Items) != 1 || got.Items[0].ProductID != 3 {
		t.Errorf("cart = %+v, want only product 3", got.Items)
	}
}

func TestBuyNowLoadsCartWhenNothingHeld(t *testing.T) {
	backend := &fakeBackend{lines: []StoreAPIItem{
		{Key: "x", ID: 1, Quantity: 1, Prices: StoreAPIPrices{Price: "100"}},
		{Key: "y", ID: 2, Quantity: 1, Prices: StoreAPIPrices{Price: "100"}},
	}}
	store, _ := newTestStore(backend)

	if _, err := store.BuyNow(context.Background(), AddItemInput{ProductID: 3, Quantity: 1}); err != nil {
		t.Fatalf("BuyNow() error: %v", err)
	}

	want := []string{"get", "clear", "add:3"}
	if diff := cmp.Diff(want, backend.callLog()); diff != "" {
		t.Errorf("call order (-want +got):\n%s", diff)
	}
}

func TestBuyNowClearsLinesAddedElsewhere(t *testing.T) {
	backend := &fakeBackend{}
	store, _ := newTestStore(backend)
	ctx := context.Background()

	store.AddItem(ctx, AddItemInput{ProductID: 1, Quantity: 1})

	// Another process sharing the session adds a line the store never saw.
	backend.mu.Lock()
	backend.lines = append(backend.lines, StoreAPIItem{
		Key: "external", ID: 2, Quantity: 1, Prices: StoreAPIPrices{Price: "100"},
	})
	backend.mu.Unlock()

	got, err := store.BuyNow(ctx, AddItemInput{ProductID: 3, Quantity: 1})
	if err != nil {
		t.Fatalf("BuyNow() error: %v", err)
	}
	if len(got.Items) != 1 || got.Items[0].ProductID != 3 {
		t.Errorf("cart = %+v, want only product 3", got.Items)
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.lines) != 1 || backend.lines[0].ID != 3 {
		t.Errorf("upstream lines = %+v, want only product 3", backend.lines)
	}
}

func TestClearCartUsesUpstreamKeys(t *testing.T) {
	backend := &fakeBackend{}
	store, _ := newTestStore(backend)
	ctx := context.Background()

	store.AddItem(ctx, AddItemInput{ProductID: 1, Quantity: 1})
	backend.mu.Lock()
	backend.removeLocked("key-1")
	backend.lines = append(backend.lines, StoreAPIItem{Key: "external", ID: 2, Quantity: 1})
	backend.mu.Unlock()

	got, err := store.ClearCart(ctx)
	if err != nil {
		t.Fatalf("ClearCart() error: %v", err)
	}
	if !got.IsEmpty() {
		t.Errorf("cart = %+v, want empty", got.Items)
	}
	if diff := cmp.Diff([]string{"add:1", "get", "clear"}, backend.callLog()); diff != "" {
		t.Errorf("call log (-want +got):\n%s", diff)
	}
}

func TestClearCartAlreadyEmptySkipsClear(t *testing.T) {
	backend := &fakeBackend{}
	store, _ := newTestStore(backend)

	if _, err := store.ClearCart(context.Background()); err != nil {
		t.Fatalf("ClearCart() error: %v", err)
	}
	if diff := cmp.Diff([]string{"get"}, backend.callLog()); diff != "" {
		t.Errorf("call log (-want +got):\n%s", diff)
	}
}

func TestBuyNowClearFailureSkipsAdd(t *testing.T) {
	backend := &fakeBackend{}
	store, _ := newTestStore(backend)
	ctx := context.Background()

	store.AddItem(ctx, AddItemInput{ProductID: 1, Quantity: 1})
	backend.failNext = errors.New("clear failed")
	backend.failOn = "clear"

	if _, err := store.BuyNow(ctx, AddItemInput{ProductID: 3, Quantity: 1}); err == nil {
		t.Fatal("expected error")
	}
	calls := backend.callLog()
	if calls[len(calls)-1] != "clear" {
		t.Errorf("calls = %v, add must not follow a failed clear", calls)
	}
}

func TestOverlappingMutationRejected(t *testing.T) {
	backend := &fakeBackend{block: make(chan struct{})}
	store, _ := newTestStore(backend)

	done := make(chan error, 1)
	go func() {
		_, err := store.AddItem(context.Background(), AddItemInput{ProductID: 1, Quantity: 1})
		done <- err
	}()

	// Wait until the first mutation reaches the backend.
	deadline := time.After(2 * time.Second)
	for len(backend.callLog()) == 0 {
		select {
		case <-deadline:
			t.Fatal("first mutation never reached backend")
		case <-time.After(time.Millisecond):
		}
	}

	_, err := store.AddItem(context.Background(), AddItemInput{ProductID: 2, Quantity: 1})
	if !errors.Is(err, model.ErrMutationInFlight) {
		t.Errorf("error = %v, want ErrMutationInFlight", err)
	}

	close(backend.block)
	if err := <-done; err != nil {
		t.Errorf("first mutation error: %v", err)
	}
}

func TestClearSession(t *testing.T) {
	backend := &fakeBackend{}
	store, sessions := newTestStore(backend)

	store.AddItem(context.Background(), AddItemInput{ProductID: 1, Quantity: 1})
	store.ClearSession()

	if !store.Snapshot().IsEmpty() {
		t.Error("cart not wiped")
	}
	if sessions.cleared != 1 {
		t.Errorf("session cleared %d times, want 1", sessions.cleared)
	}
}

func TestSubscribeReceivesSyncs(t *testing.T) {
	backend := &fakeBackend{}
	store, _ := newTestStore(backend)

	updates, cancel := store.Subscribe()
	defer cancel()

	store.AddItem(context.Background(), AddItemInput{ProductID: 1, Quantity: 1})
	got := <-updates
	if len(got.Items) != 1 {
		t.Errorf("first update items = %d, want 1", len(got.Items))
	}

	// A slow subscriber sees only the latest cart.
	store.AddItem(context.Background(), AddItemInput{ProductID: 2, Quantity: 1})
	store.AddItem(context.Background(), AddItemInput{ProductID: 3, Quantity: 1})
	got = <-updates
	if len(got.Items) != 3 {
		t.Errorf("latest update items = %d, want 3", len(got.Items))
	}
	select {
	case extra := <-updates:
		t.Errorf("unexpected stale update: %+v", extra)
	default:
	}
}

func TestSubscribeCancelCloses(t *testing.T) {
	store, _ := newTestStore(&fakeBackend{})

	updates, cancel := store.Subscribe()
	cancel()
	cancel()

	if _, ok := <-updates; ok {
		t.Error("channel should be closed after cancel")
	}
	store.SyncWithUpstream(Empty())
}

func TestSnapshotIsCopy(t *testing.T) {
	store, _ := newTestStore(&fakeBackend{})
	store.AddItem(context.Background(), AddItemInput{ProductID: 1, Quantity: 1})

	snap := store.Snapshot()
	snap.Items[0].Name = "mutated"

	if store.Snapshot().Items[0].Name == "mutated" {
		t.Error("Snapshot must not alias held state")
	}
}
