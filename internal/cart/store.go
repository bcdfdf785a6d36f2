package cart

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"storefront-proxy/internal/model"
)

// AddItemInput identifies a product to add.
type AddItemInput struct {
	ProductID   int
	Quantity    int
	VariationID *int
}

// Backend is one upstream cart engine. Every call returns the full cart the
// upstream computed after applying the change.
type Backend interface {
	Name() string
	GetCart(ctx context.Context) (Payload, error)
	AddItem(ctx context.Context, in AddItemInput) (Payload, error)
	UpdateQuantity(ctx context.Context, key string, quantity int) (Payload, error)
	RemoveItem(ctx context.Context, key string) (Payload, error)
	// Clear empties the cart. keys lists the current line keys.
	Clear(ctx context.Context, keys []string) (Payload, error)
}

// SessionClearer drops the stored session token.
type SessionClearer interface {
	ClearSessionToken()
}

// Store holds the canonical cart and is the only place mutations are issued.
// There is no optimistic local state: the held cart changes only when an
// upstream call succeeds, and a failed call leaves it untouched.
type Store struct {
	backend    Backend
	normalizer *Normalizer
	sessions   SessionClearer
	logger     *slog.Logger

	// inflight rejects overlapping mutations against the single upstream cart.
	inflight sync.Mutex

	mu   sync.RWMutex
	cart Cart

	subMu  sync.Mutex
	subs   map[int]chan Cart
	nextID int
}

// NewStore creates a Store issuing mutations through backend.
func NewStore(backend Backend, normalizer *Normalizer, sessions SessionClearer, logger *slog.Logger) *Store {
	if normalizer == nil {
		normalizer = NewNormalizer("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend:    backend,
		normalizer: normalizer,
		sessions:   sessions,
		logger:     logger,
		cart:       Empty(),
		subs:       make(map[int]chan Cart),
	}
}

// Snapshot returns a copy of the held cart.
func (s *Store) Snapshot() Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.clone()
}

// Subscribe returns a channel receiving every synced cart, and a cancel
// function. A slow subscriber only ever sees the most recent cart.
func (s *Store) Subscribe() (<-chan Cart, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Cart, 1)
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// SyncWithUpstream replaces the held cart and publishes it.
func (s *Store) SyncWithUpstream(c Cart) {
	c = c.clone()

	s.mu.Lock()
	s.cart = c
	s.mu.Unlock()

	s.publish(c)
}

// ClearSession wipes the held cart and drops the stored session token.
// It is the recovery path for a rejected session.
func (s *Store) ClearSession() {
	if s.sessions != nil {
		s.sessions.ClearSessionToken()
	}
	s.SyncWithUpstream(Empty())
	s.logger.Info("cart session cleared")
}

// Refresh reloads the cart from upstream.
func (s *Store) Refresh(ctx context.Context) (Cart, error) {
	return s.mutate(ctx, "refresh cart", func(ctx context.Context) (Payload, error) {
		return s.backend.GetCart(ctx)
	})
}

// AddItem adds a product to the cart.
func (s *Store) AddItem(ctx context.Context, in AddItemInput) (Cart, error) {
	if err := validateAdd(in); err != nil {
		return Cart{}, err
	}
	return s.mutate(ctx, "add item", func(ctx context.Context) (Payload, error) {
		return s.backend.AddItem(ctx, in)
	})
}

// UpdateQuantity sets the quantity of a line. Quantity 0 removes the line.
// Setting the same quantity twice yields the same cart.
func (s *Store) UpdateQuantity(ctx context.Context, key string, quantity int) (Cart, error) {
	if key == "" {
		return Cart{}, model.NewValidationError("key", "required")
	}
	if quantity < 0 {
		return Cart{}, model.NewValidationError("quantity", "must not be negative")
	}
	if quantity == 0 {
		return s.RemoveItem(ctx, key)
	}
	return s.mutate(ctx, "update quantity", func(ctx context.Context) (Payload, error) {
		return s.backend.UpdateQuantity(ctx, key, quantity)
	})
}

// RemoveItem removes a line.
func (s *Store) RemoveItem(ctx context.Context, key string) (Cart, error) {
	if key == "" {
		return Cart{}, model.NewValidationError("key", "required")
	}
	return s.mutate(ctx, "remove item", func(ctx context.Context) (Payload, error) {
		return s.backend.RemoveItem(ctx, key)
	})
}

// ClearCart removes every line.
func (s *Store) ClearCart(ctx context.Context) (Cart, error) {
	return s.mutate(ctx, "clear cart", s.clear)
}

// BuyNow empties the cart and then adds in. The add is issued only after the
// clear has completed.
func (s *Store) BuyNow(ctx context.Context, in AddItemInput) (Cart, error) {
	if err := validateAdd(in); err != nil {
		return Cart{}, err
	}
	return s.mutate(ctx, "buy now", func(ctx context.Context) (Payload, error) {
		if _, err := s.clear(ctx); err != nil {
			return Payload{}, fmt.Errorf("clearing cart: %w", err)
		}
		return s.backend.AddItem(ctx, in)
	})
}

// clear loads the upstream cart and removes every line it holds. The held
// cart is not trusted for keys: another process sharing the session may have
// changed the cart since the last sync.
func (s *Store) clear(ctx context.Context) (Payload, error) {
	p, err := s.backend.GetCart(ctx)
	if err != nil {
		return Payload{}, err
	}
	current := s.normalizer.Normalize(p)
	if current.IsEmpty() {
		return p, nil
	}
	return s.backend.Clear(ctx, current.Keys())
}

// mutate runs one upstream call under the in-flight guard and syncs the
// normalized result. On failure the held cart is left as it was.
func (s *Store) mutate(ctx context.Context, op string, call func(context.Context) (Payload, error)) (Cart, error) {
	if !s.inflight.TryLock() {
		return Cart{}, fmt.Errorf("%s: %w", op, model.ErrMutationInFlight)
	}
	defer s.inflight.Unlock()

	p, err := call(ctx)
	if err != nil {
		s.logger.Warn("cart mutation failed",
			slog.String("op", op),
			slog.String("backend", s.backend.Name()),
			slog.String("error", err.Error()),
		)
		return Cart{}, fmt.Errorf("%s: %w", op, err)
	}

	c := s.normalizer.Normalize(p)
	s.SyncWithUpstream(c)

	s.logger.Debug("cart synced",
		slog.String("op", op),
		slog.String("backend", s.backend.Name()),
		slog.Int("lines", len(c.Items)),
		slog.Int("count", c.TotalItemCount),
		slog.String("total", c.TotalPrice.String()),
	)
	return c.clone(), nil
}

func (s *Store) publish(c Cart) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- c.clone():
			continue
		default:
		}
		// Drop the stale value the subscriber has not read yet.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- c.clone():
		default:
		}
	}
}

func validateAdd(in AddItemInput) error {
	if in.ProductID <= 0 {
		return model.NewValidationError("product_id", "must be positive")
	}
	if in.Quantity <= 0 {
		return model.NewValidationError("quantity", "must be at least 1")
	}
	if in.VariationID != nil && *in.VariationID <= 0 {
		return model.NewValidationError("variation_id", "must be positive")
	}
	return nil
}
