package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"storefront-proxy/internal/cart"
	"storefront-proxy/internal/gqlcache"
	"storefront-proxy/internal/headers"
	"storefront-proxy/internal/interceptor"
	"storefront-proxy/internal/model"
	"storefront-proxy/internal/session"
)

type captured struct {
	body    []byte
	headers http.Header
}

// fakeGraphQL answers every POST with the response registered for its
// operation name and records what it received.
type fakeGraphQL struct {
	mu        sync.Mutex
	responses map[string]string
	requests  []captured
	respond   func(w http.ResponseWriter, op string) bool
}

func (f *fakeGraphQL) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	op := gjson.GetBytes(body, "operationName").String()

	f.mu.Lock()
	f.requests = append(f.requests, captured{body: body, headers: r.Header.Clone()})
	resp := f.responses[op]
	respond := f.respond
	f.mu.Unlock()

	if respond != nil && respond(w, op) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, resp)
}

func (f *fakeGraphQL) setRespond(fn func(w http.ResponseWriter, op string) bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respond = fn
}

func (f *fakeGraphQL) last() captured {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeGraphQL) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fixture struct {
	upstream *fakeGraphQL
	sessions *session.Store
	client   *Client
	cache    *gqlcache.Cache
}

func newFixture(t *testing.T, responses map[string]string) *fixture {
	t.Helper()
	upstream := &fakeGraphQL{responses: responses}
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := session.NewStore(session.NewMemoryStorage(), session.WithLogger(logger))
	httpClient := &http.Client{Transport: interceptor.New(http.DefaultTransport, sessions, logger)}

	return &fixture{
		upstream: upstream,
		sessions: sessions,
		client:   New(srv.URL, httpClient, logger),
		cache:    gqlcache.New(),
	}
}

const cartResponse = `{"data":{"cart":{
	"contents":{"itemCount":2,"nodes":[{"key":"a1","quantity":2,"total":"$21.00",
		"product":{"node":{"databaseId":7,"name":"Cable","price":"$10.50"}}}]},
	"total":"$21.00"}}}`

func TestGetCart(t *testing.T) {
	f := newFixture(t, map[string]string{OpGetCart: cartResponse})
	f.sessions.SetSessionToken("tok-1")

	p, err := NewCartBackend(f.client, f.cache).GetCart(context.Background())
	if err != nil {
		t.Fatalf("GetCart() error: %v", err)
	}
	if p.GraphQL == nil || len(p.GraphQL.Contents.Nodes) != 1 {
		t.Fatalf("payload = %+v", p)
	}

	req := f.upstream.last()
	if got := req.headers.Get(headers.Session); got != "Session tok-1" {
		t.Errorf("session header = %q", got)
	}
	if got := gjson.GetBytes(req.body, "operationName").String(); got != OpGetCart {
		t.Errorf("operationName = %q", got)
	}

	raw, ok := f.cache.ReadCart()
	if !ok || gjson.GetBytes(raw, "total").String() != "$21.00" {
		t.Errorf("cache cart = %s", raw)
	}
}

func TestAddItemInput(t *testing.T) {
	resp := `{"data":{"addToCart":{"cart":{"contents":{"nodes":[]},"total":"$0.00"}}}}`
	f := newFixture(t, map[string]string{OpAddToCart: resp})

	variation := 205
	_, err := NewCartBackend(f.client, nil).AddItem(context.Background(), cart.AddItemInput{
		ProductID: 200, Quantity: 3, VariationID: &variation,
	})
	if err != nil {
		t.Fatalf("AddItem() error: %v", err)
	}

	input := gjson.GetBytes(f.upstream.last().body, "variables.input")
	if input.Get("productId").Int() != 200 || input.Get("quantity").Int() != 3 || input.Get("variationId").Int() != 205 {
		t.Errorf("input = %s", input.Raw)
	}
	if _, err := uuid.Parse(input.Get("clientMutationId").String()); err != nil {
		t.Errorf("clientMutationId not a uuid: %v", err)
	}
}

func TestRemoveAndClearSendZeroQuantities(t *testing.T) {
	resp := `{"data":{"updateItemQuantities":{"cart":{"contents":{"nodes":[]},"total":"$0.00"}}}}`
	f := newFixture(t, map[string]string{OpUpdateCartItems: resp})
	backend := NewCartBackend(f.client, nil)

	if _, err := backend.RemoveItem(context.Background(), "a1"); err != nil {
		t.Fatalf("RemoveItem() error: %v", err)
	}
	items := gjson.GetBytes(f.upstream.last().body, "variables.input.items")
	if items.Raw != `[{"key":"a1","quantity":0}]` {
		t.Errorf("remove items = %s", items.Raw)
	}

	p, err := backend.Clear(context.Background(), []string{"a1", "b2"})
	if err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	items = gjson.GetBytes(f.upstream.last().body, "variables.input.items")
	if items.Raw != `[{"key":"a1","quantity":0},{"key":"b2","quantity":0}]` {
		t.Errorf("clear items = %s", items.Raw)
	}
	if !cart.NewNormalizer("").Normalize(p).IsEmpty() {
		t.Error("cleared cart should normalize empty")
	}
}

func TestNullCartIsAbsent(t *testing.T) {
	f := newFixture(t, map[string]string{OpGetCart: `{"data":{"cart":null}}`})

	p, err := NewCartBackend(f.client, nil).GetCart(context.Background())
	if err != nil {
		t.Fatalf("GetCart() error: %v", err)
	}
	if p.GraphQL != nil || p.StoreAPI != nil {
		t.Errorf("payload = %+v, want absent", p)
	}
}

func TestDoErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"graphql errors", http.StatusOK, `{"errors":[{"message":"No product"}],"data":null}`, model.ErrUpstreamError},
		{"html body", http.StatusOK, `<html>maintenance</html>`, model.ErrMalformedResponse},
		{"html error page", http.StatusBadGateway, `<html>bad gateway</html>`, model.ErrUpstreamError},
		{"json error status", http.StatusInternalServerError, `{"message":"boom"}`, model.ErrUpstreamError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.upstream.setRespond(func(w http.ResponseWriter, _ string) bool {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
				return true
			})

			_, err := f.client.Do(context.Background(), Request{Query: "{ x }", OperationName: "X"})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestInvalidSessionSurfaces(t *testing.T) {
	f := newFixture(t, map[string]string{
		OpGetCart: `{"errors":[{"message":"The 'woocommerce-session' header is invalid"}]}`,
	})
	f.sessions.SetSessionToken("stale")

	_, err := NewCartBackend(f.client, nil).GetCart(context.Background())
	if !errors.Is(err, model.ErrInvalidSession) {
		t.Fatalf("error = %v, want ErrInvalidSession", err)
	}
	if _, ok := f.sessions.SessionToken(); ok {
		t.Error("session token should be cleared")
	}
}

func TestProductsPaginate(t *testing.T) {
	f := newFixture(t, nil)
	f.upstream.setRespond(func(w http.ResponseWriter, _ string) bool {
		req := f.upstream.last()
		if gjson.GetBytes(req.body, "variables.after").String() == "" {
			io.WriteString(w, `{"data":{"products":{"pageInfo":{"hasNextPage":true,"endCursor":"c1"},"nodes":[{"name":"A","slug":"a"}]}}}`)
		} else {
			io.WriteString(w, `{"data":{"products":{"pageInfo":{"hasNextPage":false,"endCursor":"c2"},"nodes":[{"name":"B","slug":"b"}]}}}`)
		}
		return true
	})

	catalog := NewCatalog(f.client, f.cache)
	where := map[string]any{"category": "electronics"}

	first, err := catalog.Products(context.Background(), ProductsQuery{Where: where})
	if err != nil {
		t.Fatalf("Products() error: %v", err)
	}
	if got := gjson.GetBytes(f.upstream.last().body, "variables.first").Int(); got != DefaultPageSize {
		t.Errorf("first = %d, want %d", got, DefaultPageSize)
	}

	second, err := catalog.Products(context.Background(), ProductsQuery{Where: where, After: first.PageInfo.EndCursor})
	if err != nil {
		t.Fatalf("Products() error: %v", err)
	}
	if len(second.Nodes) != 2 || second.Nodes[0].Slug != "a" || second.Nodes[1].Slug != "b" {
		t.Errorf("merged nodes = %+v", second.Nodes)
	}
	if second.Nodes[1].ProductCategories == nil {
		t.Error("missing connections should default to empty")
	}

	cached, ok := catalog.CachedProducts(where)
	if !ok || len(cached.Nodes) != 2 {
		t.Errorf("cached = %+v", cached)
	}
}

func TestMenuCachedInSessionStore(t *testing.T) {
	f := newFixture(t, map[string]string{OpCategories: `{"data":{"productCategories":{"nodes":[
		{"id":"c1","databaseId":1,"name":"Uncategorized","slug":"uncategorized"},
		{"id":"c2","databaseId":2,"name":"Phones","slug":"phones","parent":null},
		{"id":"c3","databaseId":3,"name":"Android","slug":"android","parent":{"node":{"databaseId":2}}}
	]}}}`})
	catalog := NewCatalog(f.client, nil)

	m, err := catalog.Menu(context.Background(), f.sessions)
	if err != nil {
		t.Fatalf("Menu() error: %v", err)
	}
	if len(m.Categories) != 2 || m.Categories[1].ParentID != 2 {
		t.Errorf("categories = %+v", m.Categories)
	}

	if _, err := catalog.Menu(context.Background(), f.sessions); err != nil {
		t.Fatalf("Menu() error: %v", err)
	}
	if n := f.upstream.count(); n != 1 {
		t.Errorf("upstream hit %d times, want 1", n)
	}
}

func TestRegisterOmitsSession(t *testing.T) {
	f := newFixture(t, map[string]string{OpCreateUser: `{"data":{"registerCustomer":{
		"authToken":"jwt","refreshToken":"r","customer":{"email":"a@b.c"}}}}`})
	f.sessions.SetSessionToken("guest")
	f.sessions.SetAuth(session.Auth{AuthToken: "previous"})

	auth, err := NewAccounts(f.client, f.sessions).Register(context.Background(), RegisterInput{
		Email: "a@b.c", Password: "secret",
	})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	req := f.upstream.last()
	if req.headers.Get(headers.Session) != "" || req.headers.Get(headers.Authorization) != "" {
		t.Errorf("CreateUser carried auth headers: %v", req.headers)
	}
	if OpCreateUser != interceptor.OpCreateUser {
		t.Errorf("operation name %q out of sync with interceptor", OpCreateUser)
	}

	stored, ok := f.sessions.Auth()
	if !ok || stored.AuthToken != "jwt" || auth.RefreshToken != "r" {
		t.Errorf("stored auth = %+v", stored)
	}
	var user map[string]string
	if err := json.Unmarshal(stored.User, &user); err != nil || user["email"] != "a@b.c" {
		t.Errorf("user = %s", stored.User)
	}
}

func TestLoginValidation(t *testing.T) {
	f := newFixture(t, nil)
	_, err := NewAccounts(f.client, f.sessions).Login(context.Background(), "", "pw")
	if !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("error = %v, want validation error", err)
	}
	if f.upstream.count() != 0 {
		t.Error("invalid login should not reach upstream")
	}
}
