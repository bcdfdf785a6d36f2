package graphql

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"storefront-proxy/internal/model"
	"storefront-proxy/internal/session"
)

// RegisterInput is a new customer account.
type RegisterInput struct {
	Email     string
	Password  string
	Username  string
	FirstName string
	LastName  string
}

// Accounts runs customer registration and login and stores the returned
// credentials.
type Accounts struct {
	client *Client
	store  *session.Store
}

// NewAccounts returns an Accounts writing credentials to store.
func NewAccounts(client *Client, store *session.Store) *Accounts {
	return &Accounts{client: client, store: store}
}

// Register creates a customer. The request is sent as CreateUser, so it
// carries neither the guest session nor an earlier customer's bearer token.
func (a *Accounts) Register(ctx context.Context, in RegisterInput) (session.Auth, error) {
	if in.Email == "" {
		return session.Auth{}, model.NewValidationError("email", "required")
	}
	if in.Password == "" {
		return session.Auth{}, model.NewValidationError("password", "required")
	}

	input := map[string]any{
		"clientMutationId": uuid.NewString(),
		"email":            in.Email,
		"password":         in.Password,
	}
	if in.Username != "" {
		input["username"] = in.Username
	}
	if in.FirstName != "" {
		input["firstName"] = in.FirstName
	}
	if in.LastName != "" {
		input["lastName"] = in.LastName
	}

	data, err := a.client.Do(ctx, Request{
		Query:         createUserMutation,
		OperationName: OpCreateUser,
		Variables:     map[string]any{"input": input},
	})
	if err != nil {
		return session.Auth{}, err
	}
	return a.storeAuth(data, "registerCustomer")
}

// Login authenticates a customer by username and password.
func (a *Accounts) Login(ctx context.Context, username, password string) (session.Auth, error) {
	if username == "" {
		return session.Auth{}, model.NewValidationError("username", "required")
	}
	if password == "" {
		return session.Auth{}, model.NewValidationError("password", "required")
	}

	data, err := a.client.Do(ctx, Request{
		Query:         loginMutation,
		OperationName: OpLogin,
		Variables: map[string]any{"input": map[string]any{
			"clientMutationId": uuid.NewString(),
			"username":         username,
			"password":         password,
		}},
	})
	if err != nil {
		return session.Auth{}, err
	}
	return a.storeAuth(data, "login")
}

func (a *Accounts) storeAuth(data []byte, path string) (session.Auth, error) {
	r := gjson.GetBytes(data, path)
	token := r.Get("authToken").String()
	if token == "" {
		return session.Auth{}, model.NewMalformedUpstreamError(service, model.Truncate(string(data), 200))
	}

	auth := session.Auth{
		AuthToken:    token,
		RefreshToken: r.Get("refreshToken").String(),
	}
	if c := r.Get("customer"); c.IsObject() {
		auth.User = json.RawMessage(c.Raw)
	}
	a.store.SetAuth(auth)
	return auth, nil
}
