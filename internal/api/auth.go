package api

import (
	"context"
	"fmt"
	"net/http"

	"algodesk/internal/models"
)

// Credentials are the operator's platform login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration creates a platform user.
type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AngelLogin links the operator to an Angel One session.
type AngelLogin struct {
	ClientCode string `json:"clientCode"`
	Password   string `json:"password"`
	TOTP       string `json:"totp"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

type userResponse struct {
	User models.User `json:"user"`
}

type brokerCheckResponse struct {
	BrokerConnected bool `json:"brokerConnected"`
}

// Login authenticates and stores the issued token in the session.
func (c *Client) Login(ctx context.Context, creds Credentials) (*models.User, error) {
	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, "users/login", nil, creds, &resp, false); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("login response carried no token")
	}
	if err := c.session.SetToken(ctx, resp.Token); err != nil {
		return nil, fmt.Errorf("storing session token: %w", err)
	}
	return resp.User, nil
}

// Register creates a platform user. It does not log in.
func (c *Client) Register(ctx context.Context, reg Registration) error {
	return c.do(ctx, http.MethodPost, "users/register", nil, reg, nil, false)
}

// LoginAngel links the current user to an Angel One broker session.
func (c *Client) LoginAngel(ctx context.Context, req AngelLogin) error {
	return c.send(ctx, http.MethodPost, "users/loginAngel", req, nil)
}

// CheckBroker reports whether a broker session is linked.
func (c *Client) CheckBroker(ctx context.Context) (bool, error) {
	var resp brokerCheckResponse
	if err := c.get(ctx, "users/checkBroker", nil, &resp); err != nil {
		return false, err
	}
	return resp.BrokerConnected, nil
}

// UserInfo returns the logged-in user.
func (c *Client) UserInfo(ctx context.Context) (*models.User, error) {
	var resp userResponse
	if err := c.get(ctx, "users/getUserInfo", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}
