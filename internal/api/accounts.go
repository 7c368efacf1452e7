package api

import (
	"context"
	"net/http"

	"algodesk/internal/models"
)

// AddAccountRequest connects a new demat account.
type AddAccountRequest struct {
	BrokerName  string `json:"brokerName"`
	ClientID    string `json:"clientId"`
	DisplayName string `json:"displayName,omitempty"`
	Password    string `json:"password,omitempty"`
	TOTPSecret  string `json:"totpSecret,omitempty"`
	APIKey      string `json:"apiKey,omitempty"`
}

type accountsResponse struct {
	DematAccounts []models.Account `json:"dematAccounts"`
}

type accountResponse struct {
	DematAccount *models.Account `json:"dematAccount"`
}

type brokersResponse struct {
	Brokers []models.BrokerInfo `json:"brokers"`
}

// DematAccounts lists the operator's demat accounts with their stats.
func (c *Client) DematAccounts(ctx context.Context) ([]models.Account, error) {
	var resp accountsResponse
	if err := c.get(ctx, "users/getDematAccounts", nil, &resp); err != nil {
		return nil, err
	}
	return resp.DematAccounts, nil
}

// AddDematAccount connects a broker account.
func (c *Client) AddDematAccount(ctx context.Context, req AddAccountRequest) (*models.Account, error) {
	var resp accountResponse
	if err := c.send(ctx, http.MethodPost, "users/addDematAccount", req, &resp); err != nil {
		return nil, err
	}
	return resp.DematAccount, nil
}

// SetAccountTrading turns trading on or off for one account. The returned
// account is nil when the backend does not echo it.
func (c *Client) SetAccountTrading(ctx context.Context, accountID string, enabled bool) (*models.Account, error) {
	body := map[string]interface{}{
		"dematAccountId": accountID,
		"tradingEnabled": enabled,
	}
	var resp accountResponse
	if err := c.send(ctx, http.MethodPut, "users/updateDematAccountTradeToggle", body, &resp); err != nil {
		return nil, err
	}
	return resp.DematAccount, nil
}

// DeleteDematAccount disconnects an account.
func (c *Client) DeleteDematAccount(ctx context.Context, accountID string) error {
	return c.send(ctx, http.MethodDelete, pathID("users/deleteDematAccount", accountID), nil, nil)
}

// AutoLoginUsers asks the backend to refresh every broker session.
func (c *Client) AutoLoginUsers(ctx context.Context) error {
	return c.send(ctx, http.MethodPost, "users/autoLoginUsers", struct{}{}, nil)
}

// ExistingBrokers lists the brokers the backend supports.
func (c *Client) ExistingBrokers(ctx context.Context) ([]models.BrokerInfo, error) {
	var resp brokersResponse
	if err := c.get(ctx, "users/getExistBrokersList", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Brokers, nil
}
