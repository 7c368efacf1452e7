package api

import (
	"context"
	"net/http"

	"algodesk/internal/models"
)

// ManualOrder is an operator-placed order, mirrored to the group when
// GroupID is set.
type ManualOrder struct {
	DematAccountID  string      `json:"dematAccountId,omitempty"`
	GroupID         string      `json:"groupId,omitempty"`
	Symbol          string      `json:"tradingsymbol"`
	SymbolToken     string      `json:"symboltoken,omitempty"`
	Exchange        string      `json:"exchange"`
	TransactionType models.Side `json:"transactiontype"`
	OrderType       string      `json:"ordertype"`
	ProductType     string      `json:"producttype"`
	Quantity        int64       `json:"quantity"`
	Price           float64     `json:"price,omitempty"`
}

// SquareOffRequest closes one position of one account.
type SquareOffRequest struct {
	DematAccountID string          `json:"dematAccountId"`
	Position       models.Position `json:"position"`
}

type orderResponse struct {
	Order *models.Order `json:"order"`
}

// PlaceManualOrder places an order.
func (c *Client) PlaceManualOrder(ctx context.Context, order ManualOrder) (*models.Order, error) {
	var resp orderResponse
	if err := c.send(ctx, http.MethodPost, "orders/placeMannualOrder", order, &resp); err != nil {
		return nil, err
	}
	return resp.Order, nil
}

// SquareOffPosition closes a position with an offsetting order.
func (c *Client) SquareOffPosition(ctx context.Context, req SquareOffRequest) error {
	return c.send(ctx, http.MethodPost, "orders/squareOffPositions", req, nil)
}

// CancelOrder cancels one open order.
func (c *Client) CancelOrder(ctx context.Context, accountID, orderID string) (*models.Order, error) {
	body := map[string]string{"dematAccountId": accountID, "orderId": orderID}
	var resp orderResponse
	if err := c.send(ctx, http.MethodPost, "orders/cancelOrder", body, &resp); err != nil {
		return nil, err
	}
	return resp.Order, nil
}

// CancelAllOrders cancels the listed orders across a group.
func (c *Client) CancelAllOrders(ctx context.Context, groupID string, orderIDs []string) error {
	body := map[string]interface{}{"groupId": groupID, "orderIds": orderIDs}
	return c.send(ctx, http.MethodPost, "orders/cancelAllOrders", body, nil)
}
