package api

import (
	"context"
	"net/http"

	"algodesk/internal/models"
)

// GroupRequest is the body for group create and update.
type GroupRequest struct {
	GroupID          string   `json:"groupId,omitempty"`
	Name             string   `json:"name"`
	MemberAccountIDs []string `json:"memberAccountIds,omitempty"`
}

type groupsResponse struct {
	Groups []models.Group `json:"groups"`
}

type groupResponse struct {
	Group *models.Group `json:"group"`
}

// Groups lists all groups.
func (c *Client) Groups(ctx context.Context) ([]models.Group, error) {
	var resp groupsResponse
	if err := c.get(ctx, "groups/getGroups", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Groups, nil
}

// CreateGroup creates a group.
func (c *Client) CreateGroup(ctx context.Context, req GroupRequest) (*models.Group, error) {
	var resp groupResponse
	if err := c.send(ctx, http.MethodPost, "groups/createGroup", req, &resp); err != nil {
		return nil, err
	}
	return resp.Group, nil
}

// UpdateGroup renames a group or replaces its members.
func (c *Client) UpdateGroup(ctx context.Context, req GroupRequest) (*models.Group, error) {
	var resp groupResponse
	if err := c.send(ctx, http.MethodPut, "groups/updateGroup", req, &resp); err != nil {
		return nil, err
	}
	return resp.Group, nil
}

// DeleteGroup deletes a group.
func (c *Client) DeleteGroup(ctx context.Context, groupID string) error {
	return c.send(ctx, http.MethodDelete, "groups/deleteGroup", map[string]string{"groupId": groupID}, nil)
}

// ToggleMaster connects or disconnects accountID as the group's master.
func (c *Client) ToggleMaster(ctx context.Context, groupID, accountID string, action models.MasterAction) (*models.Group, error) {
	body := map[string]string{
		"groupId":        groupID,
		"dematAccountId": accountID,
		"action":         string(action),
	}
	var resp groupResponse
	if err := c.send(ctx, http.MethodPut, "groups/toggleMaster", body, &resp); err != nil {
		return nil, err
	}
	return resp.Group, nil
}

// SetGroupTrading turns mirrored trading on or off for a group.
func (c *Client) SetGroupTrading(ctx context.Context, groupID string, enabled bool) (*models.Group, error) {
	body := map[string]interface{}{
		"groupId":        groupID,
		"tradingEnabled": enabled,
	}
	var resp groupResponse
	if err := c.send(ctx, http.MethodPut, "groups/toggleTrading", body, &resp); err != nil {
		return nil, err
	}
	return resp.Group, nil
}

// AddChild adds an account to a group.
func (c *Client) AddChild(ctx context.Context, groupID, accountID string) (*models.Group, error) {
	return c.childCall(ctx, "groups/addChild", groupID, accountID)
}

// RemoveChild removes an account from a group.
func (c *Client) RemoveChild(ctx context.Context, groupID, accountID string) (*models.Group, error) {
	return c.childCall(ctx, "groups/removeChild", groupID, accountID)
}

func (c *Client) childCall(ctx context.Context, path, groupID, accountID string) (*models.Group, error) {
	body := map[string]string{"groupId": groupID, "dematAccountId": accountID}
	var resp groupResponse
	if err := c.send(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	return resp.Group, nil
}

// Children returns the member accounts of a group with their latest stats.
// It is the pull-mode equivalent of the demat WebSocket channel.
func (c *Client) Children(ctx context.Context, groupID string) ([]models.Account, error) {
	var resp accountsResponse
	if err := c.get(ctx, pathID("groups/getChildren", groupID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.DematAccounts, nil
}

// SquareOffAll closes every open position of every member of the group.
func (c *Client) SquareOffAll(ctx context.Context, groupID string) error {
	return c.send(ctx, http.MethodPost, pathID("groups/squareOffAll", groupID), struct{}{}, nil)
}
