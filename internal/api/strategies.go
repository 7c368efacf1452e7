package api

import (
	"context"
	"net/http"

	"algodesk/internal/models"
)

type indicatorsResponse struct {
	Indicators []models.IndicatorSpec `json:"indicators"`
}

type strategiesResponse struct {
	Strategies []models.Strategy `json:"strategies"`
}

type strategyResponse struct {
	Strategy *models.Strategy `json:"strategy"`
}

// Indicators returns the indicator catalogue with per-indicator fields.
func (c *Client) Indicators(ctx context.Context) ([]models.IndicatorSpec, error) {
	var resp indicatorsResponse
	if err := c.get(ctx, "strategies/indicators", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Indicators, nil
}

// Strategies lists all strategies.
func (c *Client) Strategies(ctx context.Context) ([]models.Strategy, error) {
	var resp strategiesResponse
	if err := c.get(ctx, "strategies/getStrategies", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Strategies, nil
}

// CreateStrategy creates a strategy. The returned strategy is nil when the
// backend does not echo it.
func (c *Client) CreateStrategy(ctx context.Context, req models.StrategyUpdate) (*models.Strategy, error) {
	var resp strategyResponse
	if err := c.send(ctx, http.MethodPost, "strategies/createStrategy", req, &resp); err != nil {
		return nil, err
	}
	return resp.Strategy, nil
}

// UpdateStrategy replaces a strategy's definition.
func (c *Client) UpdateStrategy(ctx context.Context, id string, req models.StrategyUpdate) (*models.Strategy, error) {
	var resp strategyResponse
	if err := c.send(ctx, http.MethodPut, pathID("strategies/updateStrategy", id), req, &resp); err != nil {
		return nil, err
	}
	return resp.Strategy, nil
}

// DeleteStrategy removes an inactive strategy.
func (c *Client) DeleteStrategy(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, pathID("strategies/deleteStrategy", id), nil, nil)
}

// DeployStrategy activates a strategy.
func (c *Client) DeployStrategy(ctx context.Context, id string) (*models.Strategy, error) {
	var resp strategyResponse
	if err := c.send(ctx, http.MethodPost, pathID("strategies/deployStrategy", id), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Strategy, nil
}

// StopStrategy deactivates a strategy.
func (c *Client) StopStrategy(ctx context.Context, id string) (*models.Strategy, error) {
	var resp strategyResponse
	if err := c.send(ctx, http.MethodPost, pathID("strategies/stopStrategy", id), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Strategy, nil
}
