package dispatch

import (
	"context"
	"strings"

	"algodesk/internal/api"
	apperrors "algodesk/internal/errors"
	"algodesk/internal/models"
	"algodesk/internal/strategy"
	"algodesk/internal/stream"
)

// CancelOrder cancels one order. Orders already complete, rejected or
// cancelled are refused without a call.
func (d *Dispatcher) CancelOrder(ctx context.Context, accountID, orderID string) error {
	const action = "cancelOrder"
	target := OrderTarget(accountID, orderID)

	order, ok := d.state.Order(accountID, orderID)
	if !ok {
		return d.reject(ctx, action, target, apperrors.ErrNotFound)
	}
	if order.Status.IsTerminal() {
		return d.reject(ctx, action, target, apperrors.ErrTerminalOrder)
	}

	return d.run(ctx, action, target, func(ctx context.Context) error {
		updated, err := d.backend.CancelOrder(ctx, accountID, orderID)
		if err != nil {
			return err
		}
		if updated == nil {
			order.Status = models.OrderCancelling
			updated = &order
		}
		d.state.PutOrder(accountID, *updated)
		return nil
	}, stream.AccountScope(accountID))
}

// CancelAllOrders cancels orderIDs across a group. With no ids, every open
// order of the group's members is cancelled. Terminal orders are dropped
// from the request; if none remain the call is not made.
func (d *Dispatcher) CancelAllOrders(ctx context.Context, groupID string, orderIDs []string) error {
	const action = "cancelAllOrders"
	target := GroupTarget(groupID)

	if _, ok := d.state.Group(groupID); !ok {
		return d.reject(ctx, action, target, apperrors.ErrNotFound)
	}

	owners := make(map[string]string)
	open := make(map[string]bool)
	for _, acct := range d.state.GroupAccounts(groupID) {
		for _, o := range acct.Stats.Orders {
			owners[o.OrderID] = acct.ID
			open[o.OrderID] = !o.Status.IsTerminal()
		}
	}

	var ids []string
	if len(orderIDs) == 0 {
		for id, isOpen := range open {
			if isOpen {
				ids = append(ids, id)
			}
		}
	} else {
		for _, id := range orderIDs {
			// Orders not in the snapshot are left for the server to judge.
			if isOpen, known := open[id]; !known || isOpen {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		if len(orderIDs) == 0 {
			return d.reject(ctx, action, target, apperrors.ErrNoOpenOrders)
		}
		return d.reject(ctx, action, target, apperrors.ErrTerminalOrder)
	}

	return d.run(ctx, action, target, func(ctx context.Context) error {
		if err := d.backend.CancelAllOrders(ctx, groupID, ids); err != nil {
			return err
		}
		for _, id := range ids {
			accountID, ok := owners[id]
			if !ok {
				continue
			}
			if o, ok := d.state.Order(accountID, id); ok {
				o.Status = models.OrderCancelling
				d.state.PutOrder(accountID, o)
			}
		}
		return nil
	}, stream.GroupScope(groupID))
}

// SquareOff closes one position. Positions with zero net quantity are
// refused without a call.
func (d *Dispatcher) SquareOff(ctx context.Context, accountID, positionKey string) error {
	const action = "squareOff"
	target := PositionTarget(accountID, positionKey)

	pos, ok := d.state.Position(accountID, positionKey)
	if !ok {
		return d.reject(ctx, action, target, apperrors.ErrNotFound)
	}
	if pos.IsClosed() {
		return d.reject(ctx, action, target, apperrors.ErrPositionClosed)
	}

	return d.run(ctx, action, target, func(ctx context.Context) error {
		return d.backend.SquareOffPosition(ctx, api.SquareOffRequest{
			DematAccountID: accountID,
			Position:       pos,
		})
	}, stream.AccountScope(accountID))
}

// SquareOffAllByGroup closes every open position of the group. It is
// refused when the last snapshot shows nothing open.
func (d *Dispatcher) SquareOffAllByGroup(ctx context.Context, groupID string) error {
	const action = "squareOffAll"
	target := GroupTarget(groupID)

	if _, ok := d.state.Group(groupID); !ok {
		return d.reject(ctx, action, target, apperrors.ErrNotFound)
	}
	members := d.state.GroupAccounts(groupID)
	if len(members) > 0 && !anyOpenPosition(members) {
		return d.reject(ctx, action, target, apperrors.ErrPositionClosed)
	}

	return d.run(ctx, action, target, func(ctx context.Context) error {
		return d.backend.SquareOffAll(ctx, groupID)
	}, stream.GroupScope(groupID))
}

func anyOpenPosition(accounts []models.Account) bool {
	for _, acct := range accounts {
		for _, p := range acct.Stats.Positions {
			if !p.IsClosed() {
				return true
			}
		}
	}
	return false
}

// PlaceManualOrder places an operator order for an account or a group.
func (d *Dispatcher) PlaceManualOrder(ctx context.Context, order api.ManualOrder) error {
	const action = "placeManualOrder"
	target := AccountTarget(order.DematAccountID)
	scope := stream.AccountScope(order.DematAccountID)
	if order.GroupID != "" {
		target = GroupTarget(order.GroupID)
		scope = stream.GroupScope(order.GroupID)
	}

	if err := validateManualOrder(order); err != nil {
		d.record(ctx, action, target, err)
		return err
	}

	return d.run(ctx, action, target, func(ctx context.Context) error {
		placed, err := d.backend.PlaceManualOrder(ctx, order)
		if err != nil {
			return err
		}
		if placed != nil && order.DematAccountID != "" {
			d.state.PutOrder(order.DematAccountID, *placed)
		}
		return nil
	}, scope)
}

func validateManualOrder(o api.ManualOrder) error {
	switch {
	case o.DematAccountID == "" && o.GroupID == "":
		return apperrors.NewValidationError("dematAccountId", "", "Select an account or a group")
	case strings.TrimSpace(o.Symbol) == "":
		return apperrors.NewValidationError("tradingsymbol", o.Symbol, "Symbol is required")
	case o.TransactionType != models.SideBuy && o.TransactionType != models.SideSell:
		return apperrors.NewValidationError("transactiontype", o.TransactionType, "Transaction type must be BUY or SELL")
	case o.Quantity <= 0:
		return apperrors.NewValidationError("quantity", o.Quantity, "Quantity must be greater than 0")
	case strings.EqualFold(o.OrderType, "LIMIT") && o.Price <= 0:
		return apperrors.NewValidationError("price", o.Price, "Limit orders need a price")
	}
	return nil
}

// ToggleTrading turns trading on or off for one account.
func (d *Dispatcher) ToggleTrading(ctx context.Context, accountID string, desired bool) error {
	const action = "toggleTrading"
	target := AccountTarget(accountID)

	acct, ok := d.state.Account(accountID)
	if !ok {
		return d.reject(ctx, action, target, apperrors.ErrNotFound)
	}

	return d.run(ctx, action, target, func(ctx context.Context) error {
		updated, err := d.backend.SetAccountTrading(ctx, accountID, desired)
		if err != nil {
			return err
		}
		if updated == nil {
			acct.TradingEnabled = desired
			updated = &acct
		}
		d.state.PutAccount(*updated)
		return nil
	}, stream.AccountScope(accountID))
}

// ToggleGroupTrading turns mirrored trading on or off for a group.
func (d *Dispatcher) ToggleGroupTrading(ctx context.Context, groupID string, desired bool) error {
	const action = "toggleGroupTrading"
	target := GroupTarget(groupID)

	group, ok := d.state.Group(groupID)
	if !ok {
		return d.reject(ctx, action, target, apperrors.ErrNotFound)
	}

	return d.run(ctx, action, target, func(ctx context.Context) error {
		updated, err := d.backend.SetGroupTrading(ctx, groupID, desired)
		if err != nil {
			return err
		}
		if updated == nil {
			group.TradingEnabled = desired
			updated = &group
		}
		d.state.PutGroup(*updated)
		return nil
	}, stream.GroupScope(groupID))
}

// ToggleMaster connects accountID as the group's master or disconnects it.
// Only members can become master, and only the master can be disconnected.
func (d *Dispatcher) ToggleMaster(ctx context.Context, groupID, accountID string, mode models.MasterAction) error {
	const action = "toggleMaster"
	target := MemberTarget(groupID, accountID)

	group, ok := d.state.Group(groupID)
	if !ok {
		return d.reject(ctx, action, target, apperrors.ErrNotFound)
	}
	switch mode {
	case models.MasterConnect:
		if !group.HasMember(accountID) {
			return d.reject(ctx, action, target,
				apperrors.NewValidationError("dematAccountId", accountID, "Master must be a member of the group"))
		}
	case models.MasterDisconnect:
		if !group.IsMaster(accountID) {
			return d.reject(ctx, action, target,
				apperrors.NewValidationError("dematAccountId", accountID, "Account is not the group's master"))
		}
	default:
		return d.reject(ctx, action, target,
			apperrors.NewValidationError("action", mode, "Action must be connect or disconnect"))
	}

	return d.run(ctx, action, target, func(ctx context.Context) error {
		updated, err := d.backend.ToggleMaster(ctx, groupID, accountID, mode)
		if err != nil {
			return err
		}
		if updated == nil {
			if mode == models.MasterConnect {
				id := accountID
				group.MasterAccountID = &id
			} else {
				group.MasterAccountID = nil
			}
			updated = &group
		}
		d.state.PutGroup(*updated)
		return nil
	}, stream.GroupScope(groupID))
}

// DeployStrategy activates an inactive strategy.
func (d *Dispatcher) DeployStrategy(ctx context.Context, id string) error {
	return d.strategyTransition(ctx, id, strategy.ActionDeploy, d.backend.DeployStrategy)
}

// StopStrategy deactivates an active strategy.
func (d *Dispatcher) StopStrategy(ctx context.Context, id string) error {
	return d.strategyTransition(ctx, id, strategy.ActionStop, d.backend.StopStrategy)
}

func (d *Dispatcher) strategyTransition(ctx context.Context, id string, act strategy.Action,
	call func(context.Context, string) (*models.Strategy, error)) error {
	action := string(act) + "Strategy"
	target := StrategyTarget(id)

	s, ok := d.state.Strategy(id)
	if !ok {
		return d.reject(ctx, action, target, apperrors.ErrNotFound)
	}
	if err := strategy.Guard(s, act); err != nil {
		d.record(ctx, action, target, err)
		return err
	}

	return d.run(ctx, action, target, func(ctx context.Context) error {
		updated, err := call(ctx, id)
		if err != nil {
			return err
		}
		if updated == nil {
			next, err := strategy.Transition(s, act, d.now())
			if err != nil {
				return err
			}
			updated = &next
		}
		d.state.PutStrategy(*updated)
		return nil
	}, stream.StrategyScope(id))
}

// UpdateStrategy edits an inactive strategy. def is validated against spec
// (nil skips indicator fields) before the call.
func (d *Dispatcher) UpdateStrategy(ctx context.Context, id string, def models.StrategyUpdate, spec *models.IndicatorSpec) error {
	const action = "updateStrategy"
	target := StrategyTarget(id)

	s, ok := d.state.Strategy(id)
	if !ok {
		return d.reject(ctx, action, target, apperrors.ErrNotFound)
	}
	if err := strategy.Guard(s, strategy.ActionEdit); err != nil {
		d.record(ctx, action, target, err)
		return err
	}
	if err := strategy.Validate(def, spec); err != nil {
		d.record(ctx, action, target, err)
		return err
	}

	return d.run(ctx, action, target, func(ctx context.Context) error {
		updated, err := d.backend.UpdateStrategy(ctx, id, def)
		if err != nil {
			return err
		}
		if updated == nil {
			s.Name = def.Name
			s.Description = def.Description
			s.Indicator = def.Indicator
			s.Parameters = def.Parameters.Clone()
			s.ModifiedTime = d.now()
			updated = &s
		}
		d.state.PutStrategy(*updated)
		return nil
	})
}

// DeleteStrategy removes an inactive strategy.
func (d *Dispatcher) DeleteStrategy(ctx context.Context, id string) error {
	const action = "deleteStrategy"
	target := StrategyTarget(id)

	s, ok := d.state.Strategy(id)
	if !ok {
		return d.reject(ctx, action, target, apperrors.ErrNotFound)
	}
	if err := strategy.Guard(s, strategy.ActionDelete); err != nil {
		d.record(ctx, action, target, err)
		return err
	}

	return d.run(ctx, action, target, func(ctx context.Context) error {
		if err := d.backend.DeleteStrategy(ctx, id); err != nil {
			return err
		}
		d.state.RemoveStrategy(id)
		return nil
	})
}

// StopJob stops a job that has not finished.
func (d *Dispatcher) StopJob(ctx context.Context, job models.Job) error {
	const action = "stopJob"
	target := JobTarget(job.ID)

	if job.State.IsFinished() {
		return d.reject(ctx, action, target, apperrors.ErrJobFinished)
	}
	return d.run(ctx, action, target, func(ctx context.Context) error {
		return d.backend.StopJob(ctx, job.ID)
	})
}
